package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"eduscale/internal/daemon"
	"eduscale/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st daemon.Status
			if err := ctx.get("/api/status", &st); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, st)
			}

			out := cmd.OutOrStdout()
			running := "stopped"
			color := "\x1b[31m"
			if st.Running {
				running = "running"
				color = "\x1b[32m"
			}
			if isTerminal(out) {
				running = color + running + "\x1b[0m"
			}
			fmt.Fprintf(out, "Daemon:  %s\n", running)
			fmt.Fprintf(out, "Bucket:  %s\n", st.Bucket)
			fmt.Fprintf(out, "Rules:   %d\n", st.RuleCount)
			fmt.Fprintf(out, "Files:   %d\n", st.FileCount)

			if st.FileCount == 0 {
				return nil
			}

			stages := append(status.ProcessingStages(), status.StageDone, status.StageFailed)
			rows := make([][]string, 0, len(stages))
			for _, stage := range stages {
				count := st.StageCount[string(stage)]
				if count == 0 {
					continue
				}
				rows = append(rows, []string{string(stage), strconv.Itoa(count)})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Files"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"eduscale/internal/status"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	var stageFilter string

	cmd := &cobra.Command{
		Use:   "files [file-id]",
		Short: "List tracked files or show one file's record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showFile(cmd, ctx, args[0])
			}
			return listFiles(cmd, ctx, stageFilter)
		},
	}
	cmd.Flags().StringVar(&stageFilter, "stage", "", "Only show files at this stage (classify, extract, structure, load, done, failed)")
	return cmd
}

func listFiles(cmd *cobra.Command, ctx *commandContext, stageFilter string) error {
	path := "/api/files"
	if stageFilter != "" {
		path += "?stage=" + url.QueryEscape(stageFilter)
	}

	var resp struct {
		Files []*status.Record `json:"files"`
	}
	if err := ctx.get(path, &resp); err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, resp)
	}

	out := cmd.OutOrStdout()
	if len(resp.Files) == 0 {
		fmt.Fprintln(out, "No tracked files.")
		return nil
	}

	rows := make([][]string, 0, len(resp.Files))
	for _, record := range resp.Files {
		rows = append(rows, []string{
			record.FileID,
			record.RegionID,
			string(record.CurrentStage),
			strconv.Itoa(len(record.AuditWarnings)),
			record.LastUpdated.Local().Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"File ID", "Region", "Stage", "Warnings", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	return nil
}

func showFile(cmd *cobra.Command, ctx *commandContext, fileID string) error {
	var record status.Record
	if err := ctx.get("/api/files/"+url.PathEscape(fileID), &record); err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, record)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:     %s\n", record.FileID)
	fmt.Fprintf(out, "Region:   %s\n", record.RegionID)
	fmt.Fprintf(out, "Stage:    %s\n", record.CurrentStage)
	if record.TextURI != "" {
		fmt.Fprintf(out, "Text:     %s\n", record.TextURI)
	}
	fmt.Fprintf(out, "Updated:  %s\n", record.LastUpdated.Local().Format("2006-01-02 15:04:05"))
	for key, value := range record.Metadata {
		fmt.Fprintf(out, "  %s: %v\n", key, value)
	}
	for _, warning := range record.AuditWarnings {
		fmt.Fprintf(out, "  warning: %s\n", warning)
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eduscale/internal/event"
)

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var bucket string

	cmd := &cobra.Command{
		Use:   "replay <object-path>",
		Short: "Re-run pipeline processing for a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]string{
				"bucket":      bucket,
				"object_path": args[0],
			}
			var n event.Notification
			if err := ctx.post("/api/replay", req, &n); err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replay accepted: %s/%s (event %s, %d bytes)\n",
				n.Bucket, n.ObjectPath, n.ID, n.SizeBytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket holding the object (defaults to the daemon's configured bucket)")
	return cmd
}

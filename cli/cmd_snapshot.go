package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiaot623/runview/internal/follower"
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the current runs, graph links and diagnostics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(outputFormat); err != nil {
			return err
		}

		client := follower.NewClient(serverURL, nil)
		resp, err := client.FetchSnapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch snapshot: %w", err)
		}
		return renderSnapshot(cmd.OutOrStdout(), outputFormat, resp.Snapshot, resp.Cursor)
	},
}

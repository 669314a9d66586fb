package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xiaot623/runview/internal/follower"
)

var (
	eventsAfter int64
	eventsTypes []string
	eventsLimit int
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().Int64Var(&eventsAfter, "after", 0, "only events after this time (unix ms)")
	eventsCmd.Flags().StringSliceVar(&eventsTypes, "types", nil, "event types to include (spawn,start,end,error,cleanup)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 100, "maximum number of events")
}

var eventsCmd = &cobra.Command{
	Use:   "events <runId>",
	Short: "Print the archived lifecycle events of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(outputFormat); err != nil {
			return err
		}

		client := follower.NewClient(serverURL, nil)
		events, err := client.FetchRunEvents(cmd.Context(), args[0], eventsAfter, eventsTypes, eventsLimit)
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		return renderEvents(cmd.OutOrStdout(), outputFormat, events)
	},
}

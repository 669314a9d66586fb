package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/runview/internal/follower"
	"github.com/xiaot623/runview/internal/logging"
)

var (
	watchPollInterval   time.Duration
	watchReconnectDelay time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchPollInterval, "poll-interval", follower.DefaultPollInterval, "snapshot poll interval while the stream is down")
	watchCmd.Flags().DurationVar(&watchReconnectDelay, "reconnect-delay", follower.DefaultReconnectDelay, "delay between stream reconnect attempts")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow lifecycle events as they happen",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New("warn", "console")
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := &watchPrinter{w: cmd.OutOrStdout()}
		f := follower.New(follower.Config{
			BaseURL:        serverURL,
			PollInterval:   watchPollInterval,
			ReconnectDelay: watchReconnectDelay,
			OnUpdate:       p.print,
		}, nil, logger)

		fmt.Fprintf(p.w, "Watching %s (Ctrl+C to stop)\n", serverURL)
		if err := f.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

// watchPrinter renders follower updates as lines.
type watchPrinter struct {
	mu         sync.Mutex
	w          io.Writer
	lastNotice string
}

func (p *watchPrinter) print(u follower.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch u.Kind {
	case follower.UpdateConnectivity:
		fmt.Fprintf(p.w, "-- connection: %s\n", u.Connectivity)
	case follower.UpdateLifecycle:
		fmt.Fprintln(p.w, lifecycleLine(u.Envelope))
	case follower.UpdateGap:
		fmt.Fprintf(p.w, "-- missed %d events (cursor %d, retained %d..%d), resyncing\n",
			u.Gap.DroppedCount, u.Gap.RequestedCursor, u.Gap.OldestAvailableSeq, u.Gap.LatestAvailableSeq)
	case follower.UpdateSnapshot:
		if snap := u.Decision.Snapshot; snap != nil {
			fmt.Fprintf(p.w, "-- snapshot: %d runs, %d events\n", len(snap.Runs), len(snap.Events))
		}
	}

	if u.Kind == follower.UpdateSnapshot || u.Kind == follower.UpdateLifecycle {
		if u.Decision.Notice != p.lastNotice && u.Decision.Notice != "" {
			fmt.Fprintf(p.w, "!! %s\n", u.Decision.Notice)
		}
		p.lastNotice = u.Decision.Notice
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/caresync/internal/entrypoint"
	"github.com/mrlokans/caresync/internal/syncengine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Timeout time.Duration
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: `Probe the remote service once and, if it answers, push every pending
change in the mutation queue. Failed entries stay queued for the next pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "timeout for the connectivity probe")
	return cmd
}

func runSync(ctx context.Context, opts *SyncOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	app, err := entrypoint.Build(opts.Config())
	if err != nil {
		return err
	}
	defer app.Close()

	if !app.Monitor.Check(ctx) {
		return fmt.Errorf("remote service at %s is unreachable", app.Remote.BaseURL())
	}
	if !app.Session.Authenticated() {
		return errors.New("not logged in, run 'caresync login --token <token>' first")
	}

	report, err := app.Engine.Drain(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	out := newOutput(opts.RootOptions, w)
	return out.Result(report, func(w io.Writer) {
		printReport(w, report)
	})
}

func printReport(w io.Writer, r syncengine.Report) {
	if r.Aborted {
		fmt.Fprintln(w, "Pass aborted: session expired, log in again")
	}
	fmt.Fprintf(w, "Processed %d entries: %d synced, %d failed, %d evicted, %d dropped\n",
		r.Total, r.Synced, r.Failed, r.Evicted, r.Dropped)
	fmt.Fprintf(w, "%d entries still pending\n", r.Remaining)
}

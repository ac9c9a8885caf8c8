package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/caresync/internal/database/queue"
	"github.com/mrlokans/caresync/internal/entities"
)

// NewQueueCommand creates the queue command group.
func NewQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the mutation queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending changes in processing order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd.Context(), opts, cmd.OutOrStdout())
		},
	})

	return cmd
}

func runQueueList(ctx context.Context, opts *RootOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDatabase(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := queue.NewRepository(db.DB).Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	if entries == nil {
		entries = []entities.MutationQueueEntry{}
	}

	return newOutput(opts, w).Result(entries, func(w io.Writer) {
		if len(entries) == 0 {
			fmt.Fprintln(w, "Queue is empty")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tACTION\tKIND\tLOCAL ID\tRETRIES\tQUEUED\tLAST ERROR")
		for _, e := range entries {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
				e.ID, e.Action, e.EntityKind, e.TargetLocalID, e.Retries,
				e.CreatedAt.Format(time.RFC3339), e.LastError)
		}
		tw.Flush()
	})
}

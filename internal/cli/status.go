package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/database/queue"
	syncrepo "github.com/mrlokans/caresync/internal/database/sync"
	"github.com/mrlokans/caresync/internal/entities"
)

// StatusResult is the output of the status command.
type StatusResult struct {
	Database      string                 `json:"database"`
	SchemaVersion int                    `json:"schema_version"`
	Pending       int64                  `json:"pending"`
	LastPass      *entities.SyncProgress `json:"last_pass,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local store and sync queue state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
}

// openDatabase opens the local store for commands that need no sync stack.
func openDatabase(opts *RootOptions) (*database.Database, error) {
	db, err := database.NewDatabase(opts.Config().Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func runStatus(ctx context.Context, opts *RootOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDatabase(opts)
	if err != nil {
		return err
	}
	defer db.Close()

	result := StatusResult{Database: db.Path()}

	if result.SchemaVersion, err = db.SchemaVersion(); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if result.Pending, err = queue.NewRepository(db.DB).Count(ctx); err != nil {
		return fmt.Errorf("failed to count pending changes: %w", err)
	}
	if result.LastPass, err = syncrepo.NewRepository(db.DB).GetSyncProgress(); err != nil {
		return fmt.Errorf("failed to read sync progress: %w", err)
	}

	return newOutput(opts, w).Result(result, func(w io.Writer) {
		fmt.Fprintf(w, "Database:       %s\n", result.Database)
		fmt.Fprintf(w, "Schema version: %d\n", result.SchemaVersion)
		fmt.Fprintf(w, "Pending:        %d\n", result.Pending)

		p := result.LastPass
		if p == nil {
			fmt.Fprintln(w, "Last pass:      never")
			return
		}
		fmt.Fprintf(w, "Last pass:      %s at %s (%d/%d synced, %d failed, %d evicted)\n",
			p.Status, p.StartedAt.Format(time.RFC3339), p.Succeeded, p.TotalItems, p.Failed, p.Evicted)
		if p.Error != "" {
			fmt.Fprintf(w, "Last error:     %s\n", p.Error)
		}
		if p.LastSuccessAt != nil {
			fmt.Fprintf(w, "Last success:   %s\n", p.LastSuccessAt.Format(time.RFC3339))
		}
	})
}

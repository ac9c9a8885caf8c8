// Package cli holds the caresync command tree. With no subcommand the binary
// runs the daemon, like "caresync serve".
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mrlokans/caresync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Database   string
	Format     string // "json" | "text"
	Version    string

	cfg *config.Config
}

var ValidFormats = []string{"text", "json"}

// Config returns the configuration loaded for the running command.
func (o *RootOptions) Config() *config.Config {
	return o.cfg
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "caresync",
		Short:         "Offline-first clinical record store",
		Long:          "Keeps patients, treatment plans and plan steps in a local store and syncs them to the remote service when it is reachable.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (overrides $"+config.ConfigFileEnv+")")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the local database")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))

	return cmd
}

func (o *RootOptions) load() error {
	if o.ConfigFile != "" {
		if err := os.Setenv(config.ConfigFileEnv, o.ConfigFile); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	o.cfg = cfg
	return nil
}

// Execute runs the command tree and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrlokans/caresync/internal/tokenstore"
)

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	Token string
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the bearer token used for the remote service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Token, "token", "t", "", "bearer token (required)")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogout(opts, cmd.OutOrStdout())
		},
	}
}

func openTokenStore(opts *RootOptions) (*tokenstore.TokenStore, func(), error) {
	db, err := openDatabase(opts)
	if err != nil {
		return nil, nil, err
	}
	cfg := opts.Config().Token
	store, err := tokenstore.New(db.DB, tokenstore.Config{
		EncryptionKey: cfg.EncryptionKey,
		Passphrase:    cfg.Passphrase,
		KeyFilePath:   cfg.KeyFile,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to open token store: %w", err)
	}
	return store, func() { db.Close() }, nil
}

func runLogin(opts *LoginOptions, w io.Writer) error {
	if opts.Token == "" {
		return errors.New("token must not be empty")
	}
	store, closeStore, err := openTokenStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SaveToken(opts.Token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return newOutput(opts.RootOptions, w).Result(map[string]bool{"authenticated": true}, func(w io.Writer) {
		fmt.Fprintln(w, "Token saved, pending changes will sync on the next pass")
	})
}

func runLogout(opts *RootOptions, w io.Writer) error {
	store, closeStore, err := openTokenStore(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.ClearToken(); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return newOutput(opts, w).Result(map[string]bool{"authenticated": false}, func(w io.Writer) {
		fmt.Fprintln(w, "Logged out")
	})
}

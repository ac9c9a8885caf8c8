package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/caresync/internal/config"
	"github.com/mrlokans/caresync/internal/database"
	"github.com/mrlokans/caresync/internal/database/queue"
	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/records"
	"github.com/mrlokans/caresync/internal/tokenstore"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand("1.2.3")
	require.NotNil(t, cmd)
	assert.Equal(t, "caresync", cmd.Use)
	assert.Equal(t, "1.2.3", cmd.Version)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand("dev")
	commands := [][]string{{"serve"}, {"sync"}, {"status"}, {"login"}, {"logout"}, {"queue", "list"}}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestFlags(t *testing.T) {
	cmd := NewRootCommand("dev")

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	loginCmd, _, err := cmd.Find([]string{"login"})
	require.NoError(t, err)
	tokenFlag := loginCmd.Flags().Lookup("token")
	require.NotNil(t, tokenFlag)
	assert.Equal(t, "t", tokenFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand("dev")
	cmd.SetArgs([]string{"status", "--format", "yaml"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func testOptions(t *testing.T, format string) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Database.Path = filepath.Join(dir, "caresync.db")
	cfg.Token.KeyFile = filepath.Join(dir, "token-key")
	return &RootOptions{Format: format, cfg: cfg}
}

func seedPatient(t *testing.T, opts *RootOptions) {
	t.Helper()
	db, err := database.NewDatabase(opts.Config().Database.Path)
	require.NoError(t, err)
	defer db.Close()

	svc := records.NewService(db.Store(), queue.NewRepository(db.DB))
	_, err = svc.CreatePatient(context.Background(), records.PatientInput{Name: "Jane Doe"})
	require.NoError(t, err)
}

func TestStatus(t *testing.T) {
	t.Run("text output on an empty store", func(t *testing.T) {
		opts := testOptions(t, "text")
		var out bytes.Buffer

		require.NoError(t, runStatus(context.Background(), opts, &out))
		assert.Contains(t, out.String(), "Pending:        0")
		assert.Contains(t, out.String(), "Last pass:      never")
	})

	t.Run("json output counts pending changes", func(t *testing.T) {
		opts := testOptions(t, "json")
		seedPatient(t, opts)
		var out bytes.Buffer

		require.NoError(t, runStatus(context.Background(), opts, &out))

		var result StatusResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Equal(t, int64(1), result.Pending)
		assert.Positive(t, result.SchemaVersion)
		assert.Nil(t, result.LastPass)
	})
}

func TestQueueList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		opts := testOptions(t, "text")
		var out bytes.Buffer

		require.NoError(t, runQueueList(context.Background(), opts, &out))
		assert.Equal(t, "Queue is empty\n", out.String())
	})

	t.Run("lists entries", func(t *testing.T) {
		opts := testOptions(t, "json")
		seedPatient(t, opts)
		var out bytes.Buffer

		require.NoError(t, runQueueList(context.Background(), opts, &out))

		var entries []entities.MutationQueueEntry
		require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, entities.ActionCreate, entries[0].Action)
		assert.Equal(t, entities.KindPatient, entries[0].EntityKind)
	})
}

func TestLoginLogout(t *testing.T) {
	opts := testOptions(t, "text")
	var out bytes.Buffer

	require.NoError(t, runLogin(&LoginOptions{RootOptions: opts, Token: "token-1"}, &out))
	assert.Contains(t, out.String(), "Token saved")

	db, err := database.NewDatabase(opts.Config().Database.Path)
	require.NoError(t, err)
	store, err := tokenstore.New(db.DB, tokenstore.Config{KeyFilePath: opts.Config().Token.KeyFile})
	require.NoError(t, err)
	token, err := store.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	require.NoError(t, db.Close())

	out.Reset()
	require.NoError(t, runLogout(opts, &out))
	assert.Equal(t, "Logged out\n", out.String())

	db, err = database.NewDatabase(opts.Config().Database.Path)
	require.NoError(t, err)
	defer db.Close()
	store, err = tokenstore.New(db.DB, tokenstore.Config{KeyFilePath: opts.Config().Token.KeyFile})
	require.NoError(t, err)
	token, err = store.LoadToken()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestLogin_EmptyToken(t *testing.T) {
	opts := testOptions(t, "text")
	err := runLogin(&LoginOptions{RootOptions: opts}, &bytes.Buffer{})
	require.Error(t, err)
}

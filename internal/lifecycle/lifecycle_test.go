package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/caresync/internal/entities"
)

func TestOnCreate_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	meta := &entities.SyncMeta{
		LocalID:   "abc",
		Synced:    true,
		Deleted:   true,
		CreatedAt: now.Add(-time.Hour),
	}

	OnCreate(meta, WriteOptions{}, now)

	assert.Equal(t, now, meta.CreatedAt)
	assert.Equal(t, now, meta.UpdatedAt)
	assert.False(t, meta.Synced)
	assert.False(t, meta.Deleted, "deleted must default to false on create")
}

func TestOnCreate_ExplicitDeleted(t *testing.T) {
	now := time.Now()
	meta := &entities.SyncMeta{}

	OnCreate(meta, WriteOptions{Deleted: Bool(true)}, now)

	assert.True(t, meta.Deleted)
	assert.False(t, meta.Synced)
}

func TestOnCreate_IgnoresSynced(t *testing.T) {
	meta := &entities.SyncMeta{}

	OnCreate(meta, Acknowledged(), time.Now())

	assert.False(t, meta.Synced, "a new record is never born synced")
}

func TestOnUpdate(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(48 * time.Hour)
	remoteID := "42"

	tests := []struct {
		name        string
		prevDeleted bool
		opts        WriteOptions
		wantSynced  bool
		wantDeleted bool
	}{
		{
			name:        "plain update marks dirty and keeps live record live",
			opts:        WriteOptions{},
			wantSynced:  false,
			wantDeleted: false,
		},
		{
			name:        "plain update never resurrects a deleted record",
			prevDeleted: true,
			opts:        WriteOptions{},
			wantSynced:  false,
			wantDeleted: true,
		},
		{
			name:        "explicit delete",
			opts:        WriteOptions{Deleted: Bool(true)},
			wantSynced:  false,
			wantDeleted: true,
		},
		{
			name:        "explicit undelete",
			prevDeleted: true,
			opts:        WriteOptions{Deleted: Bool(false)},
			wantSynced:  false,
			wantDeleted: false,
		},
		{
			name:        "acknowledged write",
			opts:        Acknowledged(),
			wantSynced:  true,
			wantDeleted: false,
		},
		{
			name:        "explicit synced false",
			opts:        WriteOptions{Synced: Bool(false)},
			wantSynced:  false,
			wantDeleted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := &entities.SyncMeta{
				LocalID:   "local-1",
				RemoteID:  &remoteID,
				Synced:    true,
				Deleted:   tt.prevDeleted,
				CreatedAt: created,
				UpdatedAt: created,
			}
			meta := &entities.SyncMeta{Synced: true, CreatedAt: now}

			OnUpdate(meta, prev, tt.opts, now)

			assert.Equal(t, "local-1", meta.LocalID)
			assert.Equal(t, created, meta.CreatedAt, "createdAt is not caller-settable")
			assert.Equal(t, now, meta.UpdatedAt)
			assert.Equal(t, &remoteID, meta.RemoteID)
			assert.Equal(t, tt.wantSynced, meta.Synced)
			assert.Equal(t, tt.wantDeleted, meta.Deleted)
		})
	}
}

func TestOnUpdate_Idempotent(t *testing.T) {
	now := time.Now()
	prev := &entities.SyncMeta{LocalID: "x", Deleted: true, CreatedAt: now.Add(-time.Minute)}
	meta := &entities.SyncMeta{}

	OnUpdate(meta, prev, WriteOptions{}, now)
	first := *meta
	OnUpdate(meta, prev, WriteOptions{}, now)

	assert.Equal(t, first, *meta)
}

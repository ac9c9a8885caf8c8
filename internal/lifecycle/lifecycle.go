// Package lifecycle stamps the sync invariants onto every local write.
//
// The store calls OnCreate or OnUpdate on each record right before it is
// committed. Callers never set timestamps or sync flags directly; they state
// intent through WriteOptions:
//
//	// UI write: record becomes dirty, deleted flag is preserved
//	store.Put(ctx, patient, lifecycle.WriteOptions{})
//
//	// Soft delete
//	store.Put(ctx, patient, lifecycle.WriteOptions{Deleted: lifecycle.Bool(true)})
//
//	// Sync engine after a remote acknowledgement
//	store.Put(ctx, patient, lifecycle.WriteOptions{Synced: lifecycle.Bool(true)})
package lifecycle

import (
	"time"

	"github.com/mrlokans/caresync/internal/entities"
)

// WriteOptions carries the flags a caller explicitly provides for a write.
// A nil field means "not provided".
type WriteOptions struct {
	Deleted *bool
	Synced  *bool
}

// Bool returns a pointer to b, for filling WriteOptions.
func Bool(b bool) *bool {
	return &b
}

// Acknowledged is the option set the sync engine uses after the remote service
// accepted the entity's latest state.
func Acknowledged() WriteOptions {
	return WriteOptions{Synced: Bool(true)}
}

// OnCreate prepares a brand new record. The record is always dirty; deleted
// defaults to false.
func OnCreate(meta *entities.SyncMeta, opts WriteOptions, now time.Time) {
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.Synced = false
	meta.Deleted = false
	if opts.Deleted != nil {
		meta.Deleted = *opts.Deleted
	}
}

// OnUpdate prepares an update of prev into meta. Identity and creation time are
// carried over from prev, synced is forced false unless explicitly true, and
// deleted keeps its previous value unless explicitly provided.
func OnUpdate(meta *entities.SyncMeta, prev *entities.SyncMeta, opts WriteOptions, now time.Time) {
	meta.LocalID = prev.LocalID
	meta.CreatedAt = prev.CreatedAt
	if meta.RemoteID == nil {
		meta.RemoteID = prev.RemoteID
	}
	meta.UpdatedAt = now

	meta.Synced = opts.Synced != nil && *opts.Synced

	if opts.Deleted != nil {
		meta.Deleted = *opts.Deleted
	} else {
		meta.Deleted = prev.Deleted
	}
}

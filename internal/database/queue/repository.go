// Package queue provides database operations for the mutation queue.
//
// Entries are appended by the records service in the same transaction as the
// entity write they describe, and removed only by the sync engine.
//
// # Usage
//
//	repo := queue.NewRepository(db)
//	entries, err := repo.Pending(ctx)
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/caresync/internal/entities"
)

// Repository handles all mutation queue database operations.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new queue repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// WithClock returns a copy of the repository that stamps entries using now.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	return &Repository{db: r.db, now: now}
}

// WithTx returns a repository bound to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx, now: r.now}
}

// Enqueue appends one entry describing a change to an entity.
func (r *Repository) Enqueue(ctx context.Context, action entities.MutationAction, kind entities.Kind, localID string, payload map[string]any) (*entities.MutationQueueEntry, error) {
	entry := &entities.MutationQueueEntry{
		Action:        action,
		EntityKind:    kind,
		TargetLocalID: localID,
		CreatedAt:     r.now(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		entry.Payload = string(data)
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue %s %s %s: %w", action, kind, localID, err)
	}
	return entry, nil
}

// Pending returns every entry in processing order (oldest first).
func (r *Repository) Pending(ctx context.Context) ([]entities.MutationQueueEntry, error) {
	var entries []entities.MutationQueueEntry
	err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&entries).Error
	return entries, err
}

// Count returns the current queue depth.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.MutationQueueEntry{}).Count(&count).Error
	return count, err
}

// CountFor returns the number of entries targeting one entity.
func (r *Repository) CountFor(ctx context.Context, kind entities.Kind, localID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.MutationQueueEntry{}).
		Where("entity_kind = ? AND target_local_id = ?", kind, localID).
		Count(&count).Error
	return count, err
}

// Remove deletes an entry after acknowledgement or eviction.
func (r *Repository) Remove(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&entities.MutationQueueEntry{}, id).Error
}

// RemoveFor deletes every entry targeting one entity.
func (r *Repository) RemoveFor(ctx context.Context, kind entities.Kind, localID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("entity_kind = ? AND target_local_id = ?", kind, localID).
		Delete(&entities.MutationQueueEntry{})
	return result.RowsAffected, result.Error
}

// RecordFailure increments the retry counter and stores the failure message.
// It returns the updated retry count.
func (r *Repository) RecordFailure(ctx context.Context, id uint, failure error) (int, error) {
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}

	db := r.db.WithContext(ctx)
	err := db.Model(&entities.MutationQueueEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retries":    gorm.Expr("retries + 1"),
			"last_error": msg,
		}).Error
	if err != nil {
		return 0, err
	}

	var entry entities.MutationQueueEntry
	if err := db.Select("retries").First(&entry, id).Error; err != nil {
		return 0, err
	}
	return entry.Retries, nil
}

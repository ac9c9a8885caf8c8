// Package sync provides database operations for sync pass progress tracking.
//
// This package implements the ProgressReporter interface used by the sync engine.
//
// # Interface Implementation
//
//	var _ syncengine.ProgressReporter = (*Repository)(nil)
//
// # Usage
//
//	repo := sync.NewRepository(db)
//	err := repo.StartSync(12)
package sync

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/caresync/internal/entities"
)

// Repository handles all sync progress database operations.
type Repository struct {
	db       *gorm.DB
	syncType entities.SyncType
}

// NewRepository creates a new sync repository for mutation queue passes.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, syncType: entities.SyncTypeMutations}
}

// NewRepositoryWithType creates a sync repository for a specific sync type.
func NewRepositoryWithType(db *gorm.DB, syncType entities.SyncType) *Repository {
	return &Repository{db: db, syncType: syncType}
}

// GetSyncProgress retrieves the progress record, or nil if no pass ever ran.
func (r *Repository) GetSyncProgress() (*entities.SyncProgress, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ?", r.syncType).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// StartSync creates or resets the progress record for a new pass.
func (r *Repository) StartSync(totalItems int) error {
	var progress entities.SyncProgress
	result := r.db.Where("sync_type = ?", r.syncType).First(&progress)

	now := time.Now()
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		progress = entities.SyncProgress{
			SyncType:   r.syncType,
			Status:     entities.SyncStatusRunning,
			TotalItems: totalItems,
			StartedAt:  now,
			UpdatedAt:  now,
		}
		return r.db.Create(&progress).Error
	} else if result.Error != nil {
		return result.Error
	}

	// Reset counters, keep LastSuccessAt from earlier passes
	progress.Status = entities.SyncStatusRunning
	progress.TotalItems = totalItems
	progress.Processed = 0
	progress.Succeeded = 0
	progress.Failed = 0
	progress.Evicted = 0
	progress.CurrentItem = ""
	progress.Error = ""
	progress.StartedAt = now
	progress.UpdatedAt = now
	progress.CompletedAt = nil

	return r.db.Save(&progress).Error
}

// UpdateProgress records the counters of an ongoing pass.
func (r *Repository) UpdateProgress(processed, succeeded, failed, evicted int, currentItem string) error {
	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(map[string]any{
			"processed":    processed,
			"succeeded":    succeeded,
			"failed":       failed,
			"evicted":      evicted,
			"current_item": currentItem,
			"updated_at":   time.Now(),
		}).Error
}

// CompleteSync marks a pass as finished. A pass that ran to the end counts as
// successful and moves LastSuccessAt forward, even if some entries failed.
func (r *Repository) CompleteSync(succeeded bool, errorMsg string) error {
	now := time.Now()
	status := entities.SyncStatusCompleted
	if !succeeded {
		status = entities.SyncStatusFailed
	}

	updates := map[string]any{
		"status":       status,
		"current_item": "",
		"updated_at":   now,
		"completed_at": now,
	}
	if succeeded {
		updates["last_success_at"] = now
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	return r.db.Model(&entities.SyncProgress{}).
		Where("sync_type = ?", r.syncType).
		Updates(updates).Error
}

// LastSuccessAt returns when a pass last completed, or nil.
func (r *Repository) LastSuccessAt() (*time.Time, error) {
	progress, err := r.GetSyncProgress()
	if err != nil || progress == nil {
		return nil, err
	}
	return progress.LastSuccessAt, nil
}

// MarkInterrupted fails a pass left in the running state by a previous process.
// It reports whether such a pass existed.
func (r *Repository) MarkInterrupted() (bool, error) {
	var progress entities.SyncProgress
	err := r.db.Where("sync_type = ? AND status = ?", r.syncType, entities.SyncStatusRunning).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, r.CompleteSync(false, "sync was interrupted")
}

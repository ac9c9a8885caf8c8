// Package activity stores the user-visible activity log: connectivity changes,
// sync pass results, evictions and session expiry.
package activity

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/caresync/internal/entities"
)

const defaultPageSize = 50

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LogEvent saves an activity event to the database.
func (r *Repository) LogEvent(event *entities.ActivityEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.db.Create(event).Error
}

// GetEvents retrieves paginated events, most recent first. An empty eventType
// matches every type.
func (r *Repository) GetEvents(eventType entities.ActivityType, limit, offset int) ([]entities.ActivityEvent, int64, error) {
	var events []entities.ActivityEvent
	var total int64

	query := r.db.Model(&entities.ActivityEvent{})
	if eventType != "" {
		query = query.Where("type = ?", eventType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	err := query.Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// GetEntityEvents retrieves every event recorded about one entity.
func (r *Repository) GetEntityEvents(kind entities.Kind, localID string) ([]entities.ActivityEvent, error) {
	var events []entities.ActivityEvent
	err := r.db.Where("entity_kind = ? AND entity_local_id = ?", kind, localID).
		Order("created_at DESC, id DESC").
		Find(&events).Error
	return events, err
}

// DeleteOldEvents removes events older than the specified time.
// Returns the number of deleted events.
func (r *Repository) DeleteOldEvents(olderThan time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", olderThan).Delete(&entities.ActivityEvent{})
	return result.RowsAffected, result.Error
}

package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

const defaultActivityRetentionDays = 30

// ActivityCleaner provides the ability to delete old activity events.
type ActivityCleaner interface {
	DeleteOldEvents(retention time.Duration) (int64, error)
}

// CleanupActivityTask removes activity events older than the retention period.
type CleanupActivityTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupActivityTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_activity_events",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupActivityProcessor creates a processor function for CleanupActivityTask.
func CleanupActivityProcessor(cleaner ActivityCleaner) backlite.QueueProcessor[CleanupActivityTask] {
	return func(ctx context.Context, task CleanupActivityTask) error {
		if cleaner == nil {
			return fmt.Errorf("activity cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = defaultActivityRetentionDays
		}

		deleted, err := cleaner.DeleteOldEvents(time.Duration(retentionDays) * 24 * time.Hour)
		if err != nil {
			return fmt.Errorf("cleanup activity events: %w", err)
		}

		log.Printf("[TASK] Cleaned up %d activity events older than %d days", deleted, retentionDays)
		return nil
	}
}

// NewCleanupActivityQueue creates a backlite queue for activity cleanup tasks.
func NewCleanupActivityQueue(cleaner ActivityCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupActivityProcessor(cleaner))
}

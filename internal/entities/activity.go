package entities

import "time"

type ActivityType string

const (
	ActivityConnectivity ActivityType = "connectivity"
	ActivitySync         ActivityType = "sync"
	ActivityEviction     ActivityType = "eviction"
	ActivityAuth         ActivityType = "auth"
)

type ActivityStatus string

const (
	ActivityStatusInfo    ActivityStatus = "info"
	ActivityStatusSuccess ActivityStatus = "success"
	ActivityStatusFailed  ActivityStatus = "failed"
)

// ActivityEvent is a persisted user-visible notice (offline banner, sync toasts, evictions).
type ActivityEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Type          ActivityType   `gorm:"index;size:50" json:"type"`
	Action        string         `gorm:"size:100" json:"action"`      // e.g. "went_offline", "mutation_evicted"
	Description   string         `gorm:"size:500" json:"description"` // Human-readable summary
	EntityKind    Kind           `gorm:"size:32" json:"entity_kind,omitempty"`
	EntityLocalID string         `gorm:"index;size:36" json:"entity_local_id,omitempty"`
	Metadata      string         `gorm:"type:text" json:"metadata,omitempty"` // JSON for extra data
	Status        ActivityStatus `gorm:"size:20" json:"status"`
	ErrorMsg      string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (ActivityEvent) TableName() string {
	return "activity_events"
}

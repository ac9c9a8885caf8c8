package entities

import (
	"time"
)

type MutationAction string

const (
	ActionCreate MutationAction = "create"
	ActionUpdate MutationAction = "update"
	ActionDelete MutationAction = "delete"
)

// MutationQueueEntry is one pending change awaiting remote acknowledgement.
// Entries are processed in (CreatedAt, ID) order and removed only by the sync engine.
type MutationQueueEntry struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Action        MutationAction `gorm:"size:16;not null" json:"action"`
	EntityKind    Kind           `gorm:"size:32;not null;index:idx_mutation_target" json:"entity_kind"`
	TargetLocalID string         `gorm:"size:36;not null;index:idx_mutation_target" json:"target_local_id"`
	Payload       string         `gorm:"type:text" json:"payload,omitempty"` // JSON snapshot
	Retries       int            `gorm:"not null" json:"retries"`
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

func (MutationQueueEntry) TableName() string {
	return "mutation_queue"
}

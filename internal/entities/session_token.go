package entities

import (
	"time"
)

// SessionToken stores the sealed bearer token for the remote service.
type SessionToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Account identifies whose token this is; one row per account.
	Account string `gorm:"type:varchar(255);not null;uniqueIndex" json:"account"`

	// Token is the AES-256-GCM sealed bearer token, base64 encoded.
	Token string `gorm:"type:text;not null" json:"-"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func (SessionToken) TableName() string {
	return "session_tokens"
}

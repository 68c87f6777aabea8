package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation rows are hard-deleted on eviction, so no DeletedAt column.
type Conversation struct {
	Id             uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId         string    `gorm:"type:varchar(128);not null;index:idx_conversations_user_activity,priority:1"` // User ownership for data isolation
	Title          string    `gorm:"type:text;not null"`
	MessageCount   int       `gorm:"not null;default:0"`
	Version        int64     `gorm:"not null;default:0"`
	LastActivityAt time.Time `gorm:"not null;index:idx_conversations_user_activity,priority:2"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (Conversation) TableName() string {
	return "conversations"
}

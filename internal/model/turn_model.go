package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Turn struct {
	Key            string         `gorm:"column:turn_key;type:varchar(300);primaryKey"`
	UserId         string         `gorm:"type:varchar(128);not null;index"`
	ConversationId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Status         string         `gorm:"type:varchar(16);not null"`
	Journal        datatypes.JSON `gorm:"type:jsonb"`
	ReplyMessageId *uuid.UUID     `gorm:"type:uuid"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
}

func (Turn) TableName() string {
	return "agent_turns"
}

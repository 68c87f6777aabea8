package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Message struct {
	Id              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationId  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_messages_conversation_sequence,priority:1"`
	Sequence        int            `gorm:"not null;uniqueIndex:idx_messages_conversation_sequence,priority:2"`
	Role            string         `gorm:"type:varchar(16);not null"`
	Content         string         `gorm:"type:text;not null"`
	ToolInvocations datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null"`
}

func (Message) TableName() string {
	return "messages"
}

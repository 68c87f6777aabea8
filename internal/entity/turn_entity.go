package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	TurnStatusRunning   = "running"
	TurnStatusCompleted = "completed"
)

// Turn is the replay guard for one inbound utterance. Journal holds the
// mutating tool calls that already reached the task store.
type Turn struct {
	Key            string
	UserId         string
	ConversationId uuid.UUID
	Status         string
	Journal        []ToolInvocationRecord
	ReplyMessageId *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

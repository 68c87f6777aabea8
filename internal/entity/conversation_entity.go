package entity

import (
	"time"

	"github.com/google/uuid"
)

const DefaultConversationTitle = "New conversation"

type Conversation struct {
	Id             uuid.UUID
	UserId         string
	Title          string
	MessageCount   int
	Version        int64
	LastActivityAt time.Time
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// HasDefaultTitle reports whether the title still awaits derivation from
// the first user message.
func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultConversationTitle
}

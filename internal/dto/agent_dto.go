package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SendAgentMessageRequest struct {
	// ConversationId is a conversation id or "latest". Empty means latest.
	ConversationId string `json:"conversation_id" validate:"omitempty,max=64"`
	Message        string `json:"message" validate:"required,max=4000"`
	RequestId      string `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

type ToolInvocationDTO struct {
	CallId    string          `json:"call_id,omitempty"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
	LatencyMs int64           `json:"latency_ms"`
	Replayed  bool            `json:"replayed,omitempty"`
}

type SendAgentMessageResponse struct {
	ConversationId      uuid.UUID           `json:"conversation_id"`
	MessageId           uuid.UUID           `json:"message_id"`
	Reply               string              `json:"reply"`
	ToolInvocations     []ToolInvocationDTO `json:"tool_invocations"`
	CreatedConversation bool                `json:"created_conversation"`
	RolledOver          bool                `json:"rolled_over,omitempty"`
	Degraded            bool                `json:"degraded,omitempty"`
	Replayed            bool                `json:"replayed,omitempty"`
	JournalIncomplete   bool                `json:"journal_incomplete,omitempty"`
}

type CreateConversationRequest struct {
	Title string `json:"title" validate:"omitempty,max=120"`
}

type ConversationResponse struct {
	Id             uuid.UUID  `json:"id"`
	Title          string     `json:"title"`
	MessageCount   int        `json:"message_count"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

type MessageResponse struct {
	Id              uuid.UUID           `json:"id"`
	Sequence        int                 `json:"sequence"`
	Role            string              `json:"role"`
	Content         string              `json:"content"`
	ToolInvocations []ToolInvocationDTO `json:"tool_invocations,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

// RateLimitInfo is surfaced as X-RateLimit-* headers.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

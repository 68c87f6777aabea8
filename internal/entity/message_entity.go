package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"
)

// Message is immutable once persisted. Sequence is assigned by the
// conversation store and breaks created_at ties.
type Message struct {
	Id              uuid.UUID
	ConversationId  uuid.UUID
	Sequence        int
	Role            string
	Content         string
	ToolInvocations []ToolInvocationRecord
	CreatedAt       time.Time
}

// ToolInvocationRecord is embedded in the assistant message that triggered
// the call. Result holds the tool envelope exactly as the model saw it.
type ToolInvocationRecord struct {
	CallId    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	Result    json.RawMessage `json:"result"`
	LatencyMs int64           `json:"latency_ms,omitempty"`
	Replayed  bool            `json:"replayed,omitempty"`
}

package llm

import (
	"context"
	"encoding/json"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message in a provider-agnostic format.
// Assistant messages may carry ToolCalls; tool messages answer one call
// through ToolCallId.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallId string
	ToolName   string
}

// ToolCall is one function invocation requested by the model. Arguments is
// the raw JSON object the model produced.
type ToolCall struct {
	Id        string
	Name      string
	Arguments json.RawMessage
}

// ToolSchema describes a callable tool. Parameters is a JSON schema object.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Completion is either a final Reply or a set of ToolCalls.
type Completion struct {
	Reply     string
	ToolCalls []ToolCall
}

func (c *Completion) HasToolCalls() bool {
	return c != nil && len(c.ToolCalls) > 0
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts over the defaults every provider starts from.
func ApplyOptions(opts ...Option) *Options {
	options := &Options{
		Temperature: 0.2, // tool selection wants low variance
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Provider is the model boundary of the agent: history plus tool schemas in,
// a reply or tool-call requests out.
type Provider interface {
	Complete(ctx context.Context, history []Message, tools []ToolSchema, options ...Option) (*Completion, error)
}

// NormalizeArguments turns an empty or null argument payload into "{}".
func NormalizeArguments(raw []byte) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

// Package tools is the closed registry of task tools the agent may call.
// Every tool takes the caller's user id as a mandatory scope, validates its
// arguments before touching the task store, and answers with an Envelope.
package tools

import (
	"context"
	"encoding/json"
	"strings"

	"ai-todo-agent-be/internal/pkg/logger"
	"ai-todo-agent-be/pkg/events"
	"ai-todo-agent-be/pkg/llm"
)

type handlerFunc func(r *Registry, ctx context.Context, userId string, raw json.RawMessage) Envelope

// The tool set is fixed; there is no runtime registration.
var handlers = map[string]handlerFunc{
	ToolAddTask:      (*Registry).addTask,
	ToolListTasks:    (*Registry).listTasks,
	ToolUpdateTask:   (*Registry).updateTask,
	ToolDeleteTask:   (*Registry).deleteTask,
	ToolCompleteTask: (*Registry).completeTask,
}

type Registry struct {
	store     TaskStore
	resolver  *Resolver
	policy    MatchPolicy
	publisher events.Publisher
	logger    logger.ILogger
	schemas   []llm.ToolSchema
}

type Option func(*Registry)

func WithMatchPolicy(policy MatchPolicy) Option {
	return func(r *Registry) {
		r.policy = policy
	}
}

// WithPublisher emits task.* events after successful mutations.
func WithPublisher(publisher events.Publisher) Option {
	return func(r *Registry) {
		r.publisher = publisher
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

func NewRegistry(store TaskStore, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		policy:  MatchContains,
		logger:  logger.NewNopLogger(),
		schemas: schemas(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.resolver = NewResolver(store, r.policy)
	return r
}

// Schemas returns the tool descriptions handed to the model.
func (r *Registry) Schemas() []llm.ToolSchema {
	return r.schemas
}

// Has reports whether name is one of the registered tools.
func (r *Registry) Has(name string) bool {
	_, ok := handlers[name]
	return ok
}

// IsMutating reports whether a successful call changes the task store.
func (r *Registry) IsMutating(name string) bool {
	return r.Has(name) && name != ToolListTasks
}

// Execute dispatches one tool call. It never returns an error: every
// failure is folded into the envelope.
func (r *Registry) Execute(ctx context.Context, userId, name string, rawArgs json.RawMessage) Envelope {
	if strings.TrimSpace(userId) == "" {
		return Fail(ErrUserIdRequired)
	}
	handler, ok := handlers[name]
	if !ok {
		return Fail(ErrUnknownTool)
	}
	return handler(r, ctx, userId, rawArgs)
}

func (r *Registry) unavailable(tool, userId string, err error) Envelope {
	r.logger.Error("tools", "task store call failed", map[string]interface{}{
		"tool":    tool,
		"user_id": userId,
		"error":   err,
	})
	return Fail(ErrUnavailable)
}

func (r *Registry) publish(ctx context.Context, eventType, userId string, data map[string]interface{}) {
	if r.publisher == nil {
		return
	}
	data["user_id"] = userId
	if err := r.publisher.Publish(ctx, events.NewEvent(eventType, data)); err != nil {
		r.logger.Warn("tools", "failed to publish task event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

// Package llmtest provides a scripted llm.Provider for exercising the agent
// loop without a model.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"ai-todo-agent-be/pkg/llm"
)

// Step is one scripted model response. Exactly one of Completion or Err is
// used; Hang blocks until the call's context is done.
type Step struct {
	Completion *llm.Completion
	Err        error
	Hang       bool
}

// Reply scripts a final answer.
func Reply(text string) Step {
	return Step{Completion: &llm.Completion{Reply: text}}
}

// Call scripts a single tool call. args is marshalled to JSON.
func Call(id, name string, args any) Step {
	return Calls(llm.ToolCall{Id: id, Name: name, Arguments: mustJSON(args)})
}

func Calls(calls ...llm.ToolCall) Step {
	return Step{Completion: &llm.Completion{ToolCalls: calls}}
}

func Fail(err error) Step {
	return Step{Err: err}
}

// Provider replays Steps in order and records every history it was given.
type Provider struct {
	mu        sync.Mutex
	steps     []Step
	histories [][]llm.Message
}

var _ llm.Provider = &Provider{}

func NewProvider(steps ...Step) *Provider {
	return &Provider{steps: steps}
}

func (p *Provider) Complete(ctx context.Context, history []llm.Message, tools []llm.ToolSchema, options ...llm.Option) (*llm.Completion, error) {
	p.mu.Lock()
	snapshot := make([]llm.Message, len(history))
	copy(snapshot, history)
	p.histories = append(p.histories, snapshot)
	if len(p.steps) == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("llmtest: script exhausted after %d calls", len(p.histories)-1)
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	p.mu.Unlock()

	if step.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Completion, nil
}

// CallCount reports how many times Complete was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.histories)
}

// History returns the messages passed on the n-th call (0-based).
func (p *Provider) History(n int) []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.histories[n]
}

// Remaining reports how many scripted steps were never consumed.
func (p *Provider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

func mustJSON(v any) json.RawMessage {
	if raw, ok := v.(string); ok {
		return json.RawMessage(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

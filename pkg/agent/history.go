package agent

import (
	"fmt"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/pkg/llm"
)

// buildContext turns the persisted log into model messages. Assistant
// messages that carried tool invocations expand into a tool-call message
// followed by one tool-result message per call. System notes recorded for
// operators are not replayed to the model.
func buildContext(systemPrompt string, history []*entity.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	for _, m := range history {
		switch m.Role {
		case entity.MessageRoleUser:
			msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case entity.MessageRoleAssistant:
			if len(m.ToolInvocations) == 0 {
				msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
				continue
			}
			msgs = append(msgs, expandInvocations(m.Sequence, m.Content, m.ToolInvocations)...)
		}
	}
	return msgs
}

func expandInvocations(sequence int, content string, records []entity.ToolInvocationRecord) []llm.Message {
	calls := make([]llm.ToolCall, len(records))
	results := make([]llm.Message, len(records))
	for i, rec := range records {
		id := rec.CallId
		if id == "" {
			id = fmt.Sprintf("call_%d_%d", sequence, i)
		}
		calls[i] = llm.ToolCall{Id: id, Name: rec.ToolName, Arguments: llm.NormalizeArguments(rec.Arguments)}
		results[i] = llm.Message{Role: llm.RoleTool, ToolCallId: id, ToolName: rec.ToolName, Content: string(rec.Result)}
	}

	out := make([]llm.Message, 0, len(records)+1)
	out = append(out, llm.Message{Role: llm.RoleAssistant, Content: content, ToolCalls: calls})
	return append(out, results...)
}

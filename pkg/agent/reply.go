package agent

import (
	"encoding/json"
	"strings"

	"ai-todo-agent-be/internal/constant"
	"ai-todo-agent-be/internal/entity"
)

type envelopeSummary struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

// fallbackReply summarizes what the turn did before the round cap stopped it.
func fallbackReply(rounds [][]entity.ToolInvocationRecord) string {
	var b strings.Builder
	b.WriteString(constant.AgentFallbackReplyPrefix)

	n := 0
	for _, round := range rounds {
		for _, rec := range round {
			n++
			b.WriteString("\n- ")
			b.WriteString(rec.ToolName)
			b.WriteString(": ")
			b.WriteString(outcome(rec.Result))
		}
	}
	if n == 0 {
		b.WriteString("\n- nothing yet")
	}
	return b.String()
}

func outcome(result json.RawMessage) string {
	var env envelopeSummary
	if err := json.Unmarshal(result, &env); err != nil {
		return "no result"
	}
	if env.Success {
		return "done"
	}
	if env.Error != nil && *env.Error != "" {
		return *env.Error
	}
	return "failed"
}

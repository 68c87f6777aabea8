package main

import (
	"fmt"
	"io"
	"strings"

	"ai-todo-agent-be/internal/dto"
	"ai-todo-agent-be/internal/entity"

	"github.com/fatih/color"
)

var (
	agentColor = color.New(color.FgCyan)
	toolColor  = color.New(color.FgHiBlack)
	okColor    = color.New(color.FgGreen)
	errorColor = color.New(color.FgRed, color.Bold)
	userColor  = color.New(color.FgYellow)
)

func printInvocations(out io.Writer, records []entity.ToolInvocationRecord) {
	for _, rec := range records {
		marker := "→"
		if rec.Replayed {
			marker = "↺"
		}
		toolColor.Fprintf(out, "  %s %s %s (%dms)\n", marker, rec.ToolName, compact(string(rec.Arguments)), rec.LatencyMs)
	}
}

func printMessage(out io.Writer, m dto.MessageResponse) {
	switch m.Role {
	case entity.MessageRoleUser:
		userColor.Fprintf(out, "[%d] you: ", m.Sequence)
	case entity.MessageRoleSystem:
		errorColor.Fprintf(out, "[%d] system: ", m.Sequence)
	default:
		agentColor.Fprintf(out, "[%d] agent: ", m.Sequence)
	}
	fmt.Fprintln(out, m.Content)
	for _, inv := range m.ToolInvocations {
		toolColor.Fprintf(out, "    → %s %s = %s\n", inv.Tool, compact(string(inv.Arguments)), compact(string(inv.Result)))
	}
}

func compact(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

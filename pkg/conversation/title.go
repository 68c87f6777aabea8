package conversation

import (
	"strings"
	"unicode/utf8"

	"ai-todo-agent-be/internal/entity"
)

const maxTitleRunes = 60

// DeriveTitle builds a display title from the first non-blank line of text.
func DeriveTitle(text string) string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return entity.DefaultConversationTitle
	}
	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return line
	}
	runes := []rune(line)
	return strings.TrimSpace(string(runes[:maxTitleRunes-1])) + "…"
}

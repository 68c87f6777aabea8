package agent

import (
	"bytes"
	"fmt"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/pkg/tools"
)

// journal is the write-ahead log of the mutating tool calls of a turn. An
// entry is saved before the call reaches the task store and completed with
// its result afterwards, so a retried turn knows every change that may
// already have happened.
type journal struct {
	entries []entity.ToolInvocationRecord
}

func newJournal(entries []entity.ToolInvocationRecord) *journal {
	j := &journal{entries: make([]entity.ToolInvocationRecord, len(entries))}
	copy(j.entries, entries)
	return j
}

// begin appends a pending entry and returns its index.
func (j *journal) begin(rec entity.ToolInvocationRecord) int {
	rec.Result = nil
	j.entries = append(j.entries, rec)
	return len(j.entries) - 1
}

func (j *journal) finish(i int, rec entity.ToolInvocationRecord) {
	j.entries[i] = rec
}

// drop removes the entry at i and everything after it.
func (j *journal) drop(i int) {
	j.entries = j.entries[:i]
}

func (j *journal) records() []entity.ToolInvocationRecord {
	out := make([]entity.ToolInvocationRecord, len(j.entries))
	copy(out, j.entries)
	return out
}

// resumed returns the entries left by an earlier attempt of the turn as the
// model and the message log should see them. Entries that never got a
// result report an unknown outcome.
func (j *journal) resumed() []entity.ToolInvocationRecord {
	out := make([]entity.ToolInvocationRecord, len(j.entries))
	for i, e := range j.entries {
		e.Replayed = true
		if e.CallId == "" {
			e.CallId = fmt.Sprintf("resumed_%d", i)
		}
		if pending(e) {
			e.Result = tools.Fail(tools.ErrOutcomeUnknown).JSON()
		}
		out[i] = e
	}
	return out
}

func pending(rec entity.ToolInvocationRecord) bool {
	result := bytes.TrimSpace(rec.Result)
	return len(result) == 0 || bytes.Equal(result, []byte("null"))
}

package tools

import (
	"encoding/json"
	"time"

	"ai-todo-agent-be/internal/entity"
)

// Public error strings. They are shown to the model verbatim and never carry
// identifiers or storage detail.
const (
	ErrTaskNotFound      = "Task not found"
	ErrNoFieldsSupplied  = "No fields supplied"
	ErrUnavailable       = "Task service is temporarily unavailable"
	ErrOutcomeUnknown    = "The task service did not confirm this change, list tasks to check before retrying"
	ErrAmbiguous         = "Multiple tasks match that description"
	ErrUnknownTool       = "Unknown tool"
	ErrInvalidArguments  = "Invalid arguments"
	ErrTaskRefRequired   = "task_id or task_ref is required"
	ErrUserIdRequired    = "user_id is required"
	MessageTaskDeleted   = "Task deleted"
	maxAmbiguousListings = 10
)

// Envelope is the response shape shared by every tool:
// {"success":bool,"data":object|null,"error":string|null}.
type Envelope struct {
	Success bool    `json:"success"`
	Data    any     `json:"data"`
	Error   *string `json:"error"`
}

func Ok(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

func Fail(message string) Envelope {
	return Envelope{Success: false, Error: &message}
}

func FailWith(message string, data any) Envelope {
	return Envelope{Success: false, Data: data, Error: &message}
}

// ErrorMessage returns the error string or "" on success.
func (e Envelope) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}

// IsAmbiguous reports whether the call was withheld pending clarification.
func (e Envelope) IsAmbiguous() bool {
	if e.Success {
		return false
	}
	a, ok := e.Data.(AmbiguousData)
	return ok && a.Ambiguous
}

// JSON encodes the envelope as the model will see it.
func (e Envelope) JSON() json.RawMessage {
	raw, err := json.Marshal(e)
	if err != nil {
		// only reachable with an unencodable Data value
		raw, _ = json.Marshal(Fail(ErrUnavailable))
	}
	return raw
}

// TaskView is the task representation handed to the model.
type TaskView struct {
	Id          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func NewTaskView(t *entity.Task) TaskView {
	return TaskView{
		Id:          t.Id.String(),
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type TaskListData struct {
	Tasks []TaskView `json:"tasks"`
	Count int        `json:"count"`
}

type DeleteData struct {
	Message string `json:"message"`
	TaskId  string `json:"task_id"`
}

type Candidate struct {
	Id        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type AmbiguousData struct {
	Ambiguous  bool        `json:"ambiguous"`
	Reference  string      `json:"reference"`
	Candidates []Candidate `json:"candidates"`
}

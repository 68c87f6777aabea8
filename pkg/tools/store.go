package tools

import (
	"context"

	"ai-todo-agent-be/internal/entity"

	"github.com/google/uuid"
)

// TaskFields carries the optional columns of an update. Nil means unchanged.
type TaskFields struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (f TaskFields) Empty() bool {
	return f.Title == nil && f.Description == nil && f.Completed == nil
}

// TaskStore is the boundary to task persistence. Every method is scoped by
// ownerId; a task owned by someone else behaves exactly like a missing one.
type TaskStore interface {
	Find(ctx context.Context, ownerId string, taskId uuid.UUID) (*entity.Task, error)
	List(ctx context.Context, ownerId string, status entity.TaskStatus) ([]*entity.Task, error)
	Create(ctx context.Context, ownerId, title, description string) (*entity.Task, error)
	Update(ctx context.Context, ownerId string, taskId uuid.UUID, fields TaskFields) (*entity.Task, error)
	Delete(ctx context.Context, ownerId string, taskId uuid.UUID) (bool, error)
}

// TitleSearcher is an optional TaskStore capability that pushes reference
// matching down to the store.
type TitleSearcher interface {
	SearchByTitle(ctx context.Context, ownerId, reference string, exact bool) ([]*entity.Task, error)
}

package contract

import (
	"context"
	"time"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/repository/specification"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, conversation *entity.Conversation) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Conversation, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// CompareAndTouch bumps version, message_count and last_activity_at only
	// if the stored version still equals expectedVersion. It reports whether
	// the row was updated.
	CompareAndTouch(ctx context.Context, id uuid.UUID, expectedVersion int64, messageDelta int, title string, at time.Time) (bool, error)

	DeleteUnscoped(ctx context.Context, id uuid.UUID) error // Hard delete
}

package contract

import (
	"context"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	MaxSequence(ctx context.Context, conversationId uuid.UUID) (int, error)
	DeleteByConversationIdUnscoped(ctx context.Context, conversationId uuid.UUID) error
}

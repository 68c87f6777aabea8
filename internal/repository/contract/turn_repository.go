package contract

import (
	"context"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/repository/specification"
)

type TurnRepository interface {
	Create(ctx context.Context, turn *entity.Turn) error
	Update(ctx context.Context, turn *entity.Turn) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Turn, error)
}

package unitofwork

import (
	"context"

	"ai-todo-agent-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConversationRepository() contract.ConversationRepository
	MessageRepository() contract.MessageRepository
	TurnRepository() contract.TurnRepository
	TaskRepository() contract.TaskRepository
}

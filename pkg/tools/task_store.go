package tools

import (
	"context"
	"time"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/repository/specification"
	"ai-todo-agent-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

// RepositoryTaskStore is the default TaskStore, backed by the tasks table.
type RepositoryTaskStore struct {
	uowFactory unitofwork.RepositoryFactory
}

var (
	_ TaskStore     = &RepositoryTaskStore{}
	_ TitleSearcher = &RepositoryTaskStore{}
)

func NewRepositoryTaskStore(uowFactory unitofwork.RepositoryFactory) *RepositoryTaskStore {
	return &RepositoryTaskStore{uowFactory: uowFactory}
}

func (s *RepositoryTaskStore) Find(ctx context.Context, ownerId string, taskId uuid.UUID) (*entity.Task, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.TaskRepository().FindOne(ctx,
		specification.ByID{ID: taskId},
		specification.UserOwnedBy{UserID: ownerId},
	)
}

func (s *RepositoryTaskStore) List(ctx context.Context, ownerId string, status entity.TaskStatus) ([]*entity.Task, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.TaskRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: ownerId},
		specification.ByTaskStatus{Status: status},
		specification.OrderBy{Field: "created_at"},
		specification.OrderBy{Field: "id"},
	)
}

func (s *RepositoryTaskStore) Create(ctx context.Context, ownerId, title, description string) (*entity.Task, error) {
	task := &entity.Task{
		Id:          uuid.New(),
		UserId:      ownerId,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.TaskRepository().Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Update applies fields to an owned task inside one transaction. It returns
// nil when the task does not exist for ownerId.
func (s *RepositoryTaskStore) Update(ctx context.Context, ownerId string, taskId uuid.UUID, fields TaskFields) (*entity.Task, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	task, err := uow.TaskRepository().FindOne(ctx,
		specification.ByID{ID: taskId},
		specification.UserOwnedBy{UserID: ownerId},
	)
	if err != nil || task == nil {
		return nil, err
	}

	if fields.Title != nil {
		task.Title = *fields.Title
	}
	if fields.Description != nil {
		task.Description = *fields.Description
	}
	if fields.Completed != nil {
		task.Completed = *fields.Completed
	}

	if err := uow.TaskRepository().Update(ctx, task); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *RepositoryTaskStore) Delete(ctx context.Context, ownerId string, taskId uuid.UUID) (bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.TaskRepository().Delete(ctx,
		specification.ByID{ID: taskId},
		specification.UserOwnedBy{UserID: ownerId},
	)
}

func (s *RepositoryTaskStore) SearchByTitle(ctx context.Context, ownerId, reference string, exact bool) ([]*entity.Task, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	return uow.TaskRepository().FindAll(ctx,
		specification.UserOwnedBy{UserID: ownerId},
		specification.TitleMatches{Fragment: reference, Exact: exact},
		specification.OrderBy{Field: "created_at"},
	)
}

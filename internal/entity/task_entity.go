package entity

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusAll        TaskStatus = "all"
	TaskStatusIncomplete TaskStatus = "incomplete"
	TaskStatusCompleted  TaskStatus = "completed"
)

type Task struct {
	Id          uuid.UUID
	UserId      string
	Title       string
	Description string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

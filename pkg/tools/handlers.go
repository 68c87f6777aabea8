package tools

import (
	"context"
	"encoding/json"
	"strings"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/pkg/events"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 1000
)

// TaskReference names the task a mutating tool acts on. TaskId may also
// hold free text, which is then treated like TaskRef.
type TaskReference struct {
	TaskId  string `json:"task_id" validate:"required_without=TaskRef"`
	TaskRef string `json:"task_ref" validate:"required_without=TaskId"`
}

func (t *TaskReference) normalize() {
	t.TaskId = strings.TrimSpace(t.TaskId)
	t.TaskRef = strings.TrimSpace(t.TaskRef)
}

func (t TaskReference) text() string {
	if t.TaskId != "" {
		return t.TaskId
	}
	return t.TaskRef
}

type addTaskArgs struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
}

type listTasksArgs struct {
	Status string `json:"status" validate:"omitempty,oneof=incomplete completed all"`
}

type updateTaskArgs struct {
	TaskReference
	Title       *string `json:"title" validate:"omitnil,min=1,max=200"`
	Description *string `json:"description" validate:"omitnil,max=1000"`
}

type deleteTaskArgs struct {
	TaskReference
}

type completeTaskArgs struct {
	TaskReference
	Completed *bool `json:"completed" validate:"required"`
}

func (r *Registry) addTask(ctx context.Context, userId string, raw json.RawMessage) Envelope {
	var args addTaskArgs
	if msg, ok := decodeArgs(raw, &args); !ok {
		return Fail(msg)
	}
	args.Title = strings.TrimSpace(args.Title)
	args.Description = strings.TrimSpace(args.Description)
	if msg, ok := checkArgs(args); !ok {
		return Fail(msg)
	}

	task, err := r.store.Create(ctx, userId, args.Title, args.Description)
	if err != nil {
		return r.unavailable(ToolAddTask, userId, err)
	}

	r.publish(ctx, events.TaskCreated, userId, map[string]interface{}{
		"task_id": task.Id.String(),
		"title":   task.Title,
	})
	return Ok(NewTaskView(task))
}

func (r *Registry) listTasks(ctx context.Context, userId string, raw json.RawMessage) Envelope {
	var args listTasksArgs
	if msg, ok := decodeArgs(raw, &args); !ok {
		return Fail(msg)
	}
	args.Status = strings.ToLower(strings.TrimSpace(args.Status))
	if msg, ok := checkArgs(args); !ok {
		return Fail(msg)
	}

	status := entity.TaskStatusAll
	if args.Status != "" {
		status = entity.TaskStatus(args.Status)
	}

	tasks, err := r.store.List(ctx, userId, status)
	if err != nil {
		return r.unavailable(ToolListTasks, userId, err)
	}

	views := make([]TaskView, len(tasks))
	for i, t := range tasks {
		views[i] = NewTaskView(t)
	}
	return Ok(TaskListData{Tasks: views, Count: len(views)})
}

func (r *Registry) updateTask(ctx context.Context, userId string, raw json.RawMessage) Envelope {
	var args updateTaskArgs
	if msg, ok := decodeArgs(raw, &args); !ok {
		return Fail(msg)
	}
	args.normalize()
	args.Title = trimPtr(args.Title)
	args.Description = trimPtr(args.Description)
	if msg, ok := checkArgs(args); !ok {
		return Fail(msg)
	}
	if args.Title == nil && args.Description == nil {
		return Fail(ErrNoFieldsSupplied)
	}

	task, failure := r.resolve(ctx, ToolUpdateTask, userId, args.TaskReference)
	if failure != nil {
		return *failure
	}

	updated, err := r.store.Update(ctx, userId, task.Id, TaskFields{Title: args.Title, Description: args.Description})
	if err != nil {
		return r.unavailable(ToolUpdateTask, userId, err)
	}
	if updated == nil {
		return Fail(ErrTaskNotFound)
	}

	r.publish(ctx, events.TaskUpdated, userId, map[string]interface{}{
		"task_id": updated.Id.String(),
		"title":   updated.Title,
	})
	return Ok(NewTaskView(updated))
}

func (r *Registry) deleteTask(ctx context.Context, userId string, raw json.RawMessage) Envelope {
	var args deleteTaskArgs
	if msg, ok := decodeArgs(raw, &args); !ok {
		return Fail(msg)
	}
	args.normalize()
	if msg, ok := checkArgs(args); !ok {
		return Fail(msg)
	}

	task, failure := r.resolve(ctx, ToolDeleteTask, userId, args.TaskReference)
	if failure != nil {
		return *failure
	}

	deleted, err := r.store.Delete(ctx, userId, task.Id)
	if err != nil {
		return r.unavailable(ToolDeleteTask, userId, err)
	}
	if !deleted {
		return Fail(ErrTaskNotFound)
	}

	r.publish(ctx, events.TaskDeleted, userId, map[string]interface{}{
		"task_id": task.Id.String(),
		"title":   task.Title,
	})
	return Ok(DeleteData{Message: MessageTaskDeleted, TaskId: task.Id.String()})
}

func (r *Registry) completeTask(ctx context.Context, userId string, raw json.RawMessage) Envelope {
	var args completeTaskArgs
	if msg, ok := decodeArgs(raw, &args); !ok {
		return Fail(msg)
	}
	args.normalize()
	if msg, ok := checkArgs(args); !ok {
		return Fail(msg)
	}

	task, failure := r.resolve(ctx, ToolCompleteTask, userId, args.TaskReference)
	if failure != nil {
		return *failure
	}

	updated, err := r.store.Update(ctx, userId, task.Id, TaskFields{Completed: args.Completed})
	if err != nil {
		return r.unavailable(ToolCompleteTask, userId, err)
	}
	if updated == nil {
		return Fail(ErrTaskNotFound)
	}

	eventType := events.TaskCompleted
	if !updated.Completed {
		eventType = events.TaskUpdated
	}
	r.publish(ctx, eventType, userId, map[string]interface{}{
		"task_id":   updated.Id.String(),
		"completed": updated.Completed,
	})
	return Ok(NewTaskView(updated))
}

// resolve performs the ownership-scoped lookup shared by the mutating tools.
// A non-nil envelope means the tool must not be dispatched.
func (r *Registry) resolve(ctx context.Context, tool, userId string, ref TaskReference) (*entity.Task, *Envelope) {
	matches, err := r.resolver.Resolve(ctx, userId, ref.text())
	if err != nil {
		failure := r.unavailable(tool, userId, err)
		return nil, &failure
	}

	switch len(matches) {
	case 0:
		failure := Fail(ErrTaskNotFound)
		return nil, &failure
	case 1:
		return matches[0], nil
	}

	listed := matches
	if len(listed) > maxAmbiguousListings {
		listed = listed[:maxAmbiguousListings]
	}
	candidates := make([]Candidate, len(listed))
	for i, t := range listed {
		candidates[i] = Candidate{Id: t.Id.String(), Title: t.Title, Completed: t.Completed}
	}
	failure := FailWith(ErrAmbiguous, AmbiguousData{
		Ambiguous:  true,
		Reference:  ref.text(),
		Candidates: candidates,
	})
	return nil, &failure
}

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/pkg/logger"
	"ai-todo-agent-be/internal/pkg/testdb"
	"ai-todo-agent-be/internal/repository/unitofwork"
	"ai-todo-agent-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *RepositoryTaskStore) {
	t.Helper()
	store := NewRepositoryTaskStore(unitofwork.NewRepositoryFactory(testdb.New(t)))
	return NewRegistry(store, opts...), store
}

func exec(t *testing.T, r *Registry, userId, tool, args string) Envelope {
	t.Helper()
	return r.Execute(context.Background(), userId, tool, json.RawMessage(args))
}

// decode round-trips the envelope through JSON so assertions see what the model sees.
func decode(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(env.JSON(), &out))
	return out
}

func TestAddTask_CreatesIncompleteTask(t *testing.T) {
	r, _ := newTestRegistry(t)

	env := exec(t, r, "u1", ToolAddTask, `{"title":"  Buy milk  "}`)

	require.True(t, env.Success, env.ErrorMessage())
	body := decode(t, env)
	assert.Nil(t, body["error"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "Buy milk", data["title"])
	assert.Equal(t, false, data["completed"])
}

func TestAddTask_EmptyTitleNeverReachesStore(t *testing.T) {
	r, store := newTestRegistry(t)

	for _, args := range []string{`{"title":""}`, `{"title":"   "}`, `{}`} {
		env := exec(t, r, "u1", ToolAddTask, args)
		assert.False(t, env.Success)
		assert.Contains(t, env.ErrorMessage(), "title")
	}

	env := exec(t, r, "u1", ToolAddTask, `{"title":"`+strings.Repeat("x", 201)+`"}`)
	assert.False(t, env.Success)
	assert.Equal(t, "title must be at most 200 characters", env.ErrorMessage())

	tasks, err := store.List(context.Background(), "u1", entity.TaskStatusAll)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestListTasks_FiltersByStatus(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	done := r.Execute(ctx, "u1", ToolAddTask, json.RawMessage(`{"title":"Pay rent"}`))
	require.True(t, done.Success)
	require.True(t, exec(t, r, "u1", ToolAddTask, `{"title":"Walk dog"}`).Success)
	doneId := done.Data.(TaskView).Id
	require.True(t, exec(t, r, "u1", ToolCompleteTask, `{"task_id":"`+doneId+`","completed":true}`).Success)

	env := exec(t, r, "u1", ToolListTasks, `{"status":"completed"}`)
	require.True(t, env.Success)
	list := env.Data.(TaskListData)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Pay rent", list.Tasks[0].Title)

	all := exec(t, r, "u1", ToolListTasks, `{}`)
	assert.Equal(t, 2, all.Data.(TaskListData).Count)

	bad := exec(t, r, "u1", ToolListTasks, `{"status":"done"}`)
	assert.False(t, bad.Success)
	assert.Equal(t, "status must be one of: incomplete, completed, all", bad.ErrorMessage())
}

func TestListTasks_IdempotentRead(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.True(t, exec(t, r, "u1", ToolAddTask, `{"title":"A"}`).Success)
	require.True(t, exec(t, r, "u1", ToolAddTask, `{"title":"B"}`).Success)

	first := exec(t, r, "u1", ToolListTasks, `{"status":"all"}`)
	second := exec(t, r, "u1", ToolListTasks, `{"status":"all"}`)
	assert.JSONEq(t, string(first.JSON()), string(second.JSON()))

	empty := exec(t, r, "nobody", ToolListTasks, `{}`)
	assert.JSONEq(t, `{"success":true,"data":{"tasks":[],"count":0},"error":null}`, string(empty.JSON()))
}

func TestUserIsolation_ForeignTaskReadsAsNotFound(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	foreign, err := store.Create(ctx, "u2", "Secret plan", "")
	require.NoError(t, err)
	id := foreign.Id.String()

	cases := map[string]string{
		ToolUpdateTask:   `{"task_id":"` + id + `","title":"hijacked"}`,
		ToolDeleteTask:   `{"task_id":"` + id + `"}`,
		ToolCompleteTask: `{"task_id":"` + id + `","completed":true}`,
	}
	for tool, args := range cases {
		env := exec(t, r, "u1", tool, args)
		assert.False(t, env.Success, tool)
		assert.Equal(t, ErrTaskNotFound, env.ErrorMessage(), tool)
	}

	// references by title are scoped the same way
	env := exec(t, r, "u1", ToolDeleteTask, `{"task_ref":"secret"}`)
	assert.Equal(t, ErrTaskNotFound, env.ErrorMessage())

	list := exec(t, r, "u1", ToolListTasks, `{}`)
	assert.Zero(t, list.Data.(TaskListData).Count)

	untouched, err := store.Find(ctx, "u2", foreign.Id)
	require.NoError(t, err)
	require.NotNil(t, untouched)
	assert.Equal(t, "Secret plan", untouched.Title)
	assert.False(t, untouched.Completed)
}

func TestUpdateTask_Validation(t *testing.T) {
	r, store := newTestRegistry(t)
	task, err := store.Create(context.Background(), "u1", "Draft report", "")
	require.NoError(t, err)
	id := task.Id.String()

	assert.Equal(t, ErrNoFieldsSupplied, exec(t, r, "u1", ToolUpdateTask, `{"task_id":"`+id+`"}`).ErrorMessage())
	assert.Equal(t, ErrTaskRefRequired, exec(t, r, "u1", ToolUpdateTask, `{"title":"x"}`).ErrorMessage())
	assert.Equal(t, "title must not be empty", exec(t, r, "u1", ToolUpdateTask, `{"task_id":"`+id+`","title":"  "}`).ErrorMessage())
	assert.Equal(t, ErrTaskNotFound, exec(t, r, "u1", ToolUpdateTask, `{"task_id":"`+uuid.NewString()+`","title":"x"}`).ErrorMessage())

	env := exec(t, r, "u1", ToolUpdateTask, `{"task_id":"`+id+`","description":"due friday"}`)
	require.True(t, env.Success, env.ErrorMessage())
	view := env.Data.(TaskView)
	assert.Equal(t, "Draft report", view.Title)
	assert.Equal(t, "due friday", view.Description)
}

func TestCompleteTask_ToggleRestoresState(t *testing.T) {
	r, store := newTestRegistry(t)
	task, err := store.Create(context.Background(), "u1", "Stretch", "")
	require.NoError(t, err)
	id := task.Id.String()

	on := exec(t, r, "u1", ToolCompleteTask, `{"task_id":"`+id+`","completed":true}`)
	require.True(t, on.Success)
	assert.True(t, on.Data.(TaskView).Completed)

	off := exec(t, r, "u1", ToolCompleteTask, `{"task_id":"`+id+`","completed":false}`)
	require.True(t, off.Success)
	assert.False(t, off.Data.(TaskView).Completed)

	after, err := store.Find(context.Background(), "u1", task.Id)
	require.NoError(t, err)
	assert.Equal(t, task.Title, after.Title)
	assert.Equal(t, task.Completed, after.Completed)

	missing := exec(t, r, "u1", ToolCompleteTask, `{"task_id":"`+id+`"}`)
	assert.Equal(t, "completed is required", missing.ErrorMessage())

	wrongType := exec(t, r, "u1", ToolCompleteTask, `{"task_id":"`+id+`","completed":"yes"}`)
	assert.Equal(t, "completed must be a boolean", wrongType.ErrorMessage())
}

func TestDeleteTask_AmbiguousReferenceIsNotDispatched(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()
	_, err := store.Create(ctx, "u1", "Team meeting", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "u1", "Meeting with Bob", "")
	require.NoError(t, err)

	env := exec(t, r, "u1", ToolDeleteTask, `{"task_ref":"meeting"}`)

	assert.False(t, env.Success)
	assert.True(t, env.IsAmbiguous())
	assert.Equal(t, ErrAmbiguous, env.ErrorMessage())
	data := env.Data.(AmbiguousData)
	assert.Len(t, data.Candidates, 2)

	tasks, err := store.List(ctx, "u1", entity.TaskStatusAll)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestDeleteTask_ByReference(t *testing.T) {
	recorder := events.NewRecorder()
	r, store := newTestRegistry(t, WithPublisher(recorder))
	ctx := context.Background()
	_, err := store.Create(ctx, "u1", "Buy milk", "")
	require.NoError(t, err)
	_, err = store.Create(ctx, "u1", "Buy milk and eggs", "")
	require.NoError(t, err)

	// whole-title hit wins over the longer partial match
	env := exec(t, r, "u1", ToolDeleteTask, `{"task_id":"buy milk"}`)
	require.True(t, env.Success, env.ErrorMessage())
	assert.Equal(t, MessageTaskDeleted, env.Data.(DeleteData).Message)

	again := exec(t, r, "u1", ToolDeleteTask, `{"task_id":"`+env.Data.(DeleteData).TaskId+`"}`)
	assert.Equal(t, ErrTaskNotFound, again.ErrorMessage())

	assert.Equal(t, []string{events.TaskDeleted}, recorder.Types())
}

func TestExactMatchPolicy(t *testing.T) {
	r, store := newTestRegistry(t, WithMatchPolicy(MatchExact))
	_, err := store.Create(context.Background(), "u1", "Call mom", "")
	require.NoError(t, err)

	assert.Equal(t, ErrTaskNotFound, exec(t, r, "u1", ToolCompleteTask, `{"task_ref":"mom","completed":true}`).ErrorMessage())
	assert.True(t, exec(t, r, "u1", ToolCompleteTask, `{"task_ref":"CALL MOM","completed":true}`).Success)
}

func TestExecute_UnknownToolAndMalformedArgs(t *testing.T) {
	r, _ := newTestRegistry(t)

	assert.Equal(t, ErrUnknownTool, exec(t, r, "u1", "drop_tables", `{}`).ErrorMessage())
	assert.Equal(t, ErrInvalidArguments, exec(t, r, "u1", ToolAddTask, `{"title":`).ErrorMessage())
	assert.Equal(t, ErrUserIdRequired, exec(t, r, " ", ToolListTasks, `{}`).ErrorMessage())
	assert.False(t, r.IsMutating(ToolListTasks))
	assert.True(t, r.IsMutating(ToolDeleteTask))
	assert.Len(t, r.Schemas(), 5)
}

type failingStore struct {
	TaskStore
	err error
}

func (s failingStore) Create(ctx context.Context, ownerId, title, description string) (*entity.Task, error) {
	return nil, s.err
}

func (s failingStore) List(ctx context.Context, ownerId string, status entity.TaskStatus) ([]*entity.Task, error) {
	return nil, s.err
}

func TestStoreFailure_GenericMessageFullLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cause := errors.New("pq: connection refused on 10.0.0.7:5432")
	r := NewRegistry(failingStore{err: cause}, WithLogger(logger.NewFromCore(core)))

	env := exec(t, r, "u1", ToolAddTask, `{"title":"Buy milk"}`)
	assert.False(t, env.Success)
	assert.Equal(t, ErrUnavailable, env.ErrorMessage())
	assert.NotContains(t, string(env.JSON()), "10.0.0.7")

	// references fall back to List when the store cannot search
	ref := exec(t, r, "u1", ToolDeleteTask, `{"task_ref":"milk"}`)
	assert.Equal(t, ErrUnavailable, ref.ErrorMessage())

	entries := logs.FilterMessage("task store call failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, cause.Error(), entries[0].ContextMap()["error"])
}

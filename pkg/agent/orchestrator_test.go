package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"ai-todo-agent-be/internal/constant"
	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/model"
	"ai-todo-agent-be/internal/pkg/apperror"
	"ai-todo-agent-be/internal/pkg/testdb"
	"ai-todo-agent-be/internal/repository/specification"
	"ai-todo-agent-be/internal/repository/unitofwork"
	"ai-todo-agent-be/pkg/conversation"
	"ai-todo-agent-be/pkg/events"
	"ai-todo-agent-be/pkg/llm"
	"ai-todo-agent-be/pkg/llm/llmtest"
	"ai-todo-agent-be/pkg/tools"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type harness struct {
	db       *gorm.DB
	factory  unitofwork.RepositoryFactory
	store    *conversation.Store
	tasks    *tools.RepositoryTaskStore
	registry *tools.Registry
	lock     *MemoryTurnLock
	recorder *events.Recorder
}

func newHarness(t *testing.T, storeOpts ...conversation.Option) *harness {
	t.Helper()
	db := testdb.New(t)
	factory := unitofwork.NewRepositoryFactory(db)
	tasks := tools.NewRepositoryTaskStore(factory)
	return &harness{
		db:       db,
		factory:  factory,
		store:    conversation.NewStore(storeOpts...),
		tasks:    tasks,
		registry: tools.NewRegistry(tasks),
		lock:     NewMemoryTurnLock(),
		recorder: events.NewRecorder(),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ModelRetryBackoff = time.Millisecond
	cfg.ModelTimeout = time.Second
	return cfg
}

func (h *harness) orchestrator(cfg Config, provider llm.Provider) *Orchestrator {
	return NewOrchestrator(cfg, h.factory, h.store, h.registry, provider,
		WithTurnLock(h.lock),
		WithPublisher(h.recorder),
	)
}

func (h *harness) messages(t *testing.T, conversationId uuid.UUID) []*entity.Message {
	t.Helper()
	ctx := context.Background()
	msgs, err := h.factory.NewUnitOfWork(ctx).MessageRepository().FindAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.Chronological{},
	)
	require.NoError(t, err)
	return msgs
}

// seedRunningTurn stores a turn that died after journaling calls.
func (h *harness) seedRunningTurn(t *testing.T, key string, journal ...entity.ToolInvocationRecord) *entity.Conversation {
	t.Helper()
	ctx := context.Background()
	uow := h.factory.NewUnitOfWork(ctx)
	conv, err := h.store.Create(ctx, uow, "u1", "")
	require.NoError(t, err)
	require.NoError(t, uow.TurnRepository().Create(ctx, &entity.Turn{
		Key:            key,
		UserId:         "u1",
		ConversationId: conv.Id,
		Status:         entity.TurnStatusRunning,
		Journal:        journal,
		CreatedAt:      time.Now().UTC(),
	}))
	return conv
}

func (h *harness) storedTurn(t *testing.T, key string) *entity.Turn {
	t.Helper()
	ctx := context.Background()
	turn, err := h.factory.NewUnitOfWork(ctx).TurnRepository().FindOne(ctx, specification.ByTurnKey{Key: key})
	require.NoError(t, err)
	require.NotNil(t, turn)
	return turn
}

func invocationsIn(msgs []*entity.Message) []entity.ToolInvocationRecord {
	var out []entity.ToolInvocationRecord
	for _, m := range msgs {
		out = append(out, m.ToolInvocations...)
	}
	return out
}

// hookProvider runs before(n) ahead of the n-th model call.
type hookProvider struct {
	llm.Provider
	before func(n int)
	calls  int
}

func (p *hookProvider) Complete(ctx context.Context, history []llm.Message, schemas []llm.ToolSchema, options ...llm.Option) (*llm.Completion, error) {
	p.before(p.calls)
	p.calls++
	return p.Provider.Complete(ctx, history, schemas, options...)
}

// slowCreateStore commits the task and then outlives the caller's deadline.
type slowCreateStore struct {
	*tools.RepositoryTaskStore
}

func (s slowCreateStore) Create(ctx context.Context, ownerId, title, description string) (*entity.Task, error) {
	task, err := s.RepositoryTaskStore.Create(context.WithoutCancel(ctx), ownerId, title, description)
	if err != nil {
		return nil, err
	}
	<-ctx.Done()
	return task, ctx.Err()
}

func (h *harness) taskTitles(t *testing.T, userId string) []string {
	t.Helper()
	list, err := h.tasks.List(context.Background(), userId, entity.TaskStatusAll)
	require.NoError(t, err)
	titles := make([]string, len(list))
	for i, task := range list {
		titles[i] = task.Title
	}
	return titles
}

func TestRunTurn_PlainReply(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(llmtest.Reply("Hi! What should I add?"))

	res, err := h.orchestrator(testConfig(), provider).RunTurn(context.Background(), TurnRequest{
		UserId: "u1",
		Text:   "  hello there  ",
	})

	require.NoError(t, err)
	assert.Equal(t, "Hi! What should I add?", res.Reply)
	assert.True(t, res.CreatedConversation)
	assert.Zero(t, res.Rounds)

	msgs := h.messages(t, res.ConversationId)
	require.Len(t, msgs, 2)
	assert.Equal(t, entity.MessageRoleUser, msgs[0].Role)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, res.MessageId, msgs[1].Id)

	history := provider.History(0)
	assert.Equal(t, llm.RoleSystem, history[0].Role)
	assert.Equal(t, "hello there", history[len(history)-1].Content)
	assert.Equal(t, []string{events.TurnCompleted}, h.recorder.Types())
}

func TestRunTurn_AddTaskThenReply(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolAddTask, map[string]any{"title": "Buy milk"}),
		llmtest.Reply("Added \"Buy milk\"."),
	)

	res, err := h.orchestrator(testConfig(), provider).RunTurn(context.Background(), TurnRequest{
		UserId: "u1",
		Text:   "remind me to buy milk",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	require.Len(t, res.ToolInvocations, 1)
	assert.Equal(t, tools.ToolAddTask, res.ToolInvocations[0].ToolName)
	assert.Equal(t, []string{"Buy milk"}, h.taskTitles(t, "u1"))

	// the second model call sees the tool result
	second := provider.History(1)
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallId)
	assert.Contains(t, last.Content, `"success":true`)

	msgs := h.messages(t, res.ConversationId)
	require.Len(t, msgs, 3)
	require.Len(t, msgs[1].ToolInvocations, 1)
	assert.Equal(t, "c1", msgs[1].ToolInvocations[0].CallId)
	assert.Equal(t, "Added \"Buy milk\".", msgs[2].Content)
}

func TestRunTurn_AmbiguousReferenceAsksBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, title := range []string{"Write report draft", "Send report to Ana"} {
		_, err := h.tasks.Create(ctx, "u1", title, "")
		require.NoError(t, err)
	}

	provider := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolDeleteTask, map[string]any{"task_ref": "report"}),
		llmtest.Reply("Which one: \"Write report draft\" or \"Send report to Ana\"?"),
	)

	res, err := h.orchestrator(testConfig(), provider).RunTurn(ctx, TurnRequest{UserId: "u1", Text: "delete the report task"})

	require.NoError(t, err)
	assert.Contains(t, res.Reply, "Which one")
	assert.Len(t, h.taskTitles(t, "u1"), 2)
	assert.Contains(t, string(res.ToolInvocations[0].Result), tools.ErrAmbiguous)
	assert.Equal(t, []string{events.TurnCompleted}, h.recorder.Types())
}

func TestRunTurn_RoundCapFallsBackToSummary(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.MaxToolRounds = 2
	provider := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolListTasks, map[string]any{}),
		llmtest.Call("c2", tools.ToolCompleteTask, map[string]any{"task_ref": "nothing like this"}),
		llmtest.Call("c3", tools.ToolListTasks, map[string]any{}),
	)

	res, err := h.orchestrator(cfg, provider).RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "do stuff"})

	require.NoError(t, err)
	assert.True(t, res.Capped)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 3, provider.CallCount())
	assert.True(t, strings.HasPrefix(res.Reply, constant.AgentFallbackReplyPrefix))
	assert.Contains(t, res.Reply, "list_tasks: done")
	assert.Contains(t, res.Reply, "complete_task: "+tools.ErrTaskNotFound)
	assert.Len(t, h.messages(t, res.ConversationId), 4)
}

func TestRunTurn_ModelRetriesOnce(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(
		llmtest.Fail(errors.New("connection reset")),
		llmtest.Reply("All good."),
	)

	res, err := h.orchestrator(testConfig(), provider).RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "hi"})

	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, "All good.", res.Reply)
	assert.Equal(t, 2, provider.CallCount())
}

func TestRunTurn_DegradedAfterSecondFailure(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolAddTask, map[string]any{"title": "Call mom"}),
		llmtest.Fail(errors.New("503")),
		llmtest.Fail(errors.New("503")),
	)

	res, err := h.orchestrator(testConfig(), provider).RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "add call mom"})

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, constant.AgentDegradedReply, res.Reply)
	assert.Equal(t, []string{"Call mom"}, h.taskTitles(t, "u1"))

	msgs := h.messages(t, res.ConversationId)
	require.Len(t, msgs, 4)
	assert.Equal(t, entity.MessageRoleSystem, msgs[2].Role)
	assert.Equal(t, constant.AgentModelFailureNote, msgs[2].Content)
}

func TestRunTurn_ModelTimeoutIsRetried(t *testing.T) {
	h := newHarness(t)
	cfg := testConfig()
	cfg.ModelTimeout = 20 * time.Millisecond
	provider := llmtest.NewProvider(llmtest.Step{Hang: true}, llmtest.Reply("late but fine"))

	res, err := h.orchestrator(cfg, provider).RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "late but fine", res.Reply)
}

func TestRunTurn_CompletedTurnIsReplayed(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolAddTask, map[string]any{"title": "Buy milk"}),
		llmtest.Reply("Added."),
	)
	o := h.orchestrator(testConfig(), provider)
	req := TurnRequest{UserId: "u1", Text: "add buy milk", RequestId: "req-1"}

	first, err := o.RunTurn(context.Background(), req)
	require.NoError(t, err)
	second, err := o.RunTurn(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, first.MessageId, second.MessageId)
	assert.Equal(t, 2, provider.CallCount())
	assert.Len(t, h.taskTitles(t, "u1"), 1)
	assert.Len(t, h.messages(t, first.ConversationId), 3)
}

func TestRunTurn_ResumedTurnShowsEarlierCallsToModel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// a previous attempt created the task, then died before committing
	_, err := h.tasks.Create(ctx, "u1", "Buy milk", "")
	require.NoError(t, err)
	conv := h.seedRunningTurn(t, "u1:req-9", entity.ToolInvocationRecord{
		CallId:    "c1",
		ToolName:  tools.ToolAddTask,
		Arguments: json.RawMessage(`{"title":"Buy milk"}`),
		Result:    json.RawMessage(`{"success":true,"data":null,"error":null}`),
	})

	provider := llmtest.NewProvider(llmtest.Reply("Buy milk is already on your list."))
	res, err := h.orchestrator(testConfig(), provider).RunTurn(ctx, TurnRequest{
		UserId:          "u1",
		Text:            "add buy milk",
		RequestId:       "req-9",
		ConversationRef: conversation.LatestRef,
	})

	require.NoError(t, err)
	assert.Equal(t, conv.Id, res.ConversationId)
	assert.Equal(t, 1, res.Resumed)
	assert.Equal(t, 1, res.Rounds)
	require.Len(t, res.ToolInvocations, 1)
	assert.True(t, res.ToolInvocations[0].Replayed)
	assert.Equal(t, []string{"Buy milk"}, h.taskTitles(t, "u1"))

	// the model is told about the earlier call, whatever it asks for next
	history := provider.History(0)
	require.Len(t, history, 4)
	assert.Equal(t, llm.RoleUser, history[1].Role)
	require.Len(t, history[2].ToolCalls, 1)
	assert.Equal(t, tools.ToolAddTask, history[2].ToolCalls[0].Name)
	assert.JSONEq(t, `{"title":"Buy milk"}`, string(history[2].ToolCalls[0].Arguments))
	assert.Equal(t, llm.RoleTool, history[3].Role)
	assert.Equal(t, "c1", history[3].ToolCallId)
	assert.Contains(t, history[3].Content, `"success":true`)
}

func TestRunTurn_ResumedCallsAreLoggedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	conv := h.seedRunningTurn(t, "u1:req-4",
		entity.ToolInvocationRecord{
			CallId:    "c1",
			ToolName:  tools.ToolDeleteTask,
			Arguments: json.RawMessage(`{"task_ref":"bread"}`),
			Result:    json.RawMessage(`{"success":true,"data":{"message":"Task deleted","task_id":"x"},"error":null}`),
		},
		entity.ToolInvocationRecord{
			CallId:    "c2",
			ToolName:  tools.ToolAddTask,
			Arguments: json.RawMessage(`{"title":"Buy eggs"}`),
		},
	)

	provider := llmtest.NewProvider(llmtest.Reply("Nothing to do."))
	res, err := h.orchestrator(testConfig(), provider).RunTurn(ctx, TurnRequest{
		UserId:          "u1",
		Text:            "delete bread and add eggs",
		RequestId:       "req-4",
		ConversationRef: conv.Id.String(),
	})
	require.NoError(t, err)

	msgs := h.messages(t, res.ConversationId)
	require.Len(t, msgs, 3)
	logged := invocationsIn(msgs)
	require.Len(t, logged, 2)
	assert.Equal(t, []string{"c1", "c2"}, []string{logged[0].CallId, logged[1].CallId})
	for _, rec := range logged {
		assert.True(t, rec.Replayed)
	}
	// the call that never reported back is not presented as failed or done
	assert.Contains(t, string(logged[1].Result), tools.ErrOutcomeUnknown)

	turn := h.storedTurn(t, "u1:req-4")
	assert.Equal(t, entity.TurnStatusCompleted, turn.Status)
	assert.Len(t, turn.Journal, 2)
}

func TestRunTurn_ResumedTurnKeepsJournalingNewCalls(t *testing.T) {
	h := newHarness(t)
	conv := h.seedRunningTurn(t, "u1:req-5", entity.ToolInvocationRecord{
		CallId:    "c1",
		ToolName:  tools.ToolAddTask,
		Arguments: json.RawMessage(`{"title":"Buy milk"}`),
		Result:    json.RawMessage(`{"success":true,"data":null,"error":null}`),
	})

	provider := llmtest.NewProvider(
		llmtest.Call("c2", tools.ToolAddTask, map[string]any{"title": "Buy bread"}),
		llmtest.Reply("Added bread too."),
	)
	res, err := h.orchestrator(testConfig(), provider).RunTurn(context.Background(), TurnRequest{
		UserId:          "u1",
		Text:            "add milk and bread",
		RequestId:       "req-5",
		ConversationRef: conv.Id.String(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rounds)
	logged := invocationsIn(h.messages(t, res.ConversationId))
	require.Len(t, logged, 2)
	assert.True(t, logged[0].Replayed)
	assert.False(t, logged[1].Replayed)
	assert.Len(t, h.storedTurn(t, "u1:req-5").Journal, 2)
}

func TestRunTurn_MutationIsNotRunWithoutJournal(t *testing.T) {
	h := newHarness(t)
	scripted := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolAddTask, map[string]any{"title": "Buy milk"}),
		llmtest.Reply("Sorry, try again."),
	)
	provider := &hookProvider{Provider: scripted, before: func(n int) {
		if n == 0 {
			require.NoError(t, h.db.Migrator().DropTable(&model.Turn{}))
		}
	}}

	_, err := h.orchestrator(testConfig(), provider).RunTurn(context.Background(), TurnRequest{
		UserId: "u1",
		Text:   "add buy milk",
	})

	assert.True(t, apperror.IsKind(err, apperror.KindUnavailable))
	assert.Empty(t, h.taskTitles(t, "u1"))

	second := scripted.History(1)
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	assert.Contains(t, last.Content, tools.ErrUnavailable)
}

func TestRunTurn_TimedOutMutationIsJournaledAsUnknown(t *testing.T) {
	h := newHarness(t)
	registry := tools.NewRegistry(slowCreateStore{h.tasks})
	cfg := testConfig()
	cfg.ToolTimeout = 50 * time.Millisecond

	provider := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolAddTask, map[string]any{"title": "Buy milk"}),
		llmtest.Reply("I could not confirm that."),
	)
	o := NewOrchestrator(cfg, h.factory, h.store, registry, provider, WithTurnLock(h.lock))

	res, err := o.RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "add buy milk", RequestId: "req-7"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Buy milk"}, h.taskTitles(t, "u1"))
	require.Len(t, res.ToolInvocations, 1)
	assert.Contains(t, string(res.ToolInvocations[0].Result), tools.ErrOutcomeUnknown)
	assert.False(t, res.JournalIncomplete)

	turn := h.storedTurn(t, res.TurnKey)
	require.Len(t, turn.Journal, 1)
	assert.Equal(t, "c1", turn.Journal[0].CallId)
	assert.Contains(t, string(turn.Journal[0].Result), tools.ErrOutcomeUnknown)
}

func TestRunTurn_SecondTurnSeesHistory(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(
		llmtest.Call("c1", tools.ToolAddTask, map[string]any{"title": "Buy milk"}),
		llmtest.Reply("Added."),
		llmtest.Reply("You have one task."),
	)
	o := h.orchestrator(testConfig(), provider)

	first, err := o.RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "add buy milk"})
	require.NoError(t, err)
	second, err := o.RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "what do I have?"})
	require.NoError(t, err)

	assert.Equal(t, first.ConversationId, second.ConversationId)
	history := provider.History(2)
	roles := make([]string, len(history))
	for i, m := range history {
		roles[i] = m.Role
	}
	assert.Equal(t, []string{
		llm.RoleSystem,
		llm.RoleUser,
		llm.RoleAssistant,
		llm.RoleTool,
		llm.RoleAssistant,
		llm.RoleUser,
	}, roles)
	assert.Equal(t, "c1", history[2].ToolCalls[0].Id)
}

func TestRunTurn_RollsOverFullConversation(t *testing.T) {
	h := newHarness(t, conversation.WithMaxMessages(6))
	cfg := testConfig()
	cfg.MaxToolRounds = 2
	provider := llmtest.NewProvider(llmtest.Reply("one"), llmtest.Reply("two"))
	o := h.orchestrator(cfg, provider)

	first, err := o.RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "first"})
	require.NoError(t, err)
	second, err := o.RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "second"})
	require.NoError(t, err)

	assert.True(t, second.RolledOver)
	assert.NotEqual(t, first.ConversationId, second.ConversationId)
	assert.Len(t, h.messages(t, first.ConversationId), 2)
	assert.Len(t, h.messages(t, second.ConversationId), 2)
}

func TestRunTurn_BusyConversationConflicts(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(llmtest.Reply("first"))
	o := h.orchestrator(testConfig(), provider)

	first, err := o.RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "hi"})
	require.NoError(t, err)

	release, err := h.lock.Acquire(context.Background(), lockKey(first.ConversationId), time.Minute)
	require.NoError(t, err)
	defer release(context.Background())

	_, err = o.RunTurn(context.Background(), TurnRequest{
		UserId:          "u1",
		Text:            "again",
		ConversationRef: first.ConversationId.String(),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
	assert.Equal(t, 1, provider.CallCount())
}

func TestRunTurn_ForeignConversationIsNotFound(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(llmtest.Reply("mine"))
	o := h.orchestrator(testConfig(), provider)

	own, err := o.RunTurn(context.Background(), TurnRequest{UserId: "u1", Text: "hi"})
	require.NoError(t, err)

	_, err = o.RunTurn(context.Background(), TurnRequest{
		UserId:          "u2",
		Text:            "peek",
		ConversationRef: own.ConversationId.String(),
	})
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))
}

func TestRunTurn_RejectsBadInput(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider()
	o := h.orchestrator(testConfig(), provider)

	for _, req := range []TurnRequest{
		{UserId: "u1", Text: "   "},
		{UserId: "", Text: "hi"},
		{UserId: "u1", Text: strings.Repeat("a", maxInputRunes+1)},
	} {
		_, err := o.RunTurn(context.Background(), req)
		assert.True(t, apperror.IsKind(err, apperror.KindValidation))
	}
	assert.Zero(t, provider.CallCount())
}

func TestRunTurn_CancelledCallerStillCompletes(t *testing.T) {
	h := newHarness(t)
	provider := llmtest.NewProvider(llmtest.Reply("done anyway"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.orchestrator(testConfig(), provider).RunTurn(ctx, TurnRequest{UserId: "u1", Text: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "done anyway", res.Reply)
}

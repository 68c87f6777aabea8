package implementation_test

import (
	"context"
	"testing"
	"time"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/pkg/testdb"
	"ai-todo-agent-be/internal/repository/implementation"
	"ai-todo-agent-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversation(userId string, at time.Time) *entity.Conversation {
	return &entity.Conversation{
		Id:             uuid.New(),
		UserId:         userId,
		Title:          entity.DefaultConversationTitle,
		LastActivityAt: at,
	}
}

func TestConversationRepository_CompareAndTouch(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewConversationRepository(testdb.New(t))

	conv := newConversation("u1", time.Now().UTC())
	require.NoError(t, repo.Create(ctx, conv))

	later := conv.LastActivityAt.Add(time.Minute)
	ok, err := repo.CompareAndTouch(ctx, conv.Id, 0, 3, "Groceries", later)
	require.NoError(t, err)
	assert.True(t, ok)

	// second writer still holding version 0 loses
	ok, err = repo.CompareAndTouch(ctx, conv.Id, 0, 1, "Other", later)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.FindOne(ctx, specification.ByID{ID: conv.Id})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, 3, got.MessageCount)
	assert.Equal(t, "Groceries", got.Title)
	assert.True(t, got.LastActivityAt.Equal(later))
}

func TestConversationRepository_OwnershipAndOrder(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewConversationRepository(testdb.New(t))

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	older := newConversation("u1", base)
	newer := newConversation("u1", base.Add(time.Hour))
	foreign := newConversation("u2", base.Add(2*time.Hour))
	for _, c := range []*entity.Conversation{older, newer, foreign} {
		require.NoError(t, repo.Create(ctx, c))
	}

	latest, err := repo.FindOne(ctx, specification.UserOwnedBy{UserID: "u1"}, specification.MostRecentlyActive{})
	require.NoError(t, err)
	assert.Equal(t, newer.Id, latest.Id)

	missing, err := repo.FindOne(ctx, specification.ByID{ID: foreign.Id}, specification.UserOwnedBy{UserID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	oldestFirst, err := repo.FindAll(ctx, specification.UserOwnedBy{UserID: "u1"}, specification.LeastRecentlyActive{})
	require.NoError(t, err)
	require.Len(t, oldestFirst, 2)
	assert.Equal(t, older.Id, oldestFirst[0].Id)

	count, err := repo.Count(ctx, specification.UserOwnedBy{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMessageRepository_SequenceAndToolInvocations(t *testing.T) {
	ctx := context.Background()
	db := testdb.New(t)
	convRepo := implementation.NewConversationRepository(db)
	msgRepo := implementation.NewMessageRepository(db)

	conv := newConversation("u1", time.Now().UTC())
	require.NoError(t, convRepo.Create(ctx, conv))

	max, err := msgRepo.MaxSequence(ctx, conv.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, max)

	at := time.Now().UTC()
	require.NoError(t, msgRepo.Create(ctx, &entity.Message{
		Id: uuid.New(), ConversationId: conv.Id, Sequence: 1,
		Role: entity.MessageRoleUser, Content: "add milk", CreatedAt: at,
	}))
	require.NoError(t, msgRepo.Create(ctx, &entity.Message{
		Id: uuid.New(), ConversationId: conv.Id, Sequence: 2,
		Role: entity.MessageRoleAssistant, CreatedAt: at,
		ToolInvocations: []entity.ToolInvocationRecord{{
			CallId:    "call_1",
			ToolName:  "add_task",
			Arguments: []byte(`{"title":"milk"}`),
			Result:    []byte(`{"success":true,"data":{"title":"milk"},"error":null}`),
			LatencyMs: 4,
		}},
	}))

	// same sequence twice violates the unique index
	err = msgRepo.Create(ctx, &entity.Message{
		Id: uuid.New(), ConversationId: conv.Id, Sequence: 2,
		Role: entity.MessageRoleAssistant, Content: "dup", CreatedAt: at,
	})
	assert.Error(t, err)

	messages, err := msgRepo.FindAll(ctx, specification.ByConversationID{ConversationID: conv.Id}, specification.Chronological{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, 1, messages[0].Sequence)
	require.Len(t, messages[1].ToolInvocations, 1)
	assert.Equal(t, "add_task", messages[1].ToolInvocations[0].ToolName)
	assert.JSONEq(t, `{"title":"milk"}`, string(messages[1].ToolInvocations[0].Arguments))

	max, err = msgRepo.MaxSequence(ctx, conv.Id)
	require.NoError(t, err)
	assert.Equal(t, 2, max)

	require.NoError(t, msgRepo.DeleteByConversationIdUnscoped(ctx, conv.Id))
	count, err := msgRepo.Count(ctx, specification.ByConversationID{ConversationID: conv.Id})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTaskRepository_StatusAndTitleMatch(t *testing.T) {
	ctx := context.Background()
	repo := implementation.NewTaskRepository(testdb.New(t))

	tasks := []*entity.Task{
		{Id: uuid.New(), UserId: "u1", Title: "Team meeting notes"},
		{Id: uuid.New(), UserId: "u1", Title: "Meeting with dentist", Completed: true},
		{Id: uuid.New(), UserId: "u1", Title: "100% done_list"},
		{Id: uuid.New(), UserId: "u2", Title: "Meeting prep"},
	}
	for _, task := range tasks {
		require.NoError(t, repo.Create(ctx, task))
	}

	completed, err := repo.FindAll(ctx, specification.UserOwnedBy{UserID: "u1"}, specification.ByTaskStatus{Status: entity.TaskStatusCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "Meeting with dentist", completed[0].Title)

	matches, err := repo.FindAll(ctx, specification.UserOwnedBy{UserID: "u1"}, specification.TitleMatches{Fragment: "MEETING"})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	exact, err := repo.FindAll(ctx, specification.UserOwnedBy{UserID: "u1"}, specification.TitleMatches{Fragment: "meeting", Exact: true})
	require.NoError(t, err)
	assert.Empty(t, exact)

	// LIKE wildcards in the fragment are literal
	literal, err := repo.FindAll(ctx, specification.UserOwnedBy{UserID: "u1"}, specification.TitleMatches{Fragment: "0%"})
	require.NoError(t, err)
	require.Len(t, literal, 1)
	assert.Equal(t, "100% done_list", literal[0].Title)

	deleted, err := repo.Delete(ctx, specification.ByID{ID: tasks[3].Id}, specification.UserOwnedBy{UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, deleted)
}

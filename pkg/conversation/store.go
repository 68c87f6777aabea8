// Package conversation is the durable, ordered message log behind the agent.
// It is the only authority on conversation state; callers pass in the unit
// of work so a whole turn can be appended in one transaction.
package conversation

import (
	"context"
	"strings"
	"time"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/pkg/apperror"
	"ai-todo-agent-be/internal/pkg/logger"
	"ai-todo-agent-be/internal/repository/specification"
	"ai-todo-agent-be/internal/repository/unitofwork"

	"github.com/google/uuid"
)

const (
	// LatestRef resolves to the caller's most recently active conversation.
	LatestRef = "latest"

	DefaultMaxConversations = 100
	DefaultMaxMessages      = 1000

	msgNotFound    = "Conversation not found"
	msgUnavailable = "Conversation storage is unavailable"
	msgConflict    = "Conversation was modified by another request"
)

// NewMessage is a message waiting to be appended.
type NewMessage struct {
	Role            string
	Content         string
	ToolInvocations []entity.ToolInvocationRecord
}

type Store struct {
	maxConversations int
	maxMessages      int
	now              func() time.Time
	logger           logger.ILogger
}

type Option func(*Store)

func WithMaxConversations(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxConversations = n
		}
	}
}

func WithMaxMessages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxMessages = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		maxConversations: DefaultMaxConversations,
		maxMessages:      DefaultMaxMessages,
		now:              time.Now,
		logger:           logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) MaxMessages() int {
	return s.maxMessages
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// IsLatest reports whether ref is the "most recent conversation" sentinel.
func IsLatest(ref string) bool {
	ref = strings.TrimSpace(ref)
	return ref == "" || strings.EqualFold(ref, LatestRef)
}

// ResolveOrCreate maps ref to a conversation owned by userId. The sentinel
// resolves to the most recently active conversation, creating one when the
// user has none. An explicit id that is malformed or owned by someone else
// is reported as not found.
func (s *Store) ResolveOrCreate(ctx context.Context, uow unitofwork.UnitOfWork, userId, ref string) (*entity.Conversation, bool, error) {
	if !IsLatest(ref) {
		conv, err := s.FindOwned(ctx, uow, userId, ref)
		return conv, false, err
	}

	latest, err := uow.ConversationRepository().FindOne(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.MostRecentlyActive{},
	)
	if err != nil {
		return nil, false, apperror.Unavailable(msgUnavailable, err)
	}
	if latest != nil {
		return latest, false, nil
	}

	conv, err := s.Create(ctx, uow, userId, "")
	if err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

// FindOwned loads an explicit conversation id for userId.
func (s *Store) FindOwned(ctx context.Context, uow unitofwork.UnitOfWork, userId, id string) (*entity.Conversation, error) {
	convId, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, apperror.NotFound(msgNotFound)
	}
	conv, err := uow.ConversationRepository().FindOne(ctx,
		specification.ByID{ID: convId},
		specification.UserOwnedBy{UserID: userId},
	)
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	if conv == nil {
		return nil, apperror.NotFound(msgNotFound)
	}
	return conv, nil
}

// Create starts a new conversation, evicting the user's least recently
// active conversations first if the cap would be exceeded.
func (s *Store) Create(ctx context.Context, uow unitofwork.UnitOfWork, userId, title string) (*entity.Conversation, error) {
	if _, err := s.EnforceConversationCap(ctx, uow, userId); err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = entity.DefaultConversationTitle
	}

	now := s.timestamp()
	conv := &entity.Conversation{
		Id:             uuid.New(),
		UserId:         userId,
		Title:          title,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := uow.ConversationRepository().Create(ctx, conv); err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	return conv, nil
}

// AppendMessage appends one message. See AppendMessages.
func (s *Store) AppendMessage(ctx context.Context, uow unitofwork.UnitOfWork, conv *entity.Conversation, role, content string, toolInvocations []entity.ToolInvocationRecord) (*entity.Message, error) {
	msgs, err := s.AppendMessages(ctx, uow, conv, []NewMessage{{Role: role, Content: content, ToolInvocations: toolInvocations}})
	if err != nil {
		return nil, err
	}
	return msgs[0], nil
}

// AppendMessages inserts msgs in order and bumps the conversation's
// activity, count and version. The version check fails with a Conflict
// when another writer appended since conv was loaded. On success conv
// reflects the stored row.
func (s *Store) AppendMessages(ctx context.Context, uow unitofwork.UnitOfWork, conv *entity.Conversation, msgs []NewMessage) ([]*entity.Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	now := s.timestamp()
	title := conv.Title
	if conv.HasDefaultTitle() {
		for _, m := range msgs {
			if m.Role == entity.MessageRoleUser {
				title = DeriveTitle(m.Content)
				break
			}
		}
	}

	touched, err := uow.ConversationRepository().CompareAndTouch(ctx, conv.Id, conv.Version, len(msgs), title, now)
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	if !touched {
		return nil, apperror.Conflict(msgConflict, nil)
	}

	seq, err := uow.MessageRepository().MaxSequence(ctx, conv.Id)
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}

	out := make([]*entity.Message, 0, len(msgs))
	for _, m := range msgs {
		seq++
		message := &entity.Message{
			Id:              uuid.New(),
			ConversationId:  conv.Id,
			Sequence:        seq,
			Role:            m.Role,
			Content:         m.Content,
			ToolInvocations: m.ToolInvocations,
			CreatedAt:       now,
		}
		if err := uow.MessageRepository().Create(ctx, message); err != nil {
			return nil, apperror.Unavailable(msgUnavailable, err)
		}
		out = append(out, message)
	}

	conv.Version++
	conv.MessageCount += len(msgs)
	conv.Title = title
	conv.LastActivityAt = now
	conv.UpdatedAt = &now
	return out, nil
}

// LoadHistory returns at most limit of the newest messages, oldest first.
// A limit of zero or less returns the whole log.
func (s *Store) LoadHistory(ctx context.Context, uow unitofwork.UnitOfWork, conversationId uuid.UUID, limit int) ([]*entity.Message, error) {
	specs := []specification.Specification{
		specification.ByConversationID{ConversationID: conversationId},
	}
	if limit > 0 {
		specs = append(specs, specification.Chronological{Desc: true}, specification.Pagination{Limit: limit})
	} else {
		specs = append(specs, specification.Chronological{})
	}

	messages, err := uow.MessageRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	if limit > 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// List returns the user's conversations, most recently active first.
func (s *Store) List(ctx context.Context, uow unitofwork.UnitOfWork, userId string, limit, offset int) ([]*entity.Conversation, error) {
	specs := []specification.Specification{
		specification.UserOwnedBy{UserID: userId},
		specification.MostRecentlyActive{},
	}
	if limit > 0 {
		specs = append(specs, specification.Pagination{Limit: limit, Offset: offset})
	}
	convs, err := uow.ConversationRepository().FindAll(ctx, specs...)
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	return convs, nil
}

// EnforceConversationCap hard-deletes the user's least recently active
// conversations, with their messages, until one more fits under the cap.
// Evicted conversations are gone for good. It returns the evicted ids.
func (s *Store) EnforceConversationCap(ctx context.Context, uow unitofwork.UnitOfWork, userId string) ([]uuid.UUID, error) {
	convRepo := uow.ConversationRepository()
	count, err := convRepo.Count(ctx, specification.UserOwnedBy{UserID: userId})
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}

	excess := int(count) - s.maxConversations + 1
	if excess <= 0 {
		return nil, nil
	}

	victims, err := convRepo.FindAll(ctx,
		specification.UserOwnedBy{UserID: userId},
		specification.LeastRecentlyActive{},
		specification.Pagination{Limit: excess},
	)
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}

	evicted := make([]uuid.UUID, 0, len(victims))
	for _, v := range victims {
		if err := uow.MessageRepository().DeleteByConversationIdUnscoped(ctx, v.Id); err != nil {
			return nil, apperror.Unavailable(msgUnavailable, err)
		}
		if err := convRepo.DeleteUnscoped(ctx, v.Id); err != nil {
			return nil, apperror.Unavailable(msgUnavailable, err)
		}
		evicted = append(evicted, v.Id)
	}

	s.logger.Info("conversation", "evicted conversations over cap", map[string]interface{}{
		"user_id": userId,
		"evicted": len(evicted),
		"cap":     s.maxConversations,
	})
	return evicted, nil
}

// EnforceMessageCap reports whether appending incoming messages would push
// conv past the per-conversation cap. The caller then starts a fresh
// conversation instead of growing this one.
func (s *Store) EnforceMessageCap(conv *entity.Conversation, incoming int) bool {
	return conv.MessageCount+incoming > s.maxMessages
}

package service

import (
	"context"

	"ai-todo-agent-be/internal/dto"
	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/pkg/apperror"
	"ai-todo-agent-be/internal/pkg/logger"
	"ai-todo-agent-be/internal/repository/unitofwork"
	"ai-todo-agent-be/pkg/agent"
	"ai-todo-agent-be/pkg/conversation"
	"ai-todo-agent-be/pkg/ratelimit"
)

const (
	defaultConversationPage = 20
	maxConversationPage     = 100
)

type IAgentService interface {
	SendMessage(ctx context.Context, userId string, req *dto.SendAgentMessageRequest) (*dto.SendAgentMessageResponse, dto.RateLimitInfo, error)
	CreateConversation(ctx context.Context, userId string, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error)
	ListConversations(ctx context.Context, userId string, limit, offset int) ([]dto.ConversationResponse, error)
	GetMessages(ctx context.Context, userId, conversationId string) ([]dto.MessageResponse, error)
}

type agentService struct {
	uowFactory   unitofwork.RepositoryFactory
	store        *conversation.Store
	orchestrator *agent.Orchestrator
	limiter      *ratelimit.Limiter
	logger       logger.ILogger
}

func NewAgentService(
	uowFactory unitofwork.RepositoryFactory,
	store *conversation.Store,
	orchestrator *agent.Orchestrator,
	limiter *ratelimit.Limiter,
	logger logger.ILogger,
) IAgentService {
	return &agentService{
		uowFactory:   uowFactory,
		store:        store,
		orchestrator: orchestrator,
		limiter:      limiter,
		logger:       logger,
	}
}

// SendMessage is the rate-limited entry point of a chat turn.
func (s *agentService) SendMessage(ctx context.Context, userId string, req *dto.SendAgentMessageRequest) (*dto.SendAgentMessageResponse, dto.RateLimitInfo, error) {
	decision, err := s.limiter.Check(ctx, userId)
	info := dto.RateLimitInfo{
		Limit:     decision.Limit,
		Remaining: decision.Remaining,
		ResetAt:   decision.ResetAt,
	}
	if err != nil {
		s.logger.Info("agent", "chat request rate limited", map[string]interface{}{
			"user_id":     userId,
			"retry_after": decision.RetryAfter.String(),
		})
		return nil, info, err
	}

	res, err := s.orchestrator.RunTurn(ctx, agent.TurnRequest{
		UserId:          userId,
		ConversationRef: req.ConversationId,
		Text:            req.Message,
		RequestId:       req.RequestId,
	})
	if err != nil {
		return nil, info, err
	}

	return &dto.SendAgentMessageResponse{
		ConversationId:      res.ConversationId,
		MessageId:           res.MessageId,
		Reply:               res.Reply,
		ToolInvocations:     toInvocationDTOs(res.ToolInvocations),
		CreatedConversation: res.CreatedConversation,
		RolledOver:          res.RolledOver,
		Degraded:            res.Degraded,
		Replayed:            res.Replayed,
		JournalIncomplete:   res.JournalIncomplete,
	}, info, nil
}

func (s *agentService) CreateConversation(ctx context.Context, userId string, req *dto.CreateConversationRequest) (*dto.ConversationResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, apperror.Unavailable("Conversation storage is unavailable", err)
	}
	defer uow.Rollback()

	conv, err := s.store.Create(ctx, uow, userId, req.Title)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, apperror.Unavailable("Conversation storage is unavailable", err)
	}

	res := toConversationDTO(conv)
	return &res, nil
}

func (s *agentService) ListConversations(ctx context.Context, userId string, limit, offset int) ([]dto.ConversationResponse, error) {
	if limit <= 0 {
		limit = defaultConversationPage
	}
	if limit > maxConversationPage {
		limit = maxConversationPage
	}
	if offset < 0 {
		offset = 0
	}

	convs, err := s.store.List(ctx, s.uowFactory.NewUnitOfWork(ctx), userId, limit, offset)
	if err != nil {
		return nil, err
	}

	res := make([]dto.ConversationResponse, 0, len(convs))
	for _, c := range convs {
		res = append(res, toConversationDTO(c))
	}
	return res, nil
}

func (s *agentService) GetMessages(ctx context.Context, userId, conversationId string) ([]dto.MessageResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	conv, err := s.store.FindOwned(ctx, uow, userId, conversationId)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.LoadHistory(ctx, uow, conv.Id, 0)
	if err != nil {
		return nil, err
	}

	res := make([]dto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, dto.MessageResponse{
			Id:              m.Id,
			Sequence:        m.Sequence,
			Role:            m.Role,
			Content:         m.Content,
			ToolInvocations: toInvocationDTOs(m.ToolInvocations),
			CreatedAt:       m.CreatedAt,
		})
	}
	return res, nil
}

func toConversationDTO(c *entity.Conversation) dto.ConversationResponse {
	return dto.ConversationResponse{
		Id:             c.Id,
		Title:          c.Title,
		MessageCount:   c.MessageCount,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func toInvocationDTOs(records []entity.ToolInvocationRecord) []dto.ToolInvocationDTO {
	out := make([]dto.ToolInvocationDTO, 0, len(records))
	for _, r := range records {
		out = append(out, dto.ToolInvocationDTO{
			CallId:    r.CallId,
			Tool:      r.ToolName,
			Arguments: r.Arguments,
			Result:    r.Result,
			LatencyMs: r.LatencyMs,
			Replayed:  r.Replayed,
		})
	}
	return out
}

// Package agent runs conversational turns: it loads a conversation from the
// store, lets the model call task tools in bounded sequential rounds, and
// persists the whole turn atomically before replying.
package agent

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"ai-todo-agent-be/internal/constant"
	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/pkg/apperror"
	"ai-todo-agent-be/internal/pkg/logger"
	"ai-todo-agent-be/internal/repository/specification"
	"ai-todo-agent-be/internal/repository/unitofwork"
	"ai-todo-agent-be/pkg/conversation"
	"ai-todo-agent-be/pkg/events"
	"ai-todo-agent-be/pkg/llm"
	"ai-todo-agent-be/pkg/tools"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	maxInputRunes  = 4000
	persistTimeout = 10 * time.Second
	msgUnavailable = "Could not save this conversation turn, please retry"
)

type Config struct {
	MaxToolRounds     int
	HistoryLimit      int
	ModelTimeout      time.Duration
	ModelRetryBackoff time.Duration
	ToolTimeout       time.Duration
	TurnTimeout       time.Duration
	SystemPrompt      string
}

func DefaultConfig() Config {
	return Config{
		MaxToolRounds:     6,
		HistoryLimit:      40,
		ModelTimeout:      8 * time.Second,
		ModelRetryBackoff: 500 * time.Millisecond,
		ToolTimeout:       3 * time.Second,
		TurnTimeout:       60 * time.Second,
		SystemPrompt:      constant.AgentSystemPromptV1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = d.MaxToolRounds
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = d.ModelTimeout
	}
	if c.ModelRetryBackoff < 0 {
		c.ModelRetryBackoff = d.ModelRetryBackoff
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = d.ToolTimeout
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = d.TurnTimeout
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	return c
}

// messagesPerTurn is the most messages one turn can append: the user
// message, one per tool round, a failure note and the reply.
func (c Config) messagesPerTurn() int {
	return c.MaxToolRounds + 3
}

type TurnRequest struct {
	UserId          string
	ConversationRef string
	Text            string
	// RequestId makes retries of the same utterance safe. Empty means the
	// turn cannot be replayed.
	RequestId string
}

type TurnResult struct {
	TurnKey             string
	ConversationId      uuid.UUID
	MessageId           uuid.UUID
	Reply               string
	ToolInvocations     []entity.ToolInvocationRecord
	Rounds              int
	CreatedConversation bool
	RolledOver          bool
	Degraded            bool
	Capped              bool
	// Replayed is set when the reply came from an already completed turn.
	Replayed bool
	// Resumed counts tool calls carried over from an earlier attempt.
	Resumed int
	// JournalIncomplete is set when a tool call could not be journaled, so
	// a retry of this request may not know about it.
	JournalIncomplete bool
}

type Orchestrator struct {
	cfg        Config
	uowFactory unitofwork.RepositoryFactory
	store      *conversation.Store
	registry   *tools.Registry
	provider   llm.Provider
	lock       TurnLock
	publisher  events.Publisher
	logger     logger.ILogger
	tracer     trace.Tracer
}

type Option func(*Orchestrator)

func WithTurnLock(lock TurnLock) Option {
	return func(o *Orchestrator) {
		o.lock = lock
	}
}

// WithPublisher emits turn.completed after every persisted turn.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

func WithLogger(l logger.ILogger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func NewOrchestrator(cfg Config, uowFactory unitofwork.RepositoryFactory, store *conversation.Store, registry *tools.Registry, provider llm.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg.withDefaults(),
		uowFactory: uowFactory,
		store:      store,
		registry:   registry,
		provider:   provider,
		lock:       NewMemoryTurnLock(),
		logger:     logger.NewNopLogger(),
		tracer:     otel.Tracer("ai-todo-agent-be/pkg/agent"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// turnState is everything one turn accumulates before it is persisted.
type turnState struct {
	turn       *entity.Turn
	journal    *journal
	rounds     [][]entity.ToolInvocationRecord
	roundTexts []string
	reply      string
	degraded   bool
	capped     bool
	resumed    int
	// journalFailed marks a journal write that did not reach storage.
	journalFailed bool
}

// RunTurn handles one user utterance end to end. Tool failures never
// surface as errors; only validation, rate, lock and storage problems do.
// The turn keeps running if ctx is cancelled, bounded by TurnTimeout.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	req.Text = strings.TrimSpace(req.Text)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.TurnTimeout)
	defer cancel()
	ctx, span := o.tracer.Start(ctx, "agent.turn")
	defer span.End()

	result, err := o.runTurn(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "turn failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("conversation.id", result.ConversationId.String()),
		attribute.Int("agent.rounds", result.Rounds),
		attribute.Bool("agent.degraded", result.Degraded),
		attribute.Bool("agent.replayed", result.Replayed),
	)
	return result, nil
}

func validateRequest(req TurnRequest) error {
	if strings.TrimSpace(req.UserId) == "" {
		return apperror.Validation("user_id is required")
	}
	if req.Text == "" {
		return apperror.Validation("message is required")
	}
	if utf8.RuneCountInString(req.Text) > maxInputRunes {
		return apperror.Validation("message must be at most 4000 characters")
	}
	return nil
}

func turnKey(req TurnRequest) string {
	requestId := strings.TrimSpace(req.RequestId)
	if requestId == "" {
		requestId = uuid.NewString()
	}
	return req.UserId + ":" + requestId
}

func (o *Orchestrator) runTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	key := turnKey(req)

	prior, err := o.findTurn(ctx, key)
	if err != nil {
		return nil, err
	}
	if prior != nil && prior.Status == entity.TurnStatusCompleted {
		return o.replayCompleted(ctx, prior)
	}

	conv, created, rolledOver, err := o.resolveConversation(ctx, req, prior)
	if err != nil {
		return nil, err
	}

	release, err := o.acquire(ctx, conv.Id)
	if err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			o.logger.Warn("agent", "failed to release turn lock", map[string]interface{}{"error": err.Error()})
		}
	}()

	// state may have moved while we waited; reload everything under the lock
	uow := o.uowFactory.NewUnitOfWork(ctx)
	conv, err = o.store.FindOwned(ctx, uow, req.UserId, conv.Id.String())
	if err != nil {
		return nil, err
	}
	history, err := o.store.LoadHistory(ctx, uow, conv.Id, o.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}

	turn, err := o.beginTurn(ctx, key, req.UserId, conv.Id)
	if err != nil {
		return nil, err
	}
	if turn.Status == entity.TurnStatusCompleted {
		return o.replayCompleted(ctx, turn)
	}

	state := &turnState{turn: turn, journal: newJournal(turn.Journal)}
	msgs := buildContext(o.cfg.SystemPrompt, history)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Text})
	msgs = o.resume(msgs, state)
	o.loop(ctx, req.UserId, msgs, state)

	reply, err := o.persist(ctx, conv, req.Text, state)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{
		TurnKey:             key,
		ConversationId:      conv.Id,
		MessageId:           reply.Id,
		Reply:               state.reply,
		ToolInvocations:     flatten(state.rounds),
		Rounds:              len(state.rounds),
		CreatedConversation: created,
		RolledOver:          rolledOver,
		Degraded:            state.degraded,
		Capped:              state.capped,
		Resumed:             state.resumed,
		JournalIncomplete:   state.journalFailed,
	}
	o.completed(ctx, req.UserId, result)
	return result, nil
}

// resume carries the journaled calls of an earlier attempt into the turn as
// its first round, so the model sees what already happened and the calls
// are persisted with the turn.
func (o *Orchestrator) resume(msgs []llm.Message, state *turnState) []llm.Message {
	records := state.journal.resumed()
	if len(records) == 0 {
		return msgs
	}
	o.logger.Info("agent", "resuming turn from journal", map[string]interface{}{
		"turn_key": state.turn.Key,
		"calls":    len(records),
	})
	state.rounds = append(state.rounds, records)
	state.roundTexts = append(state.roundTexts, "")
	state.resumed = len(records)
	return append(msgs, expandInvocations(0, "", records)...)
}

// loop is the bounded model/tool cycle. It always leaves a reply in state.
func (o *Orchestrator) loop(ctx context.Context, userId string, msgs []llm.Message, state *turnState) {
	for {
		completion, err := o.complete(ctx, msgs)
		if err != nil {
			o.logger.Error("agent", "model unavailable, sending degraded reply", map[string]interface{}{
				"turn_key": state.turn.Key,
				"rounds":   len(state.rounds),
				"error":    err,
			})
			state.reply = constant.AgentDegradedReply
			state.degraded = true
			return
		}

		if !completion.HasToolCalls() {
			state.reply = strings.TrimSpace(completion.Reply)
			if state.reply == "" {
				state.reply = constant.AgentEmptyReply
			}
			return
		}

		if len(state.rounds) >= o.cfg.MaxToolRounds {
			o.logger.Warn("agent", "tool round cap reached", map[string]interface{}{
				"turn_key": state.turn.Key,
				"cap":      o.cfg.MaxToolRounds,
			})
			state.reply = fallbackReply(state.rounds)
			state.capped = true
			return
		}

		records := make([]entity.ToolInvocationRecord, 0, len(completion.ToolCalls))
		for _, call := range completion.ToolCalls {
			if call.Id == "" {
				call.Id = "call_" + uuid.NewString()
			}
			records = append(records, o.invoke(ctx, userId, call, state))
		}
		state.rounds = append(state.rounds, records)
		state.roundTexts = append(state.roundTexts, completion.Reply)

		msgs = append(msgs, expandInvocations(0, completion.Reply, records)...)
	}
}

// complete calls the model with a per-call timeout and one retry.
func (o *Orchestrator) complete(ctx context.Context, msgs []llm.Message) (*llm.Completion, error) {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(o.cfg.ModelRetryBackoff):
			case <-ctx.Done():
				return nil, errors.Join(lastErr, ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
		callCtx, span := o.tracer.Start(callCtx, "agent.model", trace.WithAttributes(attribute.Int("agent.attempt", attempt)))
		completion, err := o.provider.Complete(callCtx, msgs, o.registry.Schemas())
		if err == nil && completion == nil {
			err = errors.New("model returned no completion")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "model call failed")
		}
		span.End()
		cancel()

		if err == nil {
			return completion, nil
		}
		lastErr = err
		o.logger.Warn("agent", "model call failed", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
	return nil, lastErr
}

// invoke runs one tool call. Mutating calls are journaled before they reach
// the task store; a call that cannot be journaled is not run.
func (o *Orchestrator) invoke(ctx context.Context, userId string, call llm.ToolCall, state *turnState) entity.ToolInvocationRecord {
	record := entity.ToolInvocationRecord{
		CallId:    call.Id,
		ToolName:  call.Name,
		Arguments: llm.NormalizeArguments(call.Arguments),
	}

	mutating := o.registry.IsMutating(call.Name)
	entry := -1
	if mutating {
		entry = state.journal.begin(record)
		if err := o.saveJournal(ctx, state.turn, state.journal); err != nil {
			state.journal.drop(entry)
			state.journalFailed = true
			record.Result = tools.Fail(tools.ErrUnavailable).JSON()
			return record
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	defer cancel()
	toolCtx, span := o.tracer.Start(toolCtx, "agent.tool", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	start := time.Now()
	env := o.registry.Execute(toolCtx, userId, call.Name, record.Arguments)
	record.LatencyMs = time.Since(start).Milliseconds()

	span.SetAttributes(attribute.Bool("tool.success", env.Success))
	if !env.Success {
		span.SetStatus(codes.Error, env.ErrorMessage())
	}

	record.Result = env.JSON()
	if mutating && !env.Success && toolCtx.Err() != nil {
		// the write may have committed before the deadline hit
		record.Result = tools.Fail(tools.ErrOutcomeUnknown).JSON()
	}

	if mutating {
		state.journal.finish(entry, record)
		if err := o.saveJournal(ctx, state.turn, state.journal); err != nil {
			// the pending entry is stored, a retry reports the outcome as unknown
			state.journalFailed = true
		}
	}
	return record
}

func (o *Orchestrator) acquire(ctx context.Context, conversationId uuid.UUID) (ReleaseFunc, error) {
	ttl := o.cfg.TurnTimeout + persistTimeout
	release, err := o.lock.Acquire(ctx, lockKey(conversationId), ttl)
	if errors.Is(err, ErrLocked) {
		return nil, apperror.Conflict(constant.AgentTurnBusyMessage, err)
	}
	if err != nil {
		// the version check in the store still rejects interleaved writers
		o.logger.Warn("agent", "turn lock unavailable, relying on version check", map[string]interface{}{
			"conversation_id": conversationId.String(),
			"error":           err.Error(),
		})
		return func(context.Context) error { return nil }, nil
	}
	return release, nil
}

func (o *Orchestrator) findTurn(ctx context.Context, key string) (*entity.Turn, error) {
	uow := o.uowFactory.NewUnitOfWork(ctx)
	turn, err := uow.TurnRepository().FindOne(ctx, specification.ByTurnKey{Key: key})
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	return turn, nil
}

// resolveConversation picks the conversation for the turn and rolls over to
// a fresh one when the current log cannot take another full turn.
func (o *Orchestrator) resolveConversation(ctx context.Context, req TurnRequest, prior *entity.Turn) (*entity.Conversation, bool, bool, error) {
	uow := o.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, false, false, apperror.Unavailable(msgUnavailable, err)
	}
	defer uow.Rollback()

	var (
		conv    *entity.Conversation
		created bool
		err     error
	)
	if prior != nil {
		// a retried turn goes back to the conversation it started in
		conv, err = o.store.FindOwned(ctx, uow, req.UserId, prior.ConversationId.String())
		if apperror.IsKind(err, apperror.KindNotFound) {
			conv, err = nil, nil
		}
	}
	if err == nil && conv == nil {
		conv, created, err = o.store.ResolveOrCreate(ctx, uow, req.UserId, req.ConversationRef)
	}
	if err != nil {
		return nil, false, false, err
	}

	rolledOver := false
	if o.store.EnforceMessageCap(conv, o.cfg.messagesPerTurn()) {
		full := conv.Id
		conv, err = o.store.Create(ctx, uow, req.UserId, "")
		if err != nil {
			return nil, false, false, err
		}
		rolledOver = true
		o.logger.Info("agent", "conversation full, rolled over", map[string]interface{}{
			"from": full.String(),
			"to":   conv.Id.String(),
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, false, false, apperror.Unavailable(msgUnavailable, err)
	}
	return conv, created || rolledOver, rolledOver, nil
}

// beginTurn loads or creates the replay guard row for key.
func (o *Orchestrator) beginTurn(ctx context.Context, key, userId string, conversationId uuid.UUID) (*entity.Turn, error) {
	uow := o.uowFactory.NewUnitOfWork(ctx)
	repo := uow.TurnRepository()

	turn, err := repo.FindOne(ctx, specification.ByTurnKey{Key: key})
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	if turn != nil {
		if turn.ConversationId != conversationId {
			turn.ConversationId = conversationId
			if err := repo.Update(ctx, turn); err != nil {
				return nil, apperror.Unavailable(msgUnavailable, err)
			}
		}
		return turn, nil
	}

	turn = &entity.Turn{
		Key:            key,
		UserId:         userId,
		ConversationId: conversationId,
		Status:         entity.TurnStatusRunning,
		CreatedAt:      time.Now().UTC(),
	}
	if err := repo.Create(ctx, turn); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict(constant.AgentTurnBusyMessage, err)
		}
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	return turn, nil
}

// saveJournal writes the journal to the turn row right away, outside the
// turn transaction.
func (o *Orchestrator) saveJournal(ctx context.Context, turn *entity.Turn, j *journal) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	turn.Journal = j.records()
	uow := o.uowFactory.NewUnitOfWork(saveCtx)
	if err := uow.TurnRepository().Update(saveCtx, turn); err != nil {
		o.logger.Error("agent", "failed to journal tool call", map[string]interface{}{
			"turn_key": turn.Key,
			"error":    err,
		})
		return err
	}
	return nil
}

// persist appends every message of the turn and closes the turn row in one
// transaction. It returns the stored reply message.
func (o *Orchestrator) persist(ctx context.Context, conv *entity.Conversation, userText string, state *turnState) (*entity.Message, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	msgs := make([]conversation.NewMessage, 0, len(state.rounds)+3)
	msgs = append(msgs, conversation.NewMessage{Role: entity.MessageRoleUser, Content: userText})
	for i, records := range state.rounds {
		msgs = append(msgs, conversation.NewMessage{
			Role:            entity.MessageRoleAssistant,
			Content:         state.roundTexts[i],
			ToolInvocations: records,
		})
	}
	if state.degraded {
		msgs = append(msgs, conversation.NewMessage{Role: entity.MessageRoleSystem, Content: constant.AgentModelFailureNote})
	}
	msgs = append(msgs, conversation.NewMessage{Role: entity.MessageRoleAssistant, Content: state.reply})

	uow := o.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	defer uow.Rollback()

	saved, err := o.store.AppendMessages(ctx, uow, conv, msgs)
	if err != nil {
		return nil, o.storageError(state.turn, err)
	}
	reply := saved[len(saved)-1]

	state.turn.Status = entity.TurnStatusCompleted
	state.turn.ReplyMessageId = &reply.Id
	state.turn.Journal = state.journal.records()
	if err := uow.TurnRepository().Update(ctx, state.turn); err != nil {
		return nil, o.storageError(state.turn, err)
	}

	if err := uow.Commit(); err != nil {
		return nil, o.storageError(state.turn, err)
	}
	return reply, nil
}

func (o *Orchestrator) storageError(turn *entity.Turn, err error) error {
	o.logger.Error("agent", "failed to persist turn", map[string]interface{}{
		"turn_key": turn.Key,
		"error":    err,
	})
	if appErr, ok := apperror.As(err); ok && appErr.Kind == apperror.KindConflict {
		return appErr
	}
	return apperror.Unavailable(msgUnavailable, err)
}

// replayCompleted answers a retried request from the stored reply.
func (o *Orchestrator) replayCompleted(ctx context.Context, turn *entity.Turn) (*TurnResult, error) {
	result := &TurnResult{
		TurnKey:         turn.Key,
		ConversationId:  turn.ConversationId,
		ToolInvocations: turn.Journal,
		Replayed:        true,
	}
	if turn.ReplyMessageId == nil {
		return result, nil
	}

	uow := o.uowFactory.NewUnitOfWork(ctx)
	msgs, err := uow.MessageRepository().FindAll(ctx, specification.ByID{ID: *turn.ReplyMessageId})
	if err != nil {
		return nil, apperror.Unavailable(msgUnavailable, err)
	}
	if len(msgs) == 0 {
		// the conversation was evicted since
		return nil, apperror.NotFound("Conversation not found")
	}
	result.MessageId = msgs[0].Id
	result.Reply = msgs[0].Content
	return result, nil
}

func (o *Orchestrator) completed(ctx context.Context, userId string, result *TurnResult) {
	calls := make([]map[string]interface{}, len(result.ToolInvocations))
	for i, rec := range result.ToolInvocations {
		calls[i] = map[string]interface{}{
			"tool":       rec.ToolName,
			"success":    outcome(rec.Result) == "done",
			"latency_ms": rec.LatencyMs,
			"replayed":   rec.Replayed,
		}
	}

	details := map[string]interface{}{
		"turn_key":           result.TurnKey,
		"user_id":            userId,
		"conversation_id":    result.ConversationId.String(),
		"rounds":             result.Rounds,
		"tool_calls":         calls,
		"degraded":           result.Degraded,
		"capped":             result.Capped,
		"rolled_over":        result.RolledOver,
		"resumed":            result.Resumed,
		"journal_incomplete": result.JournalIncomplete,
	}

	o.logger.Info("agent", "turn completed", details)

	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, events.NewEvent(events.TurnCompleted, details)); err != nil {
		o.logger.Warn("agent", "failed to publish turn.completed", map[string]interface{}{"error": err.Error()})
	}
}

func flatten(rounds [][]entity.ToolInvocationRecord) []entity.ToolInvocationRecord {
	var out []entity.ToolInvocationRecord
	for _, r := range rounds {
		out = append(out, r...)
	}
	return out
}

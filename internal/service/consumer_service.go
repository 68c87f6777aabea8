package service

import (
	"context"
	"encoding/json"

	"ai-todo-agent-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService writes every event on the audit topic to the isolated
// audit log: one line per task change and one per completed turn, with the
// tool calls that turn made.
type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	audit      logger.ILogger
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	audit logger.ILogger,
	logger logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		audit:      audit,
		logger:     logger,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	var payload AuditEventMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("audit", "failed to unmarshal audit event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		// malformed payloads would never succeed on redelivery
		msg.Ack()
		return
	}

	details := payload.Data
	if details == nil {
		details = make(map[string]interface{})
	}
	details["occurred_at"] = payload.OccurredAt

	cs.audit.Info("audit", payload.Type, details)
	msg.Ack()
}

package mapper

import (
	"encoding/json"
	"fmt"

	"ai-todo-agent-be/internal/entity"
	"ai-todo-agent-be/internal/model"

	"gorm.io/datatypes"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

// Conversation Mappers

func (m *ConversationMapper) ConversationToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	return &entity.Conversation{
		Id:             c.Id,
		UserId:         c.UserId,
		Title:          c.Title,
		MessageCount:   c.MessageCount,
		Version:        c.Version,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      timePtr(c.UpdatedAt),
	}
}

func (m *ConversationMapper) ConversationToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	return &model.Conversation{
		Id:             c.Id,
		UserId:         c.UserId,
		Title:          c.Title,
		MessageCount:   c.MessageCount,
		Version:        c.Version,
		LastActivityAt: c.LastActivityAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      timeVal(c.UpdatedAt),
	}
}

// Message Mappers

func (m *ConversationMapper) MessageToEntity(msg *model.Message) (*entity.Message, error) {
	if msg == nil {
		return nil, nil
	}

	invocations, err := decodeInvocations(msg.ToolInvocations)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.Id, err)
	}

	return &entity.Message{
		Id:              msg.Id,
		ConversationId:  msg.ConversationId,
		Sequence:        msg.Sequence,
		Role:            msg.Role,
		Content:         msg.Content,
		ToolInvocations: invocations,
		CreatedAt:       msg.CreatedAt,
	}, nil
}

func (m *ConversationMapper) MessageToModel(msg *entity.Message) (*model.Message, error) {
	if msg == nil {
		return nil, nil
	}

	invocations, err := encodeInvocations(msg.ToolInvocations)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.Id, err)
	}

	return &model.Message{
		Id:              msg.Id,
		ConversationId:  msg.ConversationId,
		Sequence:        msg.Sequence,
		Role:            msg.Role,
		Content:         msg.Content,
		ToolInvocations: invocations,
		CreatedAt:       msg.CreatedAt,
	}, nil
}

// Turn Mappers

func (m *ConversationMapper) TurnToEntity(t *model.Turn) (*entity.Turn, error) {
	if t == nil {
		return nil, nil
	}

	journal, err := decodeInvocations(t.Journal)
	if err != nil {
		return nil, fmt.Errorf("turn %s: %w", t.Key, err)
	}

	return &entity.Turn{
		Key:            t.Key,
		UserId:         t.UserId,
		ConversationId: t.ConversationId,
		Status:         t.Status,
		Journal:        journal,
		ReplyMessageId: t.ReplyMessageId,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      timePtr(t.UpdatedAt),
	}, nil
}

func (m *ConversationMapper) TurnToModel(t *entity.Turn) (*model.Turn, error) {
	if t == nil {
		return nil, nil
	}

	journal, err := encodeInvocations(t.Journal)
	if err != nil {
		return nil, fmt.Errorf("turn %s: %w", t.Key, err)
	}

	return &model.Turn{
		Key:            t.Key,
		UserId:         t.UserId,
		ConversationId: t.ConversationId,
		Status:         t.Status,
		Journal:        journal,
		ReplyMessageId: t.ReplyMessageId,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      timeVal(t.UpdatedAt),
	}, nil
}

func encodeInvocations(records []entity.ToolInvocationRecord) (datatypes.JSON, error) {
	if len(records) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode tool invocations: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func decodeInvocations(raw datatypes.JSON) ([]entity.ToolInvocationRecord, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var records []entity.ToolInvocationRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode tool invocations: %w", err)
	}
	return records, nil
}

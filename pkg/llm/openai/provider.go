package openai

import (
	"context"
	"errors"
	"fmt"

	"ai-todo-agent-be/pkg/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	ModelName string
	client    *goopenai.Client
}

// Ensure OpenAIProvider implements Provider
var _ llm.Provider = &OpenAIProvider{}

// NewOpenAIProvider talks to the OpenAI API, or to any compatible endpoint
// when baseURL is set.
func NewOpenAIProvider(apiKey, baseURL, modelName string) *OpenAIProvider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		ModelName: modelName,
		client:    goopenai.NewClientWithConfig(cfg),
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, history []llm.Message, tools []llm.ToolSchema, opts ...llm.Option) (*llm.Completion, error) {
	options := llm.ApplyOptions(opts...)

	model := p.ModelName
	if options.Model != "" {
		model = options.Model
	}

	req := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(history),
		Tools:       toOpenAITools(tools),
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai error: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	msg := resp.Choices[0].Message
	completion := &llm.Completion{Reply: msg.Content}
	for _, tc := range msg.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, llm.ToolCall{
			Id:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: llm.NormalizeArguments([]byte(tc.Function.Arguments)),
		})
	}
	return completion, nil
}

func toOpenAIMessages(history []llm.Message) []goopenai.ChatCompletionMessage {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		om := goopenai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
		switch msg.Role {
		case llm.RoleTool:
			om.ToolCallID = msg.ToolCallId
		case llm.RoleAssistant:
			for _, tc := range msg.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, goopenai.ToolCall{
					ID:   tc.Id,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(llm.NormalizeArguments(tc.Arguments)),
					},
				})
			}
		}
		messages = append(messages, om)
	}
	return messages
}

func toOpenAITools(tools []llm.ToolSchema) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, len(tools))
	for i, t := range tools {
		out[i] = goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jdelaney/brokerbot/internal/models"
	"github.com/jdelaney/brokerbot/internal/thread"
)

// OpenAIProvider talks to the OpenAI chat-completions API (or any compatible
// endpoint) with native function calling.
type OpenAIProvider struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *log.Logger
}

// Ensure OpenAIProvider implements Provider at compile time.
var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a provider for the given model. baseURL may be
// empty for the default endpoint; systemPrompt seeds every conversation.
func NewOpenAIProvider(apiKey, baseURL, model, systemPrompt string, logger *log.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// Name identifies the model for logs and the CSV report.
func (p *OpenAIProvider) Name() string {
	return p.model
}

// Validate performs a lightweight models listing to fail fast on bad
// credentials before any trading logic runs.
func (p *OpenAIProvider) Validate(ctx context.Context) error {
	if _, err := p.client.ListModels(ctx); err != nil {
		return fmt.Errorf("validating model provider credentials: %w", err)
	}
	return nil
}

// Complete sends the conversation with the tool catalog and maps the answer
// back to the provider-agnostic Reply.
func (p *OpenAIProvider) Complete(ctx context.Context, items []thread.Item, tools []ToolSpec) (*Reply, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: p.toMessages(items),
		Tools:    toOpenAITools(tools),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	reply := &Reply{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				p.logger.Printf("Warning: could not parse arguments for %s call %s: %v",
					tc.Function.Name, tc.ID, err)
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, models.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return reply, nil
}

// toMessages converts thread items to the OpenAI wire shape. Reasoning items
// are local bookkeeping for providers that mandate them and are not sent.
func (p *OpenAIProvider) toMessages(items []thread.Item) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(items)+1)
	if p.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: p.systemPrompt,
		})
	}
	for _, item := range items {
		switch item.Type {
		case thread.ItemMessage:
			role := openai.ChatMessageRoleUser
			if item.Role == thread.RoleAssistant {
				role = openai.ChatMessageRoleAssistant
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: item.Content})
		case thread.ItemFunctionCall:
			messages = append(messages, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   item.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      item.Name,
						Arguments: item.Arguments,
					},
				}},
			})
		case thread.ItemFunctionResult:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: item.CallID,
				Content:    item.Output,
			})
		}
	}
	return messages
}

func toOpenAITools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

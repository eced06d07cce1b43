package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient adapts the Anthropic Messages API to the Client
// capability. It uses the SDK's non-streaming Messages.New call since the
// react engine consumes a single (text, usage) result per step.
type AnthropicClient struct {
	client anthropic.Client
}

const defaultAnthropicMaxTokens = 4096

// NewAnthropicClient builds a client against the given API key.
func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (c *AnthropicClient) Complete(ctx context.Context, cfg ModelConfig, messages []Message, tools []ToolHint) (string, TokenUsage, error) {
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: maxTokens,
	}

	var msgs []anthropic.MessageParam
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case "system":
			params.System = []anthropic.TextBlockParam{{Text: m.Content}}
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	params.Messages = msgs

	if len(tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			var schema anthropic.ToolInputSchemaParam
			schema.Properties = map[string]any{}
			toolParams = append(toolParams, anthropic.ToolUnionParam{
				OfTool: &anthropic.ToolParam{
					Name:        t.Name,
					Description: anthropic.String(t.Description),
					InputSchema: schema,
				},
			})
		}
		params.Tools = toolParams
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("llm: anthropic completion failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	usage := TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}
	return text, usage, nil
}

var _ Client = (*AnthropicClient)(nil)

package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient adapts go-openai's chat completion API to the Client
// capability. A single non-streaming call suffices: the react engine only
// needs a final (text, usage) pair per step, not incremental chunks.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client against the given API key.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(apiKey)}
}

// NewOpenAIClientWithConfig builds a client from an openai.ClientConfig,
// allowing callers to point at Azure OpenAI or compatible gateways.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) Complete(ctx context.Context, cfg ModelConfig, messages []Message, tools []ToolHint) (string, TokenUsage, error) {
	if c.client == nil {
		return "", TokenUsage{}, fmt.Errorf("llm: openai client has no API key configured")
	}

	req := openai.ChatCompletionRequest{
		Model:    cfg.Model,
		Messages: convertOpenAIMessages(messages),
	}
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		req.Temperature = float32(cfg.Temperature)
	}
	if cfg.TopP > 0 {
		req.TopP = float32(cfg.TopP)
	}
	if len(tools) > 0 {
		req.Tools = convertOpenAITools(tools)
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", TokenUsage{}, fmt.Errorf("llm: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", TokenUsage{}, fmt.Errorf("llm: openai returned no choices")
	}

	usage := TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func convertOpenAITools(tools []ToolHint) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if len(t.Schema) > 0 {
			_ = json.Unmarshal(t.Schema, &params)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

var _ Client = (*OpenAIClient)(nil)

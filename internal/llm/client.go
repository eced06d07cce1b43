// Package llm provides the abstract LLM client capability consumed by the
// react engine plus concrete adapters over the Anthropic and OpenAI SDKs.
package llm

import "context"

// Message is one entry in the prompt sent to a model. Role follows the
// models.Role vocabulary (system/user/assistant/tool) but is kept as a
// plain string here so the llm package has no dependency on the memory
// package's richer Message type.
type Message struct {
	Role    string
	Content string
}

// ToolHint describes one tool available to the model for native
// function-calling providers. Engines that rely entirely on textual
// parsing may pass a nil/empty slice; the tool hints are advisory.
type ToolHint struct {
	Name        string
	Description string
	Schema      []byte // raw JSON-schema object
}

// ModelConfig configures one completion call.
type ModelConfig struct {
	Provider    string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// TokenUsage reports how many tokens a completion call consumed.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the single external LLM capability consumed by the react
// engine: complete(model_config, messages, tools_hint?) -> (text,
// token_usage).
type Client interface {
	Complete(ctx context.Context, cfg ModelConfig, messages []Message, tools []ToolHint) (string, TokenUsage, error)
}

package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is a hand-rolled test double for Client: a queue of
// scripted responses consumed in order, one per Complete call.
type FakeClient struct {
	mu        sync.Mutex
	responses []FakeResponse
	calls     []FakeCall
}

// FakeResponse is one scripted Complete() outcome.
type FakeResponse struct {
	Text  string
	Usage TokenUsage
	Err   error
}

// FakeCall records the arguments of one Complete invocation for assertions.
type FakeCall struct {
	Config   ModelConfig
	Messages []Message
	Tools    []ToolHint
}

// NewFakeClient builds a client that returns responses in order.
func NewFakeClient(responses ...FakeResponse) *FakeClient {
	return &FakeClient{responses: responses}
}

func (c *FakeClient) Complete(ctx context.Context, cfg ModelConfig, messages []Message, tools []ToolHint) (string, TokenUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, FakeCall{Config: cfg, Messages: append([]Message(nil), messages...), Tools: tools})

	if len(c.responses) == 0 {
		return "", TokenUsage{}, fmt.Errorf("llm: fake client has no scripted responses left")
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next.Text, next.Usage, next.Err
}

// Calls returns a copy of recorded invocations.
func (c *FakeClient) Calls() []FakeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FakeCall(nil), c.calls...)
}

var _ Client = (*FakeClient)(nil)

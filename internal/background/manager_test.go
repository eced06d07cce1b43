package background

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexora-ai/agentcore/internal/events"
	"github.com/nexora-ai/agentcore/internal/llm"
	"github.com/nexora-ai/agentcore/internal/memory"
	"github.com/nexora-ai/agentcore/internal/react"
	"github.com/nexora-ai/agentcore/internal/toolkit"
)

func newTestManagerEngine(llmClient llm.Client) (*react.Engine, events.Router, memory.Router) {
	resolver := toolkit.NewResolver(toolkit.NewLocalRegistry(0, nil), nil)
	mem := memory.NewInProcessStore()
	ev := events.NewMemoryBackend()
	return react.NewEngine(resolver, mem, ev, llmClient, nil), ev, mem
}

// blockingClient lets a test observe that an episode's first LLM call has
// started, hold it open, and release it (or cancel it) on demand.
type blockingClient struct {
	inner       llm.Client
	started     chan struct{}
	startedOnce sync.Once
	release     chan struct{}
}

func newBlockingClient(inner llm.Client) *blockingClient {
	return &blockingClient{inner: inner, started: make(chan struct{}), release: make(chan struct{})}
}

func (c *blockingClient) Complete(ctx context.Context, cfg llm.ModelConfig, messages []llm.Message, tools []llm.ToolHint) (string, llm.TokenUsage, error) {
	c.startedOnce.Do(func() { close(c.started) })
	select {
	case <-c.release:
	case <-ctx.Done():
		return "", llm.TokenUsage{}, ctx.Err()
	}
	return c.inner.Complete(ctx, cfg, messages, tools)
}

func TestManager_CreatePauseResumeList(t *testing.T) {
	engine, ev, _ := newTestManagerEngine(llm.NewFakeClient(llm.FakeResponse{Text: "Final Answer: ok"}))
	m := NewManager(engine, ev, nil)

	id, err := m.CreateAgent(AgentConfig{
		AgentID:         "A",
		TaskConfig:      TaskConfig{Query: "hello"},
		IntervalSeconds: 60,
		Limits:          react.DefaultLimits(),
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	if _, err := m.CreateAgent(AgentConfig{AgentID: "A", IntervalSeconds: 60}); err == nil {
		t.Fatalf("expected DuplicateId error on second create")
	}

	status, err := m.Status(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != StateIdle {
		t.Fatalf("expected idle state, got %s", status.State)
	}

	if err := m.Pause(id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	status, _ = m.Status(id)
	if status.State != StatePaused {
		t.Fatalf("expected paused, got %s", status.State)
	}

	if err := m.Resume(id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	status, _ = m.Status(id)
	if status.State != StateIdle {
		t.Fatalf("expected idle after resume, got %s", status.State)
	}

	if list := m.List(); len(list) != 1 {
		t.Fatalf("expected 1 agent in list, got %d", len(list))
	}

	if err := m.DeleteAgent(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Status(id); err == nil {
		t.Fatalf("expected NotFound after delete")
	}
}

// TestAgentRecord_NonReentrancy checks that two overlapping triggers for
// the same agent never run concurrently; the later one is skipped.
func TestAgentRecord_NonReentrancy(t *testing.T) {
	var runs int32
	slowClient := &countingSlowClient{ran: &runs, delay: 40 * time.Millisecond}
	engine, ev, _ := newTestManagerEngine(slowClient)

	rec := newAgentRecord(AgentConfig{
		AgentID:         "A",
		TaskConfig:      TaskConfig{Query: "hello"},
		IntervalSeconds: 1,
		Limits:          react.DefaultLimits(),
	}, time.Now())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rec.trigger(context.Background(), engine, ev, nil, time.Now, nil, nil)
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		defer wg.Done()
		rec.trigger(context.Background(), engine, ev, nil, time.Now, nil, nil)
	}()
	wg.Wait()

	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected exactly 1 episode to actually run, got %d", got)
	}
}

type countingSlowClient struct {
	ran   *int32
	delay time.Duration
}

func (c *countingSlowClient) Complete(ctx context.Context, cfg llm.ModelConfig, messages []llm.Message, tools []llm.ToolHint) (string, llm.TokenUsage, error) {
	atomic.AddInt32(c.ran, 1)
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return "", llm.TokenUsage{}, ctx.Err()
	}
	return "Final Answer: ok", llm.TokenUsage{TotalTokens: 1}, nil
}

// TestManager_UpdateDuringRun checks that a config update mid-run does
// not affect the in-flight episode, only the next trigger.
func TestManager_UpdateDuringRun(t *testing.T) {
	fake := llm.NewFakeClient(
		llm.FakeResponse{Text: "Final Answer: done-1"},
		llm.FakeResponse{Text: "Final Answer: done-2"},
	)
	blocker := newBlockingClient(fake)
	engine, ev, mem := newTestManagerEngine(blocker)
	m := NewManager(engine, ev, nil)

	id, err := m.CreateAgent(AgentConfig{
		AgentID:         "A",
		TaskConfig:      TaskConfig{Query: "Q1"},
		IntervalSeconds: 1,
		Limits:          react.DefaultLimits(),
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	rec, err := m.find(id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.trigger(context.Background(), engine, ev, nil, time.Now, nil, nil)
	}()

	<-blocker.started
	if err := m.UpdateConfig(id, PartialConfig{TaskConfig: &TaskConfig{Query: "Q2"}}); err != nil {
		t.Fatalf("update config: %v", err)
	}
	close(blocker.release)
	wg.Wait()

	msgs, err := mem.GetMessages(context.Background(), "background:A", "A")
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	foundQ1 := false
	for _, msg := range msgs {
		if msg.Content == "Q1" {
			foundQ1 = true
		}
		if msg.Content == "Q2" {
			t.Fatalf("in-flight run must not observe the updated query")
		}
	}
	if !foundQ1 {
		t.Fatalf("expected the in-flight run's query 'Q1' to be persisted, got %+v", msgs)
	}

	// The next trigger observes the updated config directly.
	rec.mu.Lock()
	q := rec.taskConfig.Query
	rec.mu.Unlock()
	if q != "Q2" {
		t.Fatalf("expected task config to be updated to Q2, got %q", q)
	}
}

// TestManager_DeleteDuringRun checks that deleting an agent mid-run
// cancels the in-flight episode and that the agent is eventually reaped
// from the registry.
func TestManager_DeleteDuringRun(t *testing.T) {
	blocker := newBlockingClient(llm.NewFakeClient(llm.FakeResponse{Text: "Final Answer: done"}))
	engine, ev, _ := newTestManagerEngine(blocker)
	m := NewManager(engine, ev, nil)

	id, err := m.CreateAgent(AgentConfig{
		AgentID:         "A",
		TaskConfig:      TaskConfig{Query: "Q1"},
		IntervalSeconds: 1,
		Limits:          react.DefaultLimits(),
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}

	rec, err := m.find(id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec.trigger(context.Background(), engine, ev, nil, time.Now, nil, nil)
	}()

	<-blocker.started
	if err := m.DeleteAgent(id); err != nil {
		t.Fatalf("delete agent: %v", err)
	}
	wg.Wait()

	deadline := time.After(time.Second)
	for {
		if _, err := m.Status(id); err != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected agent to be reaped from the registry after delete")
		case <-time.After(time.Millisecond):
		}
	}
}

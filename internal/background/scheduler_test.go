package background

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexora-ai/agentcore/internal/llm"
	"github.com/nexora-ai/agentcore/internal/react"
)

// fakeClock is a hand-advanced clock for deterministic due-time tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestScheduler_DispatchesOnlyDueAgents(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine, ev, _ := newTestManagerEngine(llm.NewFakeClient(
		llm.FakeResponse{Text: "Final Answer: ok"},
		llm.FakeResponse{Text: "Final Answer: ok"},
	))
	s := NewScheduler(engine, ev, nil, WithNow(clock.Now))

	s.register(newAgentRecord(AgentConfig{
		AgentID:         "soon",
		TaskConfig:      TaskConfig{Query: "q"},
		IntervalSeconds: 10,
		Limits:          react.DefaultLimits(),
	}, clock.Now()))
	s.register(newAgentRecord(AgentConfig{
		AgentID:         "later",
		TaskConfig:      TaskConfig{Query: "q"},
		IntervalSeconds: 3600,
		Limits:          react.DefaultLimits(),
	}, clock.Now()))

	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("nothing should be due yet, dispatched %d", n)
	}

	clock.Advance(11 * time.Second)
	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected only the 10s agent to be due, dispatched %d", n)
	}

	// The dispatched agent's next due time is measured from this dispatch;
	// an immediate re-sweep must not fire it again.
	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("agent should not be due again immediately, dispatched %d", n)
	}

	clock.Advance(10 * time.Second)
	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("expected the 10s agent to be due again after its interval, dispatched %d", n)
	}
	s.wg.Wait()
}

func TestScheduler_PausedAgentIsNotDispatched(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine, ev, _ := newTestManagerEngine(llm.NewFakeClient())
	s := NewScheduler(engine, ev, nil, WithNow(clock.Now))

	rec := newAgentRecord(AgentConfig{
		AgentID:         "A",
		TaskConfig:      TaskConfig{Query: "q"},
		IntervalSeconds: 1,
		Limits:          react.DefaultLimits(),
	}, clock.Now())
	s.register(rec)
	rec.setPaused(true)

	clock.Advance(time.Minute)
	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("paused agent must not be dispatched, got %d", n)
	}

	rec.setPaused(false)
	if n := s.RunOnce(context.Background()); n != 1 {
		t.Fatalf("resumed agent should be dispatched, got %d", n)
	}
	s.wg.Wait()
}

func TestScheduler_UnregisteredAgentIsNotDispatched(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine, ev, _ := newTestManagerEngine(llm.NewFakeClient())
	s := NewScheduler(engine, ev, nil, WithNow(clock.Now))

	rec := newAgentRecord(AgentConfig{
		AgentID:         "A",
		TaskConfig:      TaskConfig{Query: "q"},
		IntervalSeconds: 1,
		Limits:          react.DefaultLimits(),
	}, clock.Now())
	s.register(rec)
	s.unregister("A")

	clock.Advance(time.Minute)
	if n := s.RunOnce(context.Background()); n != 0 {
		t.Fatalf("unregistered agent must not be dispatched, got %d", n)
	}
}

func TestScheduler_StartAndShutdownAreIdempotent(t *testing.T) {
	engine, ev, _ := newTestManagerEngine(llm.NewFakeClient())
	s := NewScheduler(engine, ev, nil, WithTickInterval(time.Hour))

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx)
	s.Shutdown()
	s.Shutdown()
}

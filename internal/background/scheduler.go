package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexora-ai/agentcore/internal/events"
	"github.com/nexora-ai/agentcore/internal/react"
	"github.com/nexora-ai/agentcore/internal/telemetry"
)

// DefaultTickInterval bounds how promptly a due agent is noticed; it is
// independent of any agent's own interval_seconds.
const DefaultTickInterval = time.Second

// Scheduler fires each registered agent's trigger at its due time: a
// single ticker drives a runDue sweep, and every due agent is dispatched
// on its own goroutine so that one slow episode never delays another
// agent's tick.
type Scheduler struct {
	engine  *react.Engine
	events  events.Router
	logger  *slog.Logger
	now     func() time.Time
	metrics *Metrics
	tracer  *telemetry.Tracer

	tickInterval time.Duration

	mu      sync.Mutex
	agents  map[string]*AgentRecord
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides the ticker period (default DefaultTickInterval).
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithNow overrides the clock; tests use this instead of real sleeps.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches Prometheus instrumentation for background runs. A
// nil *Metrics (the default) makes every recording a no-op.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer; each run gets a
// "background.run" span. A nil *Tracer (the default) makes Start a no-op.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// NewScheduler builds a Scheduler over the given engine/event sink.
func NewScheduler(engine *react.Engine, ev events.Router, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		engine:       engine,
		events:       ev,
		logger:       logger,
		now:          time.Now,
		tickInterval: DefaultTickInterval,
		agents:       make(map[string]*AgentRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) register(rec *AgentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[rec.agentID] = rec
}

func (s *Scheduler) unregister(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, agentID)
}

// Start begins the ticker loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.runDue(runCtx)
			}
		}
	}()
}

// Shutdown cancels the ticker loop and cooperatively cancels every
// in-flight episode, then waits for the loop goroutine to exit.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// RunOnce dispatches every currently-due agent once and returns the count
// dispatched. Exposed for deterministic tests in place of waiting on the
// real ticker.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	return s.runDue(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) int {
	now := s.now()
	s.mu.Lock()
	due := make([]*AgentRecord, 0, len(s.agents))
	for _, rec := range s.agents {
		if rec.due(now) {
			due = append(due, rec)
		}
	}
	s.mu.Unlock()

	for _, rec := range due {
		rec.markDispatched(now)
		s.wg.Add(1)
		go func(rec *AgentRecord) {
			defer s.wg.Done()
			rec.trigger(ctx, s.engine, s.events, s.logger, s.now, s.metrics, s.tracer)
		}(rec)
	}
	return len(due)
}

package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nexora-ai/agentcore/internal/events"
	"github.com/nexora-ai/agentcore/internal/llm"
	"github.com/nexora-ai/agentcore/internal/react"
	"github.com/nexora-ai/agentcore/internal/toolkit"
)

// PartialConfig is UpdateConfig's input: nil fields leave the current
// value unchanged.
type PartialConfig struct {
	TaskConfig        *TaskConfig
	IntervalSeconds   *int
	MaxRetries        *int
	RetryDelaySeconds *int
	ModelConfig       *llm.ModelConfig
	SystemInstruction *string
	Limits            *react.Limits
}

// Manager is the control plane over the background-agent subsystem. The
// registry mutex (mu) guards only map membership: inserting, finding, and
// removing *AgentRecord pointers. It is never held while a record's own
// run-lock is held, so create/update/pause/status/list never block on a
// running episode.
type Manager struct {
	mu     sync.RWMutex
	agents map[string]*AgentRecord

	scheduler *Scheduler
	logger    *slog.Logger

	startOnce sync.Once
	started   bool
}

// NewManager builds a Manager that drives episodes through engine and
// publishes lifecycle events on ev.
func NewManager(engine *react.Engine, ev events.Router, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		agents: make(map[string]*AgentRecord),
		logger: logger,
	}
	m.scheduler = NewScheduler(engine, ev, logger, opts...)
	return m
}

// now returns the manager's clock, shared with its scheduler so
// nextDueAt/update_config timing observe the same test clock under
// WithNow.
func (m *Manager) now() time.Time {
	return m.scheduler.now()
}

// CreateAgent validates and registers a new agent; schedules it
// immediately if Start() has already been called.
func (m *Manager) CreateAgent(cfg AgentConfig) (string, error) {
	if cfg.AgentID == "" {
		return "", toolkit.NewError(toolkit.BadArguments, "agent_id is required")
	}
	if cfg.IntervalSeconds <= 0 {
		return "", toolkit.NewError(toolkit.BadArguments, "interval_seconds must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[cfg.AgentID]; exists {
		return "", toolkit.NewError(toolkit.DuplicateID, fmt.Sprintf("agent %q already exists", cfg.AgentID))
	}
	rec := newAgentRecord(cfg, m.now())
	m.agents[cfg.AgentID] = rec
	m.scheduler.register(rec)
	return cfg.AgentID, nil
}

// UpdateConfig applies partial to an existing agent. Reschedules if
// interval_seconds changed.
func (m *Manager) UpdateConfig(agentID string, partial PartialConfig) error {
	rec, err := m.find(agentID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	cfg := AgentConfig{
		AgentID:           agentID,
		SystemInstruction: rec.systemInstruction,
		ModelConfig:       rec.modelConfig,
		TaskConfig:        rec.taskConfig,
		IntervalSeconds:   rec.intervalSeconds,
		MaxRetries:        rec.maxRetries,
		RetryDelaySeconds: rec.retryDelaySeconds,
		Limits:            rec.limits,
	}
	rec.mu.Unlock()

	rescheduled := false
	if partial.TaskConfig != nil {
		cfg.TaskConfig = *partial.TaskConfig
	}
	if partial.IntervalSeconds != nil {
		cfg.IntervalSeconds = *partial.IntervalSeconds
		rescheduled = true
	}
	if partial.MaxRetries != nil {
		cfg.MaxRetries = *partial.MaxRetries
	}
	if partial.RetryDelaySeconds != nil {
		cfg.RetryDelaySeconds = *partial.RetryDelaySeconds
	}
	if partial.ModelConfig != nil {
		cfg.ModelConfig = *partial.ModelConfig
	}
	if partial.SystemInstruction != nil {
		cfg.SystemInstruction = *partial.SystemInstruction
	}
	if partial.Limits != nil {
		cfg.Limits = *partial.Limits
	}

	rec.updateConfig(cfg, m.now(), rescheduled)
	return nil
}

// Pause sets the agent's state to paused. If a run is in flight, the
// transition takes effect when that run ends.
func (m *Manager) Pause(agentID string) error {
	rec, err := m.find(agentID)
	if err != nil {
		return err
	}
	rec.setPaused(true)
	return nil
}

// Resume clears a paused agent's state.
func (m *Manager) Resume(agentID string) error {
	rec, err := m.find(agentID)
	if err != nil {
		return err
	}
	rec.setPaused(false)
	return nil
}

// DeleteAgent transitions the agent to deleted, deregisters it from the
// scheduler, requesting cancellation of any in-flight run, and removes
// the record once its run-lock is free.
func (m *Manager) DeleteAgent(agentID string) error {
	rec, err := m.find(agentID)
	if err != nil {
		return err
	}
	m.scheduler.unregister(agentID)

	if immediate := rec.requestDelete(); immediate {
		m.mu.Lock()
		delete(m.agents, agentID)
		m.mu.Unlock()
		return nil
	}

	// The in-flight run will finish and mark the record StateDeleted;
	// reap it in the background so DeleteAgent itself doesn't block on a
	// running episode.
	go func() {
		rec.runLock.Lock()
		rec.runLock.Unlock()
		m.mu.Lock()
		delete(m.agents, agentID)
		m.mu.Unlock()
	}()
	return nil
}

// Status returns a snapshot of one agent.
func (m *Manager) Status(agentID string) (AgentStatus, error) {
	rec, err := m.find(agentID)
	if err != nil {
		return AgentStatus{}, err
	}
	return rec.snapshot(), nil
}

// List returns a snapshot of every registered agent.
func (m *Manager) List() []AgentStatus {
	m.mu.RLock()
	recs := make([]*AgentRecord, 0, len(m.agents))
	for _, rec := range m.agents {
		recs = append(recs, rec)
	}
	m.mu.RUnlock()

	out := make([]AgentStatus, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	return out
}

// Start begins the scheduler ticker loop. Safe to call once; subsequent
// calls are no-ops.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		m.started = true
		m.mu.Unlock()
		m.scheduler.Start(ctx)
	})
}

// Shutdown stops the scheduler and cooperatively cancels every in-flight
// episode, waiting for each to unwind before returning.
func (m *Manager) Shutdown() {
	m.scheduler.Shutdown()
}

func (m *Manager) find(agentID string) (*AgentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.agents[agentID]
	if !ok {
		return nil, toolkit.NewError(toolkit.NotFound, fmt.Sprintf("agent %q not found", agentID))
	}
	return rec, nil
}

// Package background implements the background-agent subsystem: one
// scheduled ReAct episode per trigger, a ticker-driven scheduler that
// enforces per-agent non-reentrancy, and a control plane over both.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/nexora-ai/agentcore/internal/llm"
	"github.com/nexora-ai/agentcore/internal/react"
)

// State is an agent's lifecycle state.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateIdle    State = "idle"
	StatePaused  State = "paused"
	StateError   State = "error"
	StateDeleted State = "deleted"
)

// TaskConfig is the query a background agent feeds into its ReAct episode,
// plus caller-defined metadata carried through unchanged.
type TaskConfig struct {
	Query    string
	Metadata map[string]any
}

// AgentConfig is the CreateAgent/UpdateConfig input.
type AgentConfig struct {
	AgentID           string
	SystemInstruction string
	ModelConfig       llm.ModelConfig
	TaskConfig        TaskConfig
	IntervalSeconds   int
	MaxRetries        int
	RetryDelaySeconds int
	Limits            react.Limits
}

// AgentStatus is the read-only snapshot returned by Status/List.
type AgentStatus struct {
	AgentID    string
	State      State
	RunCount   uint64
	ErrorCount uint64
	LastRunAt  *time.Time
	LastError  string
	NextDueAt  time.Time
}

// AgentRecord is the live, mutable state of one background agent. The
// run-lock (runLock) and the mutable-field
// lock (mu) are deliberately distinct: a trigger holds runLock for the
// full duration of its ReAct episode, while mu protects only bookkeeping
// and is never held across a blocking call — this is what lets
// update_config/pause/status run concurrently with an in-flight episode.
type AgentRecord struct {
	agentID   string
	sessionID string

	runLock sync.Mutex

	mu                sync.Mutex
	systemInstruction string
	modelConfig       llm.ModelConfig
	taskConfig        TaskConfig
	intervalSeconds   int
	maxRetries        int
	retryDelaySeconds int
	limits            react.Limits

	state        State
	runCount     uint64
	errorCount   uint64
	lastRunAt    *time.Time
	lastError    string
	nextDueAt    time.Time
	pauseWanted  bool
	deleteWanted bool
	cancel       context.CancelFunc
}

func newAgentRecord(cfg AgentConfig, now time.Time) *AgentRecord {
	return &AgentRecord{
		agentID:           cfg.AgentID,
		sessionID:         "background:" + cfg.AgentID,
		systemInstruction: cfg.SystemInstruction,
		modelConfig:       cfg.ModelConfig,
		taskConfig:        cfg.TaskConfig,
		intervalSeconds:   cfg.IntervalSeconds,
		maxRetries:        cfg.MaxRetries,
		retryDelaySeconds: cfg.RetryDelaySeconds,
		limits:            cfg.Limits,
		state:             StateIdle,
		nextDueAt:         now.Add(time.Duration(cfg.IntervalSeconds) * time.Second),
	}
}

// agentRunConfig is the immutable-for-one-episode view of a record's
// config, captured under mu at the moment a run starts: a running episode
// always finishes with the config it started with.
type agentRunConfig struct {
	systemInstruction string
	modelConfig       llm.ModelConfig
	taskConfig        TaskConfig
	limits            react.Limits
	maxRetries        int
	retryDelaySeconds int
	runCountAtStart   uint64
	errorCountAtStart uint64
}

// snapshotConfigLocked must be called with a.mu held.
func (a *AgentRecord) snapshotConfigLocked() agentRunConfig {
	return agentRunConfig{
		systemInstruction: a.systemInstruction,
		modelConfig:       a.modelConfig,
		taskConfig:        a.taskConfig,
		limits:            a.limits,
		maxRetries:        a.maxRetries,
		retryDelaySeconds: a.retryDelaySeconds,
		runCountAtStart:   a.runCount,
		errorCountAtStart: a.errorCount,
	}
}

// snapshot returns a copy of the record's current status.
func (a *AgentRecord) snapshot() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AgentStatus{
		AgentID:    a.agentID,
		State:      a.state,
		RunCount:   a.runCount,
		ErrorCount: a.errorCount,
		LastRunAt:  a.lastRunAt,
		LastError:  a.lastError,
		NextDueAt:  a.nextDueAt,
	}
}

// due reports whether the agent is eligible to be dispatched:
// neither paused nor deleted, and its due time has passed.
func (a *AgentRecord) due(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StatePaused || a.state == StateDeleted {
		return false
	}
	return !a.nextDueAt.After(now)
}

// markDispatched advances nextDueAt from the dispatch time, per the
// resolved interpretation that interval_seconds is measured from the last
// run's start rather than from update_config's call time.
func (a *AgentRecord) markDispatched(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextDueAt = now.Add(time.Duration(a.intervalSeconds) * time.Second)
}

// updateConfig atomically replaces the record's config fields with cfg's;
// the interval and nextDueAt change only when rescheduleInterval is set. A
// running episode always finishes with the config it started with.
func (a *AgentRecord) updateConfig(cfg AgentConfig, now time.Time, rescheduleInterval bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemInstruction = cfg.SystemInstruction
	a.modelConfig = cfg.ModelConfig
	a.taskConfig = cfg.TaskConfig
	a.maxRetries = cfg.MaxRetries
	a.retryDelaySeconds = cfg.RetryDelaySeconds
	a.limits = cfg.Limits
	if rescheduleInterval {
		a.intervalSeconds = cfg.IntervalSeconds
		base := now
		if a.lastRunAt != nil {
			base = *a.lastRunAt
		}
		a.nextDueAt = base.Add(time.Duration(a.intervalSeconds) * time.Second)
	}
}

func (a *AgentRecord) setPaused(paused bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		// Pause never cancels an in-flight run; it takes effect at
		// run end.
		a.pauseWanted = paused
		return
	}
	a.pauseWanted = false
	if paused {
		a.state = StatePaused
	} else if a.state == StatePaused {
		a.state = StateIdle
	}
}

// requestDelete marks the record for deletion and cancels any in-flight
// run. Returns true if the caller may remove the record immediately
// (no run was in flight).
func (a *AgentRecord) requestDelete() (immediate bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deleteWanted = true
	if a.state == StateRunning {
		if a.cancel != nil {
			a.cancel()
		}
		return false
	}
	a.state = StateDeleted
	return true
}

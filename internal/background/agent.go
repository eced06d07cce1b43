package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nexora-ai/agentcore/internal/backoff"
	"github.com/nexora-ai/agentcore/internal/events"
	"github.com/nexora-ai/agentcore/internal/react"
	"github.com/nexora-ai/agentcore/internal/telemetry"
)

// trigger runs one scheduled tick for the agent: skip if paused/deleted,
// try the run-lock, run the episode with bounded retries, then settle the
// final state. It never blocks the caller beyond the agent's own episode;
// scheduler dispatch is always a separate goroutine per agent.
func (a *AgentRecord) trigger(parent context.Context, engine *react.Engine, ev events.Router, logger *slog.Logger, now func() time.Time, metrics *Metrics, tracer *telemetry.Tracer) {
	a.mu.Lock()
	if a.state == StatePaused || a.state == StateDeleted {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if !a.runLock.TryLock() {
		metrics.observeSkippedBusy()
		emit(ev, logger, events.Event{Type: events.SkippedBusy, AgentName: a.agentID, Payload: events.SkippedBusyPayload{AgentID: a.agentID}})
		return
	}
	defer a.runLock.Unlock()

	// Re-check under the field lock: a delete/pause may have landed between
	// the unlocked check above and acquiring the run-lock.
	a.mu.Lock()
	if a.state == StatePaused || a.state == StateDeleted {
		a.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(parent)
	a.state = StateRunning
	a.cancel = cancel
	cfg := a.snapshotConfigLocked()
	a.mu.Unlock()
	defer cancel()

	emit(ev, logger, events.Event{Type: events.BackgroundTaskStarted, AgentName: a.agentID, Payload: events.BackgroundTaskStartedPayload{AgentID: a.agentID, RunCount: int(cfg.runCountAtStart)}})
	emit(ev, logger, events.Event{Type: events.BackgroundAgentStatus, AgentName: a.agentID, Payload: events.BackgroundAgentStatusPayload{AgentID: a.agentID, State: string(StateRunning), RunCount: int(cfg.runCountAtStart), ErrorCount: int(cfg.errorCountAtStart)}})
	metrics.observeStart()

	runCtx, endRunSpan := tracer.Start(runCtx, "background.run", attribute.String("agent_id", a.agentID))

	start := now()
	var runErr error
	for attempt := 1; attempt <= cfg.maxRetries+1; attempt++ {
		out, err := engine.Run(runCtx, react.Input{
			SessionID:         a.sessionID,
			AgentName:         a.agentID,
			UserQuery:         cfg.taskConfig.Query,
			SystemInstruction: cfg.systemInstruction,
			ModelConfig:       cfg.modelConfig,
			Limits:            cfg.limits,
		})
		if err == nil && out.Status == react.StatusSuccess {
			runErr = nil
			emit(ev, logger, events.Event{Type: events.BackgroundTaskCompleted, AgentName: a.agentID, Payload: events.BackgroundTaskCompletedPayload{AgentID: a.agentID, DurationMS: time.Since(start).Milliseconds()}})
			break
		}

		runErr = err
		if runErr == nil {
			runErr = fmt.Errorf("background: episode terminated with status %s", out.Status)
		}
		emit(ev, logger, events.Event{Type: events.BackgroundTaskError, AgentName: a.agentID, Payload: events.BackgroundTaskErrorPayload{AgentID: a.agentID, Attempt: attempt, ErrorKind: string(out.ErrorKind), Message: runErr.Error()}})

		if attempt > cfg.maxRetries {
			break
		}
		if sleepErr := backoff.Sleep(runCtx, time.Duration(cfg.retryDelaySeconds)*time.Second); sleepErr != nil {
			break
		}
	}
	endRunSpan(&runErr)

	outcome := "success"
	if runErr != nil {
		outcome = "error"
	}
	metrics.observeDone(outcome, time.Since(start).Seconds())

	a.mu.Lock()
	a.runCount++
	a.lastRunAt = &start
	if runErr != nil {
		a.errorCount++
		a.lastError = runErr.Error()
	} else {
		a.lastError = ""
	}
	var finalState State
	if a.deleteWanted {
		finalState = StateDeleted
	} else if a.pauseWanted {
		finalState = StatePaused
		a.pauseWanted = false
	} else {
		finalState = StateIdle
	}
	a.state = finalState
	a.cancel = nil
	runCount, errorCount := a.runCount, a.errorCount
	a.mu.Unlock()

	emit(ev, logger, events.Event{Type: events.BackgroundAgentStatus, AgentName: a.agentID, Payload: events.BackgroundAgentStatusPayload{AgentID: a.agentID, State: string(finalState), RunCount: int(runCount), ErrorCount: int(errorCount)}})
}

func emit(ev events.Router, logger *slog.Logger, event events.Event) {
	if ev == nil {
		return
	}
	if err := ev.Append(context.Background(), event); err != nil && logger != nil {
		logger.Warn("background: event append failed", "type", event.Type, "agent_id", event.AgentName, "error", err)
	}
}

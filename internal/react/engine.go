package react

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nexora-ai/agentcore/internal/events"
	"github.com/nexora-ai/agentcore/internal/llm"
	"github.com/nexora-ai/agentcore/internal/memory"
	"github.com/nexora-ai/agentcore/internal/telemetry"
	"github.com/nexora-ai/agentcore/internal/toolkit"
	"github.com/nexora-ai/agentcore/pkg/models"
)

// Status is the terminal classification of one episode.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusLimitExceeded Status = "limit_exceeded"
	StatusError         Status = "error"
	StatusCancelled     Status = "cancelled"
)

// Input configures one episode.
type Input struct {
	SessionID         string
	AgentName         string
	UserQuery         string
	SystemInstruction string
	ModelConfig       llm.ModelConfig
	Limits            Limits
}

// Outcome is the caller-visible result of one episode: terminal status,
// final content, and usage, plus the step/request counts consumed by the
// background agent and tests.
type Outcome struct {
	Status      Status
	FinalAnswer string
	Steps       int
	Requests    int
	TokensUsed  int
	ErrorKind   toolkit.ErrorKind
	Err         error
}

// Engine runs one ReAct episode to either a final answer or a terminal
// failure: a Reasoning -> Acting -> Observing state machine that
// interleaves LLM calls with tool dispatch under explicit step, request,
// and token budgets.
type Engine struct {
	Resolver *toolkit.Resolver
	Memory   memory.Router
	Events   events.Router
	LLM      llm.Client
	Logger   *slog.Logger
	Metrics  *Metrics
	Tracer   *telemetry.Tracer
}

// NewEngine builds an Engine over the given collaborators. logger may be
// nil (defaults to slog.Default()). Metrics and Tracer are left nil; a nil
// Metrics or Tracer makes every recording a no-op.
func NewEngine(resolver *toolkit.Resolver, mem memory.Router, ev events.Router, llmClient llm.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Resolver: resolver, Memory: mem, Events: ev, LLM: llmClient, Logger: logger}
}

// correctiveReprompt is appended to the transcript when the model's output
// fails to parse and retry budget remains, so the next LLM call can
// self-correct.
const correctiveReprompt = "Your previous output could not be parsed. Respond with exactly one of:\n" +
	"Thought: <reasoning>\nAction: <tool name>\nAction Input: <JSON object>\n" +
	"or\nFinal Answer: <answer>"

// Run executes one episode. It is not safe to call concurrently for the
// same session, and episodes are not resumable.
func (e *Engine) Run(ctx context.Context, in Input) (out Outcome, err error) {
	start := time.Now()
	defer func() { e.Metrics.observeOutcome(out, time.Since(start).Seconds()) }()

	limits := sanitizeLimits(in.Limits)

	if err := e.Memory.EnsureSession(ctx, in.SessionID, limits.MaxContextTokens); err != nil {
		return Outcome{Status: StatusError, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
	}

	if in.SystemInstruction != "" {
		existing, err := e.Memory.GetMessages(ctx, in.SessionID, "")
		if err != nil {
			return Outcome{Status: StatusError, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
		}
		if len(existing) == 0 {
			if err := e.Memory.StoreMessage(ctx, in.SessionID, models.RoleSystem, in.SystemInstruction, map[string]any{"agent_name": in.AgentName}); err != nil {
				return Outcome{Status: StatusError, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
			}
		}
	}

	if err := e.Memory.StoreMessage(ctx, in.SessionID, models.RoleUser, in.UserQuery, map[string]any{"agent_name": in.AgentName}); err != nil {
		return Outcome{Status: StatusError, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
	}
	e.emit(ctx, events.Event{Type: events.UserMessage, AgentName: in.AgentName, SessionID: in.SessionID, Payload: events.UserMessagePayload{Content: in.UserQuery}})

	var requests, tokens, parseRetries int

	for step := 1; ; step++ {
		select {
		case <-ctx.Done():
			return Outcome{Status: StatusCancelled, Steps: step - 1, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.Cancelled, Err: ctx.Err()}, ctx.Err()
		default:
		}

		stepCtx, endStep := e.Tracer.Start(ctx, "react.step", attribute.String("session_id", in.SessionID), attribute.Int("step", step))

		history, err := e.Memory.GetMessages(stepCtx, in.SessionID, in.AgentName)
		if err != nil {
			endStep(&err)
			return Outcome{Status: StatusError, Steps: step - 1, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
		}

		e.emit(ctx, events.Event{Type: events.AgentCall, AgentName: in.AgentName, SessionID: in.SessionID, Payload: events.AgentCallPayload{AgentName: in.AgentName, Model: in.ModelConfig.Model}})

		text, usage, err := e.LLM.Complete(stepCtx, in.ModelConfig, toLLMMessages(history), nil)
		requests++
		tokens += usage.TotalTokens
		if err != nil {
			wrapped := toolkit.NewError(toolkit.ProviderError, "llm completion failed").WithCause(err)
			werr := error(wrapped)
			endStep(&werr)
			return Outcome{Status: StatusError, Steps: step, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.ProviderError, Err: wrapped}, wrapped
		}
		endStep(nil)

		action, perr := ParseAction(text)
		if perr != nil {
			e.emit(ctx, events.Event{Type: events.ParseError, AgentName: in.AgentName, SessionID: in.SessionID, Payload: events.ParseErrorPayload{RawOutput: text, Attempt: parseRetries + 1}})
			_ = e.Memory.StoreMessage(ctx, in.SessionID, models.RoleAssistant, text, map[string]any{"agent_name": in.AgentName})

			parseRetries++
			if parseRetries > limits.ParseRetryBudget {
				wrapped := toolkit.NewError(toolkit.ParseFailure, "exceeded parse retry budget").WithCause(perr)
				return Outcome{Status: StatusError, Steps: step, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.ParseFailure, Err: wrapped}, wrapped
			}
			if err := e.Memory.StoreMessage(ctx, in.SessionID, models.RoleUser, correctiveReprompt, map[string]any{"agent_name": in.AgentName}); err != nil {
				return Outcome{Status: StatusError, Steps: step, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
			}
			if out, done := e.checkLimits(step, requests, tokens, limits); done {
				return out, out.Err
			}
			continue
		}

		if action.IsFinal {
			if err := e.Memory.StoreMessage(ctx, in.SessionID, models.RoleAssistant, action.FinalAnswer, map[string]any{"agent_name": in.AgentName}); err != nil {
				return Outcome{Status: StatusError, Steps: step, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
			}
			e.emit(ctx, events.Event{Type: events.FinalAnswer, AgentName: in.AgentName, SessionID: in.SessionID, Payload: events.FinalAnswerPayload{Content: action.FinalAnswer, TokensUsed: tokens, Steps: step}})
			return Outcome{Status: StatusSuccess, FinalAnswer: action.FinalAnswer, Steps: step, Requests: requests, TokensUsed: tokens}, nil
		}

		// Acting: dispatch exactly the first parsed tool call.
		call := toolkit.Call{ID: uuid.NewString(), Name: action.ToolName, Arguments: action.ToolInput}
		assistantContent := action.Thought
		if assistantContent == "" {
			assistantContent = text
		}
		if err := e.Memory.StoreMessage(ctx, in.SessionID, models.RoleAssistant, assistantContent, map[string]any{"agent_name": in.AgentName, "tool_call_id": call.ID, "tool_name": call.Name}); err != nil {
			return Outcome{Status: StatusError, Steps: step, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
		}
		e.emit(ctx, events.Event{Type: events.ToolCall, AgentName: in.AgentName, SessionID: in.SessionID, Payload: events.ToolCallPayload{CallID: call.ID, Name: call.Name, Arguments: string(call.Arguments)}})

		toolCtx, endTool := e.Tracer.Start(ctx, "react.tool_call", attribute.String("tool.name", call.Name), attribute.String("tool.call_id", call.ID))
		result := e.Resolver.Execute(toolCtx, call, limits.ToolCallTimeout)
		var toolErr error
		if !result.OK {
			toolErr = fmt.Errorf("%s", result.Content)
		}
		endTool(&toolErr)

		// The tool-result message is always written verbatim, even when
		// the envelope content is empty.
		if err := e.Memory.StoreMessage(ctx, in.SessionID, models.RoleTool, result.Content, map[string]any{"agent_name": in.AgentName, "tool_call_id": call.ID}); err != nil {
			return Outcome{Status: StatusError, Steps: step, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.BackendUnavailable, Err: err}, err
		}
		e.emit(ctx, events.Event{Type: events.ToolResult, AgentName: in.AgentName, SessionID: in.SessionID, Payload: events.ToolResultPayload{CallID: call.ID, OK: result.OK, DurationMS: result.DurationMS, ErrorKind: string(result.ErrorKind)}})
		if !result.OK {
			e.emit(ctx, events.Event{Type: events.Observation, AgentName: in.AgentName, SessionID: in.SessionID, Payload: events.ObservationPayload{Content: result.Content}})
		}

		// Observing: a tool failure never aborts the episode; the engine
		// continues so the LLM can react to the error.
		if out, done := e.checkLimits(step, requests, tokens, limits); done {
			return out, out.Err
		}
	}
}

// checkLimits applies the post-step limit checks in the order
// (steps, requests, tokens). done is true iff the episode must terminate.
func (e *Engine) checkLimits(steps, requests, tokens int, limits Limits) (Outcome, bool) {
	switch {
	case steps >= limits.MaxSteps:
		return Outcome{Status: StatusLimitExceeded, Steps: steps, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.LimitExceeded, Err: fmt.Errorf("react: reached max_steps=%d", limits.MaxSteps)}, true
	case requests >= limits.RequestLimit:
		return Outcome{Status: StatusLimitExceeded, Steps: steps, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.LimitExceeded, Err: fmt.Errorf("react: reached request_limit=%d", limits.RequestLimit)}, true
	case tokens >= limits.TotalTokensLimit:
		return Outcome{Status: StatusLimitExceeded, Steps: steps, Requests: requests, TokensUsed: tokens, ErrorKind: toolkit.LimitExceeded, Err: fmt.Errorf("react: reached total_tokens_limit=%d", limits.TotalTokensLimit)}, true
	default:
		return Outcome{}, false
	}
}

// emit appends an event and swallows failures: event emission is
// observational, not authoritative, so a failure is logged and ignored.
func (e *Engine) emit(ctx context.Context, ev events.Event) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Append(ctx, ev); err != nil {
		e.Logger.Warn("react: event append failed", "type", ev.Type, "session_id", ev.SessionID, "error", err)
	}
}

func toLLMMessages(history []models.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

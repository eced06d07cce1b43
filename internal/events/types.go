// Package events implements the event router: a typed, append-only
// event bus keyed by session, fanned out to one backend store chosen at
// construction time.
package events

import "time"

// Type identifies the kind of event.
type Type string

const (
	UserMessage             Type = "UserMessage"
	AgentCall               Type = "AgentCall"
	ToolCall                Type = "ToolCall"
	ToolResult              Type = "ToolResult"
	Observation             Type = "Observation"
	FinalAnswer             Type = "FinalAnswer"
	ParseError              Type = "ParseError"
	BackgroundTaskStarted   Type = "BackgroundTaskStarted"
	BackgroundTaskCompleted Type = "BackgroundTaskCompleted"
	BackgroundTaskError     Type = "BackgroundTaskError"
	BackgroundAgentStatus   Type = "BackgroundAgentStatus"
	SkippedBusy             Type = "SkippedBusy"
	EventDropped            Type = "EventDropped"
)

// Event is one entry on the bus. Payload is one of the *Payload types
// below, chosen by Type.
type Event struct {
	Type      Type
	AgentName string
	SessionID string
	Time      time.Time
	Sequence  uint64
	Payload   any
}

type UserMessagePayload struct{ Content string }

type AgentCallPayload struct {
	AgentName string
	Model     string
}

type ToolCallPayload struct {
	CallID    string
	Name      string
	Arguments string
}

type ToolResultPayload struct {
	CallID     string
	OK         bool
	DurationMS int64
	ErrorKind  string
}

type ObservationPayload struct{ Content string }

type FinalAnswerPayload struct {
	Content    string
	TokensUsed int
	Steps      int
}

type ParseErrorPayload struct {
	RawOutput string
	Attempt   int
}

type BackgroundTaskStartedPayload struct {
	AgentID  string
	RunCount int
}

type BackgroundTaskCompletedPayload struct {
	AgentID    string
	DurationMS int64
}

type BackgroundTaskErrorPayload struct {
	AgentID   string
	Attempt   int
	ErrorKind string
	Message   string
}

type BackgroundAgentStatusPayload struct {
	AgentID    string
	State      string
	LastRunAt  *time.Time
	RunCount   int
	ErrorCount int
}

type SkippedBusyPayload struct{ AgentID string }

type EventDroppedPayload struct{ Count int }

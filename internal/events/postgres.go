package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the "postgres" driver used by sql.Open below.
	_ "github.com/lib/pq"

	"github.com/nexora-ai/agentcore/internal/backoff"
	"github.com/nexora-ai/agentcore/internal/toolkit"
)

// appendAttempts bounds how often a transient append failure is retried
// before being surfaced as BackendUnavailable.
const appendAttempts = 3

// DefaultPollInterval is how often a Stream cursor re-queries the log for
// rows appended since its last read.
const DefaultPollInterval = 250 * time.Millisecond

// PostgresBackend is the durable Router backend: events serialized to an
// append-only log table keyed per session. Stream is restartable — a new
// subscriber reads the full per-session log from the beginning and then
// follows new appends, the same replay-buffered-then-live contract the
// in-memory backend documents.
type PostgresBackend struct {
	db           *sql.DB
	retry        backoff.Policy
	pollInterval time.Duration
}

// NewPostgresBackend opens a connection pool against dsn. Callers are
// responsible for running Migrate once before first use.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, toolkit.NewError(toolkit.BackendUnavailable, "event backend unavailable").WithCause(err)
	}
	return &PostgresBackend{
		db:           db,
		retry:        backoff.Policy{Initial: 50 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.1},
		pollInterval: DefaultPollInterval,
	}, nil
}

// Migrate creates the event log table if it does not exist.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS agentcore_events (
	seq BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	agent_name TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS agentcore_events_session_seq ON agentcore_events(session_id, seq);
`
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return toolkit.NewError(toolkit.BackendUnavailable, "event backend migration failed").WithCause(err)
	}
	return nil
}

func (b *PostgresBackend) Append(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}

	err = backoff.Retry(ctx, b.retry, appendAttempts, func(int) error {
		_, execErr := b.db.ExecContext(ctx, `
INSERT INTO agentcore_events (session_id, agent_name, type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`,
			event.SessionID, event.AgentName, string(event.Type), payload, event.Time)
		return execErr
	})
	if err != nil {
		return toolkit.NewError(toolkit.BackendUnavailable, "event append failed").WithCause(err)
	}
	return nil
}

// Stream tails the session's log with a polling cursor: all rows already
// appended are delivered first, in seq order, then new rows as they land.
// The returned cancel func stops the cursor and closes the channel; the
// cursor also stops when ctx is done.
func (b *PostgresBackend) Stream(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	ch := make(chan Event, DefaultSubscriberBuffer)
	streamCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(ch)
		var cursor uint64
		for {
			rows, err := b.readAfter(streamCtx, sessionID, cursor)
			if err != nil {
				// A broken connection is retried on the next poll; the
				// cursor position makes the stream restartable.
				if streamCtx.Err() != nil {
					return
				}
			}
			for _, ev := range rows {
				select {
				case ch <- ev:
					cursor = ev.Sequence
				case <-streamCtx.Done():
					return
				}
			}
			if err := backoff.Sleep(streamCtx, b.pollInterval); err != nil {
				return
			}
		}
	}()

	return ch, cancel, nil
}

func (b *PostgresBackend) readAfter(ctx context.Context, sessionID string, cursor uint64) ([]Event, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT seq, session_id, agent_name, type, payload, created_at
FROM agentcore_events WHERE session_id = $1 AND seq > $2 ORDER BY seq ASC`,
		sessionID, cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			ev      Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.Sequence, &ev.SessionID, &ev.AgentName, &typ, &payload, &ev.Time); err != nil {
			return out, err
		}
		ev.Type = Type(typ)
		ev.Payload = decodePayload(ev.Type, payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// decodePayload rebuilds the typed payload struct for a stored event. An
// unknown type, or a payload that no longer unmarshals, degrades to the
// raw JSON string rather than failing the whole read.
func decodePayload(t Type, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var target any
	switch t {
	case UserMessage:
		target = &UserMessagePayload{}
	case AgentCall:
		target = &AgentCallPayload{}
	case ToolCall:
		target = &ToolCallPayload{}
	case ToolResult:
		target = &ToolResultPayload{}
	case Observation:
		target = &ObservationPayload{}
	case FinalAnswer:
		target = &FinalAnswerPayload{}
	case ParseError:
		target = &ParseErrorPayload{}
	case BackgroundTaskStarted:
		target = &BackgroundTaskStartedPayload{}
	case BackgroundTaskCompleted:
		target = &BackgroundTaskCompletedPayload{}
	case BackgroundTaskError:
		target = &BackgroundTaskErrorPayload{}
	case BackgroundAgentStatus:
		target = &BackgroundAgentStatusPayload{}
	case SkippedBusy:
		target = &SkippedBusyPayload{}
	case EventDropped:
		target = &EventDroppedPayload{}
	default:
		return string(raw)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return string(raw)
	}
	return target
}

var _ Router = (*PostgresBackend)(nil)

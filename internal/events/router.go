package events

import "context"

// Router is the event-bus capability: append events and stream them back
// by session. Append failures are surfaced to the caller; the react engine
// treats them as non-fatal (logs and continues), since events are
// observational, not authoritative.
type Router interface {
	// Append writes an event. It returns a BackendUnavailable-kind error
	// only if the backend rejects persistently (transient failures are
	// retried internally up to a small bound).
	Append(ctx context.Context, event Event) error

	// Stream returns a channel of events for sessionID and a cancel
	// function that unsubscribes and closes the channel. Ordering is
	// preserved per session for any single consumer.
	Stream(ctx context.Context, sessionID string) (<-chan Event, func(), error)
}

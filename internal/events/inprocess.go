package events

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxBufferedPerSession bounds the in-memory backend's per-session
// queue. Overflow drops the oldest event and emits a single EventDropped
// marker on the next append.
const DefaultMaxBufferedPerSession = 256

// DefaultSubscriberBuffer bounds each subscriber's own delivery channel.
// A slow subscriber drops events meant for it without affecting the
// shared per-session queue or other subscribers.
const DefaultSubscriberBuffer = 64

type sessionState struct {
	mu               sync.Mutex
	buffer           []Event
	pendingDropped   int
	subscribers      map[int]chan Event
	nextSubscriberID int
}

// MemoryBackend is the in-memory Router backend. Stream replays any
// events already buffered for the session, then continues delivering
// events that arrive afterward, so a late subscriber still observes a
// prefix of the session's log.
type MemoryBackend struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
	seq      uint64

	maxBuffered      int
	subscriberBuffer int
}

// NewMemoryBackend constructs an empty in-memory event backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions:         make(map[string]*sessionState),
		maxBuffered:      DefaultMaxBufferedPerSession,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (b *MemoryBackend) stateFor(sessionID string) *sessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.sessions[sessionID]
	if !ok {
		st = &sessionState{subscribers: make(map[int]chan Event)}
		b.sessions[sessionID] = st
	}
	return st
}

func (b *MemoryBackend) nextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

func (b *MemoryBackend) Append(ctx context.Context, event Event) error {
	st := b.stateFor(event.SessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.pendingDropped > 0 {
		marker := Event{
			Type:      EventDropped,
			SessionID: event.SessionID,
			Time:      time.Now(),
			Sequence:  b.nextSeq(),
			Payload:   EventDroppedPayload{Count: st.pendingDropped},
		}
		st.pendingDropped = 0
		b.pushLocked(st, marker)
	}

	if event.Sequence == 0 {
		event.Sequence = b.nextSeq()
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	b.pushLocked(st, event)
	return nil
}

// pushLocked appends to the ring (dropping the oldest on overflow, deferring
// the EventDropped marker to the next Append) and fans out non-blockingly
// to live subscribers. Caller must hold st.mu.
func (b *MemoryBackend) pushLocked(st *sessionState, event Event) {
	if len(st.buffer) >= b.maxBuffered {
		st.buffer = st.buffer[1:]
		st.pendingDropped++
	}
	st.buffer = append(st.buffer, event)

	for _, ch := range st.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop for this subscriber only.
		}
	}
}

func (b *MemoryBackend) Stream(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	st := b.stateFor(sessionID)

	st.mu.Lock()
	ch := make(chan Event, b.subscriberBuffer)
	id := st.nextSubscriberID
	st.nextSubscriberID++
	// Replay the buffer and register under one critical section: a
	// concurrent Append must not fan a live event to this subscriber
	// before the older buffered events have been queued.
	for _, e := range st.buffer {
		select {
		case ch <- e:
		default:
		}
	}
	st.subscribers[id] = ch
	st.mu.Unlock()

	cancel := func() {
		st.mu.Lock()
		if _, ok := st.subscribers[id]; ok {
			delete(st.subscribers, id)
			close(ch)
		}
		st.mu.Unlock()
	}
	return ch, cancel, nil
}

var _ Router = (*MemoryBackend)(nil)

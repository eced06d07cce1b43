package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexora-ai/agentcore/internal/toolkit"
	"github.com/nexora-ai/agentcore/pkg/models"
)

// maxMessagesPerSession bounds the number of messages retained per session
// to prevent unbounded growth; older messages beyond the cap are dropped
// from storage (not just the read-time budget view).
const maxMessagesPerSession = 10000

// InProcessStore is an in-memory Router implementation. Appends are
// serialized under a store-wide mutex; reads deep-clone before returning
// so callers can never observe a mutation of a stored message.
type InProcessStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	messages map[string][]models.Message
	nextSeq  uint64
}

// NewInProcessStore returns an empty in-memory store.
func NewInProcessStore() *InProcessStore {
	return &InProcessStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
	}
}

func (s *InProcessStore) EnsureSession(ctx context.Context, sessionID string, maxContextTokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; ok {
		return nil
	}
	now := time.Now()
	s.sessions[sessionID] = &models.Session{
		ID:               sessionID,
		MaxContextTokens: maxContextTokens,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return nil
}

func (s *InProcessStore) StoreMessage(ctx context.Context, sessionID string, role models.Role, content string, metadata map[string]any) error {
	if sessionID == "" {
		return fmt.Errorf("memory: session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		// Sessions are created lazily on first write.
		now := time.Now()
		s.sessions[sessionID] = &models.Session{ID: sessionID, CreatedAt: now, UpdatedAt: now}
	}

	s.nextSeq++
	msg := models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  cloneMetadata(metadata),
		CreatedAt: time.Now(),
		Seq:       s.nextSeq,
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	if len(s.messages[sessionID]) > maxMessagesPerSession {
		excess := len(s.messages[sessionID]) - maxMessagesPerSession
		s.messages[sessionID] = s.messages[sessionID][excess:]
	}
	return nil
}

func (s *InProcessStore) GetMessages(ctx context.Context, sessionID string, agentName string) ([]models.Message, error) {
	s.mu.Lock()
	session := s.sessions[sessionID]
	source := s.messages[sessionID]
	filtered := make([]models.Message, 0, len(source))
	for _, m := range source {
		if agentName != "" {
			if name, _ := m.Metadata["agent_name"].(string); name != agentName {
				continue
			}
		}
		filtered = append(filtered, cloneMessage(m))
	}
	s.mu.Unlock()

	maxTokens := 0
	if session != nil {
		maxTokens = session.MaxContextTokens
	}
	return truncateToBudget(filtered, maxTokens), nil
}

func (s *InProcessStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	return nil
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

func cloneMessage(m models.Message) models.Message {
	clone := m
	clone.Metadata = cloneMetadata(m.Metadata)
	return clone
}

var _ Router = (*InProcessStore)(nil)

// BackendUnavailableError wraps a backend-level failure as a
// BackendUnavailable-kind error, for stores where failure is possible
// (e.g. PostgresStore).
func BackendUnavailableError(cause error) *toolkit.Error {
	return toolkit.NewError(toolkit.BackendUnavailable, "memory backend unavailable").WithCause(cause)
}

// Package memory implements the memory router: a session-scoped ordered
// message log with token-budget truncation applied at read time.
package memory

import (
	"context"

	"github.com/nexora-ai/agentcore/pkg/models"
)

// Router is the session-history capability consumed by the react engine
// and background agents.
type Router interface {
	// StoreMessage appends a message to sessionID, assigning CreatedAt and
	// Seq. Fails only on backend error.
	StoreMessage(ctx context.Context, sessionID string, role models.Role, content string, metadata map[string]any) error

	// GetMessages returns a session's messages in insertion order,
	// optionally filtered by metadata.agent_name, with the session's
	// token-budget truncation policy applied.
	GetMessages(ctx context.Context, sessionID string, agentName string) ([]models.Message, error)

	// Clear removes all messages for a session.
	Clear(ctx context.Context, sessionID string) error

	// EnsureSession creates a session record with the given token ceiling
	// if one does not already exist; it is a no-op otherwise.
	EnsureSession(ctx context.Context, sessionID string, maxContextTokens int) error
}

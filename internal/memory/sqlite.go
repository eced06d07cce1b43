package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the "sqlite" driver used by sql.Open below.
	_ "modernc.org/sqlite"

	"github.com/google/uuid"
	"github.com/nexora-ai/agentcore/pkg/models"
)

// SQLiteStore is an embedded durable Router backend. It keeps the same
// two-table layout as PostgresStore but needs no server: a file path (or
// ":memory:") is the whole connection story, which makes it the default
// durable choice for single-binary deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates, if needed) the database at path.
// Callers are responsible for running Migrate once before first use.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, BackendUnavailableError(err)
	}
	// The sqlite driver serializes writes per connection; a single
	// connection keeps appends ordered the same way the in-process
	// store's mutex does.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Migrate creates the sessions and messages tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS agentcore_sessions (
	id TEXT PRIMARY KEY,
	max_context_tokens INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS agentcore_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	session_id TEXT NOT NULL REFERENCES agentcore_sessions(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS agentcore_messages_session_seq ON agentcore_messages(session_id, seq);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureSession(ctx context.Context, sessionID string, maxContextTokens int) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO agentcore_sessions (id, max_context_tokens, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`, sessionID, maxContextTokens, now, now)
	if err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

func (s *SQLiteStore) StoreMessage(ctx context.Context, sessionID string, role models.Role, content string, metadata map[string]any) error {
	if err := s.EnsureSession(ctx, sessionID, 0); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("memory: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO agentcore_messages (id, session_id, role, content, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), sessionID, string(role), content, string(metaJSON), time.Now())
	if err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, agentName string) ([]models.Message, error) {
	var maxTokens int
	err := s.db.QueryRowContext(ctx, `SELECT max_context_tokens FROM agentcore_sessions WHERE id = ?`, sessionID).Scan(&maxTokens)
	if err != nil && err != sql.ErrNoRows {
		return nil, BackendUnavailableError(err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, seq, role, content, metadata, created_at
FROM agentcore_messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, BackendUnavailableError(err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m        models.Message
			role     string
			metaJSON string
		)
		if err := rows.Scan(&m.ID, &m.Seq, &role, &m.Content, &metaJSON, &m.CreatedAt); err != nil {
			return nil, BackendUnavailableError(err)
		}
		m.SessionID = sessionID
		m.Role = models.Role(role)
		if metaJSON != "" && metaJSON != "null" {
			_ = json.Unmarshal([]byte(metaJSON), &m.Metadata)
		}
		if agentName != "" {
			if name, _ := m.Metadata["agent_name"].(string); name != agentName {
				continue
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, BackendUnavailableError(err)
	}
	return truncateToBudget(out, maxTokens), nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agentcore_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

var _ Router = (*SQLiteStore)(nil)

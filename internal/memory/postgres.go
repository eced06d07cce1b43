package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the "postgres" driver used by sql.Open below.
	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/nexora-ai/agentcore/pkg/models"
)

// PostgresStore is a durable Router backend over a Postgres database.
// The schema is a single append-only table plus a session table carrying
// the token-budget ceiling.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool against dsn. Callers are
// responsible for running Migrate once before first use.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, BackendUnavailableError(err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates the sessions and messages tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS agentcore_sessions (
	id TEXT PRIMARY KEY,
	max_context_tokens INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS agentcore_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES agentcore_sessions(id) ON DELETE CASCADE,
	seq BIGSERIAL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS agentcore_messages_session_seq ON agentcore_messages(session_id, seq);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

func (s *PostgresStore) EnsureSession(ctx context.Context, sessionID string, maxContextTokens int) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO agentcore_sessions (id, max_context_tokens, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (id) DO NOTHING`, sessionID, maxContextTokens, now)
	if err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

func (s *PostgresStore) StoreMessage(ctx context.Context, sessionID string, role models.Role, content string, metadata map[string]any) error {
	if err := s.EnsureSession(ctx, sessionID, 0); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("memory: marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO agentcore_messages (id, session_id, role, content, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), sessionID, string(role), content, metaJSON, time.Now())
	if err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

func (s *PostgresStore) GetMessages(ctx context.Context, sessionID string, agentName string) ([]models.Message, error) {
	var maxTokens int
	err := s.db.QueryRowContext(ctx, `SELECT max_context_tokens FROM agentcore_sessions WHERE id = $1`, sessionID).Scan(&maxTokens)
	if err != nil && err != sql.ErrNoRows {
		return nil, BackendUnavailableError(err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, seq, role, content, metadata, created_at
FROM agentcore_messages WHERE session_id = $1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, BackendUnavailableError(err)
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var (
			m        models.Message
			role     string
			metaJSON []byte
		)
		if err := rows.Scan(&m.ID, &m.Seq, &role, &m.Content, &metaJSON, &m.CreatedAt); err != nil {
			return nil, BackendUnavailableError(err)
		}
		m.SessionID = sessionID
		m.Role = models.Role(role)
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &m.Metadata)
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

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM agentcore_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return BackendUnavailableError(err)
	}
	return nil
}

var _ Router = (*PostgresStore)(nil)

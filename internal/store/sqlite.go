// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session and command persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			run_id          TEXT NOT NULL,
			agent_id        INTEGER NOT NULL,
			ip              TEXT NOT NULL,
			port            INTEGER NOT NULL,
			connected_at    TEXT NOT NULL,
			disconnected_at TEXT,
			end_reason      TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_connected ON sessions(connected_at DESC);
		CREATE INDEX IF NOT EXISTS idx_sessions_ip ON sessions(ip);

		CREATE TABLE IF NOT EXISTS commands (
			id             TEXT PRIMARY KEY,
			run_id         TEXT NOT NULL,
			agent_id       INTEGER NOT NULL,
			agent_ip       TEXT NOT NULL,
			command        TEXT NOT NULL,
			response_bytes INTEGER NOT NULL DEFAULT 0,
			error          TEXT,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_commands_ip_created ON commands(agent_ip, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_commands_created ON commands(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// RecordSession inserts a session. An empty ID is filled with a new uuid.
func (s *SQLiteStore) RecordSession(ctx context.Context, session *Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.ConnectedAt.IsZero() {
		session.ConnectedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sessions (id, run_id, agent_id, ip, port, connected_at, disconnected_at, end_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.RunID,
		session.AgentID,
		session.IP,
		session.Port,
		formatTime(session.ConnectedAt),
		nullTime(session.DisconnectedAt),
		nullString(session.EndReason),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// EndSession marks a session as disconnected. Ending an already ended
// session keeps the first end time.
func (s *SQLiteStore) EndSession(ctx context.Context, id string, at time.Time, reason string) error {
	query := `
		UPDATE sessions
		SET disconnected_at = COALESCE(disconnected_at, ?),
		    end_reason = COALESCE(end_reason, ?)
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, formatTime(at), nullString(reason), id)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns the most recent sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	query := `
		SELECT id, run_id, agent_id, ip, port, connected_at, disconnected_at, end_reason
		FROM sessions
		ORDER BY connected_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		var connectedAtStr string
		var disconnectedAt, endReason sql.NullString

		if err := rows.Scan(
			&session.ID,
			&session.RunID,
			&session.AgentID,
			&session.IP,
			&session.Port,
			&connectedAtStr,
			&disconnectedAt,
			&endReason,
		); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}

		session.ConnectedAt, err = time.Parse(time.RFC3339Nano, connectedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing connected_at: %w", err)
		}
		if disconnectedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, disconnectedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing disconnected_at: %w", err)
			}
			session.DisconnectedAt = &t
		}
		session.EndReason = endReason.String

		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}

	return sessions, nil
}

// RecordCommand inserts a command record. An empty ID is filled with a new uuid.
func (s *SQLiteStore) RecordCommand(ctx context.Context, record *CommandRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO commands (id, run_id, agent_id, agent_ip, command, response_bytes, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.RunID,
		record.AgentID,
		record.AgentIP,
		record.Command,
		record.ResponseBytes,
		nullString(record.Error),
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// ListCommands returns the most recent commands first. An empty agentIP
// lists commands for every agent.
func (s *SQLiteStore) ListCommands(ctx context.Context, agentIP string, limit int) ([]*CommandRecord, error) {
	query := `
		SELECT id, run_id, agent_id, agent_ip, command, response_bytes, error, created_at
		FROM commands
		WHERE (? = '' OR agent_ip = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, agentIP, agentIP, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var records []*CommandRecord
	for rows.Next() {
		var record CommandRecord
		var errorStr sql.NullString
		var createdAtStr string

		if err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.AgentID,
			&record.AgentIP,
			&record.Command,
			&record.ResponseBytes,
			&errorStr,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning command row: %w", err)
		}

		record.Error = errorStr.String
		record.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command rows: %w", err)
	}

	return records, nil
}

// formatTime renders t in a form that sorts lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// nullString converts empty strings to NULL for optional columns
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

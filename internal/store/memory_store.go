// ABOUTME: In-memory Store implementation for tests and ledger-less runs
// ABOUTME: Mirrors SQLiteStore ordering and error behaviour without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by session ID
	commands []*CommandRecord    // in insertion order
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// RecordSession stores a copy of session.
func (m *MemoryStore) RecordSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.ConnectedAt.IsZero() {
		session.ConnectedAt = time.Now().UTC()
	}

	// Make a copy to avoid external modification
	s := *session
	m.sessions[s.ID] = &s
	return nil
}

// EndSession marks a session as disconnected.
func (m *MemoryStore) EndSession(ctx context.Context, id string, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.DisconnectedAt == nil {
		end := at.UTC()
		s.DisconnectedAt = &end
	}
	if s.EndReason == "" {
		s.EndReason = reason
	}
	return nil
}

// ListSessions returns copies of the most recent sessions first.
func (m *MemoryStore) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		sessions = append(sessions, &cp)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].ConnectedAt.After(sessions[j].ConnectedAt)
	})

	if limit = clampLimit(limit); len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// RecordCommand stores a copy of record.
func (m *MemoryStore) RecordCommand(ctx context.Context, record *CommandRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	r := *record
	m.commands = append(m.commands, &r)
	return nil
}

// ListCommands returns copies of the most recent commands first,
// optionally filtered by agent IP.
func (m *MemoryStore) ListCommands(ctx context.Context, agentIP string, limit int) ([]*CommandRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = clampLimit(limit)
	var records []*CommandRecord
	for i := len(m.commands) - 1; i >= 0 && len(records) < limit; i-- {
		r := m.commands[i]
		if agentIP != "" && r.AgentIP != agentIP {
			continue
		}
		cp := *r
		records = append(records, &cp)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

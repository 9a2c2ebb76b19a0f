// ABOUTME: Store interface and data types for the tether session ledger
// ABOUTME: Defines Session and CommandRecord and the operations on them

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Session is one agent connection.
type Session struct {
	ID             string
	RunID          string // server session ID used in the handshake
	AgentID        int
	IP             string
	Port           int
	ConnectedAt    time.Time
	DisconnectedAt *time.Time
	EndReason      string
}

// Open reports whether the session has not been ended.
func (s *Session) Open() bool {
	return s.DisconnectedAt == nil
}

// CommandRecord is one command sent to an agent.
type CommandRecord struct {
	ID            string
	RunID         string
	AgentID       int
	AgentIP       string
	Command       string
	ResponseBytes int
	Error         string
	CreatedAt     time.Time
}

// Store defines the ledger operations.
type Store interface {
	// Sessions
	RecordSession(ctx context.Context, session *Session) error
	EndSession(ctx context.Context, id string, at time.Time, reason string) error
	ListSessions(ctx context.Context, limit int) ([]*Session, error)

	// Commands
	RecordCommand(ctx context.Context, record *CommandRecord) error
	ListCommands(ctx context.Context, agentIP string, limit int) ([]*CommandRecord, error)

	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// ABOUTME: Registry of connected agents with selection and broadcast support.
// ABOUTME: Central coordinator for agent sessions, shared by listener and operator.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/tether/internal/events"
)

// ErrNoSelection indicates an operation needed a selected agent and none is.
var ErrNoSelection = errors.New("no agent selected")

// Manager coordinates all connected agents.
type Manager struct {
	mu      sync.RWMutex
	agents  map[string]*Connection // by IP
	order   []string               // IPs in registration order
	current *Connection
	nextID  int

	sessionID string
	events    events.Publisher
	logger    *slog.Logger
}

// NewManager creates a Manager. An empty sessionID generates a fresh one.
// A nil publisher discards events.
func NewManager(sessionID string, publisher events.Publisher, logger *slog.Logger) *Manager {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		agents:    make(map[string]*Connection),
		sessionID: sessionID,
		events:    publisher,
		logger:    logger.With("component", "agents"),
	}
}

// SessionID returns the handshake token fixed for this Manager's lifetime.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Add registers a handshaken connection and assigns its ID. If an agent with
// the same IP is already registered it is replaced: the old connection is
// returned for the caller to close, and the selection is cleared if it
// pointed at it.
func (m *Manager) Add(conn *Connection) (replaced *Connection) {
	m.mu.Lock()
	if old, exists := m.agents[conn.IP]; exists {
		m.removeLocked(old)
		replaced = old
	}

	conn.ID = m.nextID
	m.nextID++
	m.agents[conn.IP] = conn
	m.order = append(m.order, conn.IP)
	total := len(m.agents)
	m.mu.Unlock()

	if replaced != nil {
		m.logger.Warn("agent replaced by new connection",
			"agent_ip", conn.IP,
			"old_id", replaced.ID,
			"new_id", conn.ID,
		)
		m.events.Publish(events.Event{Kind: events.AgentReplaced, AgentID: replaced.ID, IP: replaced.IP, Port: replaced.Port})
	}

	m.logger.Info("=== AGENT CONNECTED ===",
		"agent_id", conn.ID,
		"agent_ip", conn.IP,
		"agent_port", conn.Port,
		"total_agents", total,
	)
	m.events.Publish(events.Event{Kind: events.AgentConnected, AgentID: conn.ID, IP: conn.IP, Port: conn.Port})
	return replaced
}

// Get looks up a connection without changing the selection.
func (m *Manager) Get(identifier string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(identifier)
}

// Select makes the identified agent current. On failure the selection is
// left unchanged.
func (m *Manager) Select(identifier string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, err := m.resolveLocked(identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, identifier)
	}
	m.current = conn
	return conn, nil
}

// ClearSelection deselects the current agent.
func (m *Manager) ClearSelection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// Current returns the selected connection, or nil.
func (m *Manager) Current() *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Remove unregisters the identified agent without closing it.
func (m *Manager) Remove(identifier string) (*Connection, error) {
	m.mu.Lock()
	conn, err := m.resolveLocked(identifier)
	if err == nil {
		m.removeLocked(conn)
	}
	m.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, identifier)
	}
	m.logRemoved(conn, nil)
	return conn, nil
}

// RemoveConnection unregisters conn if it is still the registered entry for
// its IP. Returns false if it was already gone or replaced.
func (m *Manager) RemoveConnection(conn *Connection) bool {
	m.mu.Lock()
	registered, ok := m.agents[conn.IP]
	removed := ok && registered == conn
	if removed {
		m.removeLocked(conn)
	}
	m.mu.Unlock()

	if removed {
		m.logRemoved(conn, nil)
	}
	return removed
}

// Disconnect removes conn and closes it with a disconnect directive.
func (m *Manager) Disconnect(conn *Connection) {
	m.RemoveConnection(conn)
	conn.Close()
}

// List returns the registered connections in registration order.
func (m *Manager) List() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.order))
	for _, ip := range m.order {
		conns = append(conns, m.agents[ip])
	}
	return conns
}

// Len returns the number of registered agents.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// SendToCurrent exchanges cmd with the selected agent. If the exchange breaks
// the connection, it is removed, the selection cleared, and the error
// returned for the caller to report.
func (m *Manager) SendToCurrent(ctx context.Context, cmd string) (string, error) {
	conn := m.Current()
	if conn == nil {
		return "", ErrNoSelection
	}
	return m.Send(ctx, conn, cmd)
}

// Send exchanges cmd with conn and unregisters conn if the exchange killed it.
func (m *Manager) Send(ctx context.Context, conn *Connection, cmd string) (string, error) {
	resp, err := conn.SendCommand(ctx, cmd)
	if err != nil {
		if conn.Status() == StatusClosed {
			m.dropped(conn, err)
		}
		return "", err
	}
	return resp, nil
}

// Reply is one agent's answer to a broadcast.
type Reply struct {
	AgentID int
	IP      string
	Output  string
}

// Failure is one agent that could not be reached during a broadcast.
type Failure struct {
	AgentID int
	IP      string
	Err     error
}

// BroadcastResult collects the outcome of a broadcast.
type BroadcastResult struct {
	Replies  []Reply
	Failures []Failure
}

// Output concatenates the successful responses in order.
func (r *BroadcastResult) Output() string {
	var b strings.Builder
	for _, reply := range r.Replies {
		b.WriteString(reply.Output)
	}
	return b.String()
}

// Broadcast sends cmd to every registered agent in order. A failing agent is
// removed and reported; the rest still receive the command.
func (m *Manager) Broadcast(ctx context.Context, cmd string) *BroadcastResult {
	result := &BroadcastResult{}
	for _, conn := range m.List() {
		resp, err := m.Send(ctx, conn, cmd)
		if err != nil {
			result.Failures = append(result.Failures, Failure{AgentID: conn.ID, IP: conn.IP, Err: err})
			continue
		}
		result.Replies = append(result.Replies, Reply{AgentID: conn.ID, IP: conn.IP, Output: resp})
	}

	m.logger.Debug("broadcast complete",
		"command", cmd,
		"replies", len(result.Replies),
		"failures", len(result.Failures),
	)
	return result
}

// CloseAll disconnects and removes every agent and clears the selection.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.order))
	for _, ip := range m.order {
		conns = append(conns, m.agents[ip])
	}
	m.agents = make(map[string]*Connection)
	m.order = nil
	m.current = nil
	m.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
		m.logRemoved(conn, nil)
	}
	if len(conns) > 0 {
		m.logger.Info("closed all agent connections", "count", len(conns))
	}
}

// dropped unregisters a connection whose exchange failed.
func (m *Manager) dropped(conn *Connection, cause error) {
	m.mu.Lock()
	registered, ok := m.agents[conn.IP]
	removed := ok && registered == conn
	if removed {
		m.removeLocked(conn)
	}
	m.mu.Unlock()

	if removed {
		m.logRemoved(conn, cause)
	}
}

// removeLocked deletes conn and clears the selection if it pointed at it.
// Must be called with m.mu held for writing.
func (m *Manager) removeLocked(conn *Connection) {
	delete(m.agents, conn.IP)
	m.order = slices.DeleteFunc(m.order, func(ip string) bool { return ip == conn.IP })
	if m.current == conn {
		m.current = nil
	}
}

func (m *Manager) logRemoved(conn *Connection, cause error) {
	attrs := []any{
		"agent_id", conn.ID,
		"agent_ip", conn.IP,
		"total_agents", m.Len(),
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	m.logger.Info("=== AGENT DISCONNECTED ===", attrs...)
	m.events.Publish(events.Event{Kind: events.AgentDisconnected, AgentID: conn.ID, IP: conn.IP, Port: conn.Port, Err: cause})
}

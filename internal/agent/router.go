// ABOUTME: Resolves operator-supplied identifiers to registered connections.
// ABOUTME: Accepts an agent IP or the stable numeric ID shown by `list`.

package agent

import (
	"errors"
	"strconv"
	"strings"
)

// ErrAgentNotFound indicates no registered agent matches the identifier.
var ErrAgentNotFound = errors.New("agent not found")

// NoneIdentifier clears the selection when passed to `use`.
const NoneIdentifier = "none"

// resolveLocked finds a connection by IP or stable ID. Must be called with
// m.mu held.
func (m *Manager) resolveLocked(identifier string) (*Connection, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrAgentNotFound
	}

	if conn, ok := m.agents[identifier]; ok {
		return conn, nil
	}

	id, err := strconv.Atoi(strings.TrimPrefix(identifier, "#"))
	if err != nil {
		return nil, ErrAgentNotFound
	}
	for _, ip := range m.order {
		if conn := m.agents[ip]; conn.ID == id {
			return conn, nil
		}
	}
	return nil, ErrAgentNotFound
}

// Package agent manages the sessions of connected agents.
//
// # Connection
//
// Connection is one agent's session: a wire.Channel plus the address the
// server observed and the last known working directory.
//
//	resp, err := conn.SendCommand(ctx, "uname -a")
//
// SendCommand is a strict request/response exchange. Exchanges on one
// connection are serialized, so a file transfer and a shell command can never
// interleave on the same socket. If an exchange fails after the request was
// written, the pairing of requests and responses is lost and the connection
// is dropped.
//
// # Manager
//
// Manager is the registry of live connections:
//
//   - Add(conn): register a handshaken connection (one per IP, newest wins)
//   - Select(id): pick the current agent by IP or numeric ID
//   - Remove(id): forget an agent, clearing the selection if needed
//   - SendToCurrent(ctx, cmd): exchange with the selected agent
//   - Broadcast(ctx, cmd): exchange with every agent, isolating failures
//   - CloseAll(): disconnect everything on shutdown
//
// # Identifiers
//
// Every connection gets a numeric ID when it is registered: 0, 1, 2, ...
// IDs are never reused or shifted by removals. An identifier is either the
// agent's IP or that ID (see router.go).
//
// # Thread Safety
//
// Manager state is guarded by a single RWMutex; the selection is updated in
// the same critical section as the entry it points to. No network I/O happens
// while the lock is held.
package agent

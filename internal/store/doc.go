// Package store persists tether's session ledger.
//
// # Data Models
//
//   - Session: one agent connection, from handshake to disconnect
//   - CommandRecord: one command forwarded to an agent and the size of
//     its reply
//
// Sessions are keyed by a ledger ID (uuid) and carry the server run's
// session ID, so history spanning several runs and reboots stays
// distinguishable.
//
// # SQLite Configuration
//
// SQLiteStore uses modernc.org/sqlite (no cgo) in WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// The schema is created on open. Timestamps are stored as RFC 3339 text.
//
// # Testing
//
// Use NewMemoryStore() for unit tests:
//
//	ledger := store.NewMemoryStore()
//
// Use NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db")) for
// integration tests with real SQLite.
package store

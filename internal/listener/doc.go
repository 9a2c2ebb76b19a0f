// ABOUTME: Package listener accepts agent sockets and performs the handshake.
// ABOUTME: Accepted agents are handed to the agent.Manager; rejected ones are closed.

// Package listener runs the accept side of tether.
//
// A Worker binds the configured address (retrying a bounded number of
// times), then accepts sockets on a short poll deadline so it notices
// shutdown promptly. Every accepted socket is challenged on its own
// goroutine:
//
//	server -> agent   handshake <session id>
//	agent  -> server  True
//	server -> agent   set-ip <ip>
//	server -> agent   set-port <port>
//
// Only after the two set-* directives are answered is the connection added
// to the Manager, so the worker never exchanges on a registered connection.
// Any other reply, a timeout or a transport error rejects the socket.
package listener

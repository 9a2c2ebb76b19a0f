// Package wire implements the framed text protocol spoken with agents.
//
// # Framing
//
// Every message is UTF-8 text followed by a fixed sentinel:
//
//	<payload>~!_TERM_$~
//
// There is no length prefix. The receiver accumulates bytes until the
// sentinel appears and returns everything before it. Bytes that arrive after
// the sentinel are kept for the next Receive, so a frame is never split or
// merged with its neighbour.
//
// The sentinel is not escaped. Send refuses payloads that contain it
// (ErrSentinelInPayload) instead of writing a frame the peer would cut short.
//
// # Exchanges
//
// The protocol is strictly request/response: the server sends one frame and
// waits for exactly one frame back. Channel itself does not serialize
// callers; agent.Connection holds the exchange lock.
//
// # Directives
//
// directives.go lists the control vocabulary understood by agents
// (handshake, set-ip, getcwd, upload_data, ...). Anything else sent to an
// agent is treated by it as a shell command.
package wire

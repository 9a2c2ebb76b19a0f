// ABOUTME: Package command routes operator input to registered handlers.
// ABOUTME: Handlers return control signals that unwind nested interactive loops.

// Package command implements tether's dispatcher.
//
// A Registry holds Commands in registration order. A line is split into a
// lead token and the raw remainder; the first enabled Command listing the
// lead token as one of its invocations runs with the remainder. Lines no
// Command claims go to the Loop's Fallback.
//
// Commands return a Signal:
//
//	None      keep looping
//	Continue  keep looping, skip the rest of this iteration
//	Break     leave the current loop
//	Return(v) leave the current loop with value v
//
// A Command that runs a nested Loop passes the nested result outward by
// returning its own Signal, which is how a Return raised three loops deep
// reaches the top.
//
// Batch mode runs every line first and only then acts on the strongest
// signal seen (Return, then Break, then Continue).
package command

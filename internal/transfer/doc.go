// ABOUTME: Package transfer moves files between the operator and an agent.
// ABOUTME: Payloads travel as base64 frames; downloads are written on a background goroutine.

// Package transfer implements upload and download over an agent's framed
// channel.
//
// Upload is three exchanges:
//
//	upload_filepath <remote>  -> ack
//	upload_data               -> ack
//	<base64 payload>          -> agent's result text
//
// Download is one: get <remote> answered by a base64 frame. Anything that
// does not decode is the agent's error message.
//
// Every exchange goes through the Target's SendCommand, which holds the
// connection's exchange lock, so nothing else reaches the agent mid-transfer.
package transfer

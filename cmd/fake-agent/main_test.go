// ABOUTME: Tests for the fake agent directive handling
// ABOUTME: Exercises handshake, in-memory upload/get and lifecycle directives

package main

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/tether/internal/wire"
)

func TestFakeAgent_Handshake(t *testing.T) {
	a := newFakeAgent("abc", "/")

	reply, keep := a.handle(wire.Handshake("abc"))
	assert.Equal(t, wire.HandshakeAccepted, reply)
	assert.True(t, keep)

	_, keep = a.handle(wire.Handshake("other"))
	assert.False(t, keep)
}

func TestFakeAgent_UploadThenGet(t *testing.T) {
	a := newFakeAgent("", "/tmp")

	a.handle(wire.UploadFilepath("/tmp/x"))
	a.handle(wire.DirectiveUploadData)
	reply, _ := a.handle(base64.StdEncoding.EncodeToString([]byte("hi")))
	assert.Equal(t, "Wrote 2 bytes to /tmp/x", reply)

	reply, _ = a.handle(wire.Get("/tmp/x"))
	assert.Equal(t, "aGk=", reply)

	reply, _ = a.handle(wire.Get("/tmp/missing"))
	assert.Equal(t, "File not found.", reply)
}

func TestFakeAgent_Directives(t *testing.T) {
	a := newFakeAgent("", "/srv")

	a.handle(wire.SetIP("10.0.0.9"))
	a.handle(wire.SetPort(4444))
	reply, _ := a.handle("whoami")
	assert.Equal(t, "echo (10.0.0.9:4444): whoami\n", reply)

	a.handle("cd /var")
	reply, _ = a.handle(wire.DirectiveGetCwd)
	assert.Equal(t, "/var", reply)

	reply, _ = a.handle(wire.DirectiveServerShutdown)
	assert.Equal(t, wire.ShutdownConfirmed, reply)

	_, keep := a.handle("reboot host= port=1 recv_size=2 session_id=s")
	assert.False(t, keep)
	_, keep = a.handle(wire.DirectiveDisconnect)
	assert.False(t, keep)
}

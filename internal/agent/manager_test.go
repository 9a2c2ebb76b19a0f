// ABOUTME: Tests for the agent Manager registry.
// ABOUTME: Validates overwrite policy, selection rules, broadcast isolation and shutdown.

package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tether/internal/events"
	"github.com/2389/tether/internal/wire"
)

func TestManager_SessionID(t *testing.T) {
	m := NewManager("", nil, nil)
	assert.NotEmpty(t, m.SessionID())

	m = NewManager("fixed-token", nil, nil)
	assert.Equal(t, "fixed-token", m.SessionID())
}

func TestManager_AddAssignsStableIDs(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, _ := newFakeAgent(t, "10.0.0.1", 1, echo)
	b, _ := newFakeAgent(t, "10.0.0.2", 2, echo)
	c, _ := newFakeAgent(t, "10.0.0.3", 3, echo)

	m.Add(a)
	m.Add(b)
	m.Add(c)
	assert.Equal(t, []int{0, 1, 2}, []int{a.ID, b.ID, c.ID})

	_, err := m.Remove("1")
	require.NoError(t, err)

	got, err := m.Select("2")
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, []*Connection{a, c}, m.List())
}

func TestManager_DuplicateIPOverwrites(t *testing.T) {
	m := NewManager("s", nil, nil)
	first, _ := newFakeAgent(t, "1.2.3.4", 1111, echo)
	second, _ := newFakeAgent(t, "1.2.3.4", 2222, echo)

	assert.Nil(t, m.Add(first))
	_, err := m.Select("1.2.3.4")
	require.NoError(t, err)

	replaced := m.Add(second)
	assert.Same(t, first, replaced)
	assert.Equal(t, 1, m.Len())
	assert.Nil(t, m.Current(), "selection of the replaced entry must be cleared")

	got, err := m.Get("1.2.3.4")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 2222, got.Port)

	// The stale instance can no longer remove its replacement.
	assert.False(t, m.RemoveConnection(first))
	assert.Equal(t, 1, m.Len())
}

func TestManager_SelectByIPAndID(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, _ := newFakeAgent(t, "10.0.0.1", 1, echo)
	b, _ := newFakeAgent(t, "10.0.0.2", 2, echo)
	m.Add(a)
	m.Add(b)

	got, err := m.Select("10.0.0.2")
	require.NoError(t, err)
	assert.Same(t, b, got)
	assert.Same(t, b, m.Current())

	got, err = m.Select("0")
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = m.Select("#1")
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestManager_SelectUnknownKeepsSelection(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, _ := newFakeAgent(t, "10.0.0.1", 1, echo)
	m.Add(a)
	_, err := m.Select("0")
	require.NoError(t, err)

	for _, ident := range []string{"9.9.9.9", "7", "", "abc"} {
		_, err := m.Select(ident)
		assert.ErrorIs(t, err, ErrAgentNotFound, ident)
		assert.Same(t, a, m.Current(), ident)
	}
}

func TestManager_RemoveClearsSelection(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, _ := newFakeAgent(t, "1.2.3.4", 1, echo)
	m.Add(a)

	_, err := m.Select("1.2.3.4")
	require.NoError(t, err)

	removed, err := m.Remove("1.2.3.4")
	require.NoError(t, err)
	assert.Same(t, a, removed)
	assert.Nil(t, m.Current())
	assert.Zero(t, m.Len())

	_, err = m.Remove("1.2.3.4")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestManager_RemoveOtherKeepsSelection(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, _ := newFakeAgent(t, "10.0.0.1", 1, echo)
	b, _ := newFakeAgent(t, "10.0.0.2", 2, echo)
	m.Add(a)
	m.Add(b)
	_, err := m.Select("10.0.0.1")
	require.NoError(t, err)

	assert.True(t, m.RemoveConnection(b))
	assert.Same(t, a, m.Current())
}

func TestManager_SendToCurrent(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, fa := newFakeAgent(t, "10.0.0.1", 1, echo)
	m.Add(a)

	_, err := m.SendToCurrent(t.Context(), "id")
	assert.ErrorIs(t, err, ErrNoSelection)

	_, err = m.Select("0")
	require.NoError(t, err)

	resp, err := m.SendToCurrent(t.Context(), "stat /tmp")
	require.NoError(t, err)
	assert.Equal(t, "echo:stat /tmp", resp)
	assert.Equal(t, []string{"stat /tmp"}, fa.commands())
}

func TestManager_SendToCurrentTransportFailure(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()
	evCh, _ := bus.Subscribe(t.Context())

	m := NewManager("s", bus, nil)
	a, _ := newFakeAgent(t, "10.0.0.1", 1, func(string) (string, bool) { return "", false })
	m.Add(a)
	_, err := m.Select("0")
	require.NoError(t, err)

	resp, err := m.SendToCurrent(t.Context(), "ls")
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrTransport)
	assert.Empty(t, resp)
	assert.Nil(t, m.Current())
	assert.Zero(t, m.Len())

	kinds := drainKinds(evCh, 2)
	assert.Equal(t, []events.Kind{events.AgentConnected, events.AgentDisconnected}, kinds)
}

func TestManager_BroadcastIsolatesFailures(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, _ := newFakeAgent(t, "10.0.0.1", 1, func(string) (string, bool) { return "first\n", true })
	b, _ := newFakeAgent(t, "10.0.0.2", 2, func(string) (string, bool) { return "", false })
	c, _ := newFakeAgent(t, "10.0.0.3", 3, func(string) (string, bool) { return "third\n", true })
	m.Add(a)
	m.Add(b)
	m.Add(c)
	_, err := m.Select("10.0.0.2")
	require.NoError(t, err)

	result := m.Broadcast(t.Context(), "hostname")

	assert.Equal(t, "first\nthird\n", result.Output())
	require.Len(t, result.Replies, 2)
	assert.Equal(t, "10.0.0.1", result.Replies[0].IP)
	assert.Equal(t, "10.0.0.3", result.Replies[1].IP)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "10.0.0.2", result.Failures[0].IP)
	assert.Equal(t, 1, result.Failures[0].AgentID)
	assert.True(t, errors.Is(result.Failures[0].Err, wire.ErrTransport))

	assert.Equal(t, 2, m.Len())
	assert.Nil(t, m.Current())
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, fa := newFakeAgent(t, "10.0.0.1", 1, echo)
	b, fb := newFakeAgent(t, "10.0.0.2", 2, echo)
	m.Add(a)
	m.Add(b)
	_, err := m.Select("0")
	require.NoError(t, err)

	m.CloseAll()

	assert.Zero(t, m.Len())
	assert.Nil(t, m.Current())
	<-fa.done
	<-fb.done
	assert.Equal(t, []string{wire.DirectiveDisconnect}, fa.commands())
	assert.Equal(t, []string{wire.DirectiveDisconnect}, fb.commands())
	assert.Equal(t, StatusClosed, a.Status())
}

func TestManager_Disconnect(t *testing.T) {
	m := NewManager("s", nil, nil)
	a, fa := newFakeAgent(t, "10.0.0.1", 1, echo)
	m.Add(a)
	_, err := m.Select("0")
	require.NoError(t, err)

	m.Disconnect(a)

	<-fa.done
	assert.Zero(t, m.Len())
	assert.Nil(t, m.Current())
	assert.Equal(t, []string{wire.DirectiveDisconnect}, fa.commands())
}

func TestManager_SendCancelledDropsConnection(t *testing.T) {
	m := NewManager("s", nil, nil)
	block := make(chan struct{})
	defer close(block)
	a, _ := newFakeAgent(t, "10.0.0.1", 1, func(string) (string, bool) {
		<-block
		return "late", true
	})
	m.Add(a)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Send(ctx, a, "sleep 100")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, m.Len(), "a half-finished exchange must not stay registered")
}

func drainKinds(ch <-chan events.Event, n int) []events.Kind {
	var kinds []events.Kind
	for len(kinds) < n {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			return kinds
		}
	}
	return kinds
}

// ABOUTME: Tests for the session event bus
// ABOUTME: Covers fan-out, slow subscribers, context cleanup and close

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestBus_FanOut(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context())
	ch2, _ := b.Subscribe(t.Context())

	b.Publish(Event{Kind: AgentConnected, AgentID: 3, IP: "10.0.0.3", Port: 5555})

	for _, ch := range []<-chan Event{ch1, ch2} {
		ev := receive(t, ch)
		assert.Equal(t, AgentConnected, ev.Kind)
		assert.Equal(t, "10.0.0.3", ev.IP)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(Event{Kind: AgentConnected, AgentID: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestBus_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := b.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestBus_CloseClosesSubscribers(t *testing.T) {
	b := NewBus(nil)
	ch, _ := b.Subscribe(t.Context())
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing and subscribing after close are harmless.
	b.Publish(Event{Kind: AgentDisconnected})
	late, _ := b.Subscribe(t.Context())
	_, ok = <-late
	assert.False(t, ok)
}

func TestEvent_String(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Kind: AgentConnected, AgentID: 0, IP: "1.2.3.4", Port: 50000}, "[0] 1.2.3.4 (50000) connected"},
		{Event{Kind: AgentDisconnected, AgentID: 2, IP: "1.2.3.4"}, "[2] 1.2.3.4 disconnected"},
		{Event{Kind: AgentDisconnected, AgentID: 2, IP: "1.2.3.4", Err: errors.New("reset")}, "[2] 1.2.3.4 disconnected: reset"},
		{Event{Kind: HandshakeRejected, IP: "5.6.7.8", Port: 1, Detail: `reply "nope"`}, `5.6.7.8 (1) rejected: reply "nope"`},
		{Event{Kind: TransferCompleted, IP: "1.2.3.4", Detail: "saved x"}, "1.2.3.4: saved x"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.ev.String())
	}
}

type collect []Event

func (c *collect) Publish(e Event) { *c = append(*c, e) }

func TestTee_StampsOnceAndFansOut(t *testing.T) {
	var a, b collect
	p := Tee(&a, nil, &b)

	p.Publish(Event{Kind: AgentConnected, AgentID: 1})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.False(t, a[0].Time.IsZero())
	assert.Equal(t, a[0].Time, b[0].Time)
}

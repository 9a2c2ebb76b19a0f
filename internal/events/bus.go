// ABOUTME: In-memory fan-out bus for agent session and transfer events.
// ABOUTME: Non-blocking publish; subscriptions end with their context.

package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Kind identifies what happened.
type Kind string

const (
	AgentConnected    Kind = "agent_connected"
	AgentDisconnected Kind = "agent_disconnected"
	AgentReplaced     Kind = "agent_replaced"
	HandshakeRejected Kind = "handshake_rejected"
	TransferCompleted Kind = "transfer_completed"
	TransferFailed    Kind = "transfer_failed"
)

// Event is a single notice about an agent session.
type Event struct {
	Kind    Kind
	AgentID int
	IP      string
	Port    int
	Detail  string
	Err     error
	Time    time.Time
}

// String renders the event the way the console prints it.
func (e Event) String() string {
	switch e.Kind {
	case AgentConnected:
		return fmt.Sprintf("[%d] %s (%d) connected", e.AgentID, e.IP, e.Port)
	case AgentDisconnected:
		if e.Err != nil {
			return fmt.Sprintf("[%d] %s disconnected: %v", e.AgentID, e.IP, e.Err)
		}
		return fmt.Sprintf("[%d] %s disconnected", e.AgentID, e.IP)
	case AgentReplaced:
		return fmt.Sprintf("[%d] %s replaced by a new connection", e.AgentID, e.IP)
	case HandshakeRejected:
		return fmt.Sprintf("%s (%d) rejected: %s", e.IP, e.Port, e.Detail)
	case TransferCompleted:
		return fmt.Sprintf("%s: %s", e.IP, e.Detail)
	case TransferFailed:
		return fmt.Sprintf("%s: %s: %v", e.IP, e.Detail, e.Err)
	default:
		return fmt.Sprintf("%s %s %s", e.Kind, e.IP, e.Detail)
	}
}

// Publisher is the write side of a Bus.
type Publisher interface {
	Publish(Event)
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Tee returns a Publisher that stamps each event once and hands it to every
// publisher in order. Nil publishers are skipped.
func Tee(publishers ...Publisher) Publisher {
	return tee(publishers)
}

type tee []Publisher

func (t tee) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, p := range t {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// Bus provides in-memory pub/sub for session events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	closed      bool
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber and returns its channel and ID. The
// subscription is removed and the channel closed when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	context.AfterFunc(ctx, func() {
		b.Unsubscribe(subID)
	})

	return ch, subID
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"sub_id", id,
				"kind", ev.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes all subscriber channels. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}

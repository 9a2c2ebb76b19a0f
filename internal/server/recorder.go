// ABOUTME: Persists agent connect and disconnect events as ledger sessions
// ABOUTME: Fed from an unbounded queue so bursts never lose ledger rows

package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2389/tether/internal/events"
	"github.com/2389/tether/internal/store"
)

const (
	endReasonClosed   = "closed"
	endReasonReplaced = "replaced"
)

// recorder is an events.Publisher that queues session events and writes
// them to the ledger on its own goroutine. Publish never blocks and never
// drops; Close drains what is queued.
type recorder struct {
	ledger store.Store
	runID  string
	logger *slog.Logger

	mu     sync.Mutex
	queue  []events.Event
	closed bool
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	// open maps agent ID to ledger session ID. Only run touches it.
	open map[int]string
}

func newRecorder(ledger store.Store, runID string, logger *slog.Logger) *recorder {
	r := &recorder{
		ledger: ledger,
		runID:  runID,
		logger: logger.With("component", "recorder"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		open:   make(map[int]string),
	}
	go r.run()
	return r
}

func (r *recorder) Publish(e events.Event) {
	switch e.Kind {
	case events.AgentConnected, events.AgentDisconnected, events.AgentReplaced:
	default:
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn("session event after close", "kind", e.Kind, "agent_id", e.AgentID)
		return
	}
	r.queue = append(r.queue, e)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting events and waits until the queue is written.
func (r *recorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		select {
		case r.wake <- struct{}{}:
		default:
		}
	})
	<-r.done
}

func (r *recorder) run() {
	defer close(r.done)
	ctx := context.Background()

	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		closed := r.closed
		r.mu.Unlock()

		for _, e := range batch {
			r.handle(ctx, e)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-r.wake
	}
}

func (r *recorder) handle(ctx context.Context, e events.Event) {
	switch e.Kind {
	case events.AgentConnected:
		session := &store.Session{
			RunID:       r.runID,
			AgentID:     e.AgentID,
			IP:          e.IP,
			Port:        e.Port,
			ConnectedAt: e.Time,
		}
		if err := r.ledger.RecordSession(ctx, session); err != nil {
			r.logger.Warn("recording session failed", "agent_id", e.AgentID, "error", err)
			return
		}
		r.open[e.AgentID] = session.ID

	case events.AgentDisconnected:
		reason := endReasonClosed
		if e.Err != nil {
			reason = e.Err.Error()
		}
		r.end(ctx, e, reason)

	case events.AgentReplaced:
		r.end(ctx, e, endReasonReplaced)
	}
}

func (r *recorder) end(ctx context.Context, e events.Event, reason string) {
	id, ok := r.open[e.AgentID]
	if !ok {
		return
	}
	delete(r.open, e.AgentID)
	if err := r.ledger.EndSession(ctx, id, e.Time, reason); err != nil {
		r.logger.Warn("ending session failed", "agent_id", e.AgentID, "session_id", id, "error", err)
	}
}

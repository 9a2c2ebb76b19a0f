// ABOUTME: Accept loop with bind retry, bounded concurrent handshakes and shutdown.
// ABOUTME: Registers agents that answer the handshake challenge with "True".

package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/2389/tether/internal/agent"
	"github.com/2389/tether/internal/events"
	"github.com/2389/tether/internal/wire"
)

// ErrBindExhausted is returned when every bind attempt failed.
var ErrBindExhausted = errors.New("could not bind listener")

// ErrNotBound is returned by Serve when Bind has not succeeded.
var ErrNotBound = errors.New("listener not bound")

// Options configures a Worker.
type Options struct {
	Addr             string
	ListenBacklog    int
	BindRetry        int
	BindRetryDelay   time.Duration
	HandshakeTimeout time.Duration
	PollInterval     time.Duration

	// RecvSize is consulted for every accepted socket so runtime changes
	// apply to new connections. Nil uses wire.DefaultRecvSize.
	RecvSize func() int
}

func (o *Options) setDefaults() {
	if o.ListenBacklog < 1 {
		o.ListenBacklog = 1
	}
	if o.BindRetry < 1 {
		o.BindRetry = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
	if o.RecvSize == nil {
		o.RecvSize = func() int { return wire.DefaultRecvSize }
	}
}

// Worker accepts and handshakes agents for one Manager.
type Worker struct {
	opts    Options
	manager *agent.Manager
	events  events.Publisher
	logger  *slog.Logger

	mu sync.Mutex
	ln *net.TCPListener

	handshakes sync.WaitGroup
	slots      chan struct{}
}

// New creates a Worker. A nil publisher discards events.
func New(opts Options, manager *agent.Manager, publisher events.Publisher, logger *slog.Logger) *Worker {
	opts.setDefaults()
	if publisher == nil {
		publisher = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		opts:    opts,
		manager: manager,
		events:  publisher,
		logger:  logger.With("component", "listener"),
		slots:   make(chan struct{}, opts.ListenBacklog),
	}
}

// Bind listens on the configured address, retrying BindRetry times with
// BindRetryDelay between attempts.
func (w *Worker) Bind(ctx context.Context) error {
	var lc net.ListenConfig
	var lastErr error

	for attempt := 1; attempt <= w.opts.BindRetry; attempt++ {
		ln, err := lc.Listen(ctx, "tcp", w.opts.Addr)
		if err == nil {
			w.mu.Lock()
			w.ln = ln.(*net.TCPListener)
			w.mu.Unlock()
			w.logger.Info("listening for agents", "addr", ln.Addr().String(), "attempt", attempt)
			return nil
		}
		lastErr = err
		w.logger.Warn("bind failed",
			"addr", w.opts.Addr,
			"attempt", attempt,
			"max_attempts", w.opts.BindRetry,
			"error", err,
		)

		if attempt == w.opts.BindRetry {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("binding %s: %w", w.opts.Addr, ctx.Err())
		case <-time.After(w.opts.BindRetryDelay):
		}
	}

	return fmt.Errorf("%w %s after %d attempts: %w", ErrBindExhausted, w.opts.Addr, w.opts.BindRetry, lastErr)
}

// Addr returns the bound address, or nil before Bind succeeds.
func (w *Worker) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ln == nil {
		return nil
	}
	return w.ln.Addr()
}

// Run binds and serves until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Bind(ctx); err != nil {
		return err
	}
	return w.Serve(ctx)
}

// Serve accepts sockets until ctx is cancelled. On return the listener is
// closed, in-flight handshakes have finished and every registered agent has
// been closed.
func (w *Worker) Serve(ctx context.Context) error {
	w.mu.Lock()
	ln := w.ln
	w.mu.Unlock()
	if ln == nil {
		return ErrNotBound
	}

	defer w.shutdown(ln)

	for {
		if ctx.Err() != nil {
			return nil
		}

		// Hold a handshake slot before accepting so excess sockets queue in
		// the kernel backlog.
		select {
		case w.slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		nc, err := w.accept(ln)
		if err != nil {
			<-w.slots
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting: %w", err)
		}

		w.handshakes.Add(1)
		go func() {
			defer w.handshakes.Done()
			defer func() { <-w.slots }()
			w.handshake(ctx, nc)
		}()
	}
}

func (w *Worker) accept(ln *net.TCPListener) (net.Conn, error) {
	if err := ln.SetDeadline(time.Now().Add(w.opts.PollInterval)); err != nil {
		return nil, err
	}
	return ln.Accept()
}

func (w *Worker) shutdown(ln *net.TCPListener) {
	w.logger.Info("connections no longer being accepted")
	if err := ln.Close(); err != nil {
		w.logger.Debug("closing listener", "error", err)
	}
	w.handshakes.Wait()

	w.logger.Info("closing existing connections", "count", w.manager.Len())
	w.manager.CloseAll()
}

// handshake challenges one socket and registers it on success.
func (w *Worker) handshake(ctx context.Context, nc net.Conn) {
	conn := agent.NewConnection(nc, w.opts.RecvSize(), w.logger)
	logger := w.logger.With("agent_ip", conn.IP, "agent_port", conn.Port)

	hctx := ctx
	if w.opts.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, w.opts.HandshakeTimeout)
		defer cancel()
	}

	reply, err := conn.SendCommand(hctx, wire.Handshake(w.manager.SessionID()))
	if err != nil {
		w.reject(conn, logger, fmt.Sprintf("handshake failed: %v", err))
		return
	}
	if reply != wire.HandshakeAccepted {
		w.reject(conn, logger, fmt.Sprintf("handshake reply %q", reply))
		return
	}

	for _, directive := range []string{wire.SetIP(conn.IP), wire.SetPort(conn.Port)} {
		if _, err := conn.SendCommand(hctx, directive); err != nil {
			w.reject(conn, logger, fmt.Sprintf("%s failed: %v", directive, err))
			return
		}
	}

	// Shutdown may have started while we were exchanging.
	if ctx.Err() != nil {
		conn.Close()
		return
	}

	if replaced := w.manager.Add(conn); replaced != nil {
		replaced.Close()
	}
}

func (w *Worker) reject(conn *agent.Connection, logger *slog.Logger, reason string) {
	logger.Warn("handshake rejected", "reason", reason)
	conn.Drop()
	w.events.Publish(events.Event{
		Kind:   events.HandshakeRejected,
		IP:     conn.IP,
		Port:   conn.Port,
		Detail: reason,
	})
}

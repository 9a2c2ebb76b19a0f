// ABOUTME: Composes bus, manager, listener, writer, ledger and shell into one server
// ABOUTME: Run binds, serves agents and drives the operator loop until it ends

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/tether/internal/agent"
	"github.com/2389/tether/internal/command"
	"github.com/2389/tether/internal/config"
	"github.com/2389/tether/internal/console"
	"github.com/2389/tether/internal/events"
	"github.com/2389/tether/internal/listener"
	"github.com/2389/tether/internal/restart"
	"github.com/2389/tether/internal/shell"
	"github.com/2389/tether/internal/store"
	"github.com/2389/tether/internal/transfer"
)

// ErrRestart is returned by Run when the operator asked for a server reboot.
var ErrRestart = errors.New("server restart requested")

// Options configures a Server.
type Options struct {
	Config config.Config

	// SessionID is the handshake token. Empty generates a new one.
	SessionID string

	// Input supplies operator lines. Nil reads from In.
	Input command.LineReader
	In    io.Reader
	Out   io.Writer

	// Batch lines run before the interactive loop.
	Batch []string

	// Ledger overrides the store opened from Config.Database.Path.
	Ledger store.Store

	Logger *slog.Logger
}

// Server is one tether operator console.
type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	batch    []string
	bus      *events.Bus
	recorder *recorder
	manager  *agent.Manager
	settings *config.Settings
	listener *listener.Worker
	writer   *transfer.Writer
	ledger   store.Store
	console  *console.Console
	shell    *shell.Shell

	closeOnce sync.Once
	closeErr  error
}

// New builds a Server from opts. The listener is not bound until Run.
func New(opts Options) (*Server, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}

	ledger := opts.Ledger
	if ledger == nil && opts.Config.Database.Path != "" {
		sqlStore, err := store.NewSQLiteStore(opts.Config.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening session ledger: %w", err)
		}
		ledger = sqlStore
	}

	input := opts.Input
	if input == nil {
		if opts.In == nil {
			return nil, errors.New("server needs an operator input")
		}
		input = console.NewReader(opts.In, opts.Out)
	}

	cfg := opts.Config
	bus := events.NewBus(logger)
	settings := config.NewSettings(cfg)

	// Session events reach the ledger through the recorder's own queue; the
	// bus may drop them for slow subscribers.
	var publisher events.Publisher = bus
	var rec *recorder
	if ledger != nil {
		rec = newRecorder(ledger, opts.SessionID, logger)
		publisher = events.Tee(bus, rec)
	}
	manager := agent.NewManager(opts.SessionID, publisher, logger)
	out := console.New(opts.Out)

	s := &Server{
		cfg:      cfg,
		logger:   logger.With("component", "server"),
		batch:    opts.Batch,
		bus:      bus,
		recorder: rec,
		manager:  manager,
		settings: settings,
		writer:   transfer.NewWriter(bus, logger),
		ledger:   ledger,
		console:  out,
	}

	s.listener = listener.New(listener.Options{
		Addr:             cfg.Server.Addr(),
		ListenBacklog:    cfg.Server.ListenBacklog,
		BindRetry:        cfg.Server.BindRetry,
		BindRetryDelay:   cfg.Server.BindRetryDelay,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		PollInterval:     cfg.Server.PollInterval,
		RecvSize:         settings.RecvSize,
	}, manager, bus, logger)

	s.shell = shell.New(shell.Env{
		Manager:  manager,
		Settings: settings,
		Console:  out,
		Input:    input,
		Writer:   s.writer,
		Ledger:   ledger,
		Params:   restart.Params{Host: cfg.Server.Host, Port: cfg.Server.Port},
		Logger:   logger,
	})

	return s, nil
}

// Manager returns the agent registry.
func (s *Server) Manager() *agent.Manager { return s.manager }

// Console returns the operator output.
func (s *Server) Console() *console.Console { return s.console }

// Addr returns the bound listener address, or nil before Run binds.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Params returns what a restarted server needs to keep its agents: the
// bound host and port, the current receive size and the session ID.
func (s *Server) Params() restart.Params {
	p := restart.Params{
		Host:      s.cfg.Server.Host,
		Port:      s.cfg.Server.Port,
		RecvSize:  s.settings.RecvSize(),
		SessionID: s.manager.SessionID(),
	}
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		p.Port = addr.Port
	}
	return p
}

// Run binds the listener, then serves agents and runs the operator loop
// until the operator quits (nil), reboots (ErrRestart) or ctx ends. Every
// agent is closed and every pending download written before it returns.
func (s *Server) Run(ctx context.Context) error {
	if err := s.listener.Bind(ctx); err != nil {
		return err
	}
	s.logger.Info("listening for agents",
		"addr", s.Addr().String(),
		"session_id", s.manager.SessionID(),
	)

	// The notifier outlives the serving context so the final disconnects
	// are still printed.
	evCtx, stopEvents := context.WithCancel(context.WithoutCancel(ctx))
	consumers := s.startConsumers(evCtx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return s.listener.Serve(gctx)
	})
	g.Go(func() error {
		defer cancel()
		value, err := s.shell.Run(gctx, s.batch...)
		if err != nil {
			return err
		}
		s.logger.Info("operator loop ended", "result", value)
		if value == shell.ReturnReboot {
			return ErrRestart
		}
		return nil
	})

	err := g.Wait()
	s.writer.Close()
	stopEvents()
	consumers.Wait()
	if s.recorder != nil {
		s.recorder.Close()
	}

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		s.logger.Info("server stopped", "reason", context.Cause(ctx))
		return nil
	}
	return err
}

// Close releases the ledger and the event bus. It is safe to call more
// than once and after Run.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.writer.Close()
		s.bus.Close()
		if s.recorder != nil {
			s.recorder.Close()
		}
		if s.ledger != nil {
			s.closeErr = s.ledger.Close()
		}
	})
	return s.closeErr
}

// startConsumers subscribes the console notifier.
func (s *Server) startConsumers(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup

	notices, _ := s.bus.Subscribe(ctx)
	wg.Go(func() {
		for e := range notices {
			s.console.Event(e)
		}
	})
	return &wg
}

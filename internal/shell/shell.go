// ABOUTME: Shared environment and loop construction for the operator and agent shells
// ABOUTME: Handles per-command timeouts, output echo and ledger recording

package shell

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/2389/tether/internal/agent"
	"github.com/2389/tether/internal/command"
	"github.com/2389/tether/internal/config"
	"github.com/2389/tether/internal/console"
	"github.com/2389/tether/internal/restart"
	"github.com/2389/tether/internal/store"
	"github.com/2389/tether/internal/transfer"
	"github.com/2389/tether/internal/wire"
)

// Values returned through the operator loop.
const (
	// ReturnReboot asks the caller to restart the server process.
	ReturnReboot = "reboot"
	// ReturnShutdown reports that the operator shut the server down.
	ReturnShutdown = "shutdown"
)

// shutdownTimeout bounds each server_shutdown? exchange.
const shutdownTimeout = 3 * time.Second

// Env is what the command tables operate on.
type Env struct {
	Manager  *agent.Manager
	Settings *config.Settings
	Console  *console.Console
	Input    command.LineReader
	Writer   *transfer.Writer

	// Ledger records forwarded commands. Nil disables history.
	Ledger store.Store

	// Params describes how an agent should reconnect after reboot. The
	// session ID and receive size are filled in at reboot time.
	Params restart.Params

	Logger *slog.Logger
}

// Shell owns the operator and agent command tables.
type Shell struct {
	env      Env
	logger   *slog.Logger
	operator *command.Registry
	agent    *command.Registry
}

// New builds both command tables over env.
func New(env Env) *Shell {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	s := &Shell{
		env:    env,
		logger: env.Logger.With("component", "shell"),
	}
	s.operator = command.NewRegistry(s.operatorCommands()...)
	s.agent = command.NewRegistry(s.agentCommands()...)
	return s
}

// Operator returns the operator command table.
func (s *Shell) Operator() *command.Registry { return s.operator }

// Agent returns the agent-shell command table.
func (s *Shell) Agent() *command.Registry { return s.agent }

// Run runs the operator loop, executing batch first. It returns
// ReturnReboot, ReturnShutdown, or "" when input ends.
func (s *Shell) Run(ctx context.Context, batch ...string) (string, error) {
	loop := &command.Loop{
		Registry: s.operator,
		Input:    s.env.Input,
		Prompt:   func(context.Context) (string, bool) { return "tether> ", true },
		Fallback: s.forwardToCurrent,
		Report:   s.env.Console.Error,
		Logger:   s.logger,
	}
	return loop.Run(ctx, batch...)
}

// AgentShell runs the agent-shell loop on the current selection until it
// is left, the agent goes away, or a command returns a value.
func (s *Shell) AgentShell(ctx context.Context, batch ...string) (string, error) {
	loop := &command.Loop{
		Registry: s.agent,
		Input:    s.env.Input,
		Prompt:   s.agentPrompt,
		Fallback: s.forwardToCurrent,
		Report:   s.env.Console.Error,
		Logger:   s.logger,
	}
	return loop.Run(ctx, batch...)
}

// agentPrompt refreshes the working directory and ends the loop when the
// selection is gone.
func (s *Shell) agentPrompt(ctx context.Context) (string, bool) {
	conn := s.env.Manager.Current()
	if conn == nil || conn.Status() == agent.StatusClosed {
		return "", false
	}

	xctx, cancel := s.exchangeContext(ctx)
	cwd, err := s.env.Manager.Send(xctx, conn, wire.DirectiveGetCwd)
	cancel()
	if err != nil {
		s.env.Console.Error(err)
		if conn.Status() == agent.StatusClosed {
			return "", false
		}
	} else {
		conn.SetCwd(cwd)
	}

	return fmt.Sprintf("<%s> %s> ", conn.IP, conn.Cwd()), true
}

// forwardToCurrent sends line verbatim to the selected agent.
func (s *Shell) forwardToCurrent(ctx context.Context, line string) error {
	conn := s.env.Manager.Current()
	if conn == nil {
		return agent.ErrNoSelection
	}

	xctx, cancel := s.exchangeContext(ctx)
	defer cancel()

	resp, err := s.env.Manager.Send(xctx, conn, line)
	s.record(ctx, conn.ID, conn.IP, line, resp, err)
	if err != nil {
		return err
	}
	s.echo(resp)
	return nil
}

// exchangeContext applies the command_timeout setting.
func (s *Shell) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.env.Settings.CommandTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (s *Shell) echo(resp string) {
	if s.env.Settings.Echo() {
		s.env.Console.Print(resp)
	}
}

// record writes one ledger entry. Ledger failures are logged, not returned.
func (s *Shell) record(ctx context.Context, agentID int, ip, cmd, resp string, cmdErr error) {
	if s.env.Ledger == nil {
		return
	}
	rec := &store.CommandRecord{
		RunID:         s.env.Manager.SessionID(),
		AgentID:       agentID,
		AgentIP:       ip,
		Command:       cmd,
		ResponseBytes: len(resp),
	}
	if cmdErr != nil {
		rec.Error = cmdErr.Error()
	}
	if err := s.env.Ledger.RecordCommand(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("recording command failed", "agent_ip", ip, "error", err)
	}
}

// managedTarget routes transfer exchanges through the Manager so a broken
// transfer unregisters the agent.
type managedTarget struct {
	manager *agent.Manager
	conn    *agent.Connection
}

func (t managedTarget) SendCommand(ctx context.Context, cmd string) (string, error) {
	return t.manager.Send(ctx, t.conn, cmd)
}

func (t managedTarget) Cwd() string { return t.conn.Cwd() }

// parseCount reads an optional positive count argument.
func parseCount(args string, def int) (int, error) {
	if args == "" {
		return def, nil
	}
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected a positive number, got %q", args)
	}
	return n, nil
}

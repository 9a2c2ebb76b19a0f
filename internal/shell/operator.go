// ABOUTME: Operator loop commands: agent management, settings and server lifecycle
// ABOUTME: "use" opens the nested agent shell on the selected agent

package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/2389/tether/internal/agent"
	"github.com/2389/tether/internal/command"
	"github.com/2389/tether/internal/config"
	"github.com/2389/tether/internal/wire"
)

func (s *Shell) operatorCommands() []command.Command {
	return []command.Command{
		&command.Func{
			Names:    []string{"list"},
			UsageStr: "list",
			HelpStr:  "Show connected agents.",
			Handler:  s.list,
		},
		&command.Func{
			Names:    []string{"use"},
			UsageStr: "use <ip|id|none>",
			HelpStr:  "Select an agent and open its shell, or clear the selection.",
			Handler:  s.use,
		},
		&command.Func{
			Names:    []string{"broadcast"},
			UsageStr: "broadcast <cmd>",
			HelpStr:  "Send a command to every connected agent.",
			Handler:  s.broadcast,
		},
		&command.Func{
			Names:    []string{"client"},
			UsageStr: "client -b <cmd>",
			HelpStr:  "Same as broadcast.",
			Handler:  s.client,
		},
		&command.Func{
			Names:    []string{"update"},
			UsageStr: "update all",
			HelpStr:  "Ask every agent to update itself.",
			Handler:  s.update,
		},
		&command.Func{
			Names:    []string{"set"},
			UsageStr: "set <key> <value>",
			HelpStr:  "Change a runtime setting (" + strings.Join(config.SettingKeys(), ", ") + ").",
			Handler:  s.set,
		},
		&command.Func{
			Names:    []string{"get"},
			UsageStr: "get [key]",
			HelpStr:  "Show runtime settings.",
			Handler:  s.get,
		},
		&command.Func{
			Names:    []string{"history"},
			UsageStr: "history [n]",
			HelpStr:  "Show recent commands sent to agents.",
			Handler:  s.history(false),
		},
		&command.Func{
			Names:    []string{"help", "?"},
			UsageStr: "help",
			HelpStr:  "Show this help.",
			Handler:  s.help(func() *command.Registry { return s.operator }),
		},
		&command.Func{
			Names:    []string{"reboot"},
			UsageStr: "reboot",
			HelpStr:  "Close every agent and restart the server.",
			Handler:  s.rebootServer,
		},
		&command.Func{
			Names:    []string{"quit", "exit", "shutdown"},
			UsageStr: "quit",
			HelpStr:  "Tell agents the server is going away and shut down.",
			Handler:  s.shutdown,
		},
	}
}

func (s *Shell) list(_ context.Context, _ string) (command.Signal, error) {
	conns := s.env.Manager.List()
	if len(conns) == 0 {
		s.env.Console.Notice("No agents connected.")
		return command.None(), nil
	}

	current := s.env.Manager.Current()
	rows := make([][]string, 0, len(conns))
	for _, c := range conns {
		mark := ""
		if c == current {
			mark = "*"
		}
		rows = append(rows, []string{
			mark + strconv.Itoa(c.ID),
			c.IP,
			strconv.Itoa(c.Port),
			c.ConnectedAt.Format(time.DateTime),
			c.Cwd(),
		})
	}
	s.env.Console.Table([]string{"ID", "IP", "PORT", "CONNECTED", "CWD"}, rows)
	return command.None(), nil
}

func (s *Shell) use(ctx context.Context, args string) (command.Signal, error) {
	if args == "" {
		return command.None(), errors.New("usage: use <ip|id|none>")
	}
	if args == agent.NoneIdentifier {
		s.env.Manager.ClearSelection()
		s.env.Console.Notice("Selection cleared.")
		return command.None(), nil
	}

	conn, err := s.env.Manager.Select(args)
	if err != nil {
		return command.None(), err
	}
	s.env.Console.Notice("Using [%d] %s (%d).", conn.ID, conn.IP, conn.Port)

	value, err := s.AgentShell(ctx)
	if err != nil {
		return command.None(), err
	}
	if value != "" {
		return command.Return(value), nil
	}
	return command.None(), nil
}

func (s *Shell) broadcast(ctx context.Context, args string) (command.Signal, error) {
	if args == "" {
		return command.None(), errors.New("you must include a command to send")
	}
	if s.env.Manager.Len() == 0 {
		return command.None(), errors.New("no agents connected")
	}

	xctx, cancel := s.exchangeContext(ctx)
	defer cancel()

	result := s.env.Manager.Broadcast(xctx, args)
	for _, r := range result.Replies {
		s.record(ctx, r.AgentID, r.IP, args, r.Output, nil)
	}
	for _, f := range result.Failures {
		s.record(ctx, f.AgentID, f.IP, args, "", f.Err)
		s.env.Console.Error(fmt.Errorf("[%d] %s: %w", f.AgentID, f.IP, f.Err))
	}
	s.echo(result.Output())
	return command.None(), nil
}

func (s *Shell) client(ctx context.Context, args string) (command.Signal, error) {
	flag, rest := command.Split(args)
	if flag != "-b" {
		return command.None(), errors.New("usage: client -b <cmd>")
	}
	return s.broadcast(ctx, rest)
}

func (s *Shell) update(ctx context.Context, args string) (command.Signal, error) {
	if args != "all" {
		return command.None(), errors.New("usage: update all")
	}
	return s.broadcast(ctx, wire.DirectiveUpdate)
}

func (s *Shell) set(_ context.Context, args string) (command.Signal, error) {
	key, value := command.Split(args)
	if key == "" || value == "" {
		return command.None(), errors.New("usage: set <key> <value>")
	}
	if err := s.env.Settings.Set(key, value); err != nil {
		return command.None(), err
	}
	current, _ := s.env.Settings.Get(key)
	s.env.Console.Notice("%s = %s", key, current)
	return command.None(), nil
}

func (s *Shell) get(_ context.Context, args string) (command.Signal, error) {
	keys := config.SettingKeys()
	if args != "" {
		keys = []string{args}
	}

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		value, err := s.env.Settings.Get(key)
		if err != nil {
			return command.None(), err
		}
		rows = append(rows, []string{key, value})
	}
	s.env.Console.Table([]string{"KEY", "VALUE"}, rows)
	return command.None(), nil
}

// history lists ledger entries; in the agent shell only the current agent's.
func (s *Shell) history(currentOnly bool) func(context.Context, string) (command.Signal, error) {
	return func(ctx context.Context, args string) (command.Signal, error) {
		if s.env.Ledger == nil {
			return command.None(), errors.New("session ledger is disabled (set database.path)")
		}
		n, err := parseCount(args, 20)
		if err != nil {
			return command.None(), err
		}

		ip := ""
		if currentOnly {
			conn := s.env.Manager.Current()
			if conn == nil {
				return command.None(), agent.ErrNoSelection
			}
			ip = conn.IP
		}

		records, err := s.env.Ledger.ListCommands(ctx, ip, n)
		if err != nil {
			return command.None(), fmt.Errorf("reading history: %w", err)
		}
		if len(records) == 0 {
			s.env.Console.Notice("No history.")
			return command.None(), nil
		}

		rows := make([][]string, 0, len(records))
		for i := len(records) - 1; i >= 0; i-- {
			r := records[i]
			status := strconv.Itoa(r.ResponseBytes) + "B"
			if r.Error != "" {
				status = "error"
			}
			rows = append(rows, []string{
				r.CreatedAt.Local().Format(time.DateTime),
				r.AgentIP,
				status,
				r.Command,
			})
		}
		s.env.Console.Table([]string{"TIME", "AGENT", "RESULT", "COMMAND"}, rows)
		return command.None(), nil
	}
}

func (s *Shell) help(registry func() *command.Registry) func(context.Context, string) (command.Signal, error) {
	return func(context.Context, string) (command.Signal, error) {
		var rows [][]string
		for _, cmd := range registry().Commands() {
			if !cmd.Enabled() {
				continue
			}
			d, ok := cmd.(command.Describer)
			if !ok {
				rows = append(rows, []string{strings.Join(cmd.Invocations(), " | "), ""})
				continue
			}
			rows = append(rows, []string{d.Usage(), d.Help()})
		}
		s.env.Console.Table([]string{"COMMAND", "DESCRIPTION"}, rows)
		return command.None(), nil
	}
}

func (s *Shell) rebootServer(_ context.Context, _ string) (command.Signal, error) {
	s.env.Console.Notice("Rebooting server.")
	s.env.Manager.CloseAll()
	return command.Return(ReturnReboot), nil
}

// shutdown asks every agent whether it will stay down, then closes them.
func (s *Shell) shutdown(ctx context.Context, _ string) (command.Signal, error) {
	conns := s.env.Manager.List()
	if len(conns) > 0 {
		s.env.Console.Notice("Shutting down %d agent connection(s).", len(conns))
	}

	for _, conn := range conns {
		xctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		reply, err := s.env.Manager.Send(xctx, conn, wire.DirectiveServerShutdown)
		cancel()

		switch {
		case err != nil:
			s.logger.Warn("shutdown query failed", "agent_ip", conn.IP, "error", err)
		case reply == wire.ShutdownConfirmed:
			s.logger.Info("agent will stay down", "agent_ip", conn.IP)
		default:
			s.logger.Info("agent will try to reconnect", "agent_ip", conn.IP, "reply", reply)
		}
	}

	s.env.Manager.CloseAll()
	s.env.Console.Notice("Shutdown complete.")
	return command.Return(ReturnShutdown), nil
}

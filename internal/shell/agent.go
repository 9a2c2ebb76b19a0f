// ABOUTME: Agent shell commands: file transfer, reboot and leaving the shell
// ABOUTME: Unmatched lines are forwarded verbatim by the loop fallback

package shell

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/tether/internal/agent"
	"github.com/2389/tether/internal/command"
	"github.com/2389/tether/internal/restart"
	"github.com/2389/tether/internal/transfer"
)

func (s *Shell) agentCommands() []command.Command {
	return []command.Command{
		&command.Func{
			Names:    []string{"upload"},
			UsageStr: "upload <local> [remote]",
			HelpStr:  "Send a local file to the agent.",
			Handler:  s.upload,
		},
		&command.Func{
			Names:    []string{"download"},
			UsageStr: "download <remote> [local]",
			HelpStr:  "Fetch a file from the agent; it is saved in the background.",
			Handler:  s.download,
		},
		&command.Func{
			Names:    []string{"reboot"},
			UsageStr: "reboot",
			HelpStr:  "Restart the agent process; it reconnects with this server's parameters.",
			Handler:  s.rebootAgent,
		},
		&command.Func{
			Names:    []string{"history"},
			UsageStr: "history [n]",
			HelpStr:  "Show recent commands sent to this agent.",
			Handler:  s.history(true),
		},
		&command.Func{
			Names:    []string{"help", "?"},
			UsageStr: "help",
			HelpStr:  "Show this help.",
			Handler:  s.help(func() *command.Registry { return s.agent }),
		},
		&command.Func{
			Names:    []string{"back", "detach"},
			UsageStr: "back",
			HelpStr:  "Return to the operator prompt, keeping the agent connected.",
			Handler:  func(context.Context, string) (command.Signal, error) { return command.Break(), nil },
		},
		&command.Func{
			Names:    []string{"quit", "exit"},
			UsageStr: "quit",
			HelpStr:  "Disconnect the agent and return to the operator prompt.",
			Handler:  s.quitAgent,
		},
	}
}

func (s *Shell) current() (*agent.Connection, error) {
	conn := s.env.Manager.Current()
	if conn == nil {
		return nil, agent.ErrNoSelection
	}
	return conn, nil
}

func (s *Shell) upload(ctx context.Context, args string) (command.Signal, error) {
	conn, err := s.current()
	if err != nil {
		return command.None(), err
	}
	parts, err := command.Args(args)
	if err != nil {
		return command.None(), err
	}
	if len(parts) == 0 || len(parts) > 2 {
		return command.None(), errors.New("usage: upload <local> [remote]")
	}
	remote := ""
	if len(parts) == 2 {
		remote = parts[1]
	}

	xctx, cancel := s.exchangeContext(ctx)
	defer cancel()

	res, err := transfer.Upload(xctx, managedTarget{s.env.Manager, conn}, parts[0], remote)
	if err != nil {
		return command.None(), err
	}
	s.record(ctx, conn.ID, conn.IP, "upload "+res.Remote, res.Reply, nil)
	s.env.Console.Success("Uploaded %s to %s (%d bytes).", res.Local, res.Remote, res.Bytes)
	s.echo(res.Reply)
	return command.None(), nil
}

func (s *Shell) download(ctx context.Context, args string) (command.Signal, error) {
	conn, err := s.current()
	if err != nil {
		return command.None(), err
	}
	parts, err := command.Args(args)
	if err != nil {
		return command.None(), err
	}
	if len(parts) == 0 || len(parts) > 2 {
		return command.None(), errors.New("usage: download <remote> [local]")
	}
	remote, local := parts[0], ""
	if len(parts) == 2 {
		local = parts[1]
	}

	path, err := transfer.DownloadPath(remote, local, s.env.Settings.DownloadDir())
	if err != nil {
		return command.None(), err
	}

	xctx, cancel := s.exchangeContext(ctx)
	defer cancel()

	data, err := transfer.Download(xctx, managedTarget{s.env.Manager, conn}, remote)
	s.record(ctx, conn.ID, conn.IP, "download "+remote, string(data), err)
	if err != nil {
		return command.None(), err
	}

	job := transfer.Job{AgentID: conn.ID, IP: conn.IP, Remote: remote, Path: path, Data: data}
	if err := s.env.Writer.Submit(ctx, job); err != nil {
		return command.None(), fmt.Errorf("queueing download: %w", err)
	}
	s.env.Console.Notice("Downloaded %s (%d bytes), saving to %s.", remote, len(data), path)
	return command.None(), nil
}

// rebootAgent sends the reboot directive and forgets the connection; the
// agent reconnects through the listener.
func (s *Shell) rebootAgent(ctx context.Context, _ string) (command.Signal, error) {
	conn, err := s.current()
	if err != nil {
		return command.None(), err
	}

	params := s.env.Params
	params.RecvSize = s.env.Settings.RecvSize()
	params.SessionID = s.env.Manager.SessionID()
	directive := restart.AgentDirective(params)

	xctx, cancel := s.exchangeContext(ctx)
	defer cancel()

	err = conn.Notify(xctx, directive)
	s.env.Manager.RemoveConnection(conn)
	conn.Drop()
	s.record(ctx, conn.ID, conn.IP, directive, "", err)
	if err != nil {
		return command.Break(), err
	}

	s.env.Console.Notice("Rebooting [%d] %s.", conn.ID, conn.IP)
	return command.Break(), nil
}

func (s *Shell) quitAgent(_ context.Context, _ string) (command.Signal, error) {
	conn, err := s.current()
	if err != nil {
		return command.Break(), nil
	}
	s.env.Manager.Disconnect(conn)
	s.env.Console.Notice("Disconnected [%d] %s.", conn.ID, conn.IP)
	return command.Break(), nil
}

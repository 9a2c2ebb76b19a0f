// ABOUTME: The history command prints the session ledger without starting a server
// ABOUTME: Lists recent agent sessions, or commands with --commands

package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/tether/internal/console"
	"github.com/2389/tether/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit    int
		commands bool
		agentIP  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded agent sessions or commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(getConfigPath(cmd))
			if err != nil {
				return err
			}
			if cfg.Database.Path == "" {
				return errors.New("no session ledger configured (set database.path)")
			}

			s, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer s.Close()

			out := console.New(cmd.OutOrStdout())
			if commands {
				return printCommands(cmd, out, s, agentIP, limit)
			}
			return printSessions(cmd, out, s, limit)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&limit, "limit", "n", 20, "number of entries")
	flags.BoolVar(&commands, "commands", false, "list commands instead of sessions")
	flags.StringVar(&agentIP, "agent", "", "only commands sent to this agent IP")
	return cmd
}

func printSessions(cmd *cobra.Command, out *console.Console, s store.Store, limit int) error {
	sessions, err := s.ListSessions(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		out.Notice("No sessions recorded.")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, sess := range sessions {
		ended, reason := "-", ""
		if !sess.Open() {
			ended = sess.DisconnectedAt.Local().Format(time.DateTime)
			reason = sess.EndReason
		}
		rows = append(rows, []string{
			sess.ConnectedAt.Local().Format(time.DateTime),
			ended,
			strconv.Itoa(sess.AgentID),
			sess.IP,
			strconv.Itoa(sess.Port),
			reason,
		})
	}
	out.Table([]string{"CONNECTED", "ENDED", "ID", "IP", "PORT", "REASON"}, rows)
	return nil
}

func printCommands(cmd *cobra.Command, out *console.Console, s store.Store, agentIP string, limit int) error {
	records, err := s.ListCommands(cmd.Context(), agentIP, limit)
	if err != nil {
		return fmt.Errorf("listing commands: %w", err)
	}
	if len(records) == 0 {
		out.Notice("No commands recorded.")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		result := strconv.Itoa(r.ResponseBytes) + "B"
		if r.Error != "" {
			result = r.Error
		}
		rows = append(rows, []string{
			r.CreatedAt.Local().Format(time.DateTime),
			r.AgentIP,
			r.Command,
			result,
		})
	}
	out.Table([]string{"TIME", "AGENT", "COMMAND", "RESULT"}, rows)
	return nil
}

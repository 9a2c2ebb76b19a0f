// ABOUTME: The serve command: load config, run the server, restart on request
// ABOUTME: Positional key=value arguments match the agent reboot directive

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/tether/internal/config"
	"github.com/2389/tether/internal/restart"
	"github.com/2389/tether/internal/server"
)

type serveFlags struct {
	host          string
	port          int
	recvSize      int
	listenBacklog int
	bindRetry     int
	database      string
	logLevel      string
	exec          []string
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve [host=<h>] [port=<p>] [recv_size=<n>] [session_id=<id>]",
		Short: "Listen for agents and start the operator console",
		Long: `Listen for agents and start the operator console.

Flags override the config file. The key=value arguments use the same form as
the agent reboot directive and override both; a restarted server passes its
own parameters this way so reconnecting agents keep their session.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.host, "host", "", "interface to listen on (empty for all)")
	flags.IntVarP(&f.port, "port", "p", config.DefaultPort, "port to listen on")
	flags.IntVar(&f.recvSize, "recv-size", config.DefaultRecvSize, "socket read size in bytes")
	flags.IntVar(&f.listenBacklog, "listen-backlog", config.DefaultListenBacklog, "concurrent handshakes")
	flags.IntVar(&f.bindRetry, "bind-retry", config.DefaultBindRetry, "bind attempts before giving up")
	flags.StringVar(&f.database, "database", "", "session ledger path (empty disables it)")
	flags.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringArrayVarP(&f.exec, "exec", "e", nil, "operator command to run before the prompt (repeatable)")
	return cmd
}

func runServe(cmd *cobra.Command, f serveFlags, args []string) error {
	ctx := cmd.Context()
	configPath := getConfigPath(cmd)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	overrides := flagOverrides(cmd, f)
	sessionID, err := argOverrides(args, &overrides)
	if err != nil {
		return err
	}
	cfg, err = overrides.Apply(cfg)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)
	printBanner(configPath, cfg)

	srv, err := server.New(server.Options{
		Config:    cfg,
		SessionID: sessionID,
		In:        os.Stdin,
		Out:       os.Stdout,
		Batch:     f.exec,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer srv.Close()

	err = srv.Run(ctx)
	if !errors.Is(err, server.ErrRestart) {
		return err
	}

	params := srv.Params()
	if err := srv.Close(); err != nil {
		logger.Warn("closing server before restart", "error", err)
	}

	plan, err := restart.SelfPlan()
	if err != nil {
		return fmt.Errorf("planning restart: %w", err)
	}
	sup := &restart.ExecSupervisor{Logger: logger.With("component", "restart")}
	return sup.Restart(ctx, plan.WithParams(params))
}

// loadConfig reads path, falling back to defaults when it does not exist.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// flagOverrides keeps only the flags given on the command line.
func flagOverrides(cmd *cobra.Command, f serveFlags) config.Overrides {
	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("host") {
		o.Host = &f.host
	}
	if flags.Changed("port") {
		o.Port = &f.port
	}
	if flags.Changed("recv-size") {
		o.RecvSize = &f.recvSize
	}
	if flags.Changed("listen-backlog") {
		o.ListenBacklog = &f.listenBacklog
	}
	if flags.Changed("bind-retry") {
		o.BindRetry = &f.bindRetry
	}
	if flags.Changed("database") {
		o.DatabasePath = &f.database
	}
	if flags.Changed("log-level") {
		o.LogLevel = &f.logLevel
	}
	return o
}

// argOverrides applies key=value arguments on top of o and returns the
// session ID, if one was given.
func argOverrides(args []string, o *config.Overrides) (string, error) {
	for _, arg := range args {
		if !strings.Contains(arg, "=") {
			return "", fmt.Errorf("unexpected argument %q (want key=value)", arg)
		}
	}
	params, err := restart.ParseArgs(args)
	if err != nil {
		return "", err
	}

	for _, arg := range args {
		key, _, _ := strings.Cut(arg, "=")
		switch key {
		case "host":
			o.Host = &params.Host
		case "port":
			o.Port = &params.Port
		case "recv_size":
			o.RecvSize = &params.RecvSize
		}
	}
	return params.SessionID, nil
}

func printBanner(configPath string, cfg config.Config) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.Addr())
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Ledger:   %s\n", cfg.Database.Path)
	}
	fmt.Println()
}

// ABOUTME: The init command writes a server config file interactively
// ABOUTME: Answers default to the built-in configuration values

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/tether/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(bufio.NewReader(cmd.InOrStdin()), getConfigPath(cmd))
		},
	}
}

func runInit(reader *bufio.Reader, defaultConfigPath string) error {
	fmt.Println("tether configuration setup")
	fmt.Println("==========================")
	fmt.Println()

	defaults := config.Default()
	defaultDbPath := filepath.Join(getDataPath(), "ledger.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Listener ---")
	host := prompt(reader, "Listen host (empty for all interfaces)", defaults.Server.Host)
	port := prompt(reader, "Listen port", strconv.Itoa(defaults.Server.Port))
	recvSize := prompt(reader, "Receive size", strconv.Itoa(defaults.Server.RecvSize))
	commandTimeout := prompt(reader, "Command timeout (0s waits forever)", "0s")

	fmt.Println("\n--- Session Ledger ---")
	dbPath := prompt(reader, "SQLite database path (\"none\" disables)", defaultDbPath)
	if dbPath == "none" {
		dbPath = ""
	}
	downloadDir := prompt(reader, "Download directory", defaults.Transfer.DownloadDir)

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", defaults.Logging.Level)
	logFormat := prompt(reader, "Log format (text/json)", defaults.Logging.Format)

	var cfg strings.Builder
	cfg.WriteString("# tether configuration\n")
	cfg.WriteString("# Generated by tether init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  host: %q\n", host)
	fmt.Fprintf(&cfg, "  port: %s\n", port)
	fmt.Fprintf(&cfg, "  recv_size: %s\n", recvSize)
	fmt.Fprintf(&cfg, "  listen_backlog: %d\n", defaults.Server.ListenBacklog)
	fmt.Fprintf(&cfg, "  bind_retry: %d\n", defaults.Server.BindRetry)
	fmt.Fprintf(&cfg, "  bind_retry_delay: %q\n", defaults.Server.BindRetryDelay.String())
	fmt.Fprintf(&cfg, "  handshake_timeout: %q\n", defaults.Server.HandshakeTimeout.String())
	fmt.Fprintf(&cfg, "  command_timeout: %q\n", commandTimeout)
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", dbPath)
	cfg.WriteString("\n")

	cfg.WriteString("transfer:\n")
	fmt.Fprintf(&cfg, "  download_dir: %q\n", downloadDir)
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", logLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", logFormat)

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Reload to validate the written file.
	if _, err := config.Load(outputFile); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  tether serve --config %s\n", outputFile)
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

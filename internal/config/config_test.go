// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "server.yaml", `
server:
  host: "127.0.0.1"
  port: 7000
  recv_size: 4096
  listen_backlog: 3
  bind_retry: 2
  bind_retry_delay: "250ms"
  handshake_timeout: "5s"
  poll_interval: "50ms"
  command_timeout: "30s"

database:
  path: "./ledger.db"

transfer:
  download_dir: "/tmp/loot"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 7000)
	}
	if cfg.Server.Addr() != "127.0.0.1:7000" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:7000")
	}
	if cfg.Server.RecvSize != 4096 {
		t.Errorf("Server.RecvSize = %d, want %d", cfg.Server.RecvSize, 4096)
	}
	if cfg.Server.ListenBacklog != 3 {
		t.Errorf("Server.ListenBacklog = %d, want %d", cfg.Server.ListenBacklog, 3)
	}
	if cfg.Server.BindRetry != 2 {
		t.Errorf("Server.BindRetry = %d, want %d", cfg.Server.BindRetry, 2)
	}
	if cfg.Server.BindRetryDelay != 250*time.Millisecond {
		t.Errorf("Server.BindRetryDelay = %v, want %v", cfg.Server.BindRetryDelay, 250*time.Millisecond)
	}
	if cfg.Server.HandshakeTimeout != 5*time.Second {
		t.Errorf("Server.HandshakeTimeout = %v, want %v", cfg.Server.HandshakeTimeout, 5*time.Second)
	}
	if cfg.Server.PollInterval != 50*time.Millisecond {
		t.Errorf("Server.PollInterval = %v, want %v", cfg.Server.PollInterval, 50*time.Millisecond)
	}
	if cfg.Server.CommandTimeout != 30*time.Second {
		t.Errorf("Server.CommandTimeout = %v, want %v", cfg.Server.CommandTimeout, 30*time.Second)
	}
	if cfg.Database.Path != "./ledger.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./ledger.db")
	}
	if cfg.Transfer.DownloadDir != "/tmp/loot" {
		t.Errorf("Transfer.DownloadDir = %q, want %q", cfg.Transfer.DownloadDir, "/tmp/loot")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "server.toml", `
[server]
host = "0.0.0.0"
port = 9001
bind_retry_delay = "2s"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9001)
	}
	if cfg.Server.BindRetryDelay != 2*time.Second {
		t.Errorf("Server.BindRetryDelay = %v, want %v", cfg.Server.BindRetryDelay, 2*time.Second)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
	if cfg.Server.RecvSize != DefaultRecvSize {
		t.Errorf("Server.RecvSize = %d, want default %d", cfg.Server.RecvSize, DefaultRecvSize)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "empty.yaml", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	if cfg != want {
		t.Errorf("Load(empty) = %+v, want %+v", cfg, want)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.ListenBacklog != DefaultListenBacklog {
		t.Errorf("Server.ListenBacklog = %d, want %d", cfg.Server.ListenBacklog, DefaultListenBacklog)
	}
	if cfg.Server.BindRetry != DefaultBindRetry {
		t.Errorf("Server.BindRetry = %d, want %d", cfg.Server.BindRetry, DefaultBindRetry)
	}
	if cfg.Server.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("Server.HandshakeTimeout = %v, want %v", cfg.Server.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if cfg.Database.Path != "" {
		t.Errorf("Database.Path = %q, want empty", cfg.Database.Path)
	}
	if cfg.Transfer.DownloadDir != "." {
		t.Errorf("Transfer.DownloadDir = %q, want %q", cfg.Transfer.DownloadDir, ".")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_TETHER_DB", "/var/lib/tether/ledger.db")
	t.Setenv("TEST_TETHER_HOST", "10.1.1.1")

	path := writeConfig(t, "server.yaml", `
server:
  host: "${TEST_TETHER_HOST}"
database:
  path: "${TEST_TETHER_DB}"
transfer:
  download_dir: "${TEST_TETHER_UNSET}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "10.1.1.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "10.1.1.1")
	}
	if cfg.Database.Path != "/var/lib/tether/ledger.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/var/lib/tether/ledger.db")
	}
	// Unset variables expand to empty and then take the default.
	if cfg.Transfer.DownloadDir != "." {
		t.Errorf("Transfer.DownloadDir = %q, want %q", cfg.Transfer.DownloadDir, ".")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad duration", "a.yaml", "server:\n  poll_interval: \"soon\"\n", "poll_interval"},
		{"bad yaml", "b.yaml", "server: [unclosed\n", "parsing config file"},
		{"bad toml", "c.toml", "[server\nport = 1\n", "parsing config file"},
		{"port out of range", "d.yaml", "server:\n  port: 70000\n", "server.port"},
		{"negative recv size", "e.yaml", "server:\n  recv_size: -1\n", "server.recv_size"},
		{"huge recv size", "e2.yaml", "server:\n  recv_size: 9223372036854775807\n", "server.recv_size"},
		{"bad log level", "f.yaml", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad log format", "g.yaml", "logging:\n  format: \"xml\"\n", "logging.format"},
		{"negative timeout", "h.yaml", "server:\n  command_timeout: \"-1s\"\n", "command_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want error")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load() error = %v, want a not-exist error", err)
	}
}

func TestOverrides_Apply(t *testing.T) {
	host := "127.0.0.1"
	port := 0
	backlog := 2
	level := "debug"

	cfg, err := Overrides{Host: &host, Port: &port, ListenBacklog: &backlog, LogLevel: &level}.Apply(Default())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:0" {
		t.Errorf("Server.Addr() = %q, want %q", cfg.Server.Addr(), "127.0.0.1:0")
	}
	if cfg.Server.ListenBacklog != 2 {
		t.Errorf("Server.ListenBacklog = %d, want 2", cfg.Server.ListenBacklog)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Server.RecvSize != DefaultRecvSize {
		t.Errorf("Server.RecvSize = %d, want untouched default", cfg.Server.RecvSize)
	}

	bad := -5
	if _, err := (Overrides{BindRetry: &bad}).Apply(Default()); err == nil {
		t.Error("Apply() with bind_retry -5 error = nil, want error")
	}
}

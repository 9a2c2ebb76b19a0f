// ABOUTME: Configuration loading and parsing for tether
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults used when a field is absent from the file.
const (
	DefaultPort             = 6667
	DefaultRecvSize         = 1024
	DefaultListenBacklog    = 10
	DefaultBindRetry        = 5
	DefaultBindRetryDelay   = time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPollInterval     = 100 * time.Millisecond
)

// MaxRecvSize bounds recv_size; each receive allocates a buffer that large.
const MaxRecvSize = 1 << 20

// Config represents the complete tether configuration. It is built once at
// startup and passed by value; nothing mutates it afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Transfer TransferConfig `yaml:"transfer" toml:"transfer"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds listener and session settings
type ServerConfig struct {
	Host          string `yaml:"host" toml:"host"`
	Port          int    `yaml:"port" toml:"port"`
	RecvSize      int    `yaml:"recv_size" toml:"recv_size"`
	ListenBacklog int    `yaml:"listen_backlog" toml:"listen_backlog"`
	BindRetry     int    `yaml:"bind_retry" toml:"bind_retry"`

	BindRetryDelay   time.Duration `yaml:"-" toml:"-"`
	HandshakeTimeout time.Duration `yaml:"-" toml:"-"`
	PollInterval     time.Duration `yaml:"-" toml:"-"`
	CommandTimeout   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	BindRetryDelayRaw   string `yaml:"bind_retry_delay" toml:"bind_retry_delay"`
	HandshakeTimeoutRaw string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	PollIntervalRaw     string `yaml:"poll_interval" toml:"poll_interval"`
	CommandTimeoutRaw   string `yaml:"command_timeout" toml:"command_timeout"`
}

// Addr returns the host:port the listener binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the session ledger location. An empty path disables it.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// TransferConfig holds file transfer settings
type TransferConfig struct {
	DownloadDir string `yaml:"download_dir" toml:"download_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a Config with every default applied.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills zero-valued fields. A zero port in a file means the
// default port; Overrides can still request an ephemeral one.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.RecvSize == 0 {
		c.Server.RecvSize = DefaultRecvSize
	}
	if c.Server.ListenBacklog == 0 {
		c.Server.ListenBacklog = DefaultListenBacklog
	}
	if c.Server.BindRetry == 0 {
		c.Server.BindRetry = DefaultBindRetry
	}
	if c.Server.BindRetryDelay == 0 {
		c.Server.BindRetryDelay = DefaultBindRetryDelay
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.PollInterval == 0 {
		c.Server.PollInterval = DefaultPollInterval
	}
	if c.Transfer.DownloadDir == "" {
		c.Transfer.DownloadDir = "."
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all configuration fields are within range.
// Returns an error describing the first validation failure encountered.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RecvSize < 1 || c.Server.RecvSize > MaxRecvSize {
		return fmt.Errorf("server.recv_size %d out of range (1-%d)", c.Server.RecvSize, MaxRecvSize)
	}
	if c.Server.ListenBacklog < 1 {
		return fmt.Errorf("server.listen_backlog must be positive")
	}
	if c.Server.BindRetry < 1 {
		return fmt.Errorf("server.bind_retry must be at least 1")
	}
	if c.Server.CommandTimeout < 0 {
		return fmt.Errorf("server.command_timeout cannot be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"bind_retry_delay", cfg.Server.BindRetryDelayRaw, &cfg.Server.BindRetryDelay},
		{"handshake_timeout", cfg.Server.HandshakeTimeoutRaw, &cfg.Server.HandshakeTimeout},
		{"poll_interval", cfg.Server.PollIntervalRaw, &cfg.Server.PollInterval},
		{"command_timeout", cfg.Server.CommandTimeoutRaw, &cfg.Server.CommandTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

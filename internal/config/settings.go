// ABOUTME: Operator-adjustable runtime settings with a whitelisted key set
// ABOUTME: Each key maps to a typed setter; unknown keys are rejected

package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"
)

// ErrUnknownSetting is returned for keys outside the whitelist.
var ErrUnknownSetting = errors.New("unknown setting")

// Settings holds values the operator can change while the server runs.
type Settings struct {
	mu             sync.RWMutex
	echo           bool
	commandTimeout time.Duration
	downloadDir    string
	recvSize       int
}

type setting struct {
	get func(s *Settings) string
	set func(s *Settings, value string) error
}

var settingTable = map[string]setting{
	"echo": {
		get: func(s *Settings) string { return strconv.FormatBool(s.echo) },
		set: func(s *Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			s.echo = b
			return nil
		},
	},
	"command_timeout": {
		get: func(s *Settings) string { return s.commandTimeout.String() },
		set: func(s *Settings, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			if d < 0 {
				return fmt.Errorf("must not be negative")
			}
			s.commandTimeout = d
			return nil
		},
	},
	"download_dir": {
		get: func(s *Settings) string { return s.downloadDir },
		set: func(s *Settings, v string) error {
			if v == "" {
				return fmt.Errorf("must not be empty")
			}
			s.downloadDir = v
			return nil
		},
	},
	"recv_size": {
		get: func(s *Settings) string { return strconv.Itoa(s.recvSize) },
		set: func(s *Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			if n < 1 || n > MaxRecvSize {
				return fmt.Errorf("must be between 1 and %d", MaxRecvSize)
			}
			s.recvSize = n
			return nil
		},
	},
}

// NewSettings seeds runtime settings from the startup configuration.
func NewSettings(cfg Config) *Settings {
	return &Settings{
		echo:           true,
		commandTimeout: cfg.Server.CommandTimeout,
		downloadDir:    cfg.Transfer.DownloadDir,
		recvSize:       cfg.Server.RecvSize,
	}
}

// SettingKeys lists the accepted keys in sorted order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingTable))
	for k := range settingTable {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Set parses value with the key's setter.
func (s *Settings) Set(key, value string) error {
	entry, ok := settingTable[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := entry.set(s, value); err != nil {
		return fmt.Errorf("setting %s to %q: %w", key, value, err)
	}
	return nil
}

// Get renders the current value of key.
func (s *Settings) Get(key string) (string, error) {
	entry, ok := settingTable[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return entry.get(s), nil
}

// Echo reports whether agent responses are printed.
func (s *Settings) Echo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.echo
}

// CommandTimeout is the per-exchange timeout; zero waits forever.
func (s *Settings) CommandTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commandTimeout
}

// DownloadDir is where downloads without an explicit local path are saved.
func (s *Settings) DownloadDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloadDir
}

// RecvSize is the read chunk size for newly accepted connections.
func (s *Settings) RecvSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recvSize
}

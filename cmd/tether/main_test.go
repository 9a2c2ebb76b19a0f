// ABOUTME: Tests for CLI argument handling and logger setup
// ABOUTME: Covers key=value overrides, config fallback and the colour handler

package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tether/internal/config"
)

func TestArgOverrides(t *testing.T) {
	var o config.Overrides
	sessionID, err := argOverrides([]string{"host=", "port=7001", "session_id=abc"}, &o)
	require.NoError(t, err)
	assert.Equal(t, "abc", sessionID)

	cfg, err := o.Apply(config.Default())
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Server.Host)
	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, config.DefaultRecvSize, cfg.Server.RecvSize)
}

func TestArgOverrides_Rejects(t *testing.T) {
	var o config.Overrides
	_, err := argOverrides([]string{"verbose"}, &o)
	assert.ErrorContains(t, err, "want key=value")

	_, err = argOverrides([]string{"port=x"}, &o)
	assert.ErrorContains(t, err, "parsing port")
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestGetConfigPath_Env(t *testing.T) {
	t.Setenv("TETHER_CONFIG", "/etc/tether.yaml")
	assert.Equal(t, "/etc/tether.yaml", getConfigPath(newServeCmd()))

	t.Setenv("TETHER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "tether", "server.yaml"), getConfigPath(newServeCmd()))
}

func TestColorHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.With("component", "listener").Warn("bind failed", "attempt", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, "WRN bind failed component=listener attempt=2")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.Debug("hello", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "ledger.db", cfg.SnapshotDB)
	assert.Equal(t, 50, cfg.SnapshotKeep)
	assert.Equal(t, "COP", cfg.Currency)
	assert.Equal(t, time.Minute, cfg.WatchInterval)
	assert.Equal(t, 5000, cfg.SandboxPort)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.CORSOrigins)
	assert.True(t, cfg.SnapshotsEnabled())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("LEDGER_BASE_URL", "https://billing.example.com")
	t.Setenv("LEDGER_TIMEOUT", "5s")
	t.Setenv("LEDGER_SNAPSHOT_DB", "")
	t.Setenv("LEDGER_CORS_ORIGINS", "http://a.local, http://b.local")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.CORSOrigins)
	assert.False(t, cfg.SnapshotsEnabled(), "an empty value disables snapshots")
}

func TestLoad_FileThenFlags(t *testing.T) {
	// GIVEN: A config file and a flag set where only --currency was passed
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("currency: USD\nlog_format: json\nsandbox_port: 6000\n"), 0o600))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("currency", "", "")
	fs.String("log-format", "console", "")
	require.NoError(t, fs.Parse([]string{"--currency", "EUR"}))

	// WHEN: Loading
	cfg, err := LoadWithFlags(path, fs)

	// THEN: Explicit flags beat the file, the file beats defaults
	require.NoError(t, err)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 6000, cfg.SandboxPort)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative base url", func(c *Config) { c.BaseURL = "localhost:5000" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad port", func(c *Config) { c.SandboxPort = 70000 }},
		{"no currency", func(c *Config) { c.Currency = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

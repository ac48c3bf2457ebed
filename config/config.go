/*
Package config loads ledgerctl and sandbox settings.

PURPOSE:
  One Config struct filled by viper from (highest priority first):
    1. Command-line flags bound with LoadWithFlags
    2. LEDGER_* environment variables
    3. An optional YAML config file
    4. Defaults below

KEYS:
  base_url        Remote API root                 http://localhost:5000
  timeout         Per-request HTTP timeout        30s
  log_level       zerolog level                   info
  log_format      console | json                  console
  snapshot_db     SQLite snapshot file, "" = off  ledger.db
  snapshot_keep   Snapshots kept after pruning    50
  currency        ISO code for price formatting   COP
  output_dir      Where invoices/exports land     .
  watch_interval  Refresh period for watch        1m
  sandbox_port    Sandbox listen port             5000
  cors_origins    Sandbox CORS allow-list         http://localhost:5173,http://localhost:8080

SEE ALSO:
  - cmd/ledgerctl: Binds persistent flags
  - cmd/sandbox: Reads sandbox_port and cors_origins
*/
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable.
const EnvPrefix = "LEDGER"

type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LogLevel      string        `mapstructure:"log_level"`
	LogFormat     string        `mapstructure:"log_format"`
	SnapshotDB    string        `mapstructure:"snapshot_db"`
	SnapshotKeep  int           `mapstructure:"snapshot_keep"`
	Currency      string        `mapstructure:"currency"`
	OutputDir     string        `mapstructure:"output_dir"`
	WatchInterval time.Duration `mapstructure:"watch_interval"`
	SandboxPort   int           `mapstructure:"sandbox_port"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"base-url":       "base_url",
	"timeout":        "timeout",
	"log-level":      "log_level",
	"log-format":     "log_format",
	"snapshot-db":    "snapshot_db",
	"currency":       "currency",
	"output-dir":     "output_dir",
	"watch-interval": "watch_interval",
	"port":           "sandbox_port",
}

// Load reads configuration from the environment and, when path is not
// empty, from that file.
func Load(path string) (*Config, error) {
	return LoadWithFlags(path, nil)
}

// LoadWithFlags is Load with explicitly set flags from fs taking precedence.
func LoadWithFlags(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("base_url", "http://localhost:5000")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("snapshot_db", "ledger.db")
	v.SetDefault("snapshot_keep", 50)
	v.SetDefault("currency", "COP")
	v.SetDefault("output_dir", ".")
	v.SetDefault("watch_interval", time.Minute)
	v.SetDefault("sandbox_port", 5000)
	v.SetDefault("cors_origins", "http://localhost:5173,http://localhost:8080")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"base_url", "timeout", "log_level", "log_format", "snapshot_db",
		"snapshot_keep", "currency", "output_dir", "watch_interval",
		"sandbox_port", "cors_origins",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component could work with.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level %q: %w", c.LogLevel, err))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be console or json, got %q", c.LogFormat))
	}
	if c.WatchInterval <= 0 {
		errs = append(errs, fmt.Errorf("watch_interval must be positive, got %s", c.WatchInterval))
	}
	if c.SandboxPort <= 0 || c.SandboxPort > 65535 {
		errs = append(errs, fmt.Errorf("sandbox_port out of range: %d", c.SandboxPort))
	}
	if c.Currency == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	return errors.Join(errs...)
}

// SnapshotsEnabled reports whether refreshed snapshots are persisted.
func (c *Config) SnapshotsEnabled() bool { return c.SnapshotDB != "" }

// splitOrigins accepts both a YAML list and a comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/cleanup"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Claude    ClaudeConfig      `yaml:"claude"`
	Providers ProvidersConfig   `yaml:"providers"`
	State     StateConfig       `yaml:"state"`
	Cleanup   CleanupConfig     `yaml:"cleanup"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Claude.Validate(); err != nil {
		return err
	}
	if err := c.Providers.Validate(); err != nil {
		return err
	}
	if err := c.State.Validate(); err != nil {
		return err
	}
	return c.Cleanup.Validate()
}

// Duration wraps time.Duration so YAML values like "24h" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel string `yaml:"log_level"`
}

// Level parses the configured log level, defaulting to info.
func (c *ApplicationConfig) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

// ClaudeConfig names the assistant binary and its canonical config
// directory, the single source of truth for shared resources and MCP
// server definitions.
type ClaudeConfig struct {
	Command   string `yaml:"command"`
	ConfigDir string `yaml:"config_dir"`
}

// Validate validates the assistant configuration.
func (c *ClaudeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.ConfigDir, validation.Required),
	)
}

// ProvidersConfig holds the path to the provider store file.
type ProvidersConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the provider store configuration.
func (c *ProvidersConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StateConfig holds the path to the persistent state database.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CleanupConfig exposes the cleanup policy's tunable constants. The
// growth-prone path table and reset target list stay fixed in the
// cleanup package.
type CleanupConfig struct {
	SizeCacheTTL     Duration `yaml:"size_cache_ttl"`
	ResetInterval    Duration `yaml:"reset_interval"`
	HistoryKeepRatio float64  `yaml:"history_keep_ratio"`
	SessionKeepRatio float64  `yaml:"session_keep_ratio"`
	MinLines         int      `yaml:"min_lines"`
	SessionMaxBytes  int64    `yaml:"session_max_bytes"`
}

// Validate validates the cleanup configuration.
func (c *CleanupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HistoryKeepRatio, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.SessionKeepRatio, validation.Required, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.MinLines, validation.Min(1)),
		validation.Field(&c.SessionMaxBytes, validation.Min(int64(1))),
	)
}

// Policy builds the cleanup policy from the configured constants,
// keeping the fixed path tables from the default policy.
func (c *CleanupConfig) Policy() cleanup.Policy {
	p := cleanup.DefaultPolicy()
	p.HistoryKeepRatio = c.HistoryKeepRatio
	p.SessionKeepRatio = c.SessionKeepRatio
	p.MinLines = c.MinLines
	p.SessionMaxBytes = c.SessionMaxBytes
	p.ResetInterval = time.Duration(c.ResetInterval)
	return p
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: "info",
		},
		Claude: ClaudeConfig{
			Command:   "claude",
			ConfigDir: "~/.claude",
		},
		Providers: ProvidersConfig{
			Path: "~/.config/raido/providers.yaml",
		},
		State: StateConfig{
			Path: "~/.local/state/raido/state.db",
		},
		Cleanup: CleanupConfig{
			SizeCacheTTL:     Duration(5 * time.Second),
			ResetInterval:    Duration(24 * time.Hour),
			HistoryKeepRatio: 0.3,
			SessionKeepRatio: 0.2,
			MinLines:         10,
			SessionMaxBytes:  10 << 20,
		},
	}
}

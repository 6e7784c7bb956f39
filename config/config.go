// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the relay.
//
// Configuration is loaded from a single YAML file specified by:
//   - TELEBRIDGE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// Unlike a long-running service, the relay runs as a hook inside an
// interactive session and must work with zero setup: when no config
// file is named, the built-in defaults apply as-is. When a file is
// named it must exist and parse; a broken config never degrades
// silently to defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the relay configuration.
type Config struct {
	// Tmux configures how the terminal session is located.
	Tmux TmuxConfig `yaml:"tmux"`

	// Capture configures the screen snapshot taken before delivery.
	Capture CaptureConfig `yaml:"capture"`

	// Signal configures pending-signal expiry.
	Signal SignalConfig `yaml:"signal"`

	// Response configures response extraction.
	Response ResponseConfig `yaml:"response"`

	// Telegram configures message delivery.
	Telegram TelegramConfig `yaml:"telegram"`

	// State configures the on-disk signal and binding store.
	State StateConfig `yaml:"state"`

	// SettingsFile is the path to the user settings file shared with
	// the chat-side tooling. Comment-tolerant JSON.
	SettingsFile string `yaml:"settings_file"`
}

// TmuxConfig configures terminal session lookup.
type TmuxConfig struct {
	// Session is the session name assumed when no explicit binding has
	// been recorded. Default: "claude".
	Session string `yaml:"session"`

	// Socket is an explicit tmux server socket path. Empty means the
	// user's default server.
	Socket string `yaml:"socket"`
}

// CaptureConfig configures the pane snapshot.
type CaptureConfig struct {
	// Lines is how many trailing pane lines to capture. Default: 40.
	Lines int `yaml:"lines"`

	// SettleDelay is how long to wait before capturing, so a repaint
	// that is still in flight when the hook fires can finish.
	// Duration string. Default: 300ms.
	SettleDelay string `yaml:"settle_delay"`
}

// SignalConfig configures pending-signal expiry.
type SignalConfig struct {
	// TTL is how long a pending signal stays actionable. A hook firing
	// strictly later than this after the chat message arrived is
	// treated as unrelated terminal activity. Duration string.
	// Default: 600s.
	TTL string `yaml:"ttl"`
}

// ResponseConfig configures response extraction.
type ResponseConfig struct {
	// MaxRunes is the truncation threshold for the extracted response
	// text, in Unicode code points. Default: 4000, leaving headroom
	// under Telegram's 4096 hard limit for formatting entities.
	MaxRunes int `yaml:"max_runes"`
}

// TelegramConfig configures message delivery.
type TelegramConfig struct {
	// TokenEnv is the environment variable holding the bot token.
	// Default: TELEGRAM_BOT_TOKEN. The token itself never lives in the
	// config file.
	TokenEnv string `yaml:"token_env"`

	// BaseURL overrides the Bot API endpoint. Empty means the hosted
	// API.
	BaseURL string `yaml:"base_url"`
}

// StateConfig configures the signal and binding store.
type StateConfig struct {
	// Database is the SQLite database path. Default:
	// ${HOME}/.local/state/telebridge/state.db.
	Database string `yaml:"database"`
}

// Default returns the default configuration. The relay is expected to
// run with these untouched in the common case.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Tmux: TmuxConfig{
			Session: "claude",
		},
		Capture: CaptureConfig{
			Lines:       40,
			SettleDelay: "300ms",
		},
		Signal: SignalConfig{
			TTL: "600s",
		},
		Response: ResponseConfig{
			MaxRunes: 4000,
		},
		Telegram: TelegramConfig{
			TokenEnv: "TELEGRAM_BOT_TOKEN",
		},
		State: StateConfig{
			Database: filepath.Join(homeDir, ".local", "state", "telebridge", "state.db"),
		},
		SettingsFile: filepath.Join(homeDir, ".claude", "telegram_settings.json"),
	}
}

// Load loads configuration from the path in TELEBRIDGE_CONFIG, or
// returns the defaults when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("TELEBRIDGE_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging the
// file's values over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Tmux.Session == "" {
		errs = append(errs, fmt.Errorf("tmux.session is required"))
	}
	if c.Capture.Lines <= 0 {
		errs = append(errs, fmt.Errorf("capture.lines must be positive"))
	}
	if _, err := time.ParseDuration(c.Capture.SettleDelay); err != nil {
		errs = append(errs, fmt.Errorf("capture.settle_delay: %w", err))
	}
	if _, err := time.ParseDuration(c.Signal.TTL); err != nil {
		errs = append(errs, fmt.Errorf("signal.ttl: %w", err))
	}
	if c.Response.MaxRunes <= 0 {
		errs = append(errs, fmt.Errorf("response.max_runes must be positive"))
	}
	if c.Telegram.TokenEnv == "" {
		errs = append(errs, fmt.Errorf("telegram.token_env is required"))
	}
	if c.State.Database == "" {
		errs = append(errs, fmt.Errorf("state.database is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SettleDelay returns the parsed capture settle delay. Call Validate
// first; an unparseable value falls back to the default here.
func (c *Config) SettleDelay() time.Duration {
	parsed, err := time.ParseDuration(c.Capture.SettleDelay)
	if err != nil {
		return 300 * time.Millisecond
	}
	return parsed
}

// SignalTTL returns the parsed pending-signal TTL.
func (c *Config) SignalTTL() time.Duration {
	parsed, err := time.ParseDuration(c.Signal.TTL)
	if err != nil {
		return 600 * time.Second
	}
	return parsed
}

// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// telebridge-relay forwards the finished output of a terminal-hosted
// coding session to the Telegram chat that asked for it. It is
// registered as a Stop hook: the CLI tool spawns it when a turn
// completes, passing the event as JSON on stdin, and it decides
// whether that turn was chat-initiated and still deliverable.
//
// The binary also installs itself: "telebridge-relay install" writes
// the Stop hook registration into .claude/settings.local.json in the
// project directory.
//
// A hook handler must never disturb the session it observes, so apart
// from usage errors the process always exits 0; failures go to the
// structured log on stderr and the chat user simply sees no message.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/telebridge/telebridge/config"
	"github.com/telebridge/telebridge/lib/tmux"
	"github.com/telebridge/telebridge/relay"
	"github.com/telebridge/telebridge/state"
	"github.com/telebridge/telebridge/telegram"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "install" {
		if err := runInstall(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "telebridge-relay install:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(os.Args[1:], os.Stdin); err != nil {
		// Log and exit clean: a failing hook must not block the
		// session's own flow.
		fmt.Fprintln(os.Stderr, "telebridge-relay:", err)
	}
}

func run(args []string, stdin io.Reader) error {
	flags := pflag.NewFlagSet("telebridge-relay", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file (default: $TELEBRIDGE_CONFIG or built-in defaults)")
	verbose := flags.Bool("verbose", false, "log at debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Token and overrides may live in an env file next to the user's
	// other bot credentials. Best-effort: absence is normal.
	loadEnvFiles()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		// A broken settings file only costs the verbose flag.
		fmt.Fprintln(os.Stderr, "telebridge-relay:", err)
	}

	logLevel := slog.LevelInfo
	if *verbose || settings.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	event, err := readHookEvent(stdin)
	if err != nil {
		return err
	}

	token := os.Getenv(cfg.Telegram.TokenEnv)
	if token == "" {
		return fmt.Errorf("%s is not set, cannot deliver", cfg.Telegram.TokenEnv)
	}

	store, err := state.Open(cfg.State.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	sender, err := telegram.NewClient(telegram.Config{
		BaseURL: cfg.Telegram.BaseURL,
		Token:   token,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	relayInstance, err := relay.New(relay.Config{
		Store:          store,
		Terminal:       tmux.NewServer(cfg.Tmux.Socket),
		Sender:         sender,
		Logger:         logger,
		DefaultSession: cfg.Tmux.Session,
		SettleDelay:    cfg.SettleDelay(),
		CaptureLines:   cfg.Capture.Lines,
		SignalTTL:      cfg.SignalTTL(),
		MaxRunes:       cfg.Response.MaxRunes,
	})
	if err != nil {
		return err
	}

	outcome, err := relayInstance.Run(context.Background(), *event)
	if err != nil {
		return err
	}
	logger.Info("relay finished",
		"outcome", outcome.String(),
		"discharged", outcome.Discharged(),
		"session_id", event.SessionID,
	)
	return nil
}

// loadConfig resolves the --config flag against the TELEBRIDGE_CONFIG
// environment variable. The flag wins.
func loadConfig(flagPath string) (*config.Config, error) {
	if flagPath != "" {
		return config.LoadFile(flagPath)
	}
	return config.Load()
}

// loadEnvFiles loads .env from the working directory and
// ~/.telebridge.env, without overriding variables already set.
func loadEnvFiles() {
	_ = godotenv.Load()
	if homeDir, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(homeDir, ".telebridge.env"))
	}
}

// readHookEvent reads and parses the completion event from stdin.
func readHookEvent(reader io.Reader) (*relay.HookEvent, error) {
	var event relay.HookEvent
	if err := json.NewDecoder(reader).Decode(&event); err != nil {
		return nil, fmt.Errorf("parsing hook event JSON: %w", err)
	}
	if event.TranscriptPath == "" {
		return nil, fmt.Errorf("hook event has no transcript_path")
	}
	return &event, nil
}

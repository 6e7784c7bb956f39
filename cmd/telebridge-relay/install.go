// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
)

// hookTimeoutSeconds bounds the Stop hook from the CLI tool's side.
// The relay's own network timeout is shorter; this is the outer limit
// covering the settle delay and the pane capture as well.
const hookTimeoutSeconds = 30

// runInstall writes the Stop hook registration into
// .claude/settings.local.json in the project directory. Existing
// settings are preserved: only the Stop hook list is replaced.
func runInstall(args []string) error {
	flags := pflag.NewFlagSet("telebridge-relay install", pflag.ContinueOnError)
	directory := flags.String("dir", "", "project directory (default: current directory)")
	binaryPath := flags.String("binary", "", "hook command path (default: this executable)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *directory == "" {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		*directory = workingDirectory
	}
	if *binaryPath == "" {
		executable, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving executable path: %w", err)
		}
		*binaryPath = executable
	}

	settingsPath, err := writeHookSettings(*directory, *binaryPath)
	if err != nil {
		return err
	}
	fmt.Println("Stop hook registered in", settingsPath)
	return nil
}

// stopHookEntry is the hooks.Stop registration for this binary.
func stopHookEntry(binaryPath string) map[string]any {
	return map[string]any{
		"hooks": []any{
			map[string]any{
				"type":    "command",
				"command": binaryPath,
				"timeout": hookTimeoutSeconds,
			},
		},
	}
}

// writeHookSettings merges the Stop hook registration into
// .claude/settings.local.json under the given project directory,
// creating the file and directory as needed. Returns the settings
// file path.
func writeHookSettings(projectDirectory, binaryPath string) (string, error) {
	settingsDirectory := filepath.Join(projectDirectory, ".claude")
	if err := os.MkdirAll(settingsDirectory, 0o755); err != nil {
		return "", fmt.Errorf("creating .claude directory: %w", err)
	}
	settingsPath := filepath.Join(settingsDirectory, "settings.local.json")

	settings := map[string]any{}
	existing, err := os.ReadFile(settingsPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(jsonc.ToJSON(existing), &settings); err != nil {
			return "", fmt.Errorf("parsing existing %s: %w", settingsPath, err)
		}
	case !os.IsNotExist(err):
		return "", fmt.Errorf("reading %s: %w", settingsPath, err)
	}

	hooks, _ := settings["hooks"].(map[string]any)
	if hooks == nil {
		hooks = map[string]any{}
	}
	hooks["Stop"] = []any{stopHookEntry(binaryPath)}
	settings["hooks"] = hooks

	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.WriteFile(settingsPath, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", settingsPath, err)
	}
	return settingsPath, nil
}

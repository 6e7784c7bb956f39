// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// Settings is the user settings file shared between the relay and the
// chat-side tooling. The chat side toggles these with bot commands and
// rewrites the file; the relay only reads it. Hand-edited copies often
// carry comments and trailing commas, so parsing goes through a jsonc
// pass first. Unknown keys are ignored.
type Settings struct {
	// Verbose raises the relay's log level to debug.
	Verbose bool `json:"verbose"`

	// Coauthor and Signature govern the prefix the chat side attaches
	// to prompts it forwards into the session. The relay decodes the
	// full file shape but does not act on them.
	Coauthor  bool `json:"coauthor"`
	Signature bool `json:"signature"`
}

// DefaultSettings returns the settings assumed when no file exists.
func DefaultSettings() Settings {
	return Settings{
		Verbose:   false,
		Coauthor:  true,
		Signature: true,
	}
}

// LoadSettings reads the settings file at path. A missing file is not
// an error: the defaults apply. A present but unreadable or
// unparseable file is reported.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("reading settings: %w", err)
	}

	if err := json.Unmarshal(jsonc.ToJSON(data), &settings); err != nil {
		return settings, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return settings, nil
}

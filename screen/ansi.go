// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package screen

import "regexp"

// ansiPattern matches CSI sequences, OSC sequences (terminated by
// BEL), and charset selection sequences — the escape forms the hosted
// tool's renderer emits.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\].*?\x07|\x1b[()][AB012]`)

// StripANSI removes terminal escape sequences from text. Pane captures
// taken with tmux's plain-text mode usually contain none, but markers
// must match even when a capture path preserves styling.
func StripANSI(text string) string {
	return ansiPattern.ReplaceAllString(text, "")
}

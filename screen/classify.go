// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package screen classifies a terminal display snapshot into the three
// states the relay cares about: ready for input, still streaming, or
// showing a modal selection prompt.
//
// Classification is textual pattern matching against the footer the
// hosted tool renders, which makes it a fragile external-observation
// classifier coupled to exact rendered strings. It is therefore kept
// behind the Classifier interface and driven entirely by captured
// snapshot fixtures in tests, so an upstream footer change is a
// one-place fix.
package screen

import "strings"

// State is the classified condition of the terminal display at one
// instant.
type State int

const (
	// StateBusy means neither readiness marker is visible: the tool is
	// still streaming output, or the display shows something the
	// classifier does not recognize. The relay treats unknown as busy.
	StateBusy State = iota

	// StateIdle means the tool is genuinely waiting for free-form
	// input: the navigation-hint footer is visible with no modal
	// prompt.
	StateIdle

	// StateSubprompt means a modal selection prompt is on screen. The
	// turn is not answerable yet — a later completion event will see
	// the resolved state.
	StateSubprompt
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubprompt:
		return "subprompt"
	default:
		return "busy"
	}
}

// Classifier decides the display state from a snapshot of the pane's
// visible text.
type Classifier interface {
	Classify(snapshot string) State
}

// footerWindow is how many trailing lines are inspected for markers.
// The footer is always within the last few visible lines; scanning the
// whole pane would false-match marker text quoted in conversation
// output.
const footerWindow = 6

// Footer markers. The modal marker is checked first: the selection
// prompt's footer also contains the navigation hint, and a modal
// display must never classify as idle. The streaming footer ("esc to
// interrupt") contains neither marker and falls through to busy.
const (
	markerSubprompt = "Esc to cancel"
	markerIdle      = "to navigate"
)

// MarkerClassifier classifies by fixed footer substrings. The zero
// value uses the markers the hosted tool currently renders.
type MarkerClassifier struct{}

// Classify inspects the trailing lines of the snapshot. ANSI escape
// sequences are stripped first so markers match regardless of how the
// footer is styled.
func (MarkerClassifier) Classify(snapshot string) State {
	lines := trailingLines(StripANSI(snapshot), footerWindow)

	for _, line := range lines {
		if strings.Contains(line, markerSubprompt) {
			return StateSubprompt
		}
	}
	for _, line := range lines {
		if strings.Contains(line, markerIdle) {
			return StateIdle
		}
	}
	return StateBusy
}

// trailingLines returns the last n non-empty lines of text, oldest
// first.
func trailingLines(text string, n int) []string {
	all := strings.Split(text, "\n")
	var lines []string
	for i := len(all) - 1; i >= 0 && len(lines) < n; i-- {
		if strings.TrimSpace(all[i]) == "" {
			continue
		}
		lines = append(lines, all[i])
	}
	// Reverse into display order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines
}

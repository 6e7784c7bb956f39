// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package transcript reads Claude Code's append-only JSONL transcript
// and extracts the assistant text produced since the last genuine user
// turn. The transcript path arrives with the completion event; the
// relay never writes to it.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Roles and block kinds used in transcript records. Only the ones the
// extractor inspects are named; everything else passes through as
// opaque.
const (
	entryTypeUser      = "user"
	entryTypeAssistant = "assistant"

	blockKindText       = "text"
	blockKindToolResult = "tool_result"
)

// Entry is one transcript record: a user turn, an assistant turn, or
// bookkeeping the extractor ignores.
type Entry struct {
	Type    string  `json:"type"`
	UUID    string  `json:"uuid"`
	IsMeta  bool    `json:"isMeta"`
	Message Message `json:"message"`
}

// Message carries the role and content of a turn.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// Content is a turn's content: either a bare string (older records) or
// an ordered list of kind-tagged blocks. A bare string decodes as a
// single text block so callers see one shape.
type Content struct {
	Blocks []Block
}

// Block is one content segment. Only text blocks carry extractable
// content; tool results, tool calls, and thinking blocks are tracked
// by kind alone.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON accepts both content encodings.
func (c *Content) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		c.Blocks = []Block{{Type: blockKindText, Text: plain}}
		return nil
	}
	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content is neither string nor block list: %w", err)
	}
	c.Blocks = blocks
	return nil
}

// ReadFile parses a JSONL transcript. Malformed lines are skipped —
// the file is written concurrently by the CLI tool, and a torn final
// line is normal, not fatal.
func ReadFile(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	// Assistant turns routinely exceed bufio's 64KiB default line limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if json.Unmarshal(line, &entry) != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return entries, nil
}

// isGenuineUserTurn reports whether an entry is a real user message:
// role user, carrying actual text, and not a tool-result echo (the CLI
// records tool results as user-role entries, which do not start a new
// conversational turn).
func isGenuineUserTurn(entry Entry) bool {
	if entry.Type != entryTypeUser || entry.IsMeta {
		return false
	}
	hasText := false
	for _, block := range entry.Message.Content.Blocks {
		switch block.Type {
		case blockKindToolResult:
			return false
		case blockKindText:
			if strings.TrimSpace(block.Text) != "" {
				hasText = true
			}
		}
	}
	return hasText
}

// Response returns the assistant text produced after the last genuine
// user turn: the text blocks of every subsequent assistant entry, in
// transcript order, joined by blank lines. Returns "" when no genuine
// user turn exists or no assistant text follows it.
//
// The function is pure over its input: the same entries always yield
// the same text.
func Response(entries []Entry) string {
	lastUser := -1
	for i, entry := range entries {
		if isGenuineUserTurn(entry) {
			lastUser = i
		}
	}
	if lastUser < 0 {
		return ""
	}

	var parts []string
	for _, entry := range entries[lastUser+1:] {
		if entry.Type != entryTypeAssistant {
			continue
		}
		for _, block := range entry.Message.Content.Blocks {
			if block.Type != blockKindText {
				continue
			}
			if text := strings.TrimSpace(block.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// TurnID identifies the last genuine user turn: its record UUID, or
// its position in the transcript when the record carries none (the
// transcript is append-only, so positions of existing records are
// stable). Returns "" when no genuine user turn exists. Two reads of
// the same turn yield the same ID; a new turn always yields a new one,
// even when its reply text is identical to the previous turn's.
func TurnID(entries []Entry) string {
	lastUser := -1
	for i, entry := range entries {
		if isGenuineUserTurn(entry) {
			lastUser = i
		}
	}
	if lastUser < 0 {
		return ""
	}
	if uuid := entries[lastUser].UUID; uuid != "" {
		return uuid
	}
	return strconv.Itoa(lastUser)
}

// Truncate limits text to maxRunes runes, marker included. Telegram
// rejects oversized messages outright, so the cut happens here rather
// than at delivery time.
func Truncate(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 1 {
		return "…"
	}
	return string(runes[:maxRunes-1]) + "…"
}

// ProjectDirName returns the base name of the transcript's parent
// directory. Transcripts live under a directory keyed by the project
// path with every path separator replaced by a dash (for example
// /home/user/proj → -home-user-proj), which the membership guard
// compares against the bound session's working directory.
func ProjectDirName(transcriptPath string) string {
	name := filepath.Base(filepath.Dir(transcriptPath))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// EncodePath applies the same slash-to-dash encoding the CLI uses for
// its per-project transcript directories.
func EncodePath(projectPath string) string {
	return strings.ReplaceAll(projectPath, string(filepath.Separator), "-")
}

// MatchesProjectDir reports whether a working directory corresponds to
// the transcript directory name. Both the leading-dash form and the
// stripped form are accepted, matching how the CLI names the
// directories across versions.
func MatchesProjectDir(directoryName, workingDirectory string) bool {
	encoded := EncodePath(workingDirectory)
	stripped := strings.TrimLeft(encoded, "-")
	return directoryName == encoded || directoryName == stripped || directoryName == "-"+stripped
}

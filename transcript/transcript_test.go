// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTranscript(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("writing transcript fixture: %v", err)
	}
	return path
}

const (
	userHello = `{"type":"user","message":{"role":"user","content":"run the tests"}}`
	toolEcho  = `{"type":"user","message":{"role":"user","content":[{"type":"tool_result","content":"ok"}]}}`
	toolUse   = `{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","name":"Bash"}]}}`
	metaLine  = `{"type":"user","isMeta":true,"message":{"role":"user","content":"caveat: local commands"}}`
)

func assistantText(text string) string {
	return `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"` + text + `"}]}}`
}

func TestResponse(t *testing.T) {
	t.Parallel()

	t.Run("collects assistant text after last user turn", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t,
			userHello,
			toolUse,
			toolEcho,
			assistantText("Hello"),
			assistantText("world"),
		)
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		got := Response(entries)
		if got != "Hello\n\nworld" {
			t.Fatalf("Response = %q", got)
		}
	})

	t.Run("tool result echo does not reset the turn pointer", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t,
			assistantText("stale answer"),
			userHello,
			assistantText("first"),
			toolEcho,
			assistantText("second"),
		)
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		// The tool echo sits between two assistant entries; both belong
		// to the turn that started at userHello.
		if got := Response(entries); got != "first\n\nsecond" {
			t.Fatalf("Response = %q", got)
		}
	})

	t.Run("meta entries are not user turns", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t,
			userHello,
			assistantText("real answer"),
			metaLine,
		)
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if got := Response(entries); got != "real answer" {
			t.Fatalf("Response = %q", got)
		}
	})

	t.Run("no user turn yields empty", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t, assistantText("orphan"), toolEcho)
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if got := Response(entries); got != "" {
			t.Fatalf("Response = %q, want empty", got)
		}
	})

	t.Run("no assistant text after user turn yields empty", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t, assistantText("before"), userHello, toolUse)
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if got := Response(entries); got != "" {
			t.Fatalf("Response = %q, want empty", got)
		}
	})

	t.Run("extraction is idempotent", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t, userHello, assistantText("same"))
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		first := Response(entries)
		second := Response(entries)
		if first != second {
			t.Fatalf("Response not idempotent: %q then %q", first, second)
		}
	})

	t.Run("malformed lines are skipped", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t,
			userHello,
			`{"type":"assistant","message":{"role":`,
			assistantText("survived"),
		)
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if got := Response(entries); got != "survived" {
			t.Fatalf("Response = %q", got)
		}
	})

	t.Run("bare string content decodes", func(t *testing.T) {
		t.Parallel()
		path := writeTranscript(t,
			userHello,
			`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"list form"}]}}`,
		)
		entries, err := ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if len(entries) != 2 || entries[0].Message.Content.Blocks[0].Text != "run the tests" {
			t.Fatalf("unexpected entries: %+v", entries)
		}
	})
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	t.Run("short text passes through", func(t *testing.T) {
		t.Parallel()
		if got := Truncate("hello", 10); got != "hello" {
			t.Fatalf("Truncate = %q", got)
		}
	})

	t.Run("long text is cut with marker inside the limit", func(t *testing.T) {
		t.Parallel()
		got := Truncate(strings.Repeat("x", 5000), 4000)
		if runeCount := len([]rune(got)); runeCount != 4000 {
			t.Fatalf("truncated length = %d runes", runeCount)
		}
		if !strings.HasSuffix(got, "…") {
			t.Fatalf("missing truncation marker: %q", got[len(got)-8:])
		}
	})

	t.Run("multibyte text counts runes not bytes", func(t *testing.T) {
		t.Parallel()
		got := Truncate(strings.Repeat("é", 100), 50)
		if runeCount := len([]rune(got)); runeCount != 50 {
			t.Fatalf("truncated length = %d runes", runeCount)
		}
	})
}

func TestProjectDirMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		directoryName    string
		workingDirectory string
		want             bool
	}{
		{"leading dash form", "-home-user-proj", "/home/user/proj", true},
		{"stripped form", "home-user-proj", "/home/user/proj", true},
		{"different project", "-home-user-other", "/home/user/proj", false},
		{"nested path mismatch", "-home-user", "/home/user/proj", false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := MatchesProjectDir(test.directoryName, test.workingDirectory)
			if got != test.want {
				t.Errorf("MatchesProjectDir(%q, %q) = %v, want %v",
					test.directoryName, test.workingDirectory, got, test.want)
			}
		})
	}
}

func TestTurnID(t *testing.T) {
	t.Parallel()

	t.Run("uses the user record uuid", func(t *testing.T) {
		t.Parallel()
		entries := []Entry{
			{Type: "user", UUID: "aaa", Message: Message{Role: "user", Content: Content{Blocks: []Block{{Type: "text", Text: "first"}}}}},
			{Type: "user", UUID: "bbb", Message: Message{Role: "user", Content: Content{Blocks: []Block{{Type: "text", Text: "second"}}}}},
		}
		if got := TurnID(entries); got != "bbb" {
			t.Errorf("TurnID = %q, want bbb", got)
		}
	})

	t.Run("falls back to position without a uuid", func(t *testing.T) {
		t.Parallel()
		entries := []Entry{
			{Type: "assistant"},
			{Type: "user", Message: Message{Role: "user", Content: Content{Blocks: []Block{{Type: "text", Text: "hi"}}}}},
		}
		if got := TurnID(entries); got != "1" {
			t.Errorf("TurnID = %q, want 1", got)
		}
	})

	t.Run("empty without a genuine user turn", func(t *testing.T) {
		t.Parallel()
		entries := []Entry{{Type: "assistant"}}
		if got := TurnID(entries); got != "" {
			t.Errorf("TurnID = %q, want empty", got)
		}
	})

	t.Run("stable across re-reads, distinct across turns", func(t *testing.T) {
		t.Parallel()
		first := []Entry{
			{Type: "user", Message: Message{Role: "user", Content: Content{Blocks: []Block{{Type: "text", Text: "one"}}}}},
			{Type: "assistant"},
		}
		if TurnID(first) != TurnID(first) {
			t.Error("same transcript must yield the same turn ID")
		}
		extended := append(append([]Entry{}, first...),
			Entry{Type: "user", Message: Message{Role: "user", Content: Content{Blocks: []Block{{Type: "text", Text: "two"}}}}},
		)
		if TurnID(first) == TurnID(extended) {
			t.Error("a new turn must yield a new turn ID")
		}
	})
}

func TestProjectDirName(t *testing.T) {
	t.Parallel()
	got := ProjectDirName("/home/user/.claude/projects/-home-user-proj/abc123.jsonl")
	if got != "-home-user-proj" {
		t.Fatalf("ProjectDirName = %q", got)
	}
	// A bare filename has no project directory to compare against.
	if got := ProjectDirName("abc123.jsonl"); got != "" {
		t.Fatalf("ProjectDirName on bare filename = %q, want empty", got)
	}
}

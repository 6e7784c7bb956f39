// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package tmux

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTailString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"empty", "", 3, ""},
		{"fewer lines than n", "a\nb\n", 5, "a\nb\n"},
		{"exact count", "a\nb\nc\n", 3, "a\nb\nc\n"},
		{"truncates to last n", "a\nb\nc\nd\n", 2, "c\nd\n"},
		{"no trailing newline", "a\nb\nc", 2, "b\nc"},
		{"single line", "only\n", 1, "only\n"},
		{"trailing newline not an extra line", "a\nb\n", 2, "a\nb\n"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := tailString(test.input, test.n)
			if got != test.want {
				t.Errorf("tailString(%q, %d) = %q, want %q",
					test.input, test.n, got, test.want)
			}
		})
	}
}

// installFakeTmux puts a shell script named tmux at the front of PATH
// so run() can be exercised without a live server. Not parallel-safe:
// it rewrites PATH for the test's duration.
func installFakeTmux(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tmux")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("writing fake tmux: %v", err)
	}
	t.Setenv("PATH", dir)
}

// Diagnostics tmux prints to stderr during a successful command must
// never leak into the captured pane content.
func TestRunKeepsStderrOutOfOutput(t *testing.T) {
	installFakeTmux(t, `echo "pane line one"
echo "pane line two"
echo "warning: terminal lacks focus reporting" >&2
exit 0`)

	output, err := NewServer("").CapturePane("main", 0)
	if err != nil {
		t.Fatalf("CapturePane: %v", err)
	}
	if output != "pane line one\npane line two\n" {
		t.Errorf("captured output = %q", output)
	}
	if strings.Contains(output, "warning") {
		t.Errorf("stderr leaked into pane capture: %q", output)
	}
}

func TestRunReportsStderrOnFailure(t *testing.T) {
	installFakeTmux(t, `echo "no server running on /tmp/tmux-0/default" >&2
exit 1`)

	_, err := NewServer("").CapturePane("main", 0)
	if err == nil {
		t.Fatal("expected error from failing tmux")
	}
	if !strings.Contains(err.Error(), "no server running") {
		t.Errorf("error does not carry stderr: %v", err)
	}
}

func TestServerSocketFlag(t *testing.T) {
	t.Parallel()

	t.Run("default server has empty socket", func(t *testing.T) {
		t.Parallel()
		server := NewServer("")
		if server.SocketPath() != "" {
			t.Fatalf("SocketPath() = %q, want empty", server.SocketPath())
		}
	})

	t.Run("explicit socket is preserved", func(t *testing.T) {
		t.Parallel()
		server := NewServer("/tmp/telebridge-test.sock")
		if server.SocketPath() != "/tmp/telebridge-test.sock" {
			t.Fatalf("SocketPath() = %q", server.SocketPath())
		}
	})
}

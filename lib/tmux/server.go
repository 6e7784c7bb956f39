// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package tmux provides a typed interface to the tmux server hosting
// the Claude Code session. Unlike a dedicated-server design, telebridge
// observes the user's own tmux: by default no socket is specified and
// tmux resolves its standard socket, but an explicit socket path can be
// injected for tests or unusual setups. All commands go through Server,
// which adds the -S flag when a socket is configured, so a configured
// socket can never be silently dropped from an invocation.
//
// The relay only observes: it captures pane contents and resolves
// session identity and working directories. It never creates sessions
// or injects keys — that is the inbound collaborator's job.
package tmux

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Server represents a tmux server. An empty socket path targets the
// user's default server.
type Server struct {
	socketPath string
}

// NewServer returns a Server. Pass an empty socketPath to target the
// default tmux server (the normal production configuration); pass an
// explicit socket path to target a private server, which test setups
// use to avoid touching the user's sessions.
func NewServer(socketPath string) *Server {
	return &Server{socketPath: socketPath}
}

// SocketPath returns the configured socket path, or "" for the default
// server.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// run executes a tmux subcommand and returns its stdout. The -S flag
// is prepended when a socket path is configured. Stderr is kept out of
// the returned output — a warning printed during a successful
// capture-pane must not end up in the snapshot — and is reported only
// as part of the error message.
func (s *Server) run(args ...string) (string, error) {
	fullArgs := args
	if s.socketPath != "" {
		fullArgs = append([]string{"-S", s.socketPath}, args...)
	}
	cmd := exec.Command("tmux", fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w (%s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// CapturePane captures the visible content of the named session's
// active pane as plain text (no escape sequences; tmux renders the
// pane's cell grid). maxLines limits the result to the last N lines;
// pass 0 for the whole visible pane.
//
// Only the visible area is captured, not scrollback: the relay
// classifies what the display currently shows, and history would only
// add stale footer text to mismatch against.
func (s *Server) CapturePane(sessionName string, maxLines int) (string, error) {
	output, err := s.run("capture-pane", "-t", sessionName, "-p")
	if err != nil {
		return "", err
	}
	if maxLines <= 0 {
		return output, nil
	}
	return tailString(output, maxLines), nil
}

// CurrentPath returns the working directory of the named session's
// active pane, from #{pane_current_path}.
func (s *Server) CurrentPath(sessionName string) (string, error) {
	output, err := s.run("display-message", "-t", sessionName, "-p", "#{pane_current_path}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// InvokingSession resolves the session name of the pane this process
// is running inside, using the TMUX_PANE environment variable that
// tmux sets for every process it hosts. Returns an error when the
// process is not inside a tmux pane — for the relay that means the
// completion event cannot belong to the bound session.
func (s *Server) InvokingSession() (string, error) {
	paneID := os.Getenv("TMUX_PANE")
	if paneID == "" {
		return "", fmt.Errorf("not inside a tmux pane (TMUX_PANE unset)")
	}
	output, err := s.run("display-message", "-t", paneID, "-p", "#{session_name}")
	if err != nil {
		return "", fmt.Errorf("resolving session for pane %s: %w", paneID, err)
	}
	name := strings.TrimSpace(output)
	if name == "" {
		return "", fmt.Errorf("pane %s has no session name", paneID)
	}
	return name, nil
}

// tailString returns the last n lines of s, matching tail -n semantics:
// a trailing newline terminates the last line (does not start a new
// one). If s has n or fewer lines, it is returned unchanged.
func tailString(s string, n int) string {
	if len(s) == 0 {
		return s
	}

	searchFrom := len(s) - 1
	if s[searchFrom] == '\n' {
		searchFrom--
	}

	count := 0
	for i := searchFrom; i >= 0; i-- {
		if s[i] == '\n' {
			count++
			if count == n {
				return s[i+1:]
			}
		}
	}
	return s
}

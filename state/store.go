// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Binding keys. The binding table is a small key/value map; these are
// the keys the relay and the collaborator agree on.
const (
	bindingChatID       = "chat_id"
	bindingSessionName  = "session_name"
	bindingLastDelivery = "last_delivery"
)

// Store is a connection to the shared state database. A relay
// invocation opens one Store, uses it for the duration of the run, and
// closes it on exit. Store is not safe for concurrent use — the relay
// is single-goroutine and short-lived, so a single connection suffices.
type Store struct {
	conn   *sqlite.Conn
	logger *slog.Logger
}

// Open opens (creating if necessary) the state database at path. The
// parent directory is created when missing. Use ":memory:" in tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state: path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	// In-memory databases (tests) cannot use WAL journaling.
	flags := []sqlite.OpenFlags{sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenWAL}
	if path == ":memory:" {
		flags = []sqlite.OpenFlags{sqlite.OpenReadWrite, sqlite.OpenCreate, sqlite.OpenMemory}
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: creating directory for %s: %w", path, err)
		}
	}

	conn, err := sqlite.OpenConn(path, flags...)
	if err != nil {
		return nil, fmt.Errorf("state: opening %s: %w", path, err)
	}

	// The collaborator holds its own long-lived connection; a busy
	// timeout covers the write-lock handoff between the two processes.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			conn.Close()
			return nil, fmt.Errorf("state: %s: %w", pragma, err)
		}
	}

	store := &Store{conn: conn, logger: logger}
	if err := store.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

// initSchema creates the tables on first open. The pending table is
// constrained to a single row: there is at most one outstanding
// obligation per bridge instance.
func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS pending (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS binding (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`
	if err := sqlitex.ExecuteScript(s.conn, schema, nil); err != nil {
		return fmt.Errorf("state: initializing schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SetPending records that a chat-initiated turn is awaiting a
// response, created at the given time. An existing signal is replaced —
// the newest turn owns the obligation.
func (s *Store) SetPending(createdAt time.Time) error {
	err := sqlitex.Execute(s.conn,
		`INSERT INTO pending (id, created_at) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET created_at = excluded.created_at`,
		&sqlitex.ExecOptions{Args: []any{createdAt.Unix()}})
	if err != nil {
		return fmt.Errorf("state: setting pending signal: %w", err)
	}
	return nil
}

// Pending returns the pending signal's creation time, and whether a
// signal exists at all.
func (s *Store) Pending() (time.Time, bool, error) {
	var createdAt int64
	var found bool
	err := sqlitex.Execute(s.conn,
		`SELECT created_at FROM pending WHERE id = 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				createdAt = stmt.ColumnInt64(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("state: reading pending signal: %w", err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	return time.Unix(createdAt, 0), true, nil
}

// ClearPendingIf deletes the pending signal only if its creation time
// still matches the one observed earlier in the run. Returns whether a
// row was deleted. A mismatch means the collaborator replaced the
// signal mid-run — the new obligation is left for a later invocation.
func (s *Store) ClearPendingIf(observedAt time.Time) (bool, error) {
	err := sqlitex.Execute(s.conn,
		`DELETE FROM pending WHERE id = 1 AND created_at = ?`,
		&sqlitex.ExecOptions{Args: []any{observedAt.Unix()}})
	if err != nil {
		return false, fmt.Errorf("state: clearing pending signal: %w", err)
	}
	cleared := s.conn.Changes() > 0
	if !cleared {
		s.logger.Debug("pending signal changed since observation, left in place")
	}
	return cleared, nil
}

// ClearPending unconditionally deletes the pending signal. Used by the
// collaborator on interrupt; the relay itself always discharges through
// ClearPendingIf.
func (s *Store) ClearPending() error {
	err := sqlitex.Execute(s.conn, `DELETE FROM pending WHERE id = 1`, nil)
	if err != nil {
		return fmt.Errorf("state: clearing pending signal: %w", err)
	}
	return nil
}

// ChatID returns the bound chat identifier, and whether a binding
// exists.
func (s *Store) ChatID() (int64, bool, error) {
	value, found, err := s.binding(bindingChatID)
	if err != nil || !found {
		return 0, false, err
	}
	chatID, parseErr := strconv.ParseInt(value, 10, 64)
	if parseErr != nil {
		return 0, false, fmt.Errorf("state: chat binding %q is not numeric: %w", value, parseErr)
	}
	return chatID, true, nil
}

// SetChatID stores the chat binding.
func (s *Store) SetChatID(chatID int64) error {
	return s.setBinding(bindingChatID, strconv.FormatInt(chatID, 10))
}

// SessionName returns the bound tmux session name, and whether a
// binding exists.
func (s *Store) SessionName() (string, bool, error) {
	return s.binding(bindingSessionName)
}

// SetSessionName stores the session binding.
func (s *Store) SetSessionName(name string) error {
	return s.setBinding(bindingSessionName, name)
}

// LastDeliveryHash returns the content hash of the most recently
// delivered response, and whether one has been recorded.
func (s *Store) LastDeliveryHash() (string, bool, error) {
	return s.binding(bindingLastDelivery)
}

// SetLastDeliveryHash records the content hash of a delivered
// response. A later completion event that extracts identical content
// is a duplicate and is skipped.
func (s *Store) SetLastDeliveryHash(hash string) error {
	return s.setBinding(bindingLastDelivery, hash)
}

func (s *Store) binding(key string) (string, bool, error) {
	var value string
	var found bool
	err := sqlitex.Execute(s.conn,
		`SELECT value FROM binding WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return "", false, fmt.Errorf("state: reading binding %q: %w", key, err)
	}
	return value, found, nil
}

func (s *Store) setBinding(key, value string) error {
	err := sqlitex.Execute(s.conn,
		`INSERT INTO binding (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return fmt.Errorf("state: setting binding %q: %w", key, err)
	}
	return nil
}

// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package state stores the cross-invocation state shared between the
// response relay and the inbound-message collaborator: the pending
// signal (a chat-initiated turn awaiting a response), the chat and
// session bindings, and the hash of the last delivered response.
//
// The original scheme was a handful of flag files with no locking,
// which admitted a race: the collaborator could write a fresh pending
// signal between the relay's read and its final delete, silently
// discarding an obligation. Here the state lives in a single SQLite
// database and the discharge is a compare-and-delete on the signal's
// creation timestamp, so a signal rewritten mid-run survives. The
// observable semantics — presence, age, and per-outcome cleanup — are
// unchanged.
//
// Both processes open the same database file; WAL mode and a busy
// timeout make the brief concurrent access windows safe.
package state

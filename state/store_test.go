// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package state

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPendingSignal(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("absent by default", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		_, found, err := store.Pending()
		if err != nil {
			t.Fatalf("Pending: %v", err)
		}
		if found {
			t.Fatal("Pending reported a signal in an empty store")
		}
	})

	t.Run("set then read round-trips at second precision", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		if err := store.SetPending(createdAt); err != nil {
			t.Fatalf("SetPending: %v", err)
		}
		got, found, err := store.Pending()
		if err != nil || !found {
			t.Fatalf("Pending: found=%v err=%v", found, err)
		}
		if !got.Equal(createdAt) {
			t.Fatalf("Pending = %v, want %v", got, createdAt)
		}
	})

	t.Run("newest signal replaces the old one", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		if err := store.SetPending(createdAt); err != nil {
			t.Fatalf("SetPending: %v", err)
		}
		later := createdAt.Add(time.Minute)
		if err := store.SetPending(later); err != nil {
			t.Fatalf("SetPending (replace): %v", err)
		}
		got, _, err := store.Pending()
		if err != nil {
			t.Fatalf("Pending: %v", err)
		}
		if !got.Equal(later) {
			t.Fatalf("Pending = %v, want %v", got, later)
		}
	})

	t.Run("compare-and-delete discharges a matching signal", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		if err := store.SetPending(createdAt); err != nil {
			t.Fatalf("SetPending: %v", err)
		}
		cleared, err := store.ClearPendingIf(createdAt)
		if err != nil {
			t.Fatalf("ClearPendingIf: %v", err)
		}
		if !cleared {
			t.Fatal("ClearPendingIf did not clear a matching signal")
		}
		if _, found, _ := store.Pending(); found {
			t.Fatal("signal still present after discharge")
		}
	})

	t.Run("compare-and-delete leaves a newer signal in place", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		// The collaborator replaced the signal mid-run.
		newer := createdAt.Add(30 * time.Second)
		if err := store.SetPending(newer); err != nil {
			t.Fatalf("SetPending: %v", err)
		}
		cleared, err := store.ClearPendingIf(createdAt)
		if err != nil {
			t.Fatalf("ClearPendingIf: %v", err)
		}
		if cleared {
			t.Fatal("ClearPendingIf cleared a signal it did not observe")
		}
		got, found, _ := store.Pending()
		if !found || !got.Equal(newer) {
			t.Fatalf("newer signal lost: found=%v at=%v", found, got)
		}
	})
}

func TestBindings(t *testing.T) {
	t.Parallel()

	t.Run("chat binding absent then set", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		if _, found, err := store.ChatID(); err != nil || found {
			t.Fatalf("ChatID on empty store: found=%v err=%v", found, err)
		}
		if err := store.SetChatID(123456789); err != nil {
			t.Fatalf("SetChatID: %v", err)
		}
		chatID, found, err := store.ChatID()
		if err != nil || !found || chatID != 123456789 {
			t.Fatalf("ChatID = %d found=%v err=%v", chatID, found, err)
		}
	})

	t.Run("session binding", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		if err := store.SetSessionName("work"); err != nil {
			t.Fatalf("SetSessionName: %v", err)
		}
		name, found, err := store.SessionName()
		if err != nil || !found || name != "work" {
			t.Fatalf("SessionName = %q found=%v err=%v", name, found, err)
		}
	})

	t.Run("last delivery hash overwrites", func(t *testing.T) {
		t.Parallel()
		store := openTestStore(t)
		if err := store.SetLastDeliveryHash("aaaa"); err != nil {
			t.Fatalf("SetLastDeliveryHash: %v", err)
		}
		if err := store.SetLastDeliveryHash("bbbb"); err != nil {
			t.Fatalf("SetLastDeliveryHash (overwrite): %v", err)
		}
		hash, found, err := store.LastDeliveryHash()
		if err != nil || !found || hash != "bbbb" {
			t.Fatalf("LastDeliveryHash = %q found=%v err=%v", hash, found, err)
		}
	})
}

// A chat binding that is not a whole number is corruption, not a
// value with a numeric prefix.
func TestChatIDRejectsCorruptBinding(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	if err := store.setBinding(bindingChatID, "42abc"); err != nil {
		t.Fatalf("setBinding: %v", err)
	}
	if _, _, err := store.ChatID(); err == nil {
		t.Fatal("expected error for non-numeric chat binding")
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.SetPending(time.Now()); err != nil {
		t.Fatalf("SetPending on fresh database: %v", err)
	}
}

// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject Fake() with deterministic control.
//
// The relay is a one-shot process whose only time dependencies are the
// pending-signal age check and the settle delay before sampling the
// terminal, so the interface is deliberately small: Now and Sleep.
// Anything that needs tickers or timers does not belong in this
// repository.
package clock

import "time"

// Clock provides the current time and a way to pause. Every function
// that would otherwise call time.Now or time.Sleep should accept a
// Clock (or be a method on a struct carrying one) instead.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the calling goroutine for at least duration d.
	// A non-positive d returns immediately.
	Sleep(d time.Duration)
}

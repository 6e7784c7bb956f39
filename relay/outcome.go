// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

// Outcome is the terminal state of one relay run. Skips are silent by
// design: the chat user either gets the response or nothing, and the
// distinction between skip reasons only surfaces in process logs.
type Outcome int

const (
	// OutcomeDelivered means the response reached the chat.
	OutcomeDelivered Outcome = iota

	// OutcomeDeliveryFailed means both the formatted and the plain
	// delivery attempt failed. The signal is discharged anyway.
	OutcomeDeliveryFailed

	// OutcomeSkipNoSignal means no chat-initiated turn was awaiting a
	// response.
	OutcomeSkipNoSignal

	// OutcomeSkipNoChat means a signal existed but no chat binding
	// did, so there was no destination. The signal is left in place.
	OutcomeSkipNoChat

	// OutcomeSkipExpired means the signal outlived its TTL and was
	// discarded without a response.
	OutcomeSkipExpired

	// OutcomeSkipWrongSession means the completion event came from a
	// session other than the one bound to the chat.
	OutcomeSkipWrongSession

	// OutcomeSkipBusy means the pane was still streaming output, or
	// could not be observed. The signal is left in place.
	OutcomeSkipBusy

	// OutcomeSkipSubprompt means the pane showed a modal selection
	// prompt: the turn is not answerable yet. The signal is left in
	// place.
	OutcomeSkipSubprompt

	// OutcomeSkipEmpty means no assistant text followed the last user
	// turn. The obligation is discharged.
	OutcomeSkipEmpty

	// OutcomeSkipDuplicate means the extracted text was already
	// delivered for this turn. The obligation is discharged.
	OutcomeSkipDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDeliveryFailed:
		return "delivery-failed"
	case OutcomeSkipNoSignal:
		return "skip-no-signal"
	case OutcomeSkipNoChat:
		return "skip-no-chat"
	case OutcomeSkipExpired:
		return "skip-expired"
	case OutcomeSkipWrongSession:
		return "skip-wrong-session"
	case OutcomeSkipBusy:
		return "skip-busy"
	case OutcomeSkipSubprompt:
		return "skip-subprompt"
	case OutcomeSkipEmpty:
		return "skip-empty"
	case OutcomeSkipDuplicate:
		return "skip-duplicate"
	default:
		return "unknown"
	}
}

// Discharged reports whether the run consumed the pending signal.
func (o Outcome) Discharged() bool {
	switch o {
	case OutcomeDelivered, OutcomeDeliveryFailed, OutcomeSkipExpired,
		OutcomeSkipEmpty, OutcomeSkipDuplicate:
		return true
	}
	return false
}

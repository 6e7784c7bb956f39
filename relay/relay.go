// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay decides, once per completion event, whether the turn
// that just finished in the terminal session belongs to the bound chat
// and, if so, delivers the assistant's response there exactly once.
//
// The decision chain runs cheapest-first: pending signal, chat
// binding, signal freshness, session identity, screen state, and only
// then transcript extraction and delivery. Every exit either leaves
// the pending signal in place for a later completion event to
// re-evaluate, or discharges it with a compare-and-delete keyed on the
// timestamp this run observed, so a signal written concurrently by the
// inbound side is never consumed by accident.
package relay

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"

	"github.com/telebridge/telebridge/lib/clock"
	"github.com/telebridge/telebridge/markup"
	"github.com/telebridge/telebridge/screen"
	"github.com/telebridge/telebridge/state"
	"github.com/telebridge/telebridge/transcript"
)

// HookEvent is the completion event the hosted CLI tool delivers on
// stdin when a turn finishes.
type HookEvent struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
}

// Terminal is the view of the terminal multiplexer the relay needs.
// *tmux.Server implements it.
type Terminal interface {
	// InvokingSession names the session this process is running
	// inside. Errors when the process is not under the multiplexer.
	InvokingSession() (string, error)

	// CurrentPath reports the working directory of the named
	// session's active pane.
	CurrentPath(sessionName string) (string, error)

	// CapturePane returns the last maxLines visible lines of the
	// named session's active pane.
	CapturePane(sessionName string, maxLines int) (string, error)
}

// Sender delivers a message to the bound chat. *telegram.Client
// implements it.
type Sender interface {
	SendWithFallback(ctx context.Context, chatID int64, htmlText, plainText string) error
}

// Config holds the relay's collaborators and tunables.
type Config struct {
	// Store holds the pending signal and chat/session bindings.
	// Required.
	Store *state.Store

	// Terminal observes the multiplexed session. Required.
	Terminal Terminal

	// Sender delivers to the chat. Required.
	Sender Sender

	// Classifier maps a pane snapshot to a session state. Defaults to
	// screen.MarkerClassifier.
	Classifier screen.Classifier

	// Clock provides time operations. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// DefaultSession is the session name assumed when no session
	// binding has been recorded. Defaults to "claude".
	DefaultSession string

	// SettleDelay is how long to wait before capturing the pane, so
	// the final repaint after the completion event can land. Defaults
	// to 300ms.
	SettleDelay time.Duration

	// CaptureLines is how many trailing pane lines to capture.
	// Defaults to 40.
	CaptureLines int

	// SignalTTL is the maximum actionable age of a pending signal.
	// Strictly older signals are discarded without a response.
	// Defaults to 600s.
	SignalTTL time.Duration

	// MaxRunes is the truncation threshold for the extracted response
	// text. Defaults to 4000.
	MaxRunes int
}

// Relay evaluates completion events. Safe to use for a single run; the
// process is one-shot and all cross-run state lives in the Store.
type Relay struct {
	store          *state.Store
	terminal       Terminal
	sender         Sender
	classifier     screen.Classifier
	clock          clock.Clock
	logger         *slog.Logger
	defaultSession string
	settleDelay    time.Duration
	captureLines   int
	signalTTL      time.Duration
	maxRunes       int
}

// New creates a Relay from the given configuration.
func New(config Config) (*Relay, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("relay: Store is required")
	}
	if config.Terminal == nil {
		return nil, fmt.Errorf("relay: Terminal is required")
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("relay: Sender is required")
	}

	classifier := config.Classifier
	if classifier == nil {
		classifier = screen.MarkerClassifier{}
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultSession := config.DefaultSession
	if defaultSession == "" {
		defaultSession = "claude"
	}
	settleDelay := config.SettleDelay
	if settleDelay == 0 {
		settleDelay = 300 * time.Millisecond
	}
	captureLines := config.CaptureLines
	if captureLines == 0 {
		captureLines = 40
	}
	signalTTL := config.SignalTTL
	if signalTTL == 0 {
		signalTTL = 600 * time.Second
	}
	maxRunes := config.MaxRunes
	if maxRunes == 0 {
		maxRunes = 4000
	}

	return &Relay{
		store:          config.Store,
		terminal:       config.Terminal,
		sender:         config.Sender,
		classifier:     classifier,
		clock:          clk,
		logger:         logger,
		defaultSession: defaultSession,
		settleDelay:    settleDelay,
		captureLines:   captureLines,
		signalTTL:      signalTTL,
		maxRunes:       maxRunes,
	}, nil
}

// Run evaluates one completion event. The returned error reports
// infrastructure failures (unreadable store, unreadable transcript);
// every per-event decision, including a failed delivery, is expressed
// as an Outcome with a nil error. Callers must check the error before
// trusting the Outcome.
func (r *Relay) Run(ctx context.Context, event HookEvent) (Outcome, error) {
	// Signal correlator: is a response owed at all, and is there
	// somewhere to send it?
	pendingAt, havePending, err := r.store.Pending()
	if err != nil {
		return OutcomeSkipNoSignal, fmt.Errorf("reading pending signal: %w", err)
	}
	if !havePending {
		r.logger.Debug("no pending signal, nothing owed")
		return OutcomeSkipNoSignal, nil
	}

	chatID, haveChat, err := r.store.ChatID()
	if err != nil {
		return OutcomeSkipNoChat, fmt.Errorf("reading chat binding: %w", err)
	}
	if !haveChat {
		// No destination: behave as if no signal existed. The signal
		// stays; the inbound side records the binding before the next
		// message.
		r.logger.Debug("no chat binding, nowhere to deliver")
		return OutcomeSkipNoChat, nil
	}

	age := r.clock.Now().Sub(pendingAt)
	if age > r.signalTTL {
		r.logger.Info("pending signal expired", "age", age, "ttl", r.signalTTL)
		if err := r.discharge(pendingAt); err != nil {
			return OutcomeSkipExpired, err
		}
		return OutcomeSkipExpired, nil
	}

	// Membership guard: only the bound session may answer the chat.
	sessionName, err := r.boundSession()
	if err != nil {
		return OutcomeSkipWrongSession, err
	}
	invoking, err := r.terminal.InvokingSession()
	if err != nil {
		r.logger.Info("cannot identify invoking session", "error", err)
		return OutcomeSkipWrongSession, nil
	}
	if invoking != sessionName {
		r.logger.Info("completion event from unbound session",
			"invoking", invoking,
			"bound", sessionName,
		)
		return OutcomeSkipWrongSession, nil
	}

	// Secondary identity check: the transcript's project directory
	// must match where the bound session actually is. An unobservable
	// pane path is tolerated; a contradicting one is not.
	if directoryName := transcript.ProjectDirName(event.TranscriptPath); directoryName != "" {
		workingDirectory, err := r.terminal.CurrentPath(sessionName)
		if err == nil && workingDirectory != "" &&
			!transcript.MatchesProjectDir(directoryName, workingDirectory) {
			r.logger.Info("transcript project does not match session directory",
				"transcript_dir", directoryName,
				"session_dir", workingDirectory,
			)
			return OutcomeSkipWrongSession, nil
		}
	}

	// Idle detector: wait out the final repaint, then classify the
	// visible pane. Anything but a ready prompt leaves the signal for
	// a later completion event.
	r.clock.Sleep(r.settleDelay)
	snapshot, err := r.terminal.CapturePane(sessionName, r.captureLines)
	if err != nil {
		r.logger.Warn("cannot capture pane, treating session as busy", "error", err)
		return OutcomeSkipBusy, nil
	}
	switch sessionState := r.classifier.Classify(snapshot); sessionState {
	case screen.StateBusy:
		r.logger.Debug("session still busy")
		return OutcomeSkipBusy, nil
	case screen.StateSubprompt:
		r.logger.Debug("session showing a selection prompt")
		return OutcomeSkipSubprompt, nil
	case screen.StateIdle:
	}

	// Extraction.
	entries, err := transcript.ReadFile(event.TranscriptPath)
	if err != nil {
		return OutcomeSkipEmpty, fmt.Errorf("reading transcript: %w", err)
	}
	responseText := transcript.Response(entries)
	if responseText == "" {
		r.logger.Info("no assistant text since the last user turn")
		if err := r.discharge(pendingAt); err != nil {
			return OutcomeSkipEmpty, err
		}
		return OutcomeSkipEmpty, nil
	}

	// A completion event can fire again for a turn whose text was
	// already delivered (e.g. a settings subprompt resolved after the
	// answer). The hash covers the turn identity as well as its text,
	// so only a re-fire of the same turn is a duplicate — a new turn
	// whose reply happens to repeat the previous one ("Done.") is
	// still delivered.
	digest := blake3.Sum256([]byte(transcript.TurnID(entries) + "\n" + responseText))
	contentHash := hex.EncodeToString(digest[:])
	lastHash, haveLast, err := r.store.LastDeliveryHash()
	if err != nil {
		return OutcomeSkipDuplicate, fmt.Errorf("reading last delivery hash: %w", err)
	}
	if haveLast && lastHash == contentHash {
		r.logger.Info("response already delivered", "hash", contentHash[:12])
		if err := r.discharge(pendingAt); err != nil {
			return OutcomeSkipDuplicate, err
		}
		return OutcomeSkipDuplicate, nil
	}

	// Convert and deliver. Success or failure, the obligation is
	// discharged: there is no retry queue, and a later event would
	// resend stale text.
	truncated := transcript.Truncate(responseText, r.maxRunes)
	htmlText := markup.ToTelegramHTML(truncated)

	sendErr := r.sender.SendWithFallback(ctx, chatID, htmlText, truncated)
	if err := r.discharge(pendingAt); err != nil {
		return OutcomeDeliveryFailed, err
	}
	if sendErr != nil {
		r.logger.Error("delivery failed", "chat_id", chatID, "error", sendErr)
		return OutcomeDeliveryFailed, nil
	}

	if err := r.store.SetLastDeliveryHash(contentHash); err != nil {
		return OutcomeDelivered, fmt.Errorf("recording delivery hash: %w", err)
	}
	r.logger.Info("response delivered",
		"chat_id", chatID,
		"runes", len([]rune(truncated)),
		"session", sessionName,
	)
	return OutcomeDelivered, nil
}

// boundSession resolves the session binding, falling back to the
// default name when none has been recorded.
func (r *Relay) boundSession() (string, error) {
	name, ok, err := r.store.SessionName()
	if err != nil {
		return "", fmt.Errorf("reading session binding: %w", err)
	}
	if !ok || name == "" {
		return r.defaultSession, nil
	}
	return name, nil
}

// discharge deletes the pending signal, but only the one this run
// observed. A signal rewritten meanwhile belongs to a newer chat
// message and stays for the next completion event.
func (r *Relay) discharge(observedAt time.Time) error {
	deleted, err := r.store.ClearPendingIf(observedAt)
	if err != nil {
		return fmt.Errorf("clearing pending signal: %w", err)
	}
	if !deleted {
		r.logger.Info("pending signal was replaced during the run, leaving it")
	}
	return nil
}

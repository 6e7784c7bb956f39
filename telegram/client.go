// Copyright 2026 The Telebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package telegram is a minimal Telegram Bot API client covering the
// single call the relay needs: sendMessage. It knows the API's hard
// message size limit and how to fall back from HTML formatting to
// plain text when the server rejects the entity markup.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultBaseURL is the base URL for the hosted Bot API.
const defaultBaseURL = "https://api.telegram.org"

// MessageLimit is the Bot API's maximum message length in characters
// (Unicode code points). Longer texts are rejected with a 400.
const MessageLimit = 4096

// requestTimeout bounds each sendMessage call so a wedged network
// cannot stall the hook process indefinitely.
const requestTimeout = 10 * time.Second

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the root URL for API requests. Defaults to
	// "https://api.telegram.org". Override it in tests.
	BaseURL string

	// Token is the bot token issued by BotFather. Required.
	Token string

	// HTTPClient is used for all HTTP requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client sends messages through the Telegram Bot API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Bot API client from the given configuration.
func NewClient(config Config) (*Client, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram: Token is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// APIError is a non-ok response from the Bot API.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram: API error %d: %s", e.ErrorCode, e.Description)
	}
	return fmt.Sprintf("telegram: HTTP %d", e.StatusCode)
}

// sendMessageRequest is the wire shape of the sendMessage call. An
// empty parse mode is omitted so the server treats the text as plain.
type sendMessageRequest struct {
	ChatID            int64  `json:"chat_id"`
	Text              string `json:"text"`
	ParseMode         string `json:"parse_mode,omitempty"`
	DisableWebPreview bool   `json:"disable_web_page_preview,omitempty"`
}

// apiResponse is the envelope every Bot API method returns.
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// SendMessage posts a single message to the given chat. parseMode is
// "HTML" or empty for plain text. Returns an *APIError when the API
// answers with ok=false.
func (client *Client) SendMessage(ctx context.Context, chatID int64, text string, parseMode string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload := sendMessageRequest{
		ChatID:            chatID,
		Text:              text,
		ParseMode:         parseMode,
		DisableWebPreview: true,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: encoding request: %w", err)
	}

	url := client.baseURL + "/bot" + client.token + "/sendMessage"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("telegram: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("telegram: sendMessage: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram: reading response body: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &APIError{StatusCode: response.StatusCode, Description: strings.TrimSpace(string(body))}
	}
	if !parsed.OK {
		return &APIError{
			StatusCode:  response.StatusCode,
			ErrorCode:   parsed.ErrorCode,
			Description: parsed.Description,
		}
	}
	return nil
}

// SendWithFallback delivers a message with HTML formatting, falling
// back to a single plain-text attempt when the formatted send is
// rejected. The fallback carries the unformatted text, clipped to the
// API's message limit. A cancelled context is not retried.
func (client *Client) SendWithFallback(ctx context.Context, chatID int64, htmlText, plainText string) error {
	err := client.SendMessage(ctx, chatID, htmlText, "HTML")
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	client.logger.Warn("formatted send failed, retrying as plain text",
		"chat_id", chatID,
		"error", err,
	)

	return client.SendMessage(ctx, chatID, clipRunes(plainText, MessageLimit), "")
}

// clipRunes truncates text to at most limit code points.
func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

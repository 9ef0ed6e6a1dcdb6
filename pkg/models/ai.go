// Package models contains shared data models used across the vitalog codebase.
package models

import (
	"context"
	"errors"
)

// Backend failure taxonomy. Every backend implementation must map its SDK or
// transport errors onto exactly one of these sentinels before returning.
var (
	// ErrBackendNotConfigured means the requested backend has no usable
	// credentials or endpoint (absent or placeholder configuration).
	ErrBackendNotConfigured = errors.New("backend not configured")
	// ErrBackendAuth means the backend rejected the configured credentials.
	ErrBackendAuth = errors.New("backend rejected credentials")
	// ErrBackendQuota means the backend refused the call for billing or
	// usage-limit reasons.
	ErrBackendQuota = errors.New("backend quota exceeded")
	// ErrBackendTransport covers network failures, timeouts, and any other
	// backend-side failure that does not fit a more specific sentinel.
	ErrBackendTransport = errors.New("backend transport failure")
)

// Backend is the core interface every generative-text integration must
// implement. Never call a specific backend SDK directly — always inject
// this interface.
type Backend interface {
	// Complete sends one prompt to the backend and returns its raw text
	// verbatim. No retries, no interpretation of the response.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	// Name returns the opaque backend identifier (e.g. "openai", "gemini").
	Name() string
}

// CompletionRequest carries one composed prompt plus its token and
// temperature budget.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Completion is a raw backend response.
type Completion struct {
	Text  string
	Model string
}

// Package mock provides a scriptable models.Backend for testing.
package mock

import (
	"context"
	"encoding/json"

	"github.com/thalloran/vitalog/pkg/models"
)

// Backend satisfies models.Backend for testing.
type Backend struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (models.Completion, error)

	// Calls records every request, in order.
	Calls []models.CompletionRequest
}

func (b *Backend) Name() string { return b.Name_ }

func (b *Backend) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	b.Calls = append(b.Calls, req)
	if b.CompleteFunc != nil {
		return b.CompleteFunc(ctx, req)
	}
	return models.Completion{}, nil
}

// NewBackend returns a mock that answers every prompt with a well-formed
// structured result.
func NewBackend() *Backend {
	return &Backend{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.Completion, error) {
			body, _ := json.Marshal(map[string]any{
				"summary":           "Mock analysis summary for testing",
				"detailed_analysis": "Mock detailed analysis produced by the test backend.",
				"insights": []string{
					"Mock insight one", "Mock insight two", "Mock insight three",
					"Mock insight four", "Mock insight five",
				},
				"recommendations": []string{
					"Mock recommendation one", "Mock recommendation two", "Mock recommendation three",
					"Mock recommendation four", "Mock recommendation five",
				},
				"confidence": 0.85,
			})
			return models.Completion{Text: string(body), Model: "mock-v1"}, nil
		},
	}
}

// NewScriptedBackend returns a mock that answers every prompt with the given
// raw text.
func NewScriptedBackend(text string) *Backend {
	return &Backend{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.Completion, error) {
			return models.Completion{Text: text, Model: "mock-v1"}, nil
		},
	}
}

// NewFailingBackend returns a mock that always returns the given error.
func NewFailingBackend(err error) *Backend {
	return &Backend{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.Completion, error) {
			return models.Completion{}, err
		},
	}
}

// NewTimeoutBackend returns a mock that blocks until the context is cancelled.
func NewTimeoutBackend() *Backend {
	return &Backend{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (models.Completion, error) {
			<-ctx.Done()
			return models.Completion{}, models.ErrBackendTransport
		},
	}
}

// Compile-time check that Backend implements models.Backend.
var _ models.Backend = (*Backend)(nil)

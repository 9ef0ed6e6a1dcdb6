// Package ollama implements the generative-text backend interface against a
// local or self-hosted Ollama server over its HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/thalloran/vitalog/internal/config"
	"github.com/thalloran/vitalog/pkg/models"
)

// Backend implements models.Backend using Ollama's /api/generate endpoint.
type Backend struct {
	baseURL string
	model   string
	client  *http.Client
}

// New creates an Ollama backend. The HTTP client carries no timeout of its
// own; the caller's context governs the call.
func New(cfg config.OllamaConfig) *Backend {
	return &Backend{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{},
	}
}

func (b *Backend) Name() string { return "ollama" }

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (b *Backend) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	body, err := json.Marshal(generateRequest{
		Model:  b.model,
		System: req.System,
		Prompt: req.Prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return models.Completion{}, fmt.Errorf("marshal generate request: %w", err)
	}

	u := b.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return models.Completion{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		// Ollama has no credentials or quotas; every call failure is transport.
		return models.Completion{}, fmt.Errorf("%w: %v", models.ErrBackendTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Completion{}, fmt.Errorf("%w: ollama status %d", models.ErrBackendTransport, resp.StatusCode)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return models.Completion{}, fmt.Errorf("%w: decoding ollama response: %v", models.ErrBackendTransport, err)
	}

	model := genResp.Model
	if model == "" {
		model = b.model
	}
	return models.Completion{Text: genResp.Response, Model: model}, nil
}

var _ models.Backend = (*Backend)(nil)

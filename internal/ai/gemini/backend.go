// Package gemini implements the generative-text backend interface against
// the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/thalloran/vitalog/internal/config"
	"github.com/thalloran/vitalog/pkg/models"
	"google.golang.org/genai"
)

// Backend implements models.Backend using Google GenAI.
type Backend struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg config.GeminiConfig) (*Backend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Backend{client: client, model: cfg.Model}, nil
}

func (b *Backend) Name() string { return "gemini" }

func (b *Backend) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(req.Prompt), genCfg)
	if err != nil {
		return models.Completion{}, classify(err)
	}

	text := resp.Text()
	if text == "" {
		return models.Completion{}, fmt.Errorf("%w: empty completion", models.ErrBackendTransport)
	}

	model := b.model
	if resp.ModelVersion != "" {
		model = resp.ModelVersion
	}
	return models.Completion{Text: text, Model: model}, nil
}

// classify maps SDK errors onto the backend failure taxonomy.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", models.ErrBackendAuth, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", models.ErrBackendQuota, err)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrBackendTransport, err)
}

var _ models.Backend = (*Backend)(nil)

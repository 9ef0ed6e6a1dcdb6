// Package openai implements the generative-text backend interface against
// the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/thalloran/vitalog/internal/config"
	"github.com/thalloran/vitalog/pkg/models"
)

// Backend implements models.Backend using OpenAI.
type Backend struct {
	client *openai.Client
	model  string
}

func New(cfg config.OpenAIConfig) *Backend {
	return &Backend{
		client: openai.NewClient(cfg.APIKey),
		model:  cfg.Model,
	}
}

func (b *Backend) Name() string { return "openai" }

func (b *Backend) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       b.model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}
	// Reasoning models reject the legacy MaxTokens field.
	if strings.HasPrefix(b.model, "o1") || strings.HasPrefix(b.model, "o3") || strings.HasPrefix(b.model, "o4") || strings.HasPrefix(b.model, "gpt-5") {
		chatReq.MaxCompletionTokens = req.MaxTokens
	} else {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := b.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return models.Completion{}, fmt.Errorf("%w: empty choices in completion", models.ErrBackendTransport)
	}

	model := resp.Model
	if model == "" {
		model = b.model
	}
	return models.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
	}, nil
}

// classify maps SDK errors onto the backend failure taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", models.ErrBackendAuth, err)
		case http.StatusPaymentRequired, http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", models.ErrBackendQuota, err)
		}
	}
	return fmt.Errorf("%w: %v", models.ErrBackendTransport, err)
}

var _ models.Backend = (*Backend)(nil)

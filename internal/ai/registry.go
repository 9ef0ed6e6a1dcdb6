// Package ai is the inference gateway: it owns the set of configured
// generative-text backends and hands them out by opaque identifier.
package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/thalloran/vitalog/internal/ai/gemini"
	"github.com/thalloran/vitalog/internal/ai/ollama"
	"github.com/thalloran/vitalog/internal/ai/openai"
	"github.com/thalloran/vitalog/internal/config"
	"github.com/thalloran/vitalog/pkg/models"
)

// Registry maps opaque backend identifiers to Backend implementations.
// Built once at startup; safe for concurrent reads afterwards.
type Registry struct {
	backends    map[string]models.Backend
	defaultName string
}

// NewRegistry constructs every backend whose configuration carries usable
// credentials. Backends with absent or placeholder credentials are simply
// not registered; Get reports them as not configured.
func NewRegistry(ctx context.Context, cfg config.AIConfig) (*Registry, error) {
	r := &Registry{backends: make(map[string]models.Backend)}

	if usableCredential(cfg.OpenAI.APIKey) {
		r.Register(openai.New(cfg.OpenAI))
	}
	if usableCredential(cfg.Gemini.APIKey) {
		b, err := gemini.New(ctx, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("create gemini backend: %w", err)
		}
		r.Register(b)
	}
	if cfg.Ollama.BaseURL != "" {
		r.Register(ollama.New(cfg.Ollama))
	}

	if len(r.backends) == 0 {
		return nil, fmt.Errorf("no AI backend is configured")
	}
	if _, ok := r.backends[cfg.DefaultBackend]; !ok {
		return nil, fmt.Errorf("default backend %q is not configured", cfg.DefaultBackend)
	}
	r.defaultName = cfg.DefaultBackend

	return r, nil
}

// Register adds a backend under its own name, replacing any previous entry.
func (r *Registry) Register(b models.Backend) {
	r.backends[b.Name()] = b
}

// Get returns the backend for the given opaque identifier. An empty
// identifier resolves to the configured default.
func (r *Registry) Get(choice string) (models.Backend, error) {
	if choice == "" {
		choice = r.defaultName
	}
	b, ok := r.backends[choice]
	if !ok {
		return nil, fmt.Errorf("%w: %q (configured: %s)",
			models.ErrBackendNotConfigured, choice, strings.Join(r.Names(), ", "))
	}
	return b, nil
}

// Names returns the sorted identifiers of every configured backend.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// usableCredential rejects empty keys and the placeholder values people leave
// in env files, so a half-filled deployment fails closed at Get time instead
// of burning a request against the backend.
func usableCredential(key string) bool {
	if key == "" {
		return false
	}
	lower := strings.ToLower(key)
	if lower == "changeme" || lower == "placeholder" {
		return false
	}
	return !strings.HasPrefix(lower, "your-")
}

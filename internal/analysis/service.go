package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thalloran/vitalog/internal/cache"
	"github.com/thalloran/vitalog/internal/store"
	"github.com/thalloran/vitalog/pkg/models"
)

const recordCacheTTL = 10 * time.Minute

// BackendResolver hands out generative-text backends by opaque identifier.
// Satisfied by ai.Registry.
type BackendResolver interface {
	Get(choice string) (models.Backend, error)
}

// Request describes one analysis run.
type Request struct {
	UserID      uuid.UUID
	Kind        models.AnalysisKind
	Backend     string
	WindowStart time.Time
	WindowEnd   time.Time
	// Query names the item under inspection for lookup kinds.
	Query string
}

// Service orchestrates the analysis pipeline: aggregate, compose, invoke,
// validate, fall back, persist. All steps are pure over their inputs except
// the backend call and the store write, so concurrent requests need no
// coordination.
type Service struct {
	backends   BackendResolver
	aggregator *Aggregator
	store      store.Store
	cache      cache.Cache
	timeout    time.Duration
}

// NewService creates a new analysis Service.
func NewService(backends BackendResolver, aggregator *Aggregator, st store.Store, ca cache.Cache, timeout time.Duration) *Service {
	return &Service{
		backends:   backends,
		aggregator: aggregator,
		store:      st,
		cache:      ca,
		timeout:    timeout,
	}
}

// RunAnalysis executes the primary pipeline and persists the outcome.
// Backend and validation failures are absorbed into a deterministic fallback
// result, which is persisted identically to a real one; the only errors a
// caller sees are ErrNoData (nothing to analyze, no backend call is made)
// and snapshot or store failures.
func (s *Service) RunAnalysis(ctx context.Context, req Request) (*models.AnalysisRecord, error) {
	bundle, err := s.aggregator.Build(ctx, BundleRequest{
		UserID:      req.UserID,
		Kind:        req.Kind,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Query:       req.Query,
	})
	if err != nil {
		return nil, err
	}

	result := s.executePipeline(ctx, bundle, req.Backend)

	rec := &models.AnalysisRecord{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Kind:        req.Kind,
		InputBundle: *bundle,
		Result:      result,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateAnalysisRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing analysis record: %w", err)
	}
	return rec, nil
}

// executePipeline runs compose → invoke → validate over the bundle and
// cannot fail: every error collapses into the fallback result. The fallback
// model id records how far the pipeline got — the sentinel when the gateway
// was never reached, the backend identifier once it was.
func (s *Service) executePipeline(ctx context.Context, bundle *models.InputBundle, choice string) models.StructuredResult {
	backend, err := s.backends.Get(choice)
	if err != nil {
		slog.Warn("analysis falling back", "stage", "resolve", "backend", choice, "error", err)
		return Fallback(bundle.Kind, "")
	}

	prompt, err := ComposePrompt(bundle)
	if err != nil {
		slog.Warn("analysis falling back", "stage", "compose", "kind", bundle.Kind, "error", err)
		return Fallback(bundle.Kind, "")
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	comp, err := backend.Complete(cctx, prompt.Request())
	if err != nil {
		slog.Warn("analysis falling back", "stage", "invoke", "backend", backend.Name(), "error", err)
		return Fallback(bundle.Kind, backend.Name())
	}

	result, err := ParseStructured(comp.Text)
	if err != nil {
		slog.Warn("analysis falling back", "stage", "validate", "backend", backend.Name(), "error", err)
		return Fallback(bundle.Kind, comp.Model)
	}

	result.ModelID = comp.Model
	return result
}

// GetAnalysis returns a stored record, serving repeat reads from cache.
func (s *Service) GetAnalysis(ctx context.Context, userID, id uuid.UUID) (*models.AnalysisRecord, error) {
	key := cache.AnalysisRecordKey(id)
	if data, found, err := s.cache.Get(ctx, key); err == nil && found {
		var rec models.AnalysisRecord
		if json.Unmarshal(data, &rec) == nil && rec.UserID == userID {
			return &rec, nil
		}
	}

	rec, err := s.store.GetAnalysisRecord(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		_ = s.cache.Set(ctx, key, data, recordCacheTTL)
	}
	return rec, nil
}

// RequestSecondOpinion re-runs the pipeline against an alternate backend
// over the record's stored bundle (never the original result) and then asks
// the same backend to reconcile both analyses. Unlike the primary pipeline
// there is no fallback here: a degraded second opinion is worse than none,
// so every failure propagates and the caller may retry. At most one opinion
// is stored per backend; repeat calls return it without new backend calls.
func (s *Service) RequestSecondOpinion(ctx context.Context, userID, recordID uuid.UUID, choice string) (*models.SecondOpinion, error) {
	rec, err := s.store.GetAnalysisRecord(ctx, recordID, userID)
	if err != nil {
		return nil, err
	}

	backend, err := s.backends.Get(choice)
	if err != nil {
		return nil, err
	}

	if op := rec.SecondOpinionFor(backend.Name()); op != nil {
		return op, nil
	}

	prompt, err := ComposePrompt(&rec.InputBundle)
	if err != nil {
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	comp, err := backend.Complete(cctx, prompt.Request())
	cancel()
	if err != nil {
		return nil, fmt.Errorf("independent analysis: %w", err)
	}

	independent, err := ParseStructured(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("independent analysis: %w", err)
	}
	independent.ModelID = comp.Model

	reconcile := ComposeReconciliationPrompt(&rec.InputBundle, rec.Result, independent)
	cctx2, cancel2 := context.WithTimeout(ctx, s.timeout)
	comp2, err := backend.Complete(cctx2, reconcile.Request())
	cancel2()
	if err != nil {
		return nil, fmt.Errorf("reconciliation: %w", err)
	}

	stored, err := s.store.AttachSecondOpinion(ctx, recordID, models.SecondOpinion{
		Text:      strings.TrimSpace(comp2.Text),
		ModelID:   backend.Name(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	_ = s.cache.Delete(ctx, cache.AnalysisRecordKey(recordID))
	return stored, nil
}

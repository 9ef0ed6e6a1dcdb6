package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thalloran/vitalog/internal/snapshot"
	"github.com/thalloran/vitalog/pkg/models"
)

const dayLayout = "2006-01-02"

// BundleRequest identifies the snapshot slice an analysis should cover.
type BundleRequest struct {
	UserID      uuid.UUID
	Kind        models.AnalysisKind
	WindowStart time.Time
	WindowEnd   time.Time
	// Query names the item under inspection for lookup kinds.
	Query string
}

// Aggregator builds normalized, self-contained input bundles from domain
// snapshots. Read-only; it never mutates the snapshot.
type Aggregator struct {
	src snapshot.Source
}

// NewAggregator creates a new Aggregator.
func NewAggregator(src snapshot.Source) *Aggregator {
	return &Aggregator{src: src}
}

// Build reads the records relevant to the requested kind and derives the
// aggregates the prompt will restate verbatim. Returns ErrNoData when the
// kind requires records and none exist in the window.
func (a *Aggregator) Build(ctx context.Context, req BundleRequest) (*models.InputBundle, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown analysis kind %q", req.Kind)
	}

	profile, err := a.src.Profile(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	records, err := a.src.RecordsForAnalysis(ctx, req.UserID, req.Kind, req.WindowStart, req.WindowEnd)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	if req.Kind.RequiresRecords() && len(records) == 0 {
		return nil, fmt.Errorf("%w: kind %s, window %s to %s", ErrNoData,
			req.Kind, req.WindowStart.Format(dayLayout), req.WindowEnd.Format(dayLayout))
	}

	return &models.InputBundle{
		UserID:           req.UserID,
		Kind:             req.Kind,
		Profile:          profile,
		Records:          records,
		DerivedTotals:    deriveTotals(records),
		DistinctDayCount: distinctDays(records),
		WindowStart:      req.WindowStart,
		WindowEnd:        req.WindowEnd,
		Query:            req.Query,
	}, nil
}

// deriveTotals sums every declared numeric metric across records. A metric
// absent from one record contributes 0, never a null.
func deriveTotals(records []models.DomainRecord) map[string]float64 {
	totals := make(map[string]float64)
	for _, rec := range records {
		for name, value := range rec.Metrics {
			totals[name] += value
		}
	}
	return totals
}

// distinctDays counts the unique calendar dates (UTC) across records. It
// drives confidence banding and must never be fabricated.
func distinctDays(records []models.DomainRecord) int {
	days := make(map[string]struct{}, len(records))
	for _, rec := range records {
		days[rec.RecordedAt.UTC().Format(dayLayout)] = struct{}{}
	}
	return len(days)
}

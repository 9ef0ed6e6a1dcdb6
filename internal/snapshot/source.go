// Package snapshot provides read-only access to the domain records an
// analysis consumes: food logs, supplement logs, lab results, and profiles.
// The analysis pipeline never writes through this package.
package snapshot

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thalloran/vitalog/pkg/models"
)

// Record sources.
const (
	SourceFood       = "food"
	SourceSupplement = "supplement"
	SourceLab        = "lab"
)

// Source is the snapshot-reading interface the aggregator depends on.
type Source interface {
	// Profile returns the user's demographic and goal attributes. A user
	// with no profile data yields a zero Profile, not an error.
	Profile(ctx context.Context, userID uuid.UUID) (models.Profile, error)
	// RecordsForAnalysis returns the records relevant to the given kind
	// within [start, end], ordered by recorded time ascending. Lookup kinds
	// have no relevant records and yield an empty slice.
	RecordsForAnalysis(ctx context.Context, userID uuid.UUID, kind models.AnalysisKind, start, end time.Time) ([]models.DomainRecord, error)
}

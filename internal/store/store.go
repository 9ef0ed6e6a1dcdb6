package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/thalloran/vitalog/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultUser(ctx context.Context) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// CreateAnalysisRecord is append-only: one row per completed pipeline
	// run, fallback results included.
	CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error
	GetAnalysisRecord(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.AnalysisRecord, error)
	// AttachSecondOpinion is a conditional write keyed on
	// (analysisID, modelID): the first writer wins and every caller gets
	// the stored row back, so concurrent attaches cannot duplicate.
	AttachSecondOpinion(ctx context.Context, analysisID uuid.UUID, op models.SecondOpinion) (*models.SecondOpinion, error)
}

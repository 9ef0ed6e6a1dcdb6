package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thalloran/vitalog/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) GetDefaultUser(ctx context.Context) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, created_at, updated_at FROM users WHERE email = 'default@vitalog.local' LIMIT 1`,
	).Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default user: %w", err)
	}
	return &u, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Analysis Records ---

func (s *PostgresStore) CreateAnalysisRecord(ctx context.Context, rec *models.AnalysisRecord) error {
	bundleJSON, err := json.Marshal(rec.InputBundle)
	if err != nil {
		return fmt.Errorf("marshal input bundle: %w", err)
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_records (id, user_id, kind, input_bundle, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.UserID, rec.Kind, bundleJSON, resultJSON, rec.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create analysis record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAnalysisRecord(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.AnalysisRecord, error) {
	var (
		rec        models.AnalysisRecord
		bundleJSON []byte
		resultJSON []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, kind, input_bundle, result, created_at
		 FROM analysis_records WHERE id = $1 AND user_id = $2`, id, userID,
	).Scan(&rec.ID, &rec.UserID, &rec.Kind, &bundleJSON, &resultJSON, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis record: %w", err)
	}

	if err := json.Unmarshal(bundleJSON, &rec.InputBundle); err != nil {
		return nil, fmt.Errorf("unmarshal input bundle: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}

	opinions, err := s.secondOpinions(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.SecondOpinions = opinions

	return &rec, nil
}

func (s *PostgresStore) secondOpinions(ctx context.Context, analysisID uuid.UUID) ([]models.SecondOpinion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT text, model_id, created_at FROM second_opinions
		 WHERE analysis_id = $1 ORDER BY created_at ASC`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list second opinions: %w", err)
	}
	defer rows.Close()

	var opinions []models.SecondOpinion
	for rows.Next() {
		var op models.SecondOpinion
		if err := rows.Scan(&op.Text, &op.ModelID, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan second opinion: %w", err)
		}
		opinions = append(opinions, op)
	}
	return opinions, rows.Err()
}

// AttachSecondOpinion inserts with ON CONFLICT DO NOTHING and reads the row
// back, so a lost race still returns the winning entry unchanged.
func (s *PostgresStore) AttachSecondOpinion(ctx context.Context, analysisID uuid.UUID, op models.SecondOpinion) (*models.SecondOpinion, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO second_opinions (analysis_id, model_id, text, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (analysis_id, model_id) DO NOTHING`,
		analysisID, op.ModelID, op.Text, op.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("attach second opinion: %w", err)
	}

	var stored models.SecondOpinion
	err = s.pool.QueryRow(ctx,
		`SELECT text, model_id, created_at FROM second_opinions
		 WHERE analysis_id = $1 AND model_id = $2`, analysisID, op.ModelID,
	).Scan(&stored.Text, &stored.ModelID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("read back second opinion: %w", err)
	}
	return &stored, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

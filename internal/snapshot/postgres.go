package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/thalloran/vitalog/pkg/models"
)

// PostgresSource implements Source against the domain tables using pgx/v5.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a new PostgresSource.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Profile(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	var p models.Profile
	err := s.pool.QueryRow(ctx,
		`SELECT age, sex, height_cm, weight_kg, goal FROM users WHERE id = $1`, userID,
	).Scan(&p.Age, &p.Sex, &p.HeightCm, &p.WeightKg, &p.Goal)
	if err != nil {
		return models.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *PostgresSource) RecordsForAnalysis(ctx context.Context, userID uuid.UUID, kind models.AnalysisKind, start, end time.Time) ([]models.DomainRecord, error) {
	switch kind {
	case models.KindNutrition:
		return s.foodRecords(ctx, userID, start, end)
	case models.KindLabwork:
		return s.labRecords(ctx, userID, start, end)
	case models.KindCorrelation:
		food, err := s.foodRecords(ctx, userID, start, end)
		if err != nil {
			return nil, err
		}
		supps, err := s.supplementRecords(ctx, userID, start, end)
		if err != nil {
			return nil, err
		}
		labs, err := s.labRecords(ctx, userID, start, end)
		if err != nil {
			return nil, err
		}
		all := append(append(food, supps...), labs...)
		sort.Slice(all, func(i, j int) bool { return all[i].RecordedAt.Before(all[j].RecordedAt) })
		return all, nil
	default:
		// Lookup kinds analyze a named item, not the user's history.
		return []models.DomainRecord{}, nil
	}
}

func (s *PostgresSource) foodRecords(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.DomainRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, calories, protein_g, carbs_g, fat_g, eaten_at
		 FROM food_entries
		 WHERE user_id = $1 AND eaten_at >= $2 AND eaten_at <= $3
		 ORDER BY eaten_at ASC`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query food entries: %w", err)
	}
	defer rows.Close()

	records := []models.DomainRecord{}
	for rows.Next() {
		var (
			rec                           models.DomainRecord
			calories, protein, carbs, fat float64
		)
		if err := rows.Scan(&rec.ID, &rec.Label, &calories, &protein, &carbs, &fat, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan food entry: %w", err)
		}
		rec.Source = SourceFood
		rec.Metrics = map[string]float64{
			"calories":  calories,
			"protein_g": protein,
			"carbs_g":   carbs,
			"fat_g":     fat,
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresSource) supplementRecords(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.DomainRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, dose_mg, taken_at
		 FROM supplement_entries
		 WHERE user_id = $1 AND taken_at >= $2 AND taken_at <= $3
		 ORDER BY taken_at ASC`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query supplement entries: %w", err)
	}
	defer rows.Close()

	records := []models.DomainRecord{}
	for rows.Next() {
		var (
			rec  models.DomainRecord
			dose float64
		)
		if err := rows.Scan(&rec.ID, &rec.Label, &dose, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan supplement entry: %w", err)
		}
		rec.Source = SourceSupplement
		rec.Metrics = map[string]float64{"dose_mg": dose}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresSource) labRecords(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]models.DomainRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, marker, value, unit, sampled_at
		 FROM lab_results
		 WHERE user_id = $1 AND sampled_at >= $2 AND sampled_at <= $3
		 ORDER BY sampled_at ASC`, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query lab results: %w", err)
	}
	defer rows.Close()

	records := []models.DomainRecord{}
	for rows.Next() {
		var (
			rec   models.DomainRecord
			value float64
			unit  string
		)
		if err := rows.Scan(&rec.ID, &rec.Label, &value, &unit, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan lab result: %w", err)
		}
		rec.Source = SourceLab
		if unit != "" {
			rec.Label = rec.Label + " (" + unit + ")"
		}
		rec.Metrics = map[string]float64{"value": value}
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ Source = (*PostgresSource)(nil)

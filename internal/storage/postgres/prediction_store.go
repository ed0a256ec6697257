package postgres

import (
	"context"
	"fmt"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// PredictionStore implements storage.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *Pool
}

// NewPredictionStore creates a new PredictionStore.
func NewPredictionStore(pool *Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

var _ storage.PredictionStore = (*PredictionStore)(nil)

const predictionColumns = `
	type_id, region_id, target_date,
	predicted_buy_price, predicted_sell_price, model_version, created_at
`

// Upsert writes the batch, overwriting (type_id, region_id, target_date).
func (s *PredictionStore) Upsert(ctx context.Context, preds []*domain.Prediction) error {
	if len(preds) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO predictions (` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (type_id, region_id, target_date) DO UPDATE SET
			predicted_buy_price = EXCLUDED.predicted_buy_price,
			predicted_sell_price = EXCLUDED.predicted_sell_price,
			model_version = EXCLUDED.model_version,
			created_at = EXCLUDED.created_at
	`
	for _, p := range preds {
		if p == nil || p.TypeID == 0 || p.RegionID == 0 {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			p.TypeID, p.RegionID, p.TargetDate,
			p.PredictedBuyPrice, p.PredictedSellPrice, p.ModelVersion, p.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert prediction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByType retrieves the prediction with the newest target date.
func (s *PredictionStore) GetByType(ctx context.Context, typeID, regionID int32) (*domain.Prediction, error) {
	query := `
		SELECT ` + predictionColumns + `
		FROM predictions
		WHERE type_id = $1 AND region_id = $2
		ORDER BY target_date DESC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, typeID, regionID)
	var p domain.Prediction
	err := row.Scan(
		&p.TypeID, &p.RegionID, &p.TargetDate,
		&p.PredictedBuyPrice, &p.PredictedSellPrice, &p.ModelVersion, &p.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get prediction by type: %w", err)
	}
	return &p, nil
}

// GetLatest retrieves the newest prediction per item for a region.
func (s *PredictionStore) GetLatest(ctx context.Context, regionID int32) ([]*domain.Prediction, error) {
	query := `
		SELECT DISTINCT ON (type_id) ` + predictionColumns + `
		FROM predictions
		WHERE region_id = $1
		ORDER BY type_id, target_date DESC
	`
	rows, err := s.pool.Query(ctx, query, regionID)
	if err != nil {
		return nil, fmt.Errorf("get latest predictions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Prediction
	for rows.Next() {
		var p domain.Prediction
		if err := rows.Scan(
			&p.TypeID, &p.RegionID, &p.TargetDate,
			&p.PredictedBuyPrice, &p.PredictedSellPrice, &p.ModelVersion, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return out, nil
}

package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/domain"
	"github.com/bizkut/EVE-Online-Market-Analyzer-API/internal/storage"
)

// AnalysisStore implements storage.AnalysisStore using PostgreSQL.
type AnalysisStore struct {
	pool *Pool
}

// NewAnalysisStore creates a new AnalysisStore.
func NewAnalysisStore(pool *Pool) *AnalysisStore {
	return &AnalysisStore{pool: pool}
}

var _ storage.AnalysisStore = (*AnalysisStore)(nil)

const analysisColumns = `
	type_id, region_id, as_of,
	buy_price, sell_price, profit_per_unit, roi_percent,
	price_volume_correlation, profit_score, trend_direction,
	volatility, avg_daily_volume
`

// InsertBatch appends one analysis run's results in a single transaction.
func (s *AnalysisStore) InsertBatch(ctx context.Context, results []*domain.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO analysis_results (` + analysisColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (type_id, region_id, as_of) DO UPDATE SET
			buy_price = EXCLUDED.buy_price,
			sell_price = EXCLUDED.sell_price,
			profit_per_unit = EXCLUDED.profit_per_unit,
			roi_percent = EXCLUDED.roi_percent,
			price_volume_correlation = EXCLUDED.price_volume_correlation,
			profit_score = EXCLUDED.profit_score,
			trend_direction = EXCLUDED.trend_direction,
			volatility = EXCLUDED.volatility,
			avg_daily_volume = EXCLUDED.avg_daily_volume
	`
	for _, r := range results {
		if r == nil || r.TypeID == 0 || r.RegionID == 0 {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			r.TypeID, r.RegionID, r.AsOf,
			r.BuyPrice, r.SellPrice, r.ProfitPerUnit, r.ROIPercent,
			r.PriceVolumeCorrelation, r.ProfitScore, string(r.TrendDirection),
			r.Volatility, r.AvgDailyVolume,
		)
		if err != nil {
			return fmt.Errorf("insert analysis result: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent result per item for a region,
// ordered by profit score descending with deterministic tie-breaks.
func (s *AnalysisStore) GetLatest(ctx context.Context, regionID int32) ([]*domain.AnalysisResult, error) {
	query := `
		SELECT DISTINCT ON (type_id) ` + analysisColumns + `
		FROM analysis_results
		WHERE region_id = $1
		ORDER BY type_id, as_of DESC
	`
	rows, err := s.pool.Query(ctx, query, regionID)
	if err != nil {
		return nil, fmt.Errorf("get latest analysis: %w", err)
	}
	defer rows.Close()

	results, err := scanAnalysisResults(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Less(results[j]) })
	return results, nil
}

// GetLatestByType retrieves the most recent result for one item.
func (s *AnalysisStore) GetLatestByType(ctx context.Context, typeID, regionID int32) (*domain.AnalysisResult, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM analysis_results
		WHERE type_id = $1 AND region_id = $2
		ORDER BY as_of DESC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, typeID, regionID)
	r, err := scanAnalysisResult(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest analysis by type: %w", err)
	}
	return r, nil
}

// GetSeries retrieves historical results for one item, as_of ASC.
func (s *AnalysisStore) GetSeries(ctx context.Context, typeID, regionID int32, since time.Time) ([]*domain.AnalysisResult, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM analysis_results
		WHERE type_id = $1 AND region_id = $2 AND as_of >= $3
		ORDER BY as_of ASC
	`
	rows, err := s.pool.Query(ctx, query, typeID, regionID, since)
	if err != nil {
		return nil, fmt.Errorf("get analysis series: %w", err)
	}
	defer rows.Close()
	return scanAnalysisResults(rows)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAnalysisResult(row scannable) (*domain.AnalysisResult, error) {
	var r domain.AnalysisResult
	var trend string
	if err := row.Scan(
		&r.TypeID, &r.RegionID, &r.AsOf,
		&r.BuyPrice, &r.SellPrice, &r.ProfitPerUnit, &r.ROIPercent,
		&r.PriceVolumeCorrelation, &r.ProfitScore, &trend,
		&r.Volatility, &r.AvgDailyVolume,
	); err != nil {
		return nil, err
	}
	r.TrendDirection = domain.TrendDirection(trend)
	return &r, nil
}

func scanAnalysisResults(rows snapshotRows) ([]*domain.AnalysisResult, error) {
	var out []*domain.AnalysisResult
	for rows.Next() {
		r, err := scanAnalysisResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis results: %w", err)
	}
	return out, nil
}

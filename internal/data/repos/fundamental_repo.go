package repos

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/database"
)

// 종목별 최신 분기 1건만 사용 (분기 간 집계 없음)
const latestMetricsQuery = `
	WITH latest AS (
		SELECT DISTINCT ON (stock_id) stock_id, year, quarter
		FROM data.fundamental_metrics
		%s
		ORDER BY stock_id, year DESC, quarter DESC
	)
	SELECT m.stock_id, m.year, m.quarter, m.metric_name, m.value
	FROM data.fundamental_metrics m
	JOIN latest l ON l.stock_id = m.stock_id AND l.year = m.year AND l.quarter = m.quarter
	ORDER BY m.stock_id, m.metric_name
`

// FundamentalRepository implements contracts.FundamentalStore
// ⭐ SSOT: 재무 지표 조회는 여기서만
type FundamentalRepository struct {
	db database.Querier
}

var _ contracts.FundamentalStore = (*FundamentalRepository)(nil)

// NewFundamentalRepository creates a new fundamental repository
func NewFundamentalRepository(db database.Querier) *FundamentalRepository {
	return &FundamentalRepository{db: db}
}

// LatestRecord returns the most recent period of one instrument, or nil when it has none
func (r *FundamentalRepository) LatestRecord(ctx context.Context, instrumentID string) (*contracts.FundamentalRecord, error) {
	records, err := r.query(ctx, fmt.Sprintf(latestMetricsQuery, "WHERE stock_id = $1"), instrumentID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// AllLatestRecords returns the most recent period of every instrument
func (r *FundamentalRepository) AllLatestRecords(ctx context.Context) ([]contracts.FundamentalRecord, error) {
	return r.query(ctx, fmt.Sprintf(latestMetricsQuery, ""))
}

func (r *FundamentalRepository) query(ctx context.Context, query string, args ...any) ([]contracts.FundamentalRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamental metrics: %w", err)
	}
	defer rows.Close()

	records := make([]contracts.FundamentalRecord, 0)
	var current *contracts.FundamentalRecord

	for rows.Next() {
		var (
			stockID, metric string
			year, quarter   int
			value           *float64
		)
		if err := rows.Scan(&stockID, &year, &quarter, &metric, &value); err != nil {
			return nil, fmt.Errorf("failed to scan fundamental metric: %w", err)
		}

		// rows are ordered by stock_id, so a new id starts a new record
		if current == nil || current.InstrumentID != stockID {
			records = append(records, contracts.FundamentalRecord{
				InstrumentID: stockID,
				PeriodKey:    fmt.Sprintf("%dQ%d", year, quarter),
				Metrics:      make(map[string]*float64),
			})
			current = &records[len(records)-1]
		}
		current.Metrics[metric] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fundamental metrics: %w", err)
	}

	return records, nil
}

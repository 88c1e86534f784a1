package repos

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/patterns"
	"github.com/wonny/aegis-screener/pkg/database"
)

const activeSignalsQuery = `
	SELECT stock_id, signal_type, signal_name, direction, strength, detected_date
	FROM signals.detected_signals
	WHERE is_active
`

// SignalRepository implements contracts.SignalStore
// ⭐ SSOT: 시그널 조회는 여기서만 (탐지 배치가 기록, 여기서는 읽기 전용)
type SignalRepository struct {
	db database.Querier
}

var _ contracts.SignalStore = (*SignalRepository)(nil)

// NewSignalRepository creates a new signal repository
func NewSignalRepository(db database.Querier) *SignalRepository {
	return &SignalRepository{db: db}
}

// ActiveSignals returns the active signals of one instrument
func (r *SignalRepository) ActiveSignals(ctx context.Context, instrumentID string) ([]contracts.Signal, error) {
	return r.query(ctx, activeSignalsQuery+" AND stock_id = $1 ORDER BY signal_name", instrumentID)
}

// AllActiveSignals returns every active signal in one scan
func (r *SignalRepository) AllActiveSignals(ctx context.Context) ([]contracts.Signal, error) {
	return r.query(ctx, activeSignalsQuery+" ORDER BY stock_id, signal_name")
}

func (r *SignalRepository) query(ctx context.Context, query string, args ...any) ([]contracts.Signal, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active signals: %w", err)
	}
	defer rows.Close()

	signals := make([]contracts.Signal, 0)
	for rows.Next() {
		var (
			s         contracts.Signal
			direction string
			detected  time.Time
		)
		if err := rows.Scan(&s.InstrumentID, &s.Type, &s.Name, &direction, &s.Strength, &detected); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}

		// 탐지 배치는 표시명("Golden Cross")을 기록하므로 어휘 키로 변환
		if key, ok := patterns.NormalizeSignalName(s.Name); ok {
			s.Name = key
		}
		s.Direction = normalizeDirection(direction)
		s.Strength = clampStrength(s.Strength)
		s.DetectedDate = detected
		s.Active = true

		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return signals, nil
}

func normalizeDirection(raw string) contracts.Direction {
	switch contracts.Direction(strings.ToLower(strings.TrimSpace(raw))) {
	case contracts.DirectionBullish:
		return contracts.DirectionBullish
	case contracts.DirectionBearish:
		return contracts.DirectionBearish
	default:
		return contracts.DirectionNeutral
	}
}

func clampStrength(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

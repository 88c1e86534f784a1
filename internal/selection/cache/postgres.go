package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/database"
)

// Postgres is the durable result cache.
// Rows reference patterns.screening_patterns with ON DELETE CASCADE.
// ⭐ SSOT: 패턴 결과 캐시 저장/조회는 여기서만
type Postgres struct {
	db database.Querier
}

var _ contracts.ResultCache = (*Postgres)(nil)

// NewPostgres creates a postgres result cache
func NewPostgres(db database.Querier) *Postgres {
	return &Postgres{db: db}
}

// Get returns the cached run, or nil when none exists.
// Header and entries come from one statement so a concurrent Put is never seen half-applied.
func (c *Postgres) Get(ctx context.Context, patternID string) (*contracts.CachedRun, error) {
	rows, err := c.db.Query(ctx, `
		SELECT r.total_found, r.result_limit, r.computed_at, r.pattern_updated_at,
		       e.stock_id, e.rank, e.match_score, e.fundamental_score, e.technical_score,
		       e.matched_signals, e.matched_fundamentals, e.computed_at
		FROM selection.pattern_result_runs r
		JOIN selection.pattern_results_cache e ON e.pattern_id = r.pattern_id
		WHERE r.pattern_id = $1
		ORDER BY e.rank
	`, patternID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query cached run: %w", contracts.ErrCacheUnavailable, err)
	}
	defer rows.Close()

	run := &contracts.CachedRun{PatternID: patternID}
	for rows.Next() {
		e := contracts.CacheEntry{PatternID: patternID}
		var signalsJSON, fundamentalsJSON []byte
		if err := rows.Scan(
			&run.TotalFound, &run.Limit, &run.ComputedAt, &run.PatternUpdatedAt,
			&e.InstrumentID, &e.Rank, &e.CompositeScore, &e.FundamentalScore, &e.TechnicalScore,
			&signalsJSON, &fundamentalsJSON, &e.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan cache entry: %w", contracts.ErrCacheUnavailable, err)
		}
		if err := json.Unmarshal(signalsJSON, &e.MatchedSignals); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal matched signals: %w", contracts.ErrCacheUnavailable, err)
		}
		if err := json.Unmarshal(fundamentalsJSON, &e.MatchedFundamentals); err != nil {
			return nil, fmt.Errorf("%w: failed to unmarshal matched fundamentals: %w", contracts.ErrCacheUnavailable, err)
		}
		run.Entries = append(run.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating cache entries: %w", contracts.ErrCacheUnavailable, err)
	}

	// 헤더만 있고 엔트리가 없으면 miss
	if len(run.Entries) == 0 {
		return nil, nil
	}
	return run, nil
}

// Put replaces every cached row of the pattern in one transaction
func (c *Postgres) Put(ctx context.Context, run *contracts.CachedRun) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", contracts.ErrCacheUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM selection.pattern_results_cache WHERE pattern_id = $1", run.PatternID); err != nil {
		return fmt.Errorf("%w: failed to delete old entries: %w", contracts.ErrCacheUnavailable, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO selection.pattern_result_runs (pattern_id, total_found, result_limit, computed_at, pattern_updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (pattern_id) DO UPDATE SET
			total_found = EXCLUDED.total_found,
			result_limit = EXCLUDED.result_limit,
			computed_at = EXCLUDED.computed_at,
			pattern_updated_at = EXCLUDED.pattern_updated_at
	`, run.PatternID, run.TotalFound, run.Limit, run.ComputedAt, run.PatternUpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert run: %w", contracts.ErrCacheUnavailable, err)
	}

	query := `
		INSERT INTO selection.pattern_results_cache (
			pattern_id, stock_id, rank, match_score, fundamental_score, technical_score,
			matched_signals, matched_fundamentals, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, e := range run.Entries {
		signalsJSON, err := json.Marshal(nonNilSignals(e.MatchedSignals))
		if err != nil {
			return fmt.Errorf("failed to marshal matched signals: %w", err)
		}
		fundamentalsJSON, err := json.Marshal(nonNilFundamentals(e.MatchedFundamentals))
		if err != nil {
			return fmt.Errorf("failed to marshal matched fundamentals: %w", err)
		}

		if _, err := tx.Exec(ctx, query,
			run.PatternID, e.InstrumentID, e.Rank, e.CompositeScore, e.FundamentalScore, e.TechnicalScore,
			signalsJSON, fundamentalsJSON, e.ComputedAt,
		); err != nil {
			return fmt.Errorf("%w: failed to insert cache entry: %w", contracts.ErrCacheUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", contracts.ErrCacheUnavailable, err)
	}
	return nil
}

// Invalidate removes the cached run of a pattern
func (c *Postgres) Invalidate(ctx context.Context, patternID string) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", contracts.ErrCacheUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM selection.pattern_results_cache WHERE pattern_id = $1", patternID); err != nil {
		return fmt.Errorf("%w: failed to delete entries: %w", contracts.ErrCacheUnavailable, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM selection.pattern_result_runs WHERE pattern_id = $1", patternID); err != nil {
		return fmt.Errorf("%w: failed to delete run: %w", contracts.ErrCacheUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", contracts.ErrCacheUnavailable, err)
	}
	return nil
}

// Prune removes runs computed before olderThan and returns the entry count removed
func (c *Postgres) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %w", contracts.ErrCacheUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM selection.pattern_results_cache
		WHERE pattern_id IN (
			SELECT pattern_id FROM selection.pattern_result_runs WHERE computed_at < $1
		) OR computed_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prune entries: %w", contracts.ErrCacheUnavailable, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM selection.pattern_result_runs WHERE computed_at < $1", olderThan); err != nil {
		return 0, fmt.Errorf("%w: failed to prune runs: %w", contracts.ErrCacheUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: failed to commit transaction: %w", contracts.ErrCacheUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func nonNilSignals(s []contracts.MatchedSignal) []contracts.MatchedSignal {
	if s == nil {
		return []contracts.MatchedSignal{}
	}
	return s
}

func nonNilFundamentals(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

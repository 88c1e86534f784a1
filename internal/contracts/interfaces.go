package contracts

import (
	"context"
	"time"
)

// SignalStore reads active signals
// ⭐ SSOT: 시그널 스토어 읽기 계약
type SignalStore interface {
	ActiveSignals(ctx context.Context, instrumentID string) ([]Signal, error)
	AllActiveSignals(ctx context.Context) ([]Signal, error)
}

// FundamentalStore reads the latest fundamental records.
// LatestRecord returns (nil, nil) when the instrument has none.
// ⭐ SSOT: 재무 스토어 읽기 계약
type FundamentalStore interface {
	LatestRecord(ctx context.Context, instrumentID string) (*FundamentalRecord, error)
	AllLatestRecords(ctx context.Context) ([]FundamentalRecord, error)
}

// PatternRepository stores pattern definitions
// ⭐ SSOT: 패턴 저장소 계약 (built-in 보호는 저장소가 보장)
type PatternRepository interface {
	// Create fails with ErrAlreadyExists on duplicate id
	Create(ctx context.Context, p *Pattern) error
	Get(ctx context.Context, id string) (*Pattern, error)
	List(ctx context.Context, filter PatternFilter) ([]*Pattern, error)
	// Update locks the row, rejects built-ins with ErrForbidden, applies fn and
	// replaces the row atomically. An error from fn aborts the update.
	Update(ctx context.Context, id string, fn func(p *Pattern) error) (*Pattern, error)
	// Delete rejects built-ins with ErrForbidden
	Delete(ctx context.Context, id string) error
	// SeedBuiltIns inserts missing built-ins and returns how many were added
	SeedBuiltIns(ctx context.Context, patterns []*Pattern) (int, error)
}

// ResultCache stores one CachedRun per pattern.
// Get returns (nil, nil) on a miss. Freshness is judged by the caller.
// ⭐ SSOT: 결과 캐시 계약
type ResultCache interface {
	Get(ctx context.Context, patternID string) (*CachedRun, error)
	// Put atomically replaces every entry of run.PatternID
	Put(ctx context.Context, run *CachedRun) error
	Invalidate(ctx context.Context, patternID string) error
	// Prune removes runs computed before olderThan
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

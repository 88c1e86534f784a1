package cache

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// Memory is an in-process result cache
// ⭐ SSOT: 단일 프로세스용 결과 캐시 (재시작 시 소멸)
type Memory struct {
	mu   sync.RWMutex
	runs map[string]*contracts.CachedRun
}

var _ contracts.ResultCache = (*Memory)(nil)

// NewMemory creates an empty memory cache
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]*contracts.CachedRun)}
}

func (m *Memory) Get(_ context.Context, patternID string) (*contracts.CachedRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[patternID]
	if !ok || len(run.Entries) == 0 {
		return nil, nil
	}
	return copyRun(run), nil
}

func (m *Memory) Put(_ context.Context, run *contracts.CachedRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.PatternID] = copyRun(run)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, patternID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, patternID)
	return nil
}

func (m *Memory) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for id, run := range m.runs {
		if run.OldestComputedAt().Before(olderThan) {
			removed += int64(len(run.Entries))
			delete(m.runs, id)
		}
	}
	return removed, nil
}

// Len returns the number of cached patterns
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

func copyRun(run *contracts.CachedRun) *contracts.CachedRun {
	out := *run
	out.Entries = make([]contracts.CacheEntry, len(run.Entries))
	for i, e := range run.Entries {
		e.MatchedSignals = append([]contracts.MatchedSignal(nil), e.MatchedSignals...)
		fundamentals := make(map[string]float64, len(e.MatchedFundamentals))
		for k, v := range e.MatchedFundamentals {
			fundamentals[k] = v
		}
		e.MatchedFundamentals = fundamentals
		out.Entries[i] = e
	}
	return &out
}

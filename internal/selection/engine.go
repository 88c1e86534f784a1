package selection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/metrics"
)

// EngineConfig holds the run parameters
type EngineConfig struct {
	FreshnessWindow time.Duration // cached runs older than this are recomputed
	MaxLimit        int           // larger limits are clamped
	Scoring         ScoringMode
}

// DefaultEngineConfig returns the production defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FreshnessWindow: 24 * time.Hour,
		MaxLimit:        1000,
		Scoring:         ScoringBinary,
	}
}

// Engine matches patterns against the signal and fundamental stores
// ⭐ SSOT: 패턴 매칭/스코어링 엔진
type Engine struct {
	patterns     contracts.PatternRepository
	signals      contracts.SignalStore
	fundamentals contracts.FundamentalStore
	cache        contracts.ResultCache
	config       EngineConfig
	logger       *logger.Logger
	metrics      *metrics.Registry
	now          func() time.Time
}

// NewEngine creates a new engine. cache may be nil to disable caching.
func NewEngine(
	patterns contracts.PatternRepository,
	signals contracts.SignalStore,
	fundamentals contracts.FundamentalStore,
	cache contracts.ResultCache,
	config EngineConfig,
	log *logger.Logger,
	reg *metrics.Registry,
) *Engine {
	if config.FreshnessWindow <= 0 {
		config.FreshnessWindow = DefaultEngineConfig().FreshnessWindow
	}
	if config.Scoring == "" {
		config.Scoring = ScoringBinary
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		patterns:     patterns,
		signals:      signals,
		fundamentals: fundamentals,
		cache:        cache,
		config:       config,
		logger:       log.WithComponent("engine"),
		metrics:      reg,
		now:          time.Now,
	}
}

// SetClock overrides the time source
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// evaluation is the full, sorted qualifier set of one pattern
type evaluation struct {
	candidates []candidate
	universe   contracts.UniverseSize
}

// RunPattern evaluates a stored pattern and returns the top limit results
func (e *Engine) RunPattern(ctx context.Context, patternID string, opts contracts.RunOptions) (*contracts.RankedResults, error) {
	start := e.now()

	p, err := e.patterns.Get(ctx, patternID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern: %w", err)
	}

	limit := e.clampLimit(opts.Limit)
	log := e.logger.WithFields(map[string]interface{}{
		"pattern_id": p.ID,
		"kind":       p.Kind().String(),
		"limit":      limit,
	})

	if opts.UseCache && e.cache != nil {
		if res := e.fromCache(ctx, p, limit, log); res != nil {
			res.ExecutionTimeSeconds = e.now().Sub(start).Seconds()
			e.metrics.RecordRun(p.ID, metrics.SourceCache, res.ExecutionTimeSeconds)
			log.WithFields(map[string]interface{}{
				"cache":       "hit",
				"total_found": res.TotalFound,
				"returned":    len(res.Results),
			}).Info("Pattern run served from cache")
			return res, nil
		}
	}

	eval, err := e.evaluate(ctx, p)
	if err != nil {
		e.metrics.RecordRun(p.ID, metrics.SourceError, e.now().Sub(start).Seconds())
		return nil, err
	}

	computedAt := e.now().UTC()
	res := &contracts.RankedResults{
		Pattern:    p.Summary(),
		Results:    toResults(eval.candidates, limit),
		TotalFound: len(eval.candidates),
		ComputedAt: computedAt,
		Universe:   eval.universe,
	}

	e.writeThrough(ctx, p, res, limit, log)

	res.ExecutionTimeSeconds = e.now().Sub(start).Seconds()
	e.metrics.RecordRun(p.ID, metrics.SourceComputed, res.ExecutionTimeSeconds)
	e.metrics.SetMatches(p.ID, res.TotalFound)

	log.WithFields(map[string]interface{}{
		"cache":                "miss",
		"total_found":          res.TotalFound,
		"returned":             len(res.Results),
		"fundamental_universe": eval.universe.Fundamental,
		"technical_universe":   eval.universe.Technical,
		"duration_sec":         res.ExecutionTimeSeconds,
	}).Info("Pattern run completed")

	return res, nil
}

// Preview evaluates an unsaved pattern without touching the cache
func (e *Engine) Preview(ctx context.Context, p *contracts.Pattern, limit int) (*contracts.RankedResults, error) {
	start := e.now()
	limit = e.clampLimit(limit)

	eval, err := e.evaluate(ctx, p)
	if err != nil {
		return nil, err
	}

	return &contracts.RankedResults{
		Pattern:              p.Summary(),
		Results:              toResults(eval.candidates, limit),
		TotalFound:           len(eval.candidates),
		ComputedAt:           e.now().UTC(),
		Universe:             eval.universe,
		ExecutionTimeSeconds: e.now().Sub(start).Seconds(),
	}, nil
}

// evaluate runs the screens the pattern needs and ranks every survivor.
// Stores the pattern does not reference are never queried.
func (e *Engine) evaluate(ctx context.Context, p *contracts.Pattern) (*evaluation, error) {
	eval := &evaluation{
		candidates: []candidate{},
		universe:   contracts.UniverseSize{Fundamental: -1, Technical: -1},
	}

	kind := p.Kind()
	if kind == contracts.KindNone {
		e.logger.WithField("pattern_id", p.ID).Warn("Pattern has no criteria, returning empty result")
		return eval, nil
	}

	var (
		fund map[string]fundamentalMatch
		tech map[string]technicalMatch
	)

	if p.HasFundamental() {
		records, err := e.fundamentals.AllLatestRecords(ctx)
		if err != nil {
			e.metrics.RecordUpstreamError(contracts.SourceFundamentals)
			return nil, contracts.Upstream(contracts.SourceFundamentals, err)
		}
		eval.universe.Fundamental = len(records)
		fund = screenFundamentals(records, p.Fundamental, e.config.Scoring)
	}

	if p.HasTechnical() {
		signals, err := e.signals.AllActiveSignals(ctx)
		if err != nil {
			e.metrics.RecordUpstreamError(contracts.SourceSignals)
			return nil, contracts.Upstream(contracts.SourceSignals, err)
		}
		eval.universe.Technical = distinctInstruments(signals)
		tech = screenTechnicals(signals, p.Technical)
	}

	eval.candidates = combine(kind, fund, tech)
	rank(eval.candidates, p.EffectiveSortKey())
	return eval, nil
}

// fromCache returns a cached response, or nil when the cache cannot answer
func (e *Engine) fromCache(ctx context.Context, p *contracts.Pattern, limit int, log *logger.Logger) *contracts.RankedResults {
	run, err := e.cache.Get(ctx, p.ID)
	if err != nil {
		// 캐시는 최적화일 뿐: 실패 시 재계산
		e.metrics.RecordCacheOp("get", "error")
		log.WithError(err).Warn("Result cache unavailable, recomputing")
		return nil
	}
	if run == nil {
		e.metrics.RecordCacheOp("get", "miss")
		return nil
	}
	if !e.usable(run, p, limit) {
		e.metrics.RecordCacheOp("get", "stale")
		return nil
	}
	e.metrics.RecordCacheOp("get", "hit")

	n := limit
	if n > len(run.Entries) {
		n = len(run.Entries)
	}
	results := make([]contracts.MatchResult, 0, n)
	for i := 0; i < n; i++ {
		r := run.Entries[i].Result()
		r.Rank = i + 1
		results = append(results, r)
	}

	return &contracts.RankedResults{
		Pattern:    p.Summary(),
		Results:    results,
		TotalFound: run.TotalFound,
		FromCache:  true,
		ComputedAt: run.OldestComputedAt(),
		Universe:   contracts.UniverseSize{Fundamental: -1, Technical: -1},
	}
}

// usable reports whether a cached run is fresh and can answer limit
func (e *Engine) usable(run *contracts.CachedRun, p *contracts.Pattern, limit int) bool {
	oldest := run.OldestComputedAt()
	if e.now().Sub(oldest) > e.config.FreshnessWindow {
		return false
	}
	// 다른 버전의 패턴으로 계산된 결과는 무효 (실행 중 수정 포함)
	if !run.PatternUpdatedAt.Equal(p.UpdatedAt) {
		return false
	}
	return limit <= run.Limit || run.Complete()
}

// writeThrough stores the run stamped with the pattern version it was evaluated against
func (e *Engine) writeThrough(ctx context.Context, p *contracts.Pattern, res *contracts.RankedResults, limit int, log *logger.Logger) {
	if e.cache == nil || len(res.Results) == 0 {
		return
	}

	entries := make([]contracts.CacheEntry, 0, len(res.Results))
	for _, r := range res.Results {
		entries = append(entries, contracts.EntryFromResult(p.ID, r, res.ComputedAt))
	}

	err := e.cache.Put(ctx, &contracts.CachedRun{
		PatternID:        p.ID,
		Entries:          entries,
		TotalFound:       res.TotalFound,
		Limit:            limit,
		ComputedAt:       res.ComputedAt,
		PatternUpdatedAt: p.UpdatedAt,
	})
	if err != nil {
		e.metrics.RecordCacheOp("put", "error")
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Failed to write pattern results to cache")
		}
		return
	}
	e.metrics.RecordCacheOp("put", "ok")
}

func (e *Engine) clampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if e.config.MaxLimit > 0 && limit > e.config.MaxLimit {
		return e.config.MaxLimit
	}
	return limit
}

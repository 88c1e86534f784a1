package selection

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/selection/cache"
	"github.com/wonny/aegis-screener/internal/selection/selectiontest"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/metrics"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	clock   *fakeClock
	repo    *selectiontest.PatternRepository
	signals *selectiontest.SignalStore
	funds   *selectiontest.FundamentalStore
	cache   *cache.Memory
	metrics *metrics.Registry
	engine  *Engine
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, DefaultEngineConfig(), nil)
}

// newFixtureWith builds the engine over rc, or over a memory cache when rc is nil
func newFixtureWith(t *testing.T, cfg EngineConfig, rc contracts.ResultCache) *fixture {
	t.Helper()
	f := &fixture{
		clock:   &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		repo:    selectiontest.NewPatternRepository(),
		signals: selectiontest.NewSignalStore(),
		funds:   selectiontest.NewFundamentalStore(),
		cache:   cache.NewMemory(),
		metrics: metrics.NewRegistry(),
	}
	if rc == nil {
		rc = f.cache
	}
	f.repo.SetClock(f.clock.Now)
	f.engine = NewEngine(f.repo, f.signals, f.funds, rc, cfg, logger.Nop(), f.metrics)
	f.engine.SetClock(f.clock.Now)
	f.service = NewService(f.repo, rc, f.engine, 50, logger.Nop(), f.metrics)
	f.service.now = f.clock.Now
	return f
}

func (f *fixture) create(t *testing.T, d contracts.PatternDraft) *contracts.Pattern {
	t.Helper()
	p, err := f.service.CreatePattern(context.Background(), d)
	require.NoError(t, err)
	return p
}

func (f *fixture) run(t *testing.T, id string, limit int, useCache bool) *contracts.RankedResults {
	t.Helper()
	res, err := f.engine.RunPattern(context.Background(), id, contracts.RunOptions{Limit: limit, UseCache: useCache})
	require.NoError(t, err)
	return res
}

func cheapPE() contracts.PatternDraft {
	return contracts.PatternDraft{
		ID:       "cheap_pe",
		Criteria: contracts.Criteria{Fundamental: map[string]contracts.Range{"pe_ratio": {Max: ptr(15)}}},
	}
}

func goldenCross() contracts.PatternDraft {
	return contracts.PatternDraft{
		ID: "golden",
		Criteria: contracts.Criteria{Technical: &contracts.TechnicalCriteria{
			Signals:     []string{"golden_cross"},
			MinStrength: 70,
		}},
	}
}

func cheapGolden() contracts.PatternDraft {
	d := cheapPE()
	d.ID = "cheap_golden"
	d.Technical = goldenCross().Technical
	return d
}

func resultIDs(res *contracts.RankedResults) []string {
	ids := make([]string, len(res.Results))
	for i, r := range res.Results {
		ids[i] = r.InstrumentID
	}
	return ids
}

func TestRunPattern_FundamentalOnly(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 10}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 20}),
	)
	f.create(t, cheapPE())

	res := f.run(t, "cheap_pe", 10, false)

	require.Equal(t, []string{"A"}, resultIDs(res))
	assert.Equal(t, 100.0, res.Results[0].CompositeScore)
	assert.Equal(t, 100.0, res.Results[0].FundamentalScore)
	assert.Equal(t, map[string]float64{"pe_ratio": 10}, res.Results[0].MatchedFundamentals)
	assert.Equal(t, 1, res.TotalFound)
	assert.Equal(t, "cheap_pe", res.Pattern.ID)
	assert.Equal(t, "fundamental", res.Pattern.Kind)
	assert.Equal(t, contracts.UniverseSize{Fundamental: 2, Technical: -1}, res.Universe)
	assert.Zero(t, f.signals.Calls(), "signal store must not be queried")
}

func TestRunPattern_TechnicalStrengthFloor(t *testing.T) {
	f := newFixture(t)
	f.create(t, goldenCross())

	f.signals.Set(selectiontest.Signal("C", "golden_cross", 65))
	res := f.run(t, "golden", 10, false)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, res.TotalFound)
	assert.Equal(t, 1, res.Universe.Technical)

	f.signals.Set(selectiontest.Signal("C", "golden_cross", 75))
	res = f.run(t, "golden", 10, false)
	require.Len(t, res.Results, 1)
	assert.Equal(t, 75.0, res.Results[0].TechnicalScore)
	assert.Equal(t, 75.0, res.Results[0].CompositeScore)
	assert.Zero(t, f.funds.Calls(), "fundamental store must not be queried")
}

func TestRunPattern_CombinedBlend(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("D", map[string]float64{"pe_ratio": 12}),
		selectiontest.Record("E", map[string]float64{"pe_ratio": 30}),
		selectiontest.Record("F", map[string]float64{"pe_ratio": 8}),
	)
	f.signals.Set(
		selectiontest.Signal("D", "golden_cross", 80),
		selectiontest.Signal("E", "golden_cross", 95),
		selectiontest.Signal("G", "golden_cross", 99),
	)
	f.create(t, cheapGolden())

	res := f.run(t, "cheap_golden", 10, false)

	require.Equal(t, []string{"D"}, resultIDs(res))
	assert.InDelta(t, 92.0, res.Results[0].CompositeScore, 1e-9)
	assert.Equal(t, []contracts.MatchedSignal{{Name: "golden_cross", Strength: 80}}, res.Results[0].MatchedSignals)
	assert.Equal(t, contracts.UniverseSize{Fundamental: 3, Technical: 3}, res.Universe)
}

func TestRunPattern_CombinedIsSubsetOfEachSide(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("S%02d", i)
		f.funds.Set(append(recordsOf(f), selectiontest.Record(id, map[string]float64{"pe_ratio": float64(5 + i)}))...)
		if i%3 != 0 {
			f.signals.Set(append(signalsOf(f), selectiontest.Signal(id, "golden_cross", float64(60+2*i)))...)
		}
	}
	f.create(t, cheapPE())
	f.create(t, goldenCross())
	f.create(t, cheapGolden())

	fund := f.run(t, "cheap_pe", 100, false)
	tech := f.run(t, "golden", 100, false)
	combined := f.run(t, "cheap_golden", 100, false)

	require.NotEmpty(t, combined.Results)
	for _, id := range resultIDs(combined) {
		assert.Contains(t, resultIDs(fund), id)
		assert.Contains(t, resultIDs(tech), id)
	}
	for _, r := range combined.Results {
		assert.GreaterOrEqual(t, r.CompositeScore, 0.0)
		assert.LessOrEqual(t, r.CompositeScore, 100.0)
	}
}

func recordsOf(f *fixture) []contracts.FundamentalRecord {
	recs, _ := f.funds.AllLatestRecords(context.Background())
	return recs
}

func signalsOf(f *fixture) []contracts.Signal {
	sigs, _ := f.signals.AllActiveSignals(context.Background())
	return sigs
}

func TestRunPattern_Deterministic(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(
		selectiontest.Signal("B", "golden_cross", 80),
		selectiontest.Signal("A", "golden_cross", 80),
		selectiontest.Signal("C", "golden_cross", 90),
		selectiontest.Signal("D", "golden_cross", 72),
	)
	f.create(t, goldenCross())

	first := f.run(t, "golden", 10, false)
	for i := 0; i < 5; i++ {
		again := f.run(t, "golden", 10, false)
		assert.Equal(t, first.Results, again.Results)
	}
	// ties broken by id ascending
	assert.Equal(t, []string{"C", "A", "B", "D"}, resultIDs(first))
}

func TestRunPattern_LimitTruncation(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(
		selectiontest.Signal("A", "golden_cross", 71),
		selectiontest.Signal("B", "golden_cross", 95),
		selectiontest.Signal("C", "golden_cross", 80),
		selectiontest.Signal("D", "golden_cross", 88),
		selectiontest.Signal("E", "golden_cross", 75),
	)
	f.create(t, goldenCross())

	res := f.run(t, "golden", 2, false)

	assert.Equal(t, []string{"B", "D"}, resultIDs(res))
	assert.Equal(t, 5, res.TotalFound)
	assert.Equal(t, []int{1, 2}, []int{res.Results[0].Rank, res.Results[1].Rank})
}

func TestRunPattern_ZeroLimitReportsTotal(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 10}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 11}),
	)
	f.create(t, cheapPE())

	for _, limit := range []int{0, -3} {
		res := f.run(t, "cheap_pe", limit, true)
		assert.Empty(t, res.Results)
		assert.NotNil(t, res.Results)
		assert.Equal(t, 2, res.TotalFound)
	}
	assert.Zero(t, f.cache.Len(), "empty runs are not cached")
}

func TestRunPattern_LimitClampedToMax(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MaxLimit = 2
	f := newFixtureWith(t, cfg, nil)
	f.signals.Set(
		selectiontest.Signal("A", "golden_cross", 90),
		selectiontest.Signal("B", "golden_cross", 80),
		selectiontest.Signal("C", "golden_cross", 70),
	)
	f.create(t, goldenCross())

	res := f.run(t, "golden", 100, false)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 3, res.TotalFound)
}

func TestRunPattern_SortByMetric(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 10, "roe_percent": 15}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 12, "roe_percent": 30}),
		selectiontest.Record("C", map[string]float64{"pe_ratio": 8, "roe_percent": 20}),
	)
	f.create(t, contracts.PatternDraft{
		ID: "quality",
		Criteria: contracts.Criteria{Fundamental: map[string]contracts.Range{
			"pe_ratio":    {Max: ptr(15)},
			"roe_percent": {Min: ptr(10)},
		}},
		SortKey: "roe_percent",
	})

	res := f.run(t, "quality", 10, false)
	assert.Equal(t, []string{"B", "C", "A"}, resultIDs(res))
}

func TestRunPattern_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.RunPattern(context.Background(), "missing", contracts.RunOptions{Limit: 10})
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestRunPattern_PatternWithoutCriteriaIsEmpty(t *testing.T) {
	f := newFixture(t)
	// bypasses validation
	require.NoError(t, f.repo.Create(context.Background(), &contracts.Pattern{ID: "broken", Name: "broken", Category: contracts.CategoryCustom}))

	res := f.run(t, "broken", 10, true)

	assert.Empty(t, res.Results)
	assert.Equal(t, 0, res.TotalFound)
	assert.Zero(t, f.signals.Calls())
	assert.Zero(t, f.funds.Calls())
}

func TestRunPattern_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(selectiontest.Signal("A", "golden_cross", 90))
	f.funds.Fail(errors.New("connection refused"))
	f.create(t, cheapPE())
	f.create(t, goldenCross())

	_, err := f.engine.RunPattern(context.Background(), "cheap_pe", contracts.RunOptions{Limit: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrUpstreamUnavailable)
	var upstream *contracts.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, contracts.SourceFundamentals, upstream.Source)

	// technical-only patterns never touch the failing store
	res := f.run(t, "golden", 10, false)
	assert.Equal(t, []string{"A"}, resultIDs(res))
}

func TestRunPattern_SignalStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.signals.Fail(errors.New("timeout"))
	f.create(t, goldenCross())

	_, err := f.engine.RunPattern(context.Background(), "golden", contracts.RunOptions{Limit: 10})
	var upstream *contracts.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, contracts.SourceSignals, upstream.Source)
	assert.Equal(t, 1.0, upstreamErrors(t, f.metrics, contracts.SourceSignals))
}

func TestRunPattern_CacheHit(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(
		selectiontest.Signal("A", "golden_cross", 90),
		selectiontest.Signal("B", "golden_cross", 80),
	)
	f.create(t, goldenCross())

	first := f.run(t, "golden", 10, true)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, f.cache.Len())

	second := f.run(t, "golden", 10, true)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, first.TotalFound, second.TotalFound)
	assert.Equal(t, 1, f.signals.Calls())

	count, err := testutil.GatherAndCount(f.metrics, "screener_pattern_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per source")
}

func TestRunPattern_CacheBypassed(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(selectiontest.Signal("A", "golden_cross", 90))
	f.create(t, goldenCross())

	f.run(t, "golden", 10, true)
	res := f.run(t, "golden", 10, false)

	assert.False(t, res.FromCache)
	assert.Equal(t, 2, f.signals.Calls())
}

func TestRunPattern_CacheExpires(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(selectiontest.Signal("A", "golden_cross", 90))
	f.create(t, goldenCross())

	f.run(t, "golden", 10, true)
	f.clock.Advance(23 * time.Hour)
	assert.True(t, f.run(t, "golden", 10, true).FromCache)

	f.clock.Advance(2 * time.Hour)
	assert.False(t, f.run(t, "golden", 10, true).FromCache)
}

func TestRunPattern_CachedRunMustCoverLimit(t *testing.T) {
	f := newFixture(t)
	for i, id := range []string{"A", "B", "C", "D", "E"} {
		f.signals.Set(append(signalsOf(f), selectiontest.Signal(id, "golden_cross", float64(90-i)))...)
	}
	calls := f.signals.Calls()
	f.create(t, goldenCross())

	f.run(t, "golden", 2, true)
	assert.True(t, f.run(t, "golden", 1, true).FromCache)

	wider := f.run(t, "golden", 4, true)
	assert.False(t, wider.FromCache)
	assert.Len(t, wider.Results, 4)

	// the wider run replaced the cached one
	narrow := f.run(t, "golden", 3, true)
	assert.True(t, narrow.FromCache)
	assert.Equal(t, []string{"A", "B", "C"}, resultIDs(narrow))
	assert.Equal(t, 5, narrow.TotalFound)
	assert.Equal(t, calls+2, f.signals.Calls())
}

func TestRunPattern_CompleteCachedRunAnswersAnyLimit(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(
		selectiontest.Signal("A", "golden_cross", 90),
		selectiontest.Signal("B", "golden_cross", 80),
	)
	f.create(t, goldenCross())

	f.run(t, "golden", 5, true)
	res := f.run(t, "golden", 50, true)

	assert.True(t, res.FromCache)
	assert.Len(t, res.Results, 2)
}

func TestRunPattern_CacheOlderThanPatternIsStale(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 10}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 20}),
	)
	f.create(t, cheapPE())
	f.run(t, "cheap_pe", 10, true)

	// criteria changed without going through the service, so nothing was invalidated
	f.clock.Advance(time.Minute)
	_, err := f.repo.Update(context.Background(), "cheap_pe", func(p *contracts.Pattern) error {
		p.Fundamental["pe_ratio"] = contracts.Range{Max: ptr(25)}
		return nil
	})
	require.NoError(t, err)

	res := f.run(t, "cheap_pe", 10, true)
	assert.False(t, res.FromCache)
	assert.Equal(t, []string{"A", "B"}, resultIDs(res))
}

func TestRunPattern_PatternEditedMidRunIsNotServedFromCache(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 10}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 20}),
	)
	f.create(t, cheapPE())

	// 평가 도중 기준 변경 (무효화는 결과 저장 전에 끝남): 실행은 이전 버전으로 계산됨
	edited := false
	f.funds.OnRead(func() {
		if edited {
			return
		}
		edited = true
		f.clock.Advance(time.Second)
		_, err := f.service.UpdatePattern(context.Background(), "cheap_pe", contracts.PatternPatch{
			Fundamental: map[string]contracts.Range{"pe_ratio": {Min: ptr(15)}},
		})
		require.NoError(t, err)
	})

	first := f.run(t, "cheap_pe", 10, true)
	assert.Equal(t, []string{"A"}, resultIDs(first))

	cached := f.run(t, "cheap_pe", 10, true)
	fresh := f.run(t, "cheap_pe", 10, false)
	assert.False(t, cached.FromCache)
	assert.Equal(t, []string{"B"}, resultIDs(fresh))
	assert.Equal(t, resultIDs(fresh), resultIDs(cached))

	// 현재 버전으로 다시 저장된 결과는 재사용됨
	assert.True(t, f.run(t, "cheap_pe", 10, true).FromCache)
}

func TestRunPattern_CacheFailureIsSoft(t *testing.T) {
	f := newFixtureWith(t, DefaultEngineConfig(), selectiontest.FailingCache{Err: contracts.ErrCacheUnavailable})
	f.signals.Set(selectiontest.Signal("A", "golden_cross", 90))
	f.create(t, goldenCross())

	for i := 0; i < 2; i++ {
		res := f.run(t, "golden", 10, true)
		assert.False(t, res.FromCache)
		assert.Equal(t, []string{"A"}, resultIDs(res))
	}
}

func TestRunPattern_NilCache(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.repo, f.signals, f.funds, nil, EngineConfig{}, nil, nil)
	f.signals.Set(selectiontest.Signal("A", "golden_cross", 90))
	f.create(t, goldenCross())

	res, err := engine.RunPattern(context.Background(), "golden", contracts.RunOptions{Limit: 10, UseCache: true})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Results, 1)
}

func TestRunPattern_ProportionalScoring(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Scoring = ScoringProportional
	f := newFixtureWith(t, cfg, nil)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 14}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 5}),
	)
	f.create(t, cheapPE())

	res := f.run(t, "cheap_pe", 10, false)

	require.Equal(t, []string{"B", "A"}, resultIDs(res))
	assert.Less(t, res.Results[0].CompositeScore, 100.0)
	assert.Greater(t, res.Results[0].CompositeScore, res.Results[1].CompositeScore)
}

func upstreamErrors(t *testing.T, reg *metrics.Registry, source string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "screener_upstream_errors_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "source" && l.GetValue() == source {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

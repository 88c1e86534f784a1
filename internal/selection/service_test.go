package selection

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/selection/selectiontest"
)

func seed(t *testing.T, f *fixture) {
	t.Helper()
	added, err := f.service.SeedBuiltIns(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, added)
}

func TestService_ListPatterns(t *testing.T) {
	f := newFixture(t)
	seed(t, f)
	f.create(t, cheapPE())

	list, err := f.service.ListPatterns(context.Background(), contracts.PatternFilter{})
	require.NoError(t, err)

	assert.Len(t, list.BuiltIns, 10)
	require.Len(t, list.Custom, 1)
	assert.Equal(t, "cheap_pe", list.Custom[0].ID)
	assert.Equal(t, contracts.PatternCounts{BuiltIn: 10, Custom: 1, Total: 11}, list.Counts)
	assert.Equal(t, []string{"cheap_pe"}, list.ByCategory[contracts.CategoryCustom])
	for _, s := range list.BuiltIns {
		assert.True(t, s.IsBuiltIn)
		assert.Contains(t, list.ByCategory[s.Category], s.ID)
	}

	builtIn := false
	custom, err := f.service.ListPatterns(context.Background(), contracts.PatternFilter{BuiltIn: &builtIn})
	require.NoError(t, err)
	assert.Empty(t, custom.BuiltIns)
	assert.Equal(t, 1, custom.Counts.Total)
}

func TestService_SeedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seed(t, f)

	added, err := f.service.SeedBuiltIns(context.Background())
	require.NoError(t, err)
	assert.Zero(t, added)
}

func TestService_CreatePattern_Defaults(t *testing.T) {
	f := newFixture(t)

	p := f.create(t, contracts.PatternDraft{
		ID:       " my_screen ",
		Criteria: goldenCross().Criteria,
	})

	assert.Equal(t, "my_screen", p.ID)
	assert.Equal(t, "my_screen", p.Name)
	assert.Equal(t, contracts.CategoryCustom, p.Category)
	assert.Equal(t, contracts.SortMatchScore, p.SortKey)
	assert.Equal(t, "user", p.CreatedBy)
	assert.False(t, p.IsBuiltIn)

	got, err := f.service.GetPattern(context.Background(), "my_screen")
	require.NoError(t, err)
	assert.Equal(t, p.Criteria, got.Criteria)
}

func TestService_CreatePattern_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		draft contracts.PatternDraft
		field string
	}{
		{
			name: "both criteria empty",
			draft: contracts.PatternDraft{
				ID:       "empty",
				Criteria: contracts.Criteria{Technical: &contracts.TechnicalCriteria{}, Fundamental: map[string]contracts.Range{}},
			},
			field: "criteria",
		},
		{
			name:  "missing id",
			draft: contracts.PatternDraft{Criteria: cheapPE().Criteria},
			field: "id",
		},
		{
			name: "unknown signal",
			draft: contracts.PatternDraft{
				ID:       "bad_signal",
				Criteria: contracts.Criteria{Technical: &contracts.TechnicalCriteria{Signals: []string{"moon_phase"}}},
			},
			field: "technical_criteria.signals",
		},
		{
			name: "unknown metric",
			draft: contracts.PatternDraft{
				ID:       "bad_metric",
				Criteria: contracts.Criteria{Fundamental: map[string]contracts.Range{"vibes": {Min: ptr(1)}}},
			},
			field: "fundamental_criteria.vibes",
		},
		{
			name: "min above max",
			draft: contracts.PatternDraft{
				ID:       "inverted",
				Criteria: contracts.Criteria{Fundamental: map[string]contracts.Range{"pe_ratio": {Min: ptr(20), Max: ptr(10)}}},
			},
			field: "fundamental_criteria.pe_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.service.CreatePattern(context.Background(), tt.draft)

			var verr *contracts.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			list, err := f.service.ListPatterns(context.Background(), contracts.PatternFilter{})
			require.NoError(t, err)
			assert.Zero(t, list.Counts.Total, "nothing persisted")
		})
	}
}

func TestService_CreatePattern_DuplicateID(t *testing.T) {
	f := newFixture(t)
	f.create(t, cheapPE())

	_, err := f.service.CreatePattern(context.Background(), cheapPE())

	var verr *contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestService_UpdatePattern_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 10}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 20}),
	)
	f.create(t, cheapPE())
	require.Equal(t, []string{"A"}, resultIDs(f.run(t, "cheap_pe", 10, true)))
	require.Equal(t, 1, f.cache.Len())

	updated, err := f.service.UpdatePattern(context.Background(), "cheap_pe", contracts.PatternPatch{
		Fundamental: map[string]contracts.Range{"pe_ratio": {Max: ptr(25)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, *updated.Fundamental["pe_ratio"].Max)
	assert.Zero(t, f.cache.Len())

	res := f.run(t, "cheap_pe", 10, true)
	assert.False(t, res.FromCache)
	assert.Equal(t, []string{"A", "B"}, resultIDs(res))
}

func TestService_UpdatePattern_InvalidationFailureStillServesNewCriteria(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"pe_ratio": 10}),
		selectiontest.Record("B", map[string]float64{"pe_ratio": 20}),
	)
	f.create(t, cheapPE())
	f.run(t, "cheap_pe", 10, true)

	// service whose invalidation always fails, engine still reading the warm cache
	broken := NewService(f.repo, selectiontest.FailingCache{Err: contracts.ErrCacheUnavailable}, f.engine, 50, nil, nil)
	f.clock.Advance(time.Second)
	_, err := broken.UpdatePattern(context.Background(), "cheap_pe", contracts.PatternPatch{
		Fundamental: map[string]contracts.Range{"pe_ratio": {Max: ptr(25)}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len())

	res := f.run(t, "cheap_pe", 10, true)
	assert.False(t, res.FromCache)
	assert.Equal(t, []string{"A", "B"}, resultIDs(res))
}

func TestService_UpdatePattern_ClearsOneSide(t *testing.T) {
	f := newFixture(t)
	f.create(t, cheapGolden())

	updated, err := f.service.UpdatePattern(context.Background(), "cheap_golden", contracts.PatternPatch{
		Technical: &contracts.TechnicalCriteria{},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.KindFundamental, updated.Kind())

	_, err = f.service.UpdatePattern(context.Background(), "cheap_golden", contracts.PatternPatch{
		Fundamental: map[string]contracts.Range{},
	})
	assert.True(t, contracts.IsValidation(err), "clearing the last criteria leaves an empty pattern")
}

func TestService_UpdatePattern_Rejected(t *testing.T) {
	f := newFixture(t)
	f.create(t, cheapPE())
	before, err := f.service.GetPattern(context.Background(), "cheap_pe")
	require.NoError(t, err)

	_, err = f.service.UpdatePattern(context.Background(), "cheap_pe", contracts.PatternPatch{})
	assert.True(t, contracts.IsValidation(err))

	_, err = f.service.UpdatePattern(context.Background(), "cheap_pe", contracts.PatternPatch{
		Fundamental: map[string]contracts.Range{"pe_ratio": {Min: ptr(30), Max: ptr(10)}},
	})
	assert.True(t, contracts.IsValidation(err))

	bad := contracts.Category("meme")
	_, err = f.service.UpdatePattern(context.Background(), "cheap_pe", contracts.PatternPatch{Category: &bad})
	assert.True(t, contracts.IsValidation(err))

	after, err := f.service.GetPattern(context.Background(), "cheap_pe")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = f.service.UpdatePattern(context.Background(), "missing", contracts.PatternPatch{Category: &bad})
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestService_BuiltInsAreReadOnly(t *testing.T) {
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	before, err := f.service.GetPattern(ctx, "garp")
	require.NoError(t, err)
	require.NoError(t, f.cache.Put(ctx, &contracts.CachedRun{
		PatternID:  "garp",
		Entries:    []contracts.CacheEntry{{PatternID: "garp", InstrumentID: "A", Rank: 1, CompositeScore: 100, ComputedAt: f.clock.Now()}},
		TotalFound: 1,
		Limit:      10,
		ComputedAt: f.clock.Now(),
	}))

	name := "renamed"
	_, err = f.service.UpdatePattern(ctx, "garp", contracts.PatternPatch{Name: &name})
	assert.ErrorIs(t, err, contracts.ErrForbidden)

	err = f.service.DeletePattern(ctx, "garp")
	assert.ErrorIs(t, err, contracts.ErrForbidden)

	after, err := f.service.GetPattern(ctx, "garp")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, f.cache.Len(), "cache untouched")
}

func TestService_DeletePattern(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(selectiontest.Signal("A", "golden_cross", 90))
	f.create(t, goldenCross())
	f.run(t, "golden", 10, true)
	require.Equal(t, 1, f.cache.Len())

	require.NoError(t, f.service.DeletePattern(context.Background(), "golden"))

	assert.Zero(t, f.cache.Len())
	_, err := f.service.GetPattern(context.Background(), "golden")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	err = f.service.DeletePattern(context.Background(), "golden")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestService_RunPatternWithBuiltIn(t *testing.T) {
	f := newFixture(t)
	seed(t, f)
	f.funds.Set(
		selectiontest.Record("A", map[string]float64{"roic": 20, "ev_ebitda": 8}),
		selectiontest.Record("B", map[string]float64{"roic": 30, "ev_ebitda": 12}),
		selectiontest.Record("C", map[string]float64{"roic": 5, "ev_ebitda": 4}),
	)

	res, err := f.service.RunPattern(context.Background(), "magic_formula", contracts.RunOptions{Limit: 10})
	require.NoError(t, err)

	// sorted by roic
	assert.Equal(t, []string{"B", "A"}, resultIDs(res))
	assert.True(t, res.Pattern.IsBuiltIn)
}

func TestService_PreviewDraft(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(selectiontest.Record("A", map[string]float64{"pe_ratio": 10}))

	d := cheapPE()
	d.ID = ""
	res, err := f.service.PreviewDraft(context.Background(), d, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, resultIDs(res))
	assert.Zero(t, f.cache.Len())

	_, err = f.service.PreviewDraft(context.Background(), contracts.PatternDraft{}, 10)
	assert.True(t, contracts.IsValidation(err))
}

func TestService_ClearCache(t *testing.T) {
	f := newFixture(t)
	f.funds.Set(selectiontest.Record("A", map[string]float64{"pe_ratio": 10}))
	f.signals.Set(selectiontest.Signal("A", "golden_cross", 90))
	f.create(t, cheapPE())
	f.create(t, goldenCross())
	f.run(t, "cheap_pe", 10, true)
	f.run(t, "golden", 10, true)
	require.Equal(t, 2, f.cache.Len())

	n, err := f.service.ClearCache(context.Background(), "golden")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.cache.Len())

	n, err = f.service.ClearCache(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, f.cache.Len())

	_, err = f.service.ClearCache(context.Background(), "missing")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestService_PruneCache(t *testing.T) {
	f := newFixture(t)
	f.signals.Set(
		selectiontest.Signal("A", "golden_cross", 90),
		selectiontest.Signal("B", "golden_cross", 80),
	)
	f.create(t, goldenCross())
	f.run(t, "golden", 10, true)

	pruned, err := f.service.PruneCache(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	f.clock.Advance(8 * 24 * time.Hour)
	pruned, err = f.service.PruneCache(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)
	assert.Zero(t, f.cache.Len())

	_, err = f.service.PruneCache(context.Background(), 0)
	assert.True(t, contracts.IsValidation(err))
}

func TestService_PruneCacheFailure(t *testing.T) {
	f := newFixtureWith(t, DefaultEngineConfig(), selectiontest.FailingCache{Err: errors.New("boom")})

	_, err := f.service.PruneCache(context.Background(), time.Hour)
	assert.Error(t, err)
}

func TestService_ExportImport(t *testing.T) {
	src := newFixture(t)
	seed(t, src)
	src.create(t, cheapGolden())
	src.create(t, goldenCross())

	var buf bytes.Buffer
	n, err := src.service.ExportPatterns(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotContains(t, buf.String(), "magic_formula", "built-ins are not exported")

	dst := newFixture(t)
	dst.create(t, goldenCross())

	res, err := dst.service.ImportPatterns(context.Background(), bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{"cheap_golden"}, res.Created)
	assert.Equal(t, []string{"golden"}, res.Skipped)

	imported, err := dst.service.GetPattern(context.Background(), "cheap_golden")
	require.NoError(t, err)
	original, err := src.service.GetPattern(context.Background(), "cheap_golden")
	require.NoError(t, err)
	assert.Equal(t, original.Criteria, imported.Criteria)
	assert.Equal(t, original.SortKey, imported.SortKey)
}

func TestService_ImportRejectsInvalidFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ImportPatterns(context.Background(), bytes.NewBufferString("patterns:\n  - id: x\n    colour: red\n"))
	assert.True(t, contracts.IsValidation(err))
}

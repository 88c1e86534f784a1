package selection

import (
	"math"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// ScoringMode selects how fundamental survivors are scored
type ScoringMode string

const (
	// ScoringBinary scores every survivor 100 (criteria met / criteria declared)
	ScoringBinary ScoringMode = "binary"
	// ScoringProportional grades each metric by its position inside the range
	ScoringProportional ScoringMode = "proportional"
)

type fundamentalMatch struct {
	score   float64
	matched map[string]float64
}

// screenFundamentals keeps instruments whose every declared metric is
// non-null and inside its range (boolean AND)
// ⭐ SSOT: 재무 조건 평가는 여기서만
func screenFundamentals(records []contracts.FundamentalRecord, criteria map[string]contracts.Range, mode ScoringMode) map[string]fundamentalMatch {
	metrics := contracts.Criteria{Fundamental: criteria}.Metrics()
	out := make(map[string]fundamentalMatch)
	// 종목당 첫 레코드(최신 분기)만 평가, 실패해도 이후 레코드로 대체하지 않음
	seen := make(map[string]struct{}, len(records))

	for i := range records {
		rec := &records[i]
		if _, dup := seen[rec.InstrumentID]; dup {
			continue
		}
		seen[rec.InstrumentID] = struct{}{}

		matched := make(map[string]float64, len(metrics))
		graded := 0.0
		passed := true
		for _, metric := range metrics {
			v, ok := rec.Value(metric)
			if !ok || !criteria[metric].Contains(v) {
				passed = false
				break
			}
			matched[metric] = v
			graded += rangePosition(criteria[metric], v)
		}
		if !passed {
			continue
		}

		score := 100.0
		if mode == ScoringProportional && len(metrics) > 0 {
			score = graded / float64(len(metrics))
		}
		out[rec.InstrumentID] = fundamentalMatch{score: clampScore(score), matched: matched}
	}

	return out
}

// rangePosition grades v inside r on [50, 100].
// Two-sided ranges peak at the midpoint, one-sided ranges grow with the
// distance from the bound (saturating at one bound-width away).
func rangePosition(r contracts.Range, v float64) float64 {
	switch {
	case r.Min != nil && r.Max != nil:
		half := (*r.Max - *r.Min) / 2
		if half <= 0 {
			return 100
		}
		mid := *r.Min + half
		return 100 - 50*math.Abs(v-mid)/half
	case r.Min != nil:
		return 50 + 50*math.Min(1, (v-*r.Min)/span(*r.Min))
	case r.Max != nil:
		return 50 + 50*math.Min(1, (*r.Max-v)/span(*r.Max))
	default:
		return 100
	}
}

func span(bound float64) float64 {
	if s := math.Abs(bound); s > 0 {
		return s
	}
	return 1
}

package selection

import (
	"sort"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// rank orders candidates descending by key, ties by instrument id ascending
// ⭐ SSOT: 정렬 규칙은 여기서만
func rank(candidates []candidate, key contracts.SortKey) {
	sort.SliceStable(candidates, func(i, j int) bool {
		vi, vj := sortValue(&candidates[i], key), sortValue(&candidates[j], key)
		if vi != vj {
			return vi > vj
		}
		return candidates[i].instrumentID < candidates[j].instrumentID
	})
}

func sortValue(c *candidate, key contracts.SortKey) float64 {
	switch key {
	case "", contracts.SortMatchScore:
		return c.composite
	case contracts.SortSignalStrength:
		return c.technical
	default:
		// 패턴 자신의 재무 지표 (null은 0으로 정렬)
		return c.metrics[string(key)]
	}
}

// toResults converts the top limit candidates to ranked results
func toResults(candidates []candidate, limit int) []contracts.MatchResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}
	if limit < 0 {
		limit = 0
	}

	results := make([]contracts.MatchResult, 0, limit)
	for i := 0; i < limit; i++ {
		c := candidates[i]
		results = append(results, contracts.MatchResult{
			InstrumentID:        c.instrumentID,
			Rank:                i + 1,
			CompositeScore:      c.composite,
			FundamentalScore:    c.fundamental,
			TechnicalScore:      c.technical,
			MatchedSignals:      c.signals,
			MatchedFundamentals: c.metrics,
		})
	}
	return results
}

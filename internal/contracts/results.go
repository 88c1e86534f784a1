package contracts

import "time"

// MatchResult is one ranked instrument of a run
// ⭐ SSOT: 엔진 출력 단위
type MatchResult struct {
	InstrumentID        string             `json:"instrument_id"`
	Rank                int                `json:"rank"` // 1-based
	CompositeScore      float64            `json:"match_score"`
	FundamentalScore    float64            `json:"fundamental_score"`
	TechnicalScore      float64            `json:"technical_score"`
	MatchedSignals      []MatchedSignal    `json:"matched_signals"`
	MatchedFundamentals map[string]float64 `json:"matched_fundamentals"`
}

// RunOptions are the runPattern parameters
type RunOptions struct {
	Limit    int  `json:"limit"`
	UseCache bool `json:"use_cache"`
}

// UniverseSize reports how many instruments each store supplied.
// -1 means the store was not queried.
type UniverseSize struct {
	Fundamental int `json:"fundamental"`
	Technical   int `json:"technical"`
}

// RankedResults is the runPattern response
type RankedResults struct {
	Pattern              PatternSummary `json:"pattern"`
	Results              []MatchResult  `json:"results"`
	TotalFound           int            `json:"total_found"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds"`
	FromCache            bool           `json:"from_cache"`
	ComputedAt           time.Time      `json:"computed_at"`
	Universe             UniverseSize   `json:"universe"`
}

// CacheEntry is a persisted MatchResult
type CacheEntry struct {
	PatternID           string             `json:"pattern_id"`
	InstrumentID        string             `json:"instrument_id"`
	Rank                int                `json:"rank"`
	CompositeScore      float64            `json:"match_score"`
	FundamentalScore    float64            `json:"fundamental_score"`
	TechnicalScore      float64            `json:"technical_score"`
	MatchedSignals      []MatchedSignal    `json:"matched_signals"`
	MatchedFundamentals map[string]float64 `json:"matched_fundamentals"`
	ComputedAt          time.Time          `json:"computed_at"`
}

// Result converts the entry back into a MatchResult
func (e CacheEntry) Result() MatchResult {
	return MatchResult{
		InstrumentID:        e.InstrumentID,
		Rank:                e.Rank,
		CompositeScore:      e.CompositeScore,
		FundamentalScore:    e.FundamentalScore,
		TechnicalScore:      e.TechnicalScore,
		MatchedSignals:      e.MatchedSignals,
		MatchedFundamentals: e.MatchedFundamentals,
	}
}

// EntryFromResult builds the cache entry of a result
func EntryFromResult(patternID string, r MatchResult, computedAt time.Time) CacheEntry {
	return CacheEntry{
		PatternID:           patternID,
		InstrumentID:        r.InstrumentID,
		Rank:                r.Rank,
		CompositeScore:      r.CompositeScore,
		FundamentalScore:    r.FundamentalScore,
		TechnicalScore:      r.TechnicalScore,
		MatchedSignals:      r.MatchedSignals,
		MatchedFundamentals: r.MatchedFundamentals,
		ComputedAt:          computedAt,
	}
}

// CachedRun is the full cached result set of one pattern
// ⭐ SSOT: 캐시 단위 = 패턴 1개의 실행 결과 전체 (atomic replace)
type CachedRun struct {
	PatternID  string       `json:"pattern_id"`
	Entries    []CacheEntry `json:"entries"`
	TotalFound int          `json:"total_found"`
	Limit      int          `json:"limit"`
	ComputedAt time.Time    `json:"computed_at"`
	// 평가에 사용된 패턴 버전 (Pattern.UpdatedAt)
	PatternUpdatedAt time.Time `json:"pattern_updated_at"`
}

// OldestComputedAt returns the earliest entry timestamp (ComputedAt when empty)
func (c *CachedRun) OldestComputedAt() time.Time {
	oldest := c.ComputedAt
	for _, e := range c.Entries {
		if e.ComputedAt.Before(oldest) {
			oldest = e.ComputedAt
		}
	}
	return oldest
}

// Complete reports whether every qualifier was stored
func (c *CachedRun) Complete() bool {
	return len(c.Entries) >= c.TotalFound
}

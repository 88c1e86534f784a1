package selection

import (
	"math"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// Combined pattern weights
const (
	FundamentalWeight = 0.6
	TechnicalWeight   = 0.4
)

// candidate is an instrument that survived the pattern's screens
type candidate struct {
	instrumentID string
	fundamental  float64
	technical    float64
	composite    float64
	signals      []contracts.MatchedSignal
	metrics      map[string]float64
}

// combine merges the screen outputs per the pattern kind.
// Combined patterns keep the intersection only.
func combine(kind contracts.CriteriaKind, fund map[string]fundamentalMatch, tech map[string]technicalMatch) []candidate {
	out := make([]candidate, 0)

	switch kind {
	case contracts.KindFundamental:
		for id, f := range fund {
			out = append(out, candidate{
				instrumentID: id,
				fundamental:  f.score,
				composite:    compositeScore(kind, f.score, 0),
				signals:      []contracts.MatchedSignal{},
				metrics:      f.matched,
			})
		}
	case contracts.KindTechnical:
		for id, t := range tech {
			out = append(out, candidate{
				instrumentID: id,
				technical:    t.score,
				composite:    compositeScore(kind, 0, t.score),
				signals:      t.signals,
				metrics:      map[string]float64{},
			})
		}
	case contracts.KindCombined:
		for id, f := range fund {
			t, ok := tech[id]
			if !ok {
				continue
			}
			out = append(out, candidate{
				instrumentID: id,
				fundamental:  f.score,
				technical:    t.score,
				composite:    compositeScore(kind, f.score, t.score),
				signals:      t.signals,
				metrics:      f.matched,
			})
		}
	}

	return out
}

// compositeScore returns a score in [0, 100] rounded to 2 decimals
func compositeScore(kind contracts.CriteriaKind, fundamental, technical float64) float64 {
	var score float64
	switch kind {
	case contracts.KindFundamental:
		score = fundamental
	case contracts.KindTechnical:
		score = technical
	case contracts.KindCombined:
		score = FundamentalWeight*fundamental + TechnicalWeight*technical
	}
	return clampScore(score)
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return math.Round(v*100) / 100
	}
}

package selection

import (
	"github.com/wonny/aegis-screener/internal/contracts"
)

type technicalMatch struct {
	score   float64
	signals []contracts.MatchedSignal
}

// screenTechnicals keeps instruments holding every required signal at or
// above the strength floor. Score is the average strength of the required signals.
// ⭐ SSOT: 기술적 조건 평가는 여기서만
func screenTechnicals(signals []contracts.Signal, tc *contracts.TechnicalCriteria) map[string]technicalMatch {
	required := make(map[string]struct{}, len(tc.Signals))
	for _, name := range tc.Signals {
		required[name] = struct{}{}
	}

	// 종목별 시그널명 → 최대 강도
	best := make(map[string]map[string]float64)
	for _, s := range signals {
		if !s.Active {
			continue
		}
		if _, ok := required[s.Name]; !ok {
			continue
		}
		byName, ok := best[s.InstrumentID]
		if !ok {
			byName = make(map[string]float64)
			best[s.InstrumentID] = byName
		}
		if cur, ok := byName[s.Name]; !ok || s.Strength > cur {
			byName[s.Name] = s.Strength
		}
	}

	out := make(map[string]technicalMatch)
	for instrument, byName := range best {
		matched := make([]contracts.MatchedSignal, 0, len(tc.Signals))
		total := 0.0
		passed := true
		for _, name := range tc.Signals {
			strength, ok := byName[name]
			if !ok || strength < tc.MinStrength {
				passed = false
				break
			}
			matched = append(matched, contracts.MatchedSignal{Name: name, Strength: strength})
			total += strength
		}
		if !passed || len(matched) == 0 {
			continue
		}

		out[instrument] = technicalMatch{
			score:   clampScore(total / float64(len(matched))),
			signals: matched,
		}
	}

	return out
}

// distinctInstruments counts instruments with at least one active signal
func distinctInstruments(signals []contracts.Signal) int {
	seen := make(map[string]struct{})
	for _, s := range signals {
		if s.Active {
			seen[s.InstrumentID] = struct{}{}
		}
	}
	return len(seen)
}

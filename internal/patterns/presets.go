package patterns

import (
	"github.com/wonny/aegis-screener/internal/contracts"
)

func atLeast(v float64) contracts.Range { return contracts.Range{Min: &v} }

func between(lo, hi float64) contracts.Range { return contracts.Range{Min: &lo, Max: &hi} }

func technical(minStrength float64, signals ...string) *contracts.TechnicalCriteria {
	return &contracts.TechnicalCriteria{Signals: signals, MinStrength: minStrength}
}

// BuiltIns returns fresh copies of the system patterns
// ⭐ SSOT: 기본 제공 패턴 10종 (seed 1회, 수정/삭제 불가)
func BuiltIns() []*contracts.Pattern {
	defs := []*contracts.Pattern{
		{
			ID:          "cheap_quality_reversal",
			Name:        "Cheap Quality Reversal",
			Description: "Undervalued profitable companies showing a bullish technical reversal",
			Category:    contracts.CategoryValue,
			Criteria: contracts.Criteria{
				Technical: technical(70, "golden_cross", "rsi_oversold", "bullish_macd"),
				Fundamental: map[string]contracts.Range{
					"pe_ratio":       between(0, 15),
					"roe_percent":    atLeast(15),
					"debt_to_assets": between(0, 0.4),
				},
			},
			SortKey: contracts.SortSignalStrength,
		},
		{
			ID:          "high_growth_momentum",
			Name:        "High Growth Momentum",
			Description: "Fast growing companies in a confirmed uptrend",
			Category:    contracts.CategoryGrowth,
			Criteria: contracts.Criteria{
				Technical: technical(75, "bullish_trend", "rsi_bullish", "macd_positive"),
				Fundamental: map[string]contracts.Range{
					"revenue_growth_yoy": atLeast(20),
					"eps_growth_yoy":     atLeast(15),
					"roe_percent":        atLeast(12),
				},
			},
			SortKey: "revenue_growth_yoy",
		},
		{
			ID:          "garp",
			Name:        "Growth at a Reasonable Price",
			Description: "Earnings growth without paying a premium multiple",
			Category:    contracts.CategoryGrowth,
			Criteria: contracts.Criteria{
				Fundamental: map[string]contracts.Range{
					"peg_ratio":      between(0, 1),
					"eps_growth_yoy": atLeast(10),
					"roe_percent":    atLeast(12),
					"pe_ratio":       between(0, 25),
				},
			},
			SortKey: "peg_ratio",
		},
		{
			ID:          "magic_formula",
			Name:        "Magic Formula",
			Description: "High return on capital bought at a low earnings yield multiple",
			Category:    contracts.CategoryQuality,
			Criteria: contracts.Criteria{
				Fundamental: map[string]contracts.Range{
					"roic":      atLeast(12),
					"ev_ebitda": between(0, 15),
				},
			},
			SortKey: "roic",
		},
		{
			ID:          "oversold_bounce",
			Name:        "Oversold Bounce",
			Description: "Profitable companies at oversold momentum extremes",
			Category:    contracts.CategoryTechnical,
			Criteria: contracts.Criteria{
				Technical: technical(70, "rsi_oversold", "stochastic_oversold"),
				Fundamental: map[string]contracts.Range{
					"roe_percent": atLeast(10),
				},
			},
			SortKey: contracts.SortSignalStrength,
		},
		{
			ID:          "blue_chip_quality",
			Name:        "Blue Chip Quality",
			Description: "Large, liquid, conservatively financed high quality companies",
			Category:    contracts.CategoryQuality,
			Criteria: contracts.Criteria{
				Fundamental: map[string]contracts.Range{
					"piotroski_score": between(7, 9),
					"roe_percent":     atLeast(15),
					"current_ratio":   atLeast(2),
					"debt_to_assets":  between(0, 0.5),
					"market_cap":      atLeast(1e10),
				},
			},
			SortKey: "piotroski_score",
		},
		{
			ID:          "deep_value",
			Name:        "Deep Value",
			Description: "Trading below book with a single digit earnings multiple",
			Category:    contracts.CategoryValue,
			Criteria: contracts.Criteria{
				Fundamental: map[string]contracts.Range{
					"pb_ratio":    between(0, 1),
					"pe_ratio":    between(0, 10),
					"roe_percent": atLeast(5),
				},
			},
			SortKey: "pb_ratio",
		},
		{
			ID:          "financial_fortress",
			Name:        "Financial Fortress",
			Description: "Strong balance sheet, low bankruptcy risk and positive operating cash flow",
			Category:    contracts.CategoryHealth,
			Criteria: contracts.Criteria{
				Fundamental: map[string]contracts.Range{
					"piotroski_score": between(7, 9),
					"current_ratio":   atLeast(2),
					"debt_to_assets":  between(0, 0.3),
					"altman_z_score":  atLeast(3),
					"cf_operating":    atLeast(0),
				},
			},
			SortKey: "piotroski_score",
		},
		{
			ID:          "small_cap_growth",
			Name:        "Small Cap Growth",
			Description: "Small caps compounding revenue and earnings at high returns",
			Category:    contracts.CategoryGrowth,
			Criteria: contracts.Criteria{
				Fundamental: map[string]contracts.Range{
					"market_cap":         between(5e8, 5e9),
					"revenue_growth_yoy": atLeast(25),
					"eps_growth_yoy":     atLeast(20),
					"roe_percent":        atLeast(15),
				},
			},
			SortKey: "revenue_growth_yoy",
		},
		{
			ID:          "breakout_volume",
			Name:        "Breakout on Volume",
			Description: "Price breakouts confirmed by a volume surge",
			Category:    contracts.CategoryTechnical,
			Criteria: contracts.Criteria{
				Technical: technical(75, "bullish_breakout", "volume_surge", "rsi_bullish"),
				Fundamental: map[string]contracts.Range{
					"market_cap": atLeast(1e9),
				},
			},
			SortKey: contracts.SortSignalStrength,
		},
	}

	for _, p := range defs {
		p.IsBuiltIn = true
		p.CreatedBy = "system"
	}
	return defs
}

// IsBuiltInID reports whether id belongs to a system pattern
func IsBuiltInID(id string) bool {
	for _, p := range BuiltIns() {
		if p.ID == id {
			return true
		}
	}
	return false
}

package patterns

import (
	"sort"
	"strings"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// VocabularyVersion changes whenever a signal or metric name is added or removed
const VocabularyVersion = "2026.10"

// SignalInfo describes a recognized technical signal
type SignalInfo struct {
	Key       string
	Type      string // trend, momentum, volatility, volume, pattern
	Direction contracts.Direction
	Aliases   []string // upstream display names
}

// ⭐ SSOT: 인식 가능한 시그널 목록 (검증기 + 기술적 스크리닝 공용)
var signalVocabulary = []SignalInfo{
	{Key: "golden_cross", Type: "trend", Direction: contracts.DirectionBullish, Aliases: []string{"Golden Cross", "SMA Golden Cross"}},
	{Key: "death_cross", Type: "trend", Direction: contracts.DirectionBearish, Aliases: []string{"Death Cross", "SMA Death Cross"}},
	{Key: "fast_cross_bullish", Type: "trend", Direction: contracts.DirectionBullish, Aliases: []string{"Fast EMA Bullish Cross", "EMA Bullish Crossover"}},
	{Key: "bullish_trend", Type: "trend", Direction: contracts.DirectionBullish, Aliases: []string{"Bullish Trend", "Price Above SMA 200", "ADX Bullish Trend"}},
	{Key: "bearish_trend", Type: "trend", Direction: contracts.DirectionBearish, Aliases: []string{"Bearish Trend", "Price Below SMA 200", "ADX Bearish Trend"}},
	{Key: "bullish_macd", Type: "momentum", Direction: contracts.DirectionBullish, Aliases: []string{"MACD Bullish Crossover", "MACD Bullish Cross"}},
	{Key: "bearish_macd", Type: "momentum", Direction: contracts.DirectionBearish, Aliases: []string{"MACD Bearish Crossover", "MACD Bearish Cross"}},
	{Key: "macd_positive", Type: "momentum", Direction: contracts.DirectionBullish, Aliases: []string{"MACD Above Zero", "MACD Positive"}},
	{Key: "rsi_oversold", Type: "momentum", Direction: contracts.DirectionBullish, Aliases: []string{"RSI Oversold"}},
	{Key: "rsi_overbought", Type: "momentum", Direction: contracts.DirectionBearish, Aliases: []string{"RSI Overbought"}},
	{Key: "rsi_bullish", Type: "momentum", Direction: contracts.DirectionBullish, Aliases: []string{"RSI Bullish", "RSI Bullish Momentum"}},
	{Key: "stochastic_oversold", Type: "momentum", Direction: contracts.DirectionBullish, Aliases: []string{"Stochastic Oversold", "Stochastic Bullish Crossover"}},
	{Key: "stochastic_overbought", Type: "momentum", Direction: contracts.DirectionBearish, Aliases: []string{"Stochastic Overbought", "Stochastic Bearish Crossover"}},
	{Key: "bullish_breakout", Type: "volatility", Direction: contracts.DirectionBullish, Aliases: []string{"Bollinger Band Bullish Breakout", "Bullish Breakout"}},
	{Key: "bollinger_squeeze", Type: "volatility", Direction: contracts.DirectionNeutral, Aliases: []string{"Bollinger Squeeze", "Bollinger Band Squeeze"}},
	{Key: "atr_expansion", Type: "volatility", Direction: contracts.DirectionNeutral, Aliases: []string{"ATR Expansion", "Volatility Expansion"}},
	{Key: "volume_surge", Type: "volume", Direction: contracts.DirectionBullish, Aliases: []string{"Volume Breakout Bullish", "Volume Surge", "Volume Spike"}},
}

// ⭐ SSOT: 인식 가능한 재무 지표 목록
var metricVocabulary = []string{
	"pe_ratio", "pb_ratio", "ps_ratio", "peg_ratio", "ev_ebitda",
	"roe_percent", "roa_percent", "roic", "npm_percent", "opm_percent", "gross_margin_percent",
	"debt_to_assets", "debt_to_equity", "current_ratio", "quick_ratio",
	"piotroski_score", "altman_z_score",
	"revenue_growth_yoy", "eps_growth_yoy",
	"market_cap", "cf_operating", "dividend_yield", "asset_turnover", "eps",
}

var (
	signalIndex = map[string]SignalInfo{}
	aliasIndex  = map[string]string{}
	metricIndex = map[string]struct{}{}
)

func init() {
	for _, s := range signalVocabulary {
		signalIndex[s.Key] = s
		aliasIndex[s.Key] = s.Key
		for _, alias := range s.Aliases {
			aliasIndex[foldName(alias)] = s.Key
		}
	}
	for _, m := range metricVocabulary {
		metricIndex[m] = struct{}{}
	}
}

// foldName turns "MACD Bullish Crossover" into "macd_bullish_crossover"
func foldName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return s
}

// IsSignal reports whether key is a recognized signal name
func IsSignal(key string) bool {
	_, ok := signalIndex[key]
	return ok
}

// IsMetric reports whether key is a recognized fundamental metric
func IsMetric(key string) bool {
	_, ok := metricIndex[key]
	return ok
}

// Signal returns the vocabulary entry for key
func Signal(key string) (SignalInfo, bool) {
	s, ok := signalIndex[key]
	return s, ok
}

// NormalizeSignalName maps an upstream signal name (key or display name) to its key
func NormalizeSignalName(raw string) (string, bool) {
	key, ok := aliasIndex[foldName(raw)]
	return key, ok
}

// SignalNames returns every signal key, sorted
func SignalNames() []string {
	names := make([]string, 0, len(signalIndex))
	for k := range signalIndex {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// MetricNames returns every metric key, sorted
func MetricNames() []string {
	names := append([]string(nil), metricVocabulary...)
	sort.Strings(names)
	return names
}

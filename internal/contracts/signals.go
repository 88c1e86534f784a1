package contracts

import "time"

// Direction classifies a signal
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Signal is a detected technical event, read from the Signal Store
// ⭐ SSOT: 시그널 스토어 → 엔진 입력
type Signal struct {
	InstrumentID string    `json:"instrument_id"`
	Name         string    `json:"name"` // vocabulary key (golden_cross, rsi_oversold ...)
	Type         string    `json:"type,omitempty"`
	Direction    Direction `json:"direction"`
	Strength     float64   `json:"strength"` // 0 ~ 100
	DetectedDate time.Time `json:"detected_date"`
	Active       bool      `json:"active"`
}

// MatchedSignal is the (name, strength) snapshot kept on a match
type MatchedSignal struct {
	Name     string  `json:"name"`
	Strength float64 `json:"strength"`
}

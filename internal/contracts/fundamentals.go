package contracts

// FundamentalRecord is the latest reporting period of one instrument
// ⭐ SSOT: 재무 스토어 → 엔진 입력 (최신 분기 1건)
type FundamentalRecord struct {
	InstrumentID string              `json:"instrument_id"`
	PeriodKey    string              `json:"period_key"` // e.g. 2024Q3
	Metrics      map[string]*float64 `json:"metrics"`
}

// Value returns the metric value; ok is false when missing or null
func (r *FundamentalRecord) Value(name string) (float64, bool) {
	if r == nil || r.Metrics == nil {
		return 0, false
	}
	v, ok := r.Metrics[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

package contracts

import (
	"encoding/json"
	"sort"
	"time"
)

// Category groups patterns for display. Informational only.
type Category string

const (
	CategoryValue     Category = "value"
	CategoryGrowth    Category = "growth"
	CategoryQuality   Category = "quality"
	CategoryHealth    Category = "health"
	CategoryTechnical Category = "technical"
	CategoryCustom    Category = "custom"
)

// Categories returns the closed category set in display order
func Categories() []Category {
	return []Category{
		CategoryValue,
		CategoryGrowth,
		CategoryQuality,
		CategoryHealth,
		CategoryTechnical,
		CategoryCustom,
	}
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// SortKey selects the field results are ordered by (always descending)
type SortKey string

const (
	SortMatchScore     SortKey = "match_score"
	SortSignalStrength SortKey = "signal_strength"
)

// Range is an inclusive bound on a fundamental metric.
// A nil bound is unbounded on that side.
type Range struct {
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Contains reports whether v lies within the range
func (r Range) Contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Bounded reports whether both sides are set
func (r Range) Bounded() bool {
	return r.Min != nil && r.Max != nil
}

// TechnicalCriteria requires every listed signal to be active at or above MinStrength
type TechnicalCriteria struct {
	Signals     []string `json:"signals" yaml:"signals"`
	MinStrength float64  `json:"min_signal_strength" yaml:"min_signal_strength"`
}

// CriteriaKind is the tag of the criteria union
type CriteriaKind int

const (
	KindNone CriteriaKind = iota
	KindFundamental
	KindTechnical
	KindCombined
)

func (k CriteriaKind) String() string {
	switch k {
	case KindFundamental:
		return "fundamental"
	case KindTechnical:
		return "technical"
	case KindCombined:
		return "combined"
	default:
		return "none"
	}
}

// Criteria is the rule set of a pattern.
// ⭐ SSOT: 패턴 조건은 Kind()로 분기 (fundamental | technical | combined)
type Criteria struct {
	Technical   *TechnicalCriteria `json:"technical_criteria,omitempty" yaml:"technical_criteria,omitempty"`
	Fundamental map[string]Range   `json:"fundamental_criteria,omitempty" yaml:"fundamental_criteria,omitempty"`
}

// HasTechnical reports whether at least one signal is required
func (c Criteria) HasTechnical() bool {
	return c.Technical != nil && len(c.Technical.Signals) > 0
}

// HasFundamental reports whether at least one metric range is declared
func (c Criteria) HasFundamental() bool {
	return len(c.Fundamental) > 0
}

// Kind returns the union tag
func (c Criteria) Kind() CriteriaKind {
	switch {
	case c.HasTechnical() && c.HasFundamental():
		return KindCombined
	case c.HasTechnical():
		return KindTechnical
	case c.HasFundamental():
		return KindFundamental
	default:
		return KindNone
	}
}

// Metrics returns the declared metric names, sorted
func (c Criteria) Metrics() []string {
	names := make([]string, 0, len(c.Fundamental))
	for name := range c.Fundamental {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy
func (c Criteria) Clone() Criteria {
	out := Criteria{}
	if c.Technical != nil {
		out.Technical = &TechnicalCriteria{
			Signals:     append([]string(nil), c.Technical.Signals...),
			MinStrength: c.Technical.MinStrength,
		}
	}
	if c.Fundamental != nil {
		out.Fundamental = make(map[string]Range, len(c.Fundamental))
		for name, r := range c.Fundamental {
			out.Fundamental[name] = Range{Min: copyFloat(r.Min), Max: copyFloat(r.Max)}
		}
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

// Pattern is a named screening rule set
// ⭐ SSOT: 패턴 정의 (built-in은 불변)
type Pattern struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    Category `json:"category" yaml:"category"`
	Criteria    `yaml:",inline"`
	SortKey     SortKey   `json:"sort_key" yaml:"sort_key"`
	IsBuiltIn   bool      `json:"is_builtin" yaml:"-"`
	CreatedBy   string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Clone returns a deep copy
func (p *Pattern) Clone() *Pattern {
	out := *p
	out.Criteria = p.Criteria.Clone()
	return &out
}

// EffectiveSortKey returns SortKey, defaulting to match_score
func (p *Pattern) EffectiveSortKey() SortKey {
	if p.SortKey == "" {
		return SortMatchScore
	}
	return p.SortKey
}

// Summary returns the list view of the pattern
func (p *Pattern) Summary() PatternSummary {
	s := PatternSummary{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Kind:        p.Kind().String(),
		SortKey:     p.EffectiveSortKey(),
		IsBuiltIn:   p.IsBuiltIn,
		MetricCount: len(p.Fundamental),
	}
	if p.HasTechnical() {
		s.SignalCount = len(p.Technical.Signals)
	}
	return s
}

// PatternSummary is the list view of a pattern
type PatternSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category"`
	Kind        string   `json:"kind"`
	SortKey     SortKey  `json:"sort_key"`
	IsBuiltIn   bool     `json:"is_builtin"`
	SignalCount int      `json:"signal_count"`
	MetricCount int      `json:"metric_count"`
}

// PatternList is the listPatterns response
type PatternList struct {
	BuiltIns   []PatternSummary      `json:"builtins"`
	Custom     []PatternSummary      `json:"custom"`
	ByCategory map[Category][]string `json:"by_category"`
	Counts     PatternCounts         `json:"counts"`
}

// PatternCounts totals patterns by origin
type PatternCounts struct {
	BuiltIn int `json:"builtin"`
	Custom  int `json:"custom"`
	Total   int `json:"total"`
}

// PatternFilter narrows List. Zero value lists everything.
type PatternFilter struct {
	Category Category
	BuiltIn  *bool
}

// Matches reports whether p passes the filter
func (f PatternFilter) Matches(p *Pattern) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.BuiltIn != nil && p.IsBuiltIn != *f.BuiltIn {
		return false
	}
	return true
}

// PatternDraft is the input of createPattern
type PatternDraft struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    Category `json:"category,omitempty" yaml:"category,omitempty"`
	Criteria    `yaml:",inline"`
	SortKey     SortKey `json:"sort_key,omitempty" yaml:"sort_key,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty" yaml:"created_by,omitempty"`
}

// DraftFromPattern returns the editable portion of p
func DraftFromPattern(p *Pattern) PatternDraft {
	return PatternDraft{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Criteria:    p.Criteria.Clone(),
		SortKey:     p.SortKey,
		CreatedBy:   p.CreatedBy,
	}
}

// PatternPatch is the input of updatePattern.
// nil fields are left unchanged. A non-nil Technical with no signals clears
// technical criteria, a non-nil empty Fundamental map clears fundamental criteria.
type PatternPatch struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Category    *Category          `json:"category,omitempty"`
	Technical   *TechnicalCriteria `json:"technical_criteria,omitempty"`
	Fundamental map[string]Range   `json:"fundamental_criteria,omitempty"`
	SortKey     *SortKey           `json:"sort_key,omitempty"`
}

// Empty reports whether the patch changes nothing
func (pp PatternPatch) Empty() bool {
	return pp.Name == nil && pp.Description == nil && pp.Category == nil &&
		pp.Technical == nil && pp.Fundamental == nil && pp.SortKey == nil
}

// Apply writes the patch onto p
func (pp PatternPatch) Apply(p *Pattern) {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.Technical != nil {
		if len(pp.Technical.Signals) == 0 {
			p.Technical = nil
		} else {
			p.Technical = (Criteria{Technical: pp.Technical}).Clone().Technical
		}
	}
	if pp.Fundamental != nil {
		if len(pp.Fundamental) == 0 {
			p.Fundamental = nil
		} else {
			p.Fundamental = (Criteria{Fundamental: pp.Fundamental}).Clone().Fundamental
		}
	}
	if pp.SortKey != nil {
		p.SortKey = *pp.SortKey
	}
}

// UnmarshalJSON rejects non-numeric bounds as validation errors
func (r *Range) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ValidationError{Field: "range", Message: "must be an object with optional min and max"}
	}

	out := Range{}
	for key, val := range raw {
		if key != "min" && key != "max" {
			return &ValidationError{Field: "range." + key, Message: "unknown bound (expected min or max)"}
		}
		if string(val) == "null" {
			continue
		}
		var f float64
		if err := json.Unmarshal(val, &f); err != nil {
			return &ValidationError{Field: "range." + key, Message: "bound must be numeric"}
		}
		if key == "min" {
			out.Min = &f
		} else {
			out.Max = &f
		}
	}

	*r = out
	return nil
}

package patterns

import (
	"math"
	"regexp"
	"strings"

	"github.com/wonny/aegis-screener/internal/contracts"
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Normalize fills defaults on a draft: trimmed strings, name from id, custom category
func Normalize(d contracts.PatternDraft) contracts.PatternDraft {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Category == "" {
		d.Category = contracts.CategoryCustom
	}
	if d.SortKey == "" {
		d.SortKey = contracts.SortMatchScore
	}
	if d.CreatedBy == "" {
		d.CreatedBy = "user"
	}
	d.Criteria = canonicalCriteria(d.Criteria)
	return d
}

// canonicalCriteria drops empty union members so Kind() and storage agree
func canonicalCriteria(c contracts.Criteria) contracts.Criteria {
	c = c.Clone()
	if c.Technical != nil {
		for i, s := range c.Technical.Signals {
			c.Technical.Signals[i] = strings.TrimSpace(s)
		}
		if len(c.Technical.Signals) == 0 {
			c.Technical = nil
		}
	}
	if len(c.Fundamental) == 0 {
		c.Fundamental = nil
	}
	return c
}

// ValidateDraft checks a normalized draft
// 실패 시 *contracts.ValidationError 반환 (저장 전 차단)
func ValidateDraft(d contracts.PatternDraft) error {
	if d.ID == "" {
		return contracts.Invalid("id", "required")
	}
	if !idPattern.MatchString(d.ID) {
		return contracts.Invalid("id", "must match %s", idPattern.String())
	}

	return validateBody(d.Name, d.Category, d.Criteria, d.SortKey)
}

// ValidatePattern checks a pattern after a patch was applied
func ValidatePattern(p *contracts.Pattern) error {
	return validateBody(p.Name, p.Category, p.Criteria, p.SortKey)
}

func validateBody(name string, category contracts.Category, c contracts.Criteria, sortKey contracts.SortKey) error {
	if strings.TrimSpace(name) == "" {
		return contracts.Invalid("name", "required")
	}
	if !category.Valid() {
		return contracts.Invalid("category", "unknown category %q", category)
	}
	if c.Kind() == contracts.KindNone {
		return contracts.Invalid("criteria", "at least one of technical_criteria or fundamental_criteria is required")
	}

	if c.HasTechnical() {
		if err := validateTechnical(c.Technical); err != nil {
			return err
		}
	}
	for _, metric := range c.Metrics() {
		if err := validateRange(metric, c.Fundamental[metric]); err != nil {
			return err
		}
	}

	return validateSortKey(sortKey, c)
}

func validateTechnical(t *contracts.TechnicalCriteria) error {
	seen := make(map[string]struct{}, len(t.Signals))
	for _, name := range t.Signals {
		if !IsSignal(name) {
			return contracts.Invalid("technical_criteria.signals", "unknown signal %q", name)
		}
		if _, dup := seen[name]; dup {
			return contracts.Invalid("technical_criteria.signals", "duplicate signal %q", name)
		}
		seen[name] = struct{}{}
	}

	if math.IsNaN(t.MinStrength) || t.MinStrength < 0 || t.MinStrength > 100 {
		return contracts.Invalid("technical_criteria.min_signal_strength", "must be in [0, 100]")
	}
	return nil
}

func validateRange(metric string, r contracts.Range) error {
	field := "fundamental_criteria." + metric
	if !IsMetric(metric) {
		return contracts.Invalid(field, "unknown metric %q", metric)
	}
	for _, b := range []*float64{r.Min, r.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return contracts.Invalid(field, "bounds must be finite numbers")
		}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return contracts.Invalid(field, "min %g is greater than max %g", *r.Min, *r.Max)
	}
	return nil
}

func validateSortKey(key contracts.SortKey, c contracts.Criteria) error {
	switch key {
	case "", contracts.SortMatchScore:
		return nil
	case contracts.SortSignalStrength:
		if !c.HasTechnical() {
			return contracts.Invalid("sort_key", "signal_strength requires technical_criteria")
		}
		return nil
	}

	if _, ok := c.Fundamental[string(key)]; ok {
		return nil
	}
	return contracts.Invalid("sort_key", "%q must be match_score, signal_strength or one of the pattern's fundamental metrics", key)
}

// NormalizePattern applies Normalize to an existing pattern in place
func NormalizePattern(p *contracts.Pattern) {
	d := Normalize(contracts.DraftFromPattern(p))
	p.Name = d.Name
	p.Description = d.Description
	p.Category = d.Category
	p.Criteria = d.Criteria
	p.SortKey = d.SortKey
}

// NewPattern builds a user pattern from a normalized draft
func NewPattern(d contracts.PatternDraft) *contracts.Pattern {
	return &contracts.Pattern{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Criteria:    d.Criteria.Clone(),
		SortKey:     d.SortKey,
		CreatedBy:   d.CreatedBy,
	}
}

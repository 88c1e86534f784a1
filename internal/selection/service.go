package selection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/patterns"
	"github.com/wonny/aegis-screener/pkg/logger"
	"github.com/wonny/aegis-screener/pkg/metrics"
)

// Service exposes the pattern operations to the presentation layer
// ⭐ SSOT: 패턴 CRUD + 실행 진입점 (API, CLI 공용)
type Service struct {
	repo         contracts.PatternRepository
	cache        contracts.ResultCache
	engine       *Engine
	defaultLimit int
	logger       *logger.Logger
	metrics      *metrics.Registry
	now          func() time.Time
}

// NewService creates a new service. cache may be nil.
func NewService(repo contracts.PatternRepository, cache contracts.ResultCache, engine *Engine, defaultLimit int, log *logger.Logger, reg *metrics.Registry) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &Service{
		repo:         repo,
		cache:        cache,
		engine:       engine,
		defaultLimit: defaultLimit,
		logger:       log.WithComponent("patterns"),
		metrics:      reg,
		now:          time.Now,
	}
}

// DefaultLimit returns the limit used when a caller does not supply one
func (s *Service) DefaultLimit() int { return s.defaultLimit }

// ListPatterns returns built-in and custom summaries grouped by category
func (s *Service) ListPatterns(ctx context.Context, filter contracts.PatternFilter) (*contracts.PatternList, error) {
	all, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}

	list := &contracts.PatternList{
		BuiltIns:   []contracts.PatternSummary{},
		Custom:     []contracts.PatternSummary{},
		ByCategory: make(map[contracts.Category][]string),
	}
	for _, p := range all {
		summary := p.Summary()
		if p.IsBuiltIn {
			list.BuiltIns = append(list.BuiltIns, summary)
		} else {
			list.Custom = append(list.Custom, summary)
		}
		list.ByCategory[p.Category] = append(list.ByCategory[p.Category], p.ID)
	}
	for _, ids := range list.ByCategory {
		sort.Strings(ids)
	}

	list.Counts = contracts.PatternCounts{
		BuiltIn: len(list.BuiltIns),
		Custom:  len(list.Custom),
		Total:   len(all),
	}
	return list, nil
}

// GetPattern returns the full pattern
func (s *Service) GetPattern(ctx context.Context, id string) (*contracts.Pattern, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	return p, nil
}

// CreatePattern validates and stores a user pattern
func (s *Service) CreatePattern(ctx context.Context, draft contracts.PatternDraft) (*contracts.Pattern, error) {
	draft = patterns.Normalize(draft)
	if err := patterns.ValidateDraft(draft); err != nil {
		return nil, err
	}

	p := patterns.NewPattern(draft)
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, contracts.ErrAlreadyExists) {
			return nil, contracts.Invalid("id", "pattern %q already exists", draft.ID)
		}
		return nil, fmt.Errorf("failed to create pattern: %w", err)
	}

	// 같은 id의 이전 패턴 결과가 남아 있을 수 있음
	s.invalidate(ctx, p.ID)

	s.logger.WithFields(map[string]interface{}{
		"pattern_id": p.ID,
		"kind":       p.Kind().String(),
	}).Info("Pattern created")
	return p, nil
}

// UpdatePattern applies patch to a user pattern and invalidates its cached results
func (s *Service) UpdatePattern(ctx context.Context, id string, patch contracts.PatternPatch) (*contracts.Pattern, error) {
	if patch.Empty() {
		return nil, contracts.Invalid("", "patch changes nothing")
	}

	updated, err := s.repo.Update(ctx, id, func(p *contracts.Pattern) error {
		patch.Apply(p)
		patterns.NormalizePattern(p)
		return patterns.ValidatePattern(p)
	})
	if err != nil {
		if contracts.IsValidation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update pattern: %w", err)
	}

	s.invalidate(ctx, id)

	s.logger.WithFields(map[string]interface{}{
		"pattern_id": id,
		"kind":       updated.Kind().String(),
	}).Info("Pattern updated")
	return updated, nil
}

// DeletePattern removes a user pattern and its cached results
func (s *Service) DeletePattern(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}

	s.invalidate(ctx, id)

	s.logger.WithField("pattern_id", id).Info("Pattern deleted")
	return nil
}

// RunPattern runs a stored pattern. A zero limit in opts is taken literally.
func (s *Service) RunPattern(ctx context.Context, id string, opts contracts.RunOptions) (*contracts.RankedResults, error) {
	return s.engine.RunPattern(ctx, id, opts)
}

// PreviewDraft evaluates a draft without storing it
func (s *Service) PreviewDraft(ctx context.Context, draft contracts.PatternDraft, limit int) (*contracts.RankedResults, error) {
	draft = patterns.Normalize(draft)
	if draft.ID == "" {
		draft.ID = "preview"
		draft.Name = "preview"
	}
	if err := patterns.ValidateDraft(draft); err != nil {
		return nil, err
	}
	return s.engine.Preview(ctx, patterns.NewPattern(draft), limit)
}

// SeedBuiltIns inserts the missing system patterns
func (s *Service) SeedBuiltIns(ctx context.Context) (int, error) {
	added, err := s.repo.SeedBuiltIns(ctx, patterns.BuiltIns())
	if err != nil {
		return 0, fmt.Errorf("failed to seed built-in patterns: %w", err)
	}
	s.logger.WithField("added", added).Info("Built-in patterns seeded")
	return added, nil
}

// ClearCache drops cached results of one pattern, or of every pattern when id is empty
func (s *Service) ClearCache(ctx context.Context, id string) (int, error) {
	if s.cache == nil {
		return 0, nil
	}

	ids := []string{id}
	if id == "" {
		all, err := s.repo.List(ctx, contracts.PatternFilter{})
		if err != nil {
			return 0, fmt.Errorf("failed to list patterns: %w", err)
		}
		ids = ids[:0]
		for _, p := range all {
			ids = append(ids, p.ID)
		}
	} else if _, err := s.repo.Get(ctx, id); err != nil {
		return 0, fmt.Errorf("failed to get pattern: %w", err)
	}

	for _, pid := range ids {
		if err := s.cache.Invalidate(ctx, pid); err != nil {
			return 0, fmt.Errorf("failed to clear cache for %s: %w", pid, err)
		}
	}

	s.logger.WithField("patterns", len(ids)).Info("Result cache cleared")
	return len(ids), nil
}

// PruneCache removes cached runs older than retention
func (s *Service) PruneCache(ctx context.Context, retention time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	if retention <= 0 {
		return 0, contracts.Invalid("retention", "must be positive")
	}

	cutoff := s.now().Add(-retention)
	pruned, err := s.cache.Prune(ctx, cutoff)
	if err != nil {
		s.metrics.RecordCacheOp("prune", "error")
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	s.metrics.RecordCacheOp("prune", "ok")
	s.metrics.AddPruned(pruned)

	s.logger.WithFields(map[string]interface{}{
		"cutoff": cutoff,
		"pruned": pruned,
	}).Info("Result cache pruned")
	return pruned, nil
}

// ExportPatterns writes the custom patterns as YAML
func (s *Service) ExportPatterns(ctx context.Context, w io.Writer) (int, error) {
	builtIn := false
	custom, err := s.repo.List(ctx, contracts.PatternFilter{BuiltIn: &builtIn})
	if err != nil {
		return 0, fmt.Errorf("failed to list patterns: %w", err)
	}
	if err := patterns.Encode(w, custom); err != nil {
		return 0, err
	}
	return len(custom), nil
}

// ImportResult reports the outcome of ImportPatterns
type ImportResult struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

// ImportPatterns creates every pattern of a YAML file. Existing ids are skipped.
func (s *Service) ImportPatterns(ctx context.Context, r io.Reader) (*ImportResult, error) {
	drafts, err := patterns.Decode(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Created: []string{}, Skipped: []string{}}
	for _, d := range drafts {
		if patterns.IsBuiltInID(d.ID) {
			res.Skipped = append(res.Skipped, d.ID)
			continue
		}
		if err := s.repo.Create(ctx, patterns.NewPattern(d)); err != nil {
			if errors.Is(err, contracts.ErrAlreadyExists) {
				res.Skipped = append(res.Skipped, d.ID)
				continue
			}
			return res, fmt.Errorf("failed to import pattern %s: %w", d.ID, err)
		}
		s.invalidate(ctx, d.ID)
		res.Created = append(res.Created, d.ID)
	}

	s.logger.WithFields(map[string]interface{}{
		"created": len(res.Created),
		"skipped": len(res.Skipped),
	}).Info("Patterns imported")
	return res, nil
}

// invalidate drops cached results after a mutation. The engine also rejects
// runs computed before the pattern's UpdatedAt, so a failure here is logged only.
func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.metrics.RecordCacheOp("invalidate", "error")
		s.logger.WithError(err).WithField("pattern_id", id).Warn("Failed to invalidate cached results")
		return
	}
	s.metrics.RecordCacheOp("invalidate", "ok")
}

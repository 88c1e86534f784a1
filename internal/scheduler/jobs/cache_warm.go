package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// PatternRunner lists and runs patterns
type PatternRunner interface {
	ListPatterns(ctx context.Context, filter contracts.PatternFilter) (*contracts.PatternList, error)
	RunPattern(ctx context.Context, id string, opts contracts.RunOptions) (*contracts.RankedResults, error)
	DefaultLimit() int
}

// CacheWarmJob runs every pattern before the session so the first requests hit the cache
type CacheWarmJob struct {
	runner   PatternRunner
	schedule string
	logger   *logger.Logger
}

// NewCacheWarmJob creates a new cache warm job
func NewCacheWarmJob(runner PatternRunner, schedule string, log *logger.Logger) *CacheWarmJob {
	return &CacheWarmJob{
		runner:   runner,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CacheWarmJob) Name() string {
	return "cache_warm"
}

// Schedule returns the cron schedule (weekdays before the open by default)
func (j *CacheWarmJob) Schedule() string {
	return j.schedule
}

// WarmSummary counts the outcome of one warm pass
type WarmSummary struct {
	Computed int
	Cached   int
	Failed   int
}

// Run executes the warm pass. A failing pattern is logged and skipped;
// the job fails only when every pattern failed.
func (j *CacheWarmJob) Run(ctx context.Context) error {
	_, err := j.Warm(ctx)
	return err
}

// Warm runs every pattern once with the cache enabled
func (j *CacheWarmJob) Warm(ctx context.Context) (WarmSummary, error) {
	var summary WarmSummary

	list, err := j.runner.ListPatterns(ctx, contracts.PatternFilter{})
	if err != nil {
		return summary, fmt.Errorf("failed to list patterns: %w", err)
	}

	ids := make([]string, 0, list.Counts.Total)
	for _, p := range list.BuiltIns {
		ids = append(ids, p.ID)
	}
	for _, p := range list.Custom {
		ids = append(ids, p.ID)
	}

	opts := contracts.RunOptions{Limit: j.runner.DefaultLimit(), UseCache: true}
	var lastErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := j.runner.RunPattern(ctx, id, opts)
		if err != nil {
			summary.Failed++
			lastErr = err
			j.logger.WithError(err).WithField("pattern_id", id).Warn("Failed to warm pattern")
			continue
		}
		if res.FromCache {
			summary.Cached++
		} else {
			summary.Computed++
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"computed": summary.Computed,
		"cached":   summary.Cached,
		"failed":   summary.Failed,
	}).Info("Cache warm completed")

	if len(ids) > 0 && summary.Failed == len(ids) {
		return summary, errors.Join(errors.New("every pattern failed to warm"), lastErr)
	}
	return summary, nil
}

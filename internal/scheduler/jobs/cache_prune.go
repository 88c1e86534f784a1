package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/pkg/logger"
)

// CachePruner removes cached pattern results older than a retention horizon
type CachePruner interface {
	PruneCache(ctx context.Context, retention time.Duration) (int64, error)
}

// CachePruneJob deletes expired pattern result runs
// ⭐ SSOT: 결과 캐시 정리 스케줄은 이 Job에서만
type CachePruneJob struct {
	pruner    CachePruner
	retention time.Duration
	schedule  string
	logger    *logger.Logger
}

// NewCachePruneJob creates a new cache prune job
func NewCachePruneJob(pruner CachePruner, retention time.Duration, schedule string, log *logger.Logger) *CachePruneJob {
	return &CachePruneJob{
		pruner:    pruner,
		retention: retention,
		schedule:  schedule,
		logger:    log,
	}
}

// Name returns the job name
func (j *CachePruneJob) Name() string {
	return "cache_prune"
}

// Schedule returns the cron schedule (hourly by default)
func (j *CachePruneJob) Schedule() string {
	return j.schedule
}

// Run executes the prune
func (j *CachePruneJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled cache prune")

	pruned, err := j.pruner.PruneCache(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("cache prune failed: %w", err)
	}

	if pruned > 0 {
		j.logger.WithFields(map[string]interface{}{
			"removed":   pruned,
			"retention": j.retention.String(),
		}).Info("Cache prune completed")
	}

	return nil
}

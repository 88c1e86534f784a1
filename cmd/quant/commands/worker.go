package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/scheduler"
	"github.com/wonny/aegis-screener/internal/scheduler/jobs"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "백그라운드 워커 (캐시 정리 / 예열)",
	Long: `cron 스케줄로 결과 캐시를 관리하는 워커입니다.

등록되는 작업:
- cache_prune: CACHE_PRUNE_SCHEDULE (기본 매시 정각) 보존 기간이 지난 캐시 삭제
- cache_warm:  CACHE_WARM_SCHEDULE (기본 평일 07:30) 모든 패턴을 실행해 캐시 예열

스케줄이 비어 있으면 해당 작업은 등록되지 않습니다.

Subcommands:
  start   - 워커 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/quant worker start
  go run ./cmd/quant worker run cache_warm`,
}

var (
	workerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "워커 시작",
		RunE:  runWorkerStart,
	}

	workerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  runWorkerList,
	}

	workerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runWorkerJob,
	}
)

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerStartCmd, workerListCmd, workerRunCmd)
}

// newScheduler registers the jobs whose schedule is set
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	if a.cfg.CachePruneSchedule != "" {
		job := jobs.NewCachePruneJob(a.service, a.cfg.Patterns.CacheRetention, a.cfg.CachePruneSchedule, a.log)
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}

	if a.cfg.CacheWarmSchedule != "" {
		job := jobs.NewCacheWarmJob(a.service, a.cfg.CacheWarmSchedule, a.log)
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

func runWorkerStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Screener Worker ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	names := sched.GetAllJobs()
	if len(names) == 0 {
		PrintWarning("No jobs scheduled (CACHE_PRUNE_SCHEDULE and CACHE_WARM_SCHEDULE are empty)")
		return nil
	}

	sched.Start()

	fmt.Println("\n✅ Worker started")
	fmt.Println("\nRegistered jobs:")
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down worker...")
	sched.Stop()

	for name, stat := range sched.GetJobStats() {
		fmt.Printf("📊 %s: %d runs, %d failures\n", name, stat.TotalRuns, stat.FailureCount)
	}
	fmt.Println("Worker stopped")
	return nil
}

func runWorkerList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Registered jobs:")
	for name, stat := range sched.GetJobStats() {
		fmt.Printf("  - %-12s %s\n", name, stat.Schedule)
	}
	return nil
}

func runWorkerJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunNow(cmd.Context(), jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s (%d attempt(s))", jobName, result.Duration, result.Attempts))
	return nil
}

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "결과 캐시 관리",
	Long: `패턴 실행 결과 캐시를 삭제하거나 오래된 항목을 정리합니다.

Example:
  go run ./cmd/quant cache clear            # 전체 패턴
  go run ./cmd/quant cache clear garp       # 특정 패턴
  go run ./cmd/quant cache prune --retention 72h`,
}

var (
	cacheClearCmd = &cobra.Command{
		Use:   "clear [pattern_id]",
		Short: "결과 캐시 삭제",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCacheClear,
	}

	cachePruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "보존 기간이 지난 캐시 정리",
		RunE:  runCachePrune,
	}
)

var cacheRetention time.Duration

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd, cachePruneCmd)

	cachePruneCmd.Flags().DurationVar(&cacheRetention, "retention", 0, "보존 기간 (default PATTERN_CACHE_RETENTION)")
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	id := ""
	if len(args) == 1 {
		id = args[0]
	}

	n, err := a.service.ClearCache(cmd.Context(), id)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Cleared cached results of %d pattern(s)", n))
	return nil
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	retention := cacheRetention
	if retention == 0 {
		retention = a.cfg.Patterns.CacheRetention
	}

	n, err := a.service.PruneCache(cmd.Context(), retention)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Pruned %d cache entries older than %s", n, retention))
	return nil
}

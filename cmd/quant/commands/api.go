package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/api"
	"github.com/wonny/aegis-screener/internal/api/handlers"
	"github.com/wonny/aegis-screener/pkg/metrics"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- 빌트인 패턴 시드 (이미 있으면 건너뜀)
- HTTP API 서버 시작
- 패턴 CRUD / 실행 / 캐시 엔드포인트 제공

Endpoints:
  GET    /health                    - Health check
  GET    /metrics                   - Prometheus metrics
  GET    /api/patterns              - 패턴 목록
  POST   /api/patterns              - 패턴 생성
  GET    /api/patterns/{id}         - 패턴 조회
  PATCH  /api/patterns/{id}         - 패턴 수정
  DELETE /api/patterns/{id}         - 패턴 삭제
  POST   /api/patterns/{id}/run     - 패턴 실행
  POST   /api/patterns/preview      - 저장 전 패턴 미리보기
  DELETE /api/patterns/{id}/cache   - 패턴 결과 캐시 삭제
  DELETE /api/cache                 - 전체 결과 캐시 삭제

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT env)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Screener API Server ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	seedCtx, cancelSeed := context.WithTimeout(cmd.Context(), 30*time.Second)
	added, err := a.service.SeedBuiltIns(seedCtx)
	cancelSeed()
	if err != nil {
		return fmt.Errorf("seed built-in patterns: %w", err)
	}
	if added > 0 {
		a.log.WithField("added", added).Info("Seeded built-in patterns")
	}

	var reg *metrics.Registry
	if a.cfg.MetricsEnabled {
		reg = a.metrics
	}

	router := api.NewRouter(api.RouterDeps{
		Patterns:   handlers.NewPatternHandler(a.service, a.log),
		RunLimiter: a.runLimiter(),
		Metrics:    reg,
		Database:   a.db,
		Logger:     a.log,
	})
	server := api.New(a.cfg, a.log, router)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}

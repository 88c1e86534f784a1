package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Screener - 패턴 기반 종목 스크리닝",
	Long: `Aegis Screener Unified CLI

저장된 패턴(펀더멘털 범위 + 기술적 시그널)으로 종목을 스크리닝하고
결과를 점수 순으로 랭킹합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant migrate
  go run ./cmd/quant api
  go run ./cmd/quant patterns list
  go run ./cmd/quant patterns run garp --limit 20
  go run ./cmd/quant worker start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs)")
}

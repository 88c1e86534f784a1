package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "스키마 마이그레이션 + 빌트인 패턴 시드",
	Long: `내장된 SQL 마이그레이션을 적용하고 빌트인 패턴을 시드합니다.
이미 적용된 마이그레이션과 이미 있는 패턴은 건너뜁니다.

Example:
  go run ./cmd/quant migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Screener Migrations ===")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	applied, err := database.Migrate(cmd.Context(), a.db.Pool)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
	}
	for _, version := range applied {
		PrintSuccess(fmt.Sprintf("Applied %s", version))
	}

	added, err := a.service.SeedBuiltIns(cmd.Context())
	if err != nil {
		return fmt.Errorf("seed built-in patterns: %w", err)
	}
	PrintSuccess(fmt.Sprintf("Seeded %d built-in pattern(s)", added))
	return nil
}

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/patterns"
)

// patternsCmd represents the patterns command
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "패턴 관리 및 실행",
	Long: `스크리닝 패턴을 조회, 생성, 수정, 삭제하고 실행합니다.

Subcommands:
  list     - 패턴 목록
  show     - 패턴 정의 조회
  run      - 패턴 실행 (랭킹 결과)
  create   - YAML 파일로 패턴 생성
  update   - JSON patch로 패턴 수정
  delete   - 사용자 패턴 삭제
  import   - YAML 파일의 패턴 일괄 생성
  export   - 사용자 패턴을 YAML로 출력

Example:
  go run ./cmd/quant patterns list --category value
  go run ./cmd/quant patterns run garp --limit 20 --no-cache
  go run ./cmd/quant patterns update my_pattern --patch '{"name": "Renamed"}'`,
}

var (
	patternsListCmd = &cobra.Command{
		Use:   "list",
		Short: "패턴 목록",
		RunE:  runPatternsList,
	}

	patternsShowCmd = &cobra.Command{
		Use:   "show [pattern_id]",
		Short: "패턴 정의 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  runPatternsShow,
	}

	patternsRunCmd = &cobra.Command{
		Use:   "run [pattern_id]",
		Short: "패턴 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runPatternsRun,
	}

	patternsCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "YAML 파일로 패턴 생성",
		Long: `YAML 파일에 정의된 패턴 하나를 생성합니다.

Example file:
  patterns:
    - id: cheap_banks
      name: Cheap Banks
      fundamental_criteria:
        pe_ratio: {max: 8}
        pb_ratio: {max: 0.8}`,
		RunE: runPatternsCreate,
	}

	patternsUpdateCmd = &cobra.Command{
		Use:   "update [pattern_id]",
		Short: "JSON patch로 패턴 수정",
		Args:  cobra.ExactArgs(1),
		RunE:  runPatternsUpdate,
	}

	patternsDeleteCmd = &cobra.Command{
		Use:   "delete [pattern_id]",
		Short: "사용자 패턴 삭제",
		Args:  cobra.ExactArgs(1),
		RunE:  runPatternsDelete,
	}

	patternsImportCmd = &cobra.Command{
		Use:   "import [file]",
		Short: "YAML 파일의 패턴 일괄 생성 (기존 id는 건너뜀)",
		Args:  cobra.ExactArgs(1),
		RunE:  runPatternsImport,
	}

	patternsExportCmd = &cobra.Command{
		Use:   "export",
		Short: "사용자 패턴을 YAML로 출력",
		RunE:  runPatternsExport,
	}
)

var (
	patternsCategory string
	patternsBuiltIn  string
	patternsLimit    int
	patternsNoCache  bool
	patternsJSON     bool
	patternsFile     string
	patternsPatch    string
	patternsOutput   string
)

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd, patternsShowCmd, patternsRunCmd, patternsCreateCmd,
		patternsUpdateCmd, patternsDeleteCmd, patternsImportCmd, patternsExportCmd)

	patternsCmd.PersistentFlags().BoolVar(&patternsJSON, "json", false, "JSON 출력")

	patternsListCmd.Flags().StringVar(&patternsCategory, "category", "", "카테고리 필터")
	patternsListCmd.Flags().StringVar(&patternsBuiltIn, "builtin", "", "true: 빌트인만, false: 사용자 패턴만")

	patternsRunCmd.Flags().IntVar(&patternsLimit, "limit", 0, "최대 결과 수 (default PATTERN_DEFAULT_LIMIT)")
	patternsRunCmd.Flags().BoolVar(&patternsNoCache, "no-cache", false, "캐시를 건너뛰고 재계산")

	patternsCreateCmd.Flags().StringVarP(&patternsFile, "file", "f", "", "패턴 YAML 파일")
	_ = patternsCreateCmd.MarkFlagRequired("file")

	patternsUpdateCmd.Flags().StringVar(&patternsPatch, "patch", "", `JSON patch (e.g. '{"name": "x"}')`)
	_ = patternsUpdateCmd.MarkFlagRequired("patch")

	patternsExportCmd.Flags().StringVarP(&patternsOutput, "output", "o", "", "출력 파일 (default stdout)")
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	filter := contracts.PatternFilter{Category: contracts.Category(patternsCategory)}
	switch strings.ToLower(patternsBuiltIn) {
	case "":
	case "true":
		b := true
		filter.BuiltIn = &b
	case "false":
		b := false
		filter.BuiltIn = &b
	default:
		return fmt.Errorf("--builtin must be true or false")
	}

	list, err := a.service.ListPatterns(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("list patterns: %w", err)
	}

	if patternsJSON {
		return PrintJSON(list)
	}

	PrintPatternSummaries("Built-in patterns", list.BuiltIns)
	PrintPatternSummaries("Custom patterns", list.Custom)
	fmt.Printf("\nTotal: %d (built-in %d, custom %d)\n", list.Counts.Total, list.Counts.BuiltIn, list.Counts.Custom)
	return nil
}

func runPatternsShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.service.GetPattern(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if patternsJSON {
		return PrintJSON(p)
	}
	PrintPattern(p)
	return nil
}

func runPatternsRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := contracts.RunOptions{Limit: a.service.DefaultLimit(), UseCache: !patternsNoCache}
	if cmd.Flags().Changed("limit") {
		opts.Limit = patternsLimit
	}

	res, err := a.service.RunPattern(cmd.Context(), args[0], opts)
	if err != nil {
		return err
	}

	if patternsJSON {
		return PrintJSON(res)
	}
	PrintRankedResults(res)
	return nil
}

func runPatternsCreate(cmd *cobra.Command, args []string) error {
	drafts, err := patterns.LoadFile(patternsFile)
	if err != nil {
		return err
	}
	if len(drafts) != 1 {
		return fmt.Errorf("%s defines %d patterns, create expects exactly one (use import for many)", patternsFile, len(drafts))
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.service.CreatePattern(cmd.Context(), drafts[0])
	if err != nil {
		return err
	}

	if patternsJSON {
		return PrintJSON(p)
	}
	PrintSuccess(fmt.Sprintf("Created pattern %s", p.ID))
	return nil
}

func runPatternsUpdate(cmd *cobra.Command, args []string) error {
	var patch contracts.PatternPatch
	dec := json.NewDecoder(strings.NewReader(patternsPatch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return fmt.Errorf("invalid --patch: %w", err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.service.UpdatePattern(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}

	if patternsJSON {
		return PrintJSON(p)
	}
	PrintSuccess(fmt.Sprintf("Updated pattern %s", p.ID))
	return nil
}

func runPatternsDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.DeletePattern(cmd.Context(), args[0]); err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("Deleted pattern %s", args[0]))
	return nil
}

func runPatternsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.service.ImportPatterns(cmd.Context(), f)
	if err != nil {
		return err
	}

	if patternsJSON {
		return PrintJSON(res)
	}
	PrintSuccess(fmt.Sprintf("Imported %d pattern(s)", len(res.Created)))
	for _, id := range res.Skipped {
		PrintWarning(fmt.Sprintf("Skipped %s (already exists or built-in)", id))
	}
	return nil
}

func runPatternsExport(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := os.Stdout
	if patternsOutput != "" {
		f, err := os.Create(patternsOutput)
		if err != nil {
			return fmt.Errorf("create %s: %w", patternsOutput, err)
		}
		defer f.Close()
		out = f
	}

	n, err := a.service.ExportPatterns(cmd.Context(), out)
	if err != nil {
		return err
	}

	if patternsOutput != "" {
		PrintSuccess(fmt.Sprintf("Exported %d pattern(s) to %s", n, patternsOutput))
	}
	return nil
}

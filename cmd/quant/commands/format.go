package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

const separatorWidth = 59

// PrintHeader prints a titled block header
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println(strings.Repeat("─", separatorWidth))
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println(strings.Repeat("═", separatorWidth))
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	var b strings.Builder
	for i, val := range values {
		b.WriteString(val)
		if pad := widths[i] - utf8.RuneCountInString(val); pad > 0 && i < len(values)-1 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		if i < len(values)-1 {
			b.WriteString("  ")
		}
	}
	fmt.Println(b.String())
}

// PrintJSON writes v as indented JSON to stdout
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintPatternSummaries prints one table row per pattern
func PrintPatternSummaries(title string, summaries []contracts.PatternSummary) {
	fmt.Printf("\n%s (%d)\n", title, len(summaries))
	if len(summaries) == 0 {
		return
	}

	widths := []int{30, 12, 12, 8, 8}
	PrintTableHeader([]string{"ID", "CATEGORY", "KIND", "SIGNALS", "METRICS"}, widths)
	for _, s := range summaries {
		PrintTableRow([]string{
			s.ID,
			string(s.Category),
			s.Kind,
			fmt.Sprintf("%d", s.SignalCount),
			fmt.Sprintf("%d", s.MetricCount),
		}, widths)
	}
}

// PrintPattern prints the full definition of a pattern
func PrintPattern(p *contracts.Pattern) {
	PrintHeader(fmt.Sprintf("%s (%s)", p.Name, p.ID))
	PrintKeyValue("Category", string(p.Category), 12)
	PrintKeyValue("Kind", p.Kind().String(), 12)
	PrintKeyValue("Sort", string(p.EffectiveSortKey()), 12)
	PrintKeyValue("Built-in", fmt.Sprintf("%v", p.IsBuiltIn), 12)
	if p.Description != "" {
		PrintKeyValue("Description", p.Description, 12)
	}

	if p.HasTechnical() {
		fmt.Printf("\n   Signals (min strength %.0f):\n", p.Technical.MinStrength)
		for _, name := range p.Technical.Signals {
			fmt.Printf("   • %s\n", name)
		}
	}

	if p.HasFundamental() {
		fmt.Println("\n   Fundamental ranges:")
		for _, metric := range p.Metrics() {
			fmt.Printf("   • %-24s %s\n", metric, formatRange(p.Fundamental[metric]))
		}
	}
	fmt.Println()
}

func formatRange(r contracts.Range) string {
	lo, hi := "-∞", "+∞"
	if r.Min != nil {
		lo = fmt.Sprintf("%g", *r.Min)
	}
	if r.Max != nil {
		hi = fmt.Sprintf("%g", *r.Max)
	}
	return fmt.Sprintf("[%s, %s]", lo, hi)
}

// PrintRankedResults prints a run as a ranked table
func PrintRankedResults(res *contracts.RankedResults) {
	source := "computed"
	if res.FromCache {
		source = "cache"
	}

	PrintHeader(fmt.Sprintf("%s (%s)", res.Pattern.Name, res.Pattern.ID))
	PrintKeyValue("Found", fmt.Sprintf("%d (showing %d)", res.TotalFound, len(res.Results)), 10)
	PrintKeyValue("Source", source, 10)
	PrintKeyValue("Computed", res.ComputedAt.Format("2006-01-02 15:04:05"), 10)
	PrintKeyValue("Elapsed", fmt.Sprintf("%.3fs", res.ExecutionTimeSeconds), 10)
	PrintSeparator()

	if len(res.Results) == 0 {
		PrintWarning("No instruments matched")
		return
	}

	widths := []int{5, 12, 7, 7, 7, 30}
	PrintTableHeader([]string{"RANK", "INSTRUMENT", "SCORE", "FUND", "TECH", "SIGNALS"}, widths)
	for _, r := range res.Results {
		PrintTableRow([]string{
			fmt.Sprintf("%d", r.Rank),
			r.InstrumentID,
			fmt.Sprintf("%.2f", r.CompositeScore),
			fmt.Sprintf("%.2f", r.FundamentalScore),
			fmt.Sprintf("%.2f", r.TechnicalScore),
			formatSignals(r.MatchedSignals),
		}, widths)
	}
}

func formatSignals(signals []contracts.MatchedSignal) string {
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, fmt.Sprintf("%s(%.0f)", s.Name, s.Strength))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

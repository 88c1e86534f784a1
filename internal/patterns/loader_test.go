package patterns

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-screener/internal/contracts"
)

const sampleFile = `
vocabulary_version: "2026.10"
patterns:
  - id: cheap_crossers
    name: Cheap crossers
    category: value
    technical_criteria:
      signals: [golden_cross]
      min_signal_strength: 70
    fundamental_criteria:
      pe_ratio:
        max: 15
    sort_key: signal_strength
  - id: roe_only
    fundamental_criteria:
      roe_percent:
        min: 20
`

func TestDecode(t *testing.T) {
	drafts, err := Decode(strings.NewReader(sampleFile))
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, contracts.KindCombined, drafts[0].Kind())
	assert.Equal(t, 70.0, drafts[0].Technical.MinStrength)
	assert.Equal(t, 15.0, *drafts[0].Fundamental["pe_ratio"].Max)

	assert.Equal(t, "roe_only", drafts[1].Name)
	assert.Equal(t, contracts.CategoryCustom, drafts[1].Category)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"unknown field", "patterns:\n  - id: x\n    fundamental_criteria:\n      pe_ratio: {max: 3}\n    colour: red\n"},
		{"non numeric bound", "patterns:\n  - id: x\n    fundamental_criteria:\n      pe_ratio: {max: fifteen}\n"},
		{"no criteria", "patterns:\n  - id: x\n"},
		{"duplicate id", "patterns:\n  - id: x\n    fundamental_criteria: {pe_ratio: {max: 1}}\n  - id: x\n    fundamental_criteria: {pe_ratio: {max: 2}}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, contracts.IsValidation(err), "got %v", err)
		})
	}
}

func TestEncodeDecodeFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, BuiltIns()[:3]))
	assert.Contains(t, buf.String(), "vocabulary_version")
	assert.NotContains(t, buf.String(), "is_builtin")

	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	drafts, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, drafts, 3)
	assert.Equal(t, "cheap_quality_reversal", drafts[0].ID)
	assert.Equal(t, []string{"golden_cross", "rsi_oversold", "bullish_macd"}, drafts[0].Technical.Signals)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

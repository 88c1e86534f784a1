package patterns

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// File is the import/export document of user patterns
type File struct {
	VocabularyVersion string                   `yaml:"vocabulary_version"`
	Patterns          []contracts.PatternDraft `yaml:"patterns"`
}

// Decode reads a pattern file and returns normalized, validated drafts
// SSOT 핵심: KnownFields(true)로 오타/미사용 필드 즉시 실패
func Decode(r io.Reader) ([]contracts.PatternDraft, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, contracts.Invalid("patterns", "file is empty")
		}
		return nil, contracts.Invalid("yaml", "%v", err)
	}

	drafts := make([]contracts.PatternDraft, 0, len(file.Patterns))
	seen := make(map[string]struct{}, len(file.Patterns))
	for i, d := range file.Patterns {
		d = Normalize(d)
		if err := ValidateDraft(d); err != nil {
			return nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, contracts.Invalid(fmt.Sprintf("patterns[%d].id", i), "duplicate id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
		drafts = append(drafts, d)
	}

	return drafts, nil
}

// LoadFile reads and validates a pattern file from disk
func LoadFile(path string) ([]contracts.PatternDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Decode(bytes.NewReader(data))
}

// Encode writes patterns in the import format
func Encode(w io.Writer, patterns []*contracts.Pattern) error {
	file := File{VocabularyVersion: VocabularyVersion}
	for _, p := range patterns {
		file.Patterns = append(file.Patterns, contracts.DraftFromPattern(p))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("failed to encode patterns: %w", err)
	}
	return enc.Close()
}

package contracts

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("pattern not found")
	ErrForbidden           = errors.New("built-in patterns are read-only")
	ErrAlreadyExists       = errors.New("pattern already exists")
	ErrUpstreamUnavailable = errors.New("data source unavailable")
	ErrCacheUnavailable    = errors.New("result cache unavailable")
)

// Upstream sources
const (
	SourceSignals      = "signal"
	SourceFundamentals = "fundamental"
)

// ValidationError reports a malformed pattern draft or patch
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError
func Invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err carries a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// UpstreamError wraps a Signal/Fundamental Store failure
type UpstreamError struct {
	Source string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s data source unavailable: %v", e.Source, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstreamUnavailable) hold
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Upstream wraps err as an UpstreamError of source
func Upstream(source string, err error) error {
	if err == nil {
		return nil
	}
	var existing *UpstreamError
	if errors.As(err, &existing) {
		return err
	}
	return &UpstreamError{Source: source, Err: err}
}

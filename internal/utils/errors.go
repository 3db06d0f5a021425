package utils

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch on taxonomy instead of
// matching message strings.
type Kind string

const (
	KindInvalidWindow       Kind = "invalid_window"
	KindInsufficientHistory Kind = "insufficient_history"
	KindModelUnavailable    Kind = "model_unavailable"
	KindNumericDivergence   Kind = "numeric_divergence"
	KindEmbedderUnavailable Kind = "embedder_unavailable"
	KindDimensionMismatch   Kind = "dimension_mismatch"
	KindInvalidTopK         Kind = "invalid_top_k"
	KindSourceUnavailable   Kind = "source_unavailable"
	KindTimeout             Kind = "timeout"
	KindNotFound            Kind = "not_found"
)

// AppError wraps an operation, failure kind, human-facing message, and
// underlying error.
type AppError struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(kind Kind, op, msg string, err error) error {
	return &AppError{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the failure is transient and worth a bounded
// retry. NumericDivergence and DimensionMismatch indicate a model or data
// defect and are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindSourceUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors - centralized error definitions
var (
	// Data errors abort an estimation run; no partial decomposition is returned
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrMalformedData    = errors.New("malformed input data")

	// Recoverable: the SF path fell back to a pseudo-inverse solve
	ErrRankDeficient = errors.New("design matrix is rank deficient")

	// Rejected before any computation starts
	ErrConfiguration = errors.New("invalid configuration")

	// Exhaustive search refused
	ErrComplexityGuard = errors.New("search space exceeds complexity guard")
)

// DataError reports insufficient or malformed per-cell data.
type DataError struct {
	Reason   string
	Cells    int // populated cells found
	Required int // populated cells required
	cause    error
}

func (e *DataError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("%v: %s (%d populated cells, need %d)", e.cause, e.Reason, e.Cells, e.Required)
	}
	return fmt.Sprintf("%v: %s", e.cause, e.Reason)
}

func (e *DataError) Unwrap() error { return e.cause }

// NewInsufficientDataError creates a DataError for too few populated cells
func NewInsufficientDataError(reason string, cells, required int) *DataError {
	return &DataError{Reason: reason, Cells: cells, Required: required, cause: ErrInsufficientData}
}

// NewMalformedDataError creates a DataError for structurally invalid input
func NewMalformedDataError(format string, args ...interface{}) *DataError {
	return &DataError{Reason: fmt.Sprintf(format, args...), cause: ErrMalformedData}
}

// RankDeficientWarning is attached to a fit that had to use a pseudo-inverse.
// It is never returned as the error of a successful estimation.
type RankDeficientWarning struct {
	Rank         int
	Columns      int
	MissingCells []string
}

func (w *RankDeficientWarning) Error() string {
	msg := fmt.Sprintf("%v: rank %d < %d columns, pseudo-inverse used", ErrRankDeficient, w.Rank, w.Columns)
	if len(w.MissingCells) > 0 {
		msg += fmt.Sprintf("; unsupported cells: %s", strings.Join(w.MissingCells, ", "))
	}
	return msg
}

func (w *RankDeficientWarning) Unwrap() error { return ErrRankDeficient }

// ConfigurationError names the offending option.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError creates a ConfigurationError
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// ComplexityGuardError is returned instead of running an unbounded search.
type ComplexityGuardError struct {
	Candidates int
	Limit      int
	Steps      int64
	Suggestion string
}

func (e *ComplexityGuardError) Error() string {
	if e.Steps > 0 {
		return fmt.Sprintf("%v: stopped after %d steps over %d candidates; use %s", ErrComplexityGuard, e.Steps, e.Candidates, e.Suggestion)
	}
	return fmt.Sprintf("%v: %d candidates exceeds limit %d; use %s", ErrComplexityGuard, e.Candidates, e.Limit, e.Suggestion)
}

func (e *ComplexityGuardError) Unwrap() error { return ErrComplexityGuard }

// Error checking helpers
func IsDataError(err error) bool {
	return errors.Is(err, ErrInsufficientData) || errors.Is(err, ErrMalformedData)
}

func IsRankDeficient(err error) bool {
	return errors.Is(err, ErrRankDeficient)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsComplexityGuard(err error) bool {
	return errors.Is(err, ErrComplexityGuard)
}

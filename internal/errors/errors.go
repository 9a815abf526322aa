package errors

import (
	"fmt"

	"gofactor/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. Domain errors keep their
// classification so the caller can still act on the code.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    codeFor(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDataError       = "DATA_ERROR"
	CodeComplexityGuard = "COMPLEXITY_GUARD"
	CodeRankDeficient   = "RANK_DEFICIENT"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

func codeFor(err error) string {
	switch {
	case core.IsConfigurationError(err):
		return CodeConfigInvalid
	case core.IsDataError(err):
		return CodeDataError
	case core.IsComplexityGuard(err):
		return CodeComplexityGuard
	case core.IsRankDeficient(err):
		return CodeRankDeficient
	}
	return CodeInternalError
}

// Common error constructors
func ConfigInvalid(field, reason string) *AppError {
	return &AppError{
		Code:    CodeConfigInvalid,
		Message: "configuration rejected",
		Cause:   core.NewConfigurationError(field, reason),
	}
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}


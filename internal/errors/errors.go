package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - a source rejected the request as malformed
	ErrorTypeValidation
	// Transient errors - timeouts, 5xx, connection resets; retryable
	ErrorTypeTransient
	// Planning errors - no valid execution plan could be built
	ErrorTypePlanning
	// Storage errors - persistence failures
	ErrorTypeStorage
	// External errors - external service failures (LLM, cache, graph db)
	ErrorTypeExternal
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact coverage
	SeverityHigh
	// SeverityCritical - fails the investigation
	SeverityCritical
)

// Error is a structured error with category, severity and context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is matches on error category so errors.Is works across wrap layers
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should fail the investigation
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a multi-line message with context and stack
func (e *Error) DetailedString() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n", severityString(e.Severity), typeString(e.Type), e.Message))
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}
	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}
	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}
	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeTransient:
		return "TRANSIENT"
	case ErrorTypePlanning:
		return "PLANNING"
	case ErrorTypeStorage:
		return "STORAGE"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with category and severity
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Adapter error classes. Sources must distinguish transient (retryable)
// failures from validation (non-retryable) rejections; the federation layer
// keys its retry policy entirely off this split.

// TransientError marks a retryable source failure (timeout, 5xx)
func TransientError(err error, message string) *Error {
	return Wrap(err, ErrorTypeTransient, SeverityMedium, message)
}

// TransientErrorf marks a retryable source failure with formatting
func TransientErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeTransient, SeverityMedium, fmt.Sprintf(format, args...))
}

// ValidationError marks a non-retryable source rejection (4xx)
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityMedium, message)
}

// ValidationErrorf marks a non-retryable source rejection with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityMedium, fmt.Sprintf(format, args...))
}

// IsTransient reports whether err is retryable
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeTransient
	}
	return false
}

// IsValidation reports whether err is a source-side rejection
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeValidation
	}
	return false
}

// PlanningError creates a fatal planning failure
func PlanningError(message string) *Error {
	return New(ErrorTypePlanning, SeverityCritical, message)
}

// PlanningErrorf creates a fatal planning failure with formatting
func PlanningErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypePlanning, SeverityCritical, fmt.Sprintf(format, args...))
}

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// StorageError wraps a persistence failure. Persistence failures are
// surfaced separately from investigation status, so severity stays high,
// not critical.
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityHigh, message)
}

// ExternalError wraps an external service error
func ExternalError(err error, message string) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, message)
}

// InternalError creates an internal error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityCritical, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error should stop the investigation
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetType returns the category of an error
func GetType(err error) ErrorType {
	if err == nil {
		return ErrorTypeInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

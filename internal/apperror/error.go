package apperror

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// AppError implements the error interface and provides structured error handling
type AppError struct {
	Code      Code      `json:"code"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
	stack     []uintptr
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (context: %s)", e.Code, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any *AppError carrying the same code, so sentinel values
// declared per package work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// LogFields flattens the error into key/value pairs for the structured logger.
func (e *AppError) LogFields() []any {
	fields := []any{"code", string(e.Code), "retryable", e.Retryable}
	if e.Context != "" {
		fields = append(fields, "context", e.Context)
	}
	if e.cause != nil {
		fields = append(fields, "cause", e.cause.Error())
	}
	if len(e.stack) > 0 {
		fields = append(fields, "stack", e.formatStack())
	}
	return fields
}

func (e *AppError) formatStack() string {
	var sb strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			sb.WriteString(fmt.Sprintf("\n\t%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return sb.String()
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// New creates a new AppError with the given code and options
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:      code,
		Message:   messages[code],
		Retryable: defaultRetryable(code),
		Timestamp: time.Now(),
		stack:     captureStack(),
	}

	for _, opt := range opts {
		opt(err)
	}

	if err.Message == "" {
		err.Message = string(code)
	}

	return err
}

// Option is a functional option for AppError
type Option func(*AppError)

// WithMessage sets a custom message
func WithMessage(message string) Option {
	return func(e *AppError) {
		e.Message = message
	}
}

// WithContext adds context information
func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

// WithCause wraps an underlying error
func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// WithRetryable overrides the code's default retry classification.
func WithRetryable(retryable bool) Option {
	return func(e *AppError) {
		e.Retryable = retryable
	}
}

// Validation creates a validation error
func Validation(context string) *AppError {
	return New(CodeValidationError, WithContext(context))
}

// NotFound creates a not found error
func NotFound(code Code, context string) *AppError {
	return New(code, WithContext(context))
}

// External creates an external collaborator error
func External(code Code, context string, cause error) *AppError {
	return New(code, WithContext(context), WithCause(cause))
}

// Wrap wraps a standard error into AppError. Context deadline errors map to
// CodeServiceTimeout so a timed-out collaborator call is never mistaken for success.
func Wrap(err error, code Code, msg string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if msg != "" && appErr.Context == "" {
			appErr.Context = msg
		}
		return appErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeServiceTimeout
	}

	return New(code, WithContext(msg), WithCause(err))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode extracts the error code from an error
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeServiceTimeout
	}
	return CodeUnknownError
}

// IsRetryable reports whether err is a transient failure worth retrying.
// Plain errors that are not AppErrors are treated as transient network errors,
// except context cancellation which is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return true
}

func defaultRetryable(code Code) bool {
	switch code {
	case CodeServiceTimeout,
		CodeServiceUnavailable,
		CodeExternalServiceError,
		CodeRateLimitExceeded,
		CodeSourceUnavailable,
		CodeConcurrentModification,
		CodeAuctionFailed:
		return true
	}
	return false
}

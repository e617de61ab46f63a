package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	// CategoryValidation covers malformed filter, sort, and pagination input.
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound covers lookups by unknown developer names or keys.
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryNotReady covers queries issued before the first successful
	// scoring cycle.
	CategoryNotReady ErrorCategory = "not_ready"
	// CategoryDataIntegrity covers project records violating a store
	// invariant; it aborts the scoring cycle that observed it.
	CategoryDataIntegrity ErrorCategory = "data_integrity"
	// CategoryUnavailable covers transient infrastructure failures, such as
	// an unreadable project store. Worth retrying, unlike a bad record.
	CategoryUnavailable  ErrorCategory = "unavailable"
	CategoryUnauthorized ErrorCategory = "unauthorized"
	CategoryRateLimit    ErrorCategory = "rate_limit"
	CategoryInternal     ErrorCategory = "internal"
)

// AppError wraps errbuilder error with category and HTTP status context
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	StackTrace string        `json:"stack_trace,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	codeStr := "INTERNAL_ERROR"
	switch e.Category {
	case CategoryValidation:
		codeStr = "INVALID_QUERY_PARAMETER"
	case CategoryNotFound:
		codeStr = "NOT_FOUND"
	case CategoryNotReady:
		codeStr = "NOT_READY"
	case CategoryDataIntegrity:
		codeStr = "DATA_INTEGRITY_ERROR"
	case CategoryUnavailable:
		codeStr = "UNAVAILABLE"
	case CategoryUnauthorized:
		codeStr = "UNAUTHORIZED"
	case CategoryRateLimit:
		codeStr = "RATE_LIMITED"
	}
	return fmt.Sprintf("[%s] %s", codeStr, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// NewValidationError reports a malformed query parameter. The offending
// parameter name goes into the error details.
func NewValidationError(message string, params ...string) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(message)

	if len(params) > 0 {
		errorMap := errbuilder.ErrorMap{}
		for _, p := range params {
			errorMap.Set("parameter", errors.New(p))
		}
		builder = builder.WithDetails(errbuilder.NewErrDetails(errorMap))
	}

	return NewAppError(builder, CategoryValidation, http.StatusBadRequest)
}

// NewNotFoundError reports an unknown developer name or key. A normal,
// expected outcome, never a system failure.
func NewNotFoundError(kind, key string) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("key", errors.New(key))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s %q not found", kind, key)).
		WithDetails(errbuilder.NewErrDetails(errorMap))

	return NewAppError(builder, CategoryNotFound, http.StatusNotFound)
}

// NewNotReadyError signals that no scorecard snapshot has been published
// yet. Callers should retry later.
func NewNotReadyError() *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg("scorecard snapshot not ready, retry later")

	return NewAppError(builder, CategoryNotReady, http.StatusServiceUnavailable)
}

// NewDataIntegrityError reports a project record that violates a store
// invariant. It is fatal to the scoring cycle that observed it; no partial
// snapshot may be published.
func NewDataIntegrityError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryDataIntegrity, http.StatusInternalServerError)
}

// NewUnavailableError reports a transient infrastructure failure, such as
// the project store being unreadable. Distinct from a data integrity
// violation: the data may be fine, the read was not, so retrying is
// reasonable.
func NewUnavailableError(message string, cause error) *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(message)

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	return NewAppError(builder, CategoryUnavailable, http.StatusServiceUnavailable)
}

// NewUnauthorizedError reports a missing or unknown API key.
func NewUnauthorizedError() *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeUnauthenticated).
		WithMsg("missing or invalid API key")

	return NewAppError(builder, CategoryUnauthorized, http.StatusUnauthorized)
}

// NewRateLimitError reports a throttled request.
func NewRateLimitError() *AppError {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeResourceExhausted).
		WithMsg("rate limit exceeded, slow down")

	return NewAppError(builder, CategoryRateLimit, http.StatusTooManyRequests)
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	errorMap := errbuilder.ErrorMap{}
	errorMap.Set("internal_details", errors.New(message))

	builder := errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("Internal server error").
		WithDetails(errbuilder.NewErrDetails(errorMap))

	if cause != nil {
		builder = builder.WithCause(cause)
	}

	appErr := NewAppError(builder, CategoryInternal, http.StatusInternalServerError)

	if gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode {
		appErr.StackTrace = captureStackTrace()
	}

	return appErr
}

// IsNotFound reports whether err is a not-found outcome.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Category == CategoryNotFound
}

// IsNotReady reports whether err signals a missing snapshot.
func IsNotReady(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Category == CategoryNotReady
}

// captureStackTrace captures a stack trace for debugging
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// ErrorHandler is a Gin middleware that provides centralized error handling
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err
			appErr := ToAppError(err)
			LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}
}

// RecoveryHandler provides panic recovery with structured error responses
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		appErr := NewInternalError(
			fmt.Sprintf("Panic recovered: %v", err),
			fmt.Errorf("%v", err),
		)
		appErr.StackTrace = captureStackTrace()

		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError converts any error to an AppError
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if ebErr, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	}

	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with appropriate level and context
func LogError(c *gin.Context, err *AppError) {
	logEntry := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	)

	errorMsg := err.ErrBuilder.Msg

	switch err.Category {
	case CategoryValidation:
		logEntry.Warn(errorMsg)
	case CategoryNotFound, CategoryNotReady:
		// Expected per-request outcomes, not failures.
		logEntry.Info(errorMsg)
	case CategoryDataIntegrity:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	default:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			logEntry.Error(errorMsg, "cause", cause)
		} else {
			logEntry.Error(errorMsg)
		}
	}

	if err.StackTrace != "" && (gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode) {
		logEntry.Debug("stack_trace", "trace", err.StackTrace)
	}
}

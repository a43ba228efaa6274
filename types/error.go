package types

import "fmt"

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Provider error codes, mapped from status codes and provider payloads.
const (
	ErrNetwork     ErrorCode = "NETWORK"
	ErrRateLimit   ErrorCode = "RATE_LIMIT"
	ErrServerError ErrorCode = "SERVER_ERROR"
	ErrAuth        ErrorCode = "AUTH"
	ErrValidation  ErrorCode = "VALIDATION"
	ErrNotFound    ErrorCode = "NOT_FOUND"
	ErrTimeout     ErrorCode = "TIMEOUT"
	ErrUnknown     ErrorCode = "UNKNOWN"
)

// Pipeline error codes
const (
	ErrRetrievalUnavailable ErrorCode = "RETRIEVAL_UNAVAILABLE"
	ErrCircuitOpen          ErrorCode = "CIRCUIT_OPEN"
	ErrTokenizer            ErrorCode = "TOKENIZER_ERROR"
	ErrConfig               ErrorCode = "CONFIG_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Service    string    `json:"service,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithService sets the originating service name.
func (e *Error) WithService(service string) *Error {
	e.Service = service
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// NewRateLimitError 构造限流错误（可重试）。
func NewRateLimitError(service string, cause error) *Error {
	return NewError(ErrRateLimit, "rate limited").
		WithHTTPStatus(429).
		WithRetryable(true).
		WithService(service).
		WithCause(cause)
}

// NewTimeoutError 构造超时错误（可重试）。
func NewTimeoutError(service string, cause error) *Error {
	return NewError(ErrTimeout, "request timed out").
		WithRetryable(true).
		WithService(service).
		WithCause(cause)
}

// NewRetrievalUnavailableError 构造聚合的检索不可用错误。
// 当向量与关键词检索同时失败且无可用回退时返回。
func NewRetrievalUnavailableError(cause error) *Error {
	return NewError(ErrRetrievalUnavailable, "all retrieval sources failed").
		WithRetryable(false).
		WithCause(cause)
}

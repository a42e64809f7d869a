package types

import (
	"errors"
	"fmt"
)

// ErrorCode 引擎统一错误码
type ErrorCode string

// 输入类错误码
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrInvalidDimensions ErrorCode = "INVALID_DIMENSIONS"
	ErrInvalidConfig     ErrorCode = "INVALID_CONFIG"
)

// 运行期错误码
const (
	ErrCacheCompute  ErrorCode = "CACHE_COMPUTE_FAILED"
	ErrCacheStore    ErrorCode = "CACHE_STORE_FAILED"
	ErrTimeout       ErrorCode = "TIMEOUT"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error 结构化错误，携带错误码、所属阶段与底层原因
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Stage != "" {
		prefix += "/" + e.Stage
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf 以格式化消息创建 Error
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStage 标记出错的处理阶段（fusion / rerank / gate / cache）
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

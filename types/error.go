package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestrator.
type ErrorCode string

// Transport error codes. Always retryable at the transport layer.
const (
	ErrTransport          ErrorCode = "TRANSPORT_ERROR"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Agent error codes
const (
	// ErrAgent 表示 agent 已解析但返回了失败负载
	ErrAgent ErrorCode = "AGENT_ERROR"
	// ErrAgentNotFound 表示 agent id/name 无法解析，对当前尝试是致命的
	ErrAgentNotFound ErrorCode = "AGENT_NOT_FOUND"
	// ErrAgentUnavailable 表示熔断器处于打开状态
	ErrAgentUnavailable ErrorCode = "AGENT_UNAVAILABLE"
)

// Plan and oracle error codes
const (
	ErrNoPlan                ErrorCode = "NO_PLAN"
	ErrOracleUnavailable     ErrorCode = "ORACLE_UNAVAILABLE"
	ErrOracleInvalidResponse ErrorCode = "ORACLE_INVALID_RESPONSE"
	ErrRateLimited           ErrorCode = "RATE_LIMITED"
)

// Generic error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCanceled       ErrorCode = "CANCELED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Agent      string    `json:"agent,omitempty"`
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

// WithAgent records which agent produced the error.
func (e *Error) WithAgent(agent string) *Error {
	e.Agent = agent
	return e
}

// NewTransportError 创建可重试的传输层错误
func NewTransportError(message string, cause error) *Error {
	return NewError(ErrTransport, message).WithCause(cause).WithRetryable(true)
}

// NewAgentError 创建 agent 逻辑错误
func NewAgentError(agent, message string) *Error {
	return NewError(ErrAgent, message).WithAgent(agent)
}

// NewAgentNotFoundError 创建 agent 解析失败错误
func NewAgentNotFoundError(agent string) *Error {
	return NewError(ErrAgentNotFound, "agent not found: "+agent).WithAgent(agent)
}

// NewInvalidRequestError 创建请求参数错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(400)
}

// AsError extracts a *Error from anywhere in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

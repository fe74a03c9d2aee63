package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the error type carried by every rejected Task.
type AppError struct {
	// Code is the boundary error kind.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// StatusCode is the upstream HTTP or close status, when known.
	StatusCode int `json:"status,omitempty"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is matches another *AppError by code, so errors.Is(err, errors.Cancelled()) works.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Identity returns the stable ERR_NITAI_* name of the error kind.
func (e *AppError) Identity() string { return e.Code.Identity() }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithStatus records the upstream status and returns the receiver.
func (e *AppError) WithStatus(status int) *AppError {
	e.StatusCode = status
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// Connection creates an error for a failed or reset connection.
func Connection(cause error) *AppError {
	return New(ErrCodeConnection, "connection failed").WithCause(cause)
}

// Timeout creates an error for an elapsed deadline.
func Timeout(operation string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out", operation)).
		WithDetail("operation", operation)
}

// TLS creates an error for a handshake or certificate failure.
func TLS(cause error) *AppError {
	return New(ErrCodeTLS, "tls handshake failed").WithCause(cause)
}

// Resolver creates an error for a failed DNS lookup.
func Resolver(host string, cause error) *AppError {
	return New(ErrCodeResolver, fmt.Sprintf("could not resolve %s", host)).
		WithCause(cause).
		WithDetail("host", host)
}

// Protocol creates an error for a framing or protocol violation.
func Protocol(cause error) *AppError {
	return New(ErrCodeProtocol, "protocol violation").WithCause(cause)
}

// Cancelled creates an error for a task cancelled before settlement.
func Cancelled() *AppError {
	return New(ErrCodeCancelled, "operation was cancelled")
}

// AlreadyClosed creates an error for use of a released resource.
func AlreadyClosed(resource string) *AppError {
	return New(ErrCodeAlreadyClosed, fmt.Sprintf("%s is already closed", resource)).
		WithDetail("resource", resource)
}

// ReadInProgress creates an error for a read that lost the race to another read.
func ReadInProgress() *AppError {
	return New(ErrCodeReadInProgress, "another read is already in progress")
}

// InvalidArgument creates an error for a malformed caller-supplied value.
func InvalidArgument(field, reason string) *AppError {
	e := New(ErrCodeInvalidArgument, fmt.Sprintf("invalid %s: %s", field, reason))
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// Decode creates an error for a body that could not be decoded.
func Decode(format string, cause error) *AppError {
	return New(ErrCodeDecode, fmt.Sprintf("body is not valid %s", format)).
		WithCause(cause).
		WithDetail("format", format)
}

// Internal creates an error for an unexpected fault.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "unexpected internal fault").WithCause(cause)
}

// --- Helpers ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the kind of err, or "" when err is not an AppError.
func CodeOf(err error) ErrorCode {
	if e, ok := AsAppError(err); ok {
		return e.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool { return hasCode(err, ErrCodeConnection) }

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool { return hasCode(err, ErrCodeTimeout) }

// IsTLS checks if an error is a TLS error.
func IsTLS(err error) bool { return hasCode(err, ErrCodeTLS) }

// IsResolver checks if an error is a resolver error.
func IsResolver(err error) bool { return hasCode(err, ErrCodeResolver) }

// IsProtocol checks if an error is a protocol error.
func IsProtocol(err error) bool { return hasCode(err, ErrCodeProtocol) }

// IsCancelled checks if an error is a cancellation.
func IsCancelled(err error) bool { return hasCode(err, ErrCodeCancelled) }

// IsAlreadyClosed checks if an error reports use of a released resource.
func IsAlreadyClosed(err error) bool { return hasCode(err, ErrCodeAlreadyClosed) }

// IsReadInProgress checks if an error reports a concurrent read.
func IsReadInProgress(err error) bool { return hasCode(err, ErrCodeReadInProgress) }

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	e, ok := AsAppError(err)
	return ok && e.Retryable
}

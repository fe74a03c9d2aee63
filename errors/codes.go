package errors

// ErrorCode represents a machine-readable error kind.
type ErrorCode string

// Transport failures surfaced by the lower layer.
const (
	// ErrCodeConnection indicates the connection could not be established or was reset.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"
	// ErrCodeTimeout indicates a connect, request or receive deadline elapsed.
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"
	// ErrCodeTLS indicates a handshake or certificate verification failure.
	ErrCodeTLS ErrorCode = "TLS_ERROR"
	// ErrCodeResolver indicates DNS resolution failed.
	ErrCodeResolver ErrorCode = "RESOLVER_ERROR"
	// ErrCodeProtocol indicates the peer violated HTTP or WebSocket framing.
	ErrCodeProtocol ErrorCode = "PROTOCOL_ERROR"
)

// Lifecycle failures raised by the resource handles themselves.
const (
	// ErrCodeCancelled indicates the task was cancelled before it settled.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeAlreadyClosed indicates the resource was released before the call.
	ErrCodeAlreadyClosed ErrorCode = "ALREADY_CLOSED"
	// ErrCodeReadInProgress indicates another read owns the body.
	ErrCodeReadInProgress ErrorCode = "READ_IN_PROGRESS"
)

// Caller and decoding failures.
const (
	// ErrCodeInvalidArgument indicates a malformed URL, header, option or preset.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeDecode indicates the body could not be decoded as requested.
	ErrCodeDecode ErrorCode = "DECODE_ERROR"
)

// ErrCodeInternal is the catch-all for faults caught at the boundary.
const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

var identities = map[ErrorCode]string{
	ErrCodeConnection:      "ERR_NITAI_CONNECTION",
	ErrCodeTimeout:         "ERR_NITAI_TIMEOUT",
	ErrCodeTLS:             "ERR_NITAI_TLS",
	ErrCodeResolver:        "ERR_NITAI_RESOLVER",
	ErrCodeProtocol:        "ERR_NITAI_PROTOCOL",
	ErrCodeCancelled:       "ERR_NITAI_CANCELLED",
	ErrCodeAlreadyClosed:   "ERR_NITAI_ALREADY_CLOSED",
	ErrCodeReadInProgress:  "ERR_NITAI_READ_IN_PROGRESS",
	ErrCodeInvalidArgument: "ERR_NITAI_INVALID_ARGUMENT",
	ErrCodeDecode:          "ERR_NITAI_DECODE",
	ErrCodeInternal:        "ERR_NITAI_INTERNAL",
}

// Identity returns the stable ERR_NITAI_* name of the code.
func (c ErrorCode) Identity() string {
	if id, ok := identities[c]; ok {
		return id
	}
	return identities[ErrCodeInternal]
}

// Codes returns every known error code.
func Codes() []ErrorCode {
	return []ErrorCode{
		ErrCodeConnection, ErrCodeTimeout, ErrCodeTLS, ErrCodeResolver, ErrCodeProtocol,
		ErrCodeCancelled, ErrCodeAlreadyClosed, ErrCodeReadInProgress,
		ErrCodeInvalidArgument, ErrCodeDecode, ErrCodeInternal,
	}
}

var retryableCodes = map[ErrorCode]bool{
	ErrCodeConnection: true,
	ErrCodeTimeout:    true,
	ErrCodeResolver:   true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}

// Package types contains shared definitions used across the PulseKit SDK.
package types

// Logger defines the interface for logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ErrorCode represents a PulseKit error code.
type ErrorCode string

const (
	// Configuration errors
	ErrConfigMissingRequired ErrorCode = "CONFIG_MISSING_REQUIRED"
	ErrConfigInvalidInterval ErrorCode = "CONFIG_INVALID_INTERVAL"

	// Authentication errors
	ErrAuthInvalidKey   ErrorCode = "AUTH_INVALID_KEY"
	ErrAuthUnauthorized ErrorCode = "AUTH_UNAUTHORIZED"

	// Network errors
	ErrNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrNetworkTimeout    ErrorCode = "NETWORK_TIMEOUT"
	ErrNetworkRetryLimit ErrorCode = "NETWORK_RETRY_LIMIT"

	// Flag definition errors
	ErrQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	ErrFlagsNotLoaded    ErrorCode = "FLAGS_NOT_LOADED"
	ErrLocalEvalDisabled ErrorCode = "LOCAL_EVAL_DISABLED"

	// Event errors
	ErrEventQueueFull   ErrorCode = "EVENT_QUEUE_FULL"
	ErrEventInvalidData ErrorCode = "EVENT_INVALID_DATA"
	ErrEventSendFailed  ErrorCode = "EVENT_SEND_FAILED"
	ErrSpoolError       ErrorCode = "SPOOL_ERROR"

	// Client lifecycle errors
	ErrClientClosed       ErrorCode = "CLIENT_CLOSED"
	ErrAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"
)

// SDKError is the base error type for all PulseKit errors.
type SDKError struct {
	Code        ErrorCode
	Message     string
	Cause       error
	Recoverable bool
}

// Error implements the error interface.
func (e *SDKError) Error() string {
	if e.Cause != nil {
		return "[" + string(e.Code) + "] " + e.Message + ": " + e.Cause.Error()
	}
	return "[" + string(e.Code) + "] " + e.Message
}

// Unwrap returns the underlying cause.
func (e *SDKError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SDKError.
func NewError(code ErrorCode, message string) *SDKError {
	return &SDKError{
		Code:        code,
		Message:     message,
		Recoverable: isRecoverableCode(code),
	}
}

// NewErrorWithCause creates a new SDKError with a cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) *SDKError {
	return &SDKError{
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: isRecoverableCode(code),
	}
}

// IsRecoverable checks if the error is recoverable.
func IsRecoverable(err error) bool {
	if sdkErr, ok := err.(*SDKError); ok {
		return sdkErr.Recoverable
	}
	return false
}

// isRecoverableCode determines if an error code represents a recoverable error.
func isRecoverableCode(code ErrorCode) bool {
	switch code {
	case ErrNetworkError, ErrNetworkTimeout, ErrNetworkRetryLimit, ErrRateLimited:
		return true
	default:
		return false
	}
}

package pulsekit

import (
	"github.com/pulsekit/pulsekit-go/internal/types"
)

// ErrorCode represents a PulseKit error code.
type ErrorCode = types.ErrorCode

// Error codes
const (
	// Configuration errors
	ErrConfigMissingRequired = types.ErrConfigMissingRequired
	ErrConfigInvalidInterval = types.ErrConfigInvalidInterval

	// Authentication errors
	ErrAuthInvalidKey   = types.ErrAuthInvalidKey
	ErrAuthUnauthorized = types.ErrAuthUnauthorized

	// Network errors
	ErrNetworkError      = types.ErrNetworkError
	ErrNetworkTimeout    = types.ErrNetworkTimeout
	ErrNetworkRetryLimit = types.ErrNetworkRetryLimit

	// Flag definition errors
	ErrQuotaExceeded     = types.ErrQuotaExceeded
	ErrRateLimited       = types.ErrRateLimited
	ErrMalformedResponse = types.ErrMalformedResponse
	ErrFlagsNotLoaded    = types.ErrFlagsNotLoaded
	ErrLocalEvalDisabled = types.ErrLocalEvalDisabled

	// Event errors
	ErrEventQueueFull   = types.ErrEventQueueFull
	ErrEventInvalidData = types.ErrEventInvalidData
	ErrEventSendFailed  = types.ErrEventSendFailed
	ErrSpoolError       = types.ErrSpoolError

	// Client lifecycle errors
	ErrClientClosed       = types.ErrClientClosed
	ErrAlreadyInitialized = types.ErrAlreadyInitialized
)

// SDKError is the base error type for all PulseKit errors.
type SDKError = types.SDKError

// NewError creates a new SDKError.
func NewError(code ErrorCode, message string) *SDKError {
	return types.NewError(code, message)
}

// NewErrorWithCause creates a new SDKError with a cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) *SDKError {
	return types.NewErrorWithCause(code, message, cause)
}

// IsRecoverable checks if the error is recoverable.
func IsRecoverable(err error) bool {
	return types.IsRecoverable(err)
}

// Package pulsekit provides a Go SDK for PulseKit event telemetry and
// feature flags.
//
// Quick Start:
//
//	// Initialize the SDK
//	client, err := pulsekit.Initialize("pk_your_api_key",
//	    pulsekit.WithLocalEvaluation(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Capture events
//	client.Capture("user-123", "signup_completed", pulsekit.Properties{"plan": "premium"})
//
//	// Evaluate flags locally
//	value, _ := client.GetFeatureFlag("new-onboarding", "user-123")
//	if value == nil {
//	    // could not be decided locally; ask the server
//	}
package pulsekit

import (
	"sync"
)

var (
	instance   *Client
	instanceMu sync.Mutex
)

// Initialize creates a singleton PulseKit client.
// This is the recommended way to use PulseKit in most applications.
func Initialize(apiKey string, opts ...OptionFunc) (*Client, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return nil, NewError(ErrAlreadyInitialized, "PulseKit is already initialized")
	}

	client, err := NewClient(apiKey, opts...)
	if err != nil {
		return nil, err
	}

	instance = client
	return instance, nil
}

// GetClient returns the singleton client instance.
// Returns nil if not initialized.
func GetClient() *Client {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// IsInitialized returns whether the SDK has been initialized.
func IsInitialized() bool {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance != nil
}

// Shutdown closes the singleton client and resets the instance.
func Shutdown() error {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		return nil
	}

	err := instance.Close()
	instance = nil
	return err
}

// Convenience methods that operate on the singleton instance.
// These will panic if the SDK is not initialized.

// Capture records a telemetry event using the singleton client.
func Capture(distinctID, event string, properties ...Properties) {
	_ = mustGetClient().Capture(distinctID, event, properties...)
}

// Identify associates person properties using the singleton client.
func Identify(distinctID string, properties Properties) {
	_ = mustGetClient().Identify(distinctID, properties)
}

// GetFeatureFlag evaluates a flag locally using the singleton client.
func GetFeatureFlag(key, distinctID string, params ...FlagParams) (FlagValue, error) {
	return mustGetClient().GetFeatureFlag(key, distinctID, params...)
}

// GetAllFlagsAndPayloads evaluates all flags using the singleton client.
func GetAllFlagsAndPayloads(distinctID string, params ...FlagParams) (*AllFlagsResult, error) {
	return mustGetClient().GetAllFlagsAndPayloads(distinctID, params...)
}

// Flush flushes pending events using the singleton client.
func Flush() {
	mustGetClient().Flush()
}

// mustGetClient returns the singleton client or panics if not initialized.
func mustGetClient() *Client {
	client := GetClient()
	if client == nil {
		panic("PulseKit is not initialized. Call pulsekit.Initialize() first.")
	}
	return client
}

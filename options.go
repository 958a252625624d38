package pulsekit

import (
	"time"
)

const (
	// DefaultEndpoint is the default PulseKit API base URL.
	DefaultEndpoint = "https://api.pulsekit.dev/api/v1"

	// DefaultPollingInterval is the default flag definitions refresh interval.
	DefaultPollingInterval = 30 * time.Second

	// DefaultFlushInterval is the default event flush interval.
	DefaultFlushInterval = 30 * time.Second

	// DefaultBatchSize is the default event batch size.
	DefaultBatchSize = 10

	// DefaultMaxQueueSize is the default event queue capacity.
	DefaultMaxQueueSize = 1000

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is the default number of event delivery retries.
	DefaultRetries = 3

	// SDKVersion is the current SDK version.
	SDKVersion = "1.0.0"
)

// Options configures the PulseKit client.
type Options struct {
	// APIKey is the API key for authentication (required).
	APIKey string

	// Endpoint is the PulseKit API base URL.
	Endpoint string

	// LocalEvaluation enables the flag definitions poller so feature flags
	// can be evaluated without a network round trip.
	LocalEvaluation bool

	// PollingInterval is the interval between flag definition refreshes.
	// Values below 100ms are clamped.
	PollingInterval time.Duration

	// FeatureFlagRequestTimeout bounds each definitions fetch. Zero means
	// no per-fetch deadline beyond the client Timeout.
	FeatureFlagRequestTimeout time.Duration

	// FlushInterval is the interval between event flushes.
	FlushInterval time.Duration

	// BatchSize is the number of queued events that triggers a flush.
	BatchSize int

	// MaxQueueSize is the event queue capacity; events beyond it are dropped.
	MaxQueueSize int

	// SpoolPath, when set, persists unsent event batches encrypted at rest.
	SpoolPath string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Retries is the number of retry attempts for failed event deliveries.
	Retries int

	// Debug enables debug logging.
	Debug bool

	// Logger is a custom logger implementation.
	Logger Logger

	// OnError is called with classified non-fatal failures (permission,
	// rate limit, malformed responses).
	OnError func(error)

	// OnFlagsLoaded is called with the flag count after each successful
	// definitions refresh.
	OnFlagsLoaded func(count int)
}

// DefaultOptions returns options with default values.
func DefaultOptions(apiKey string) *Options {
	return &Options{
		APIKey:          apiKey,
		Endpoint:        DefaultEndpoint,
		PollingInterval: DefaultPollingInterval,
		FlushInterval:   DefaultFlushInterval,
		BatchSize:       DefaultBatchSize,
		MaxQueueSize:    DefaultMaxQueueSize,
		Timeout:         DefaultTimeout,
		Retries:         DefaultRetries,
	}
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.APIKey == "" {
		return NewError(ErrConfigMissingRequired, "API key is required")
	}
	if len(o.APIKey) < 10 {
		return NewError(ErrAuthInvalidKey, "API key is too short")
	}
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.PollingInterval <= 0 {
		o.PollingInterval = DefaultPollingInterval
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = DefaultMaxQueueSize
	}
	return nil
}

// OptionFunc is a function that modifies Options.
type OptionFunc func(*Options)

// WithEndpoint sets the API base URL.
func WithEndpoint(url string) OptionFunc {
	return func(o *Options) {
		o.Endpoint = url
	}
}

// WithLocalEvaluation enables local feature flag evaluation.
func WithLocalEvaluation() OptionFunc {
	return func(o *Options) {
		o.LocalEvaluation = true
	}
}

// WithPollingInterval sets the flag definitions refresh interval.
func WithPollingInterval(d time.Duration) OptionFunc {
	return func(o *Options) {
		o.PollingInterval = d
	}
}

// WithFeatureFlagRequestTimeout bounds each definitions fetch.
func WithFeatureFlagRequestTimeout(d time.Duration) OptionFunc {
	return func(o *Options) {
		o.FeatureFlagRequestTimeout = d
	}
}

// WithFlushInterval sets the event flush interval.
func WithFlushInterval(d time.Duration) OptionFunc {
	return func(o *Options) {
		o.FlushInterval = d
	}
}

// WithBatchSize sets the event batch size.
func WithBatchSize(n int) OptionFunc {
	return func(o *Options) {
		o.BatchSize = n
	}
}

// WithMaxQueueSize sets the event queue capacity.
func WithMaxQueueSize(n int) OptionFunc {
	return func(o *Options) {
		o.MaxQueueSize = n
	}
}

// WithSpoolPath persists unsent event batches to the given file.
func WithSpoolPath(path string) OptionFunc {
	return func(o *Options) {
		o.SpoolPath = path
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) OptionFunc {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithRetries sets the number of event delivery retries.
func WithRetries(n int) OptionFunc {
	return func(o *Options) {
		o.Retries = n
	}
}

// WithDebug enables debug logging.
func WithDebug() OptionFunc {
	return func(o *Options) {
		o.Debug = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger Logger) OptionFunc {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithOnError sets the error callback.
func WithOnError(fn func(error)) OptionFunc {
	return func(o *Options) {
		o.OnError = fn
	}
}

// WithOnFlagsLoaded sets the flags-loaded callback.
func WithOnFlagsLoaded(fn func(count int)) OptionFunc {
	return func(o *Options) {
		o.OnFlagsLoaded = fn
	}
}

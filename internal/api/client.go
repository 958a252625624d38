// Package api implements HTTP communication with the PulseKit collection
// endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pulsekit/pulsekit-go/internal/types"
)

// Version is the SDK version reported in request headers. Set by the root
// package.
var Version = "0.0.0"

const (
	defsPath   = "/sdk/flags/local_evaluation"
	eventsPath = "/sdk/events/batch"
)

// Config contains API client configuration.
type Config struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	Retries  int
	Logger   types.Logger
}

// Client talks to the PulseKit API. Event delivery retries transient
// failures; the flag definitions fetch is a single attempt because the
// definitions poller classifies statuses and schedules its own backoff.
type Client struct {
	endpoint string
	apiKey   string
	raw      *http.Client
	retry    *retryablehttp.Client
	logger   types.Logger
}

// NewClient creates a new API client.
func NewClient(cfg *Config) *Client {
	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.Retries
	retry.RetryWaitMin = time.Second
	retry.RetryWaitMax = 30 * time.Second
	retry.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	retry.Logger = nil

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		raw:      &http.Client{Timeout: cfg.Timeout},
		retry:    retry,
		logger:   cfg.Logger,
	}
}

// FetchDefinitions fetches the local-evaluation payload and returns the raw
// status code and body without transport-level retries.
func (c *Client) FetchDefinitions(ctx context.Context) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+defsPath, nil)
	if err != nil {
		return 0, nil, types.NewErrorWithCause(types.ErrNetworkError, "failed to create request", err)
	}
	c.setHeaders(req.Header)

	resp, err := c.raw.Do(req)
	if err != nil {
		return 0, nil, types.NewErrorWithCause(types.ErrNetworkError, "flag definitions request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, types.NewErrorWithCause(types.ErrNetworkError, "failed to read response body", err)
	}
	return resp.StatusCode, body, nil
}

// SendBatch posts an event batch, retrying transient failures with backoff.
func (c *Client) SendBatch(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewErrorWithCause(types.ErrEventInvalidData, "failed to marshal event batch", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+eventsPath, bytes.NewReader(body))
	if err != nil {
		return types.NewErrorWithCause(types.ErrNetworkError, "failed to create request", err)
	}
	c.setHeaders(req.Header)

	resp, err := c.retry.Do(req)
	if err != nil {
		return types.NewErrorWithCause(types.ErrEventSendFailed, "event batch request failed", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return c.errorForStatus(resp.StatusCode, respBody)
	}
	return nil
}

func (c *Client) setHeaders(h http.Header) {
	h.Set("X-API-Key", c.apiKey)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("User-Agent", "PulseKit-Go/"+Version)
	h.Set("X-PulseKit-SDK-Version", Version)
	h.Set("X-PulseKit-SDK-Language", "go")
}

// errorForStatus converts HTTP error responses to SDKErrors.
func (c *Client) errorForStatus(statusCode int, body []byte) error {
	message := string(body)
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewError(types.ErrAuthUnauthorized, message)
	case http.StatusPaymentRequired:
		return types.NewError(types.ErrQuotaExceeded, message)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, message)
	default:
		return types.NewError(types.ErrNetworkError, fmt.Sprintf("HTTP %d: %s", statusCode, message))
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.raw.CloseIdleConnections()
	c.retry.HTTPClient.CloseIdleConnections()
}

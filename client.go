package pulsekit

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit-go/internal/api"
	"github.com/pulsekit/pulsekit-go/internal/events"
	"github.com/pulsekit/pulsekit-go/internal/flags"
)

func init() {
	// Set SDK version in the internal api package
	api.Version = SDKVersion
}

// Client is the PulseKit SDK client.
type Client struct {
	options   *Options
	apiClient *api.Client
	queue     *events.Queue
	poller    *flags.Poller
	sessionID string
	logger    Logger
	closed    bool
	mu        sync.RWMutex
}

// NewClient creates a new PulseKit client.
func NewClient(apiKey string, opts ...OptionFunc) (*Client, error) {
	options := DefaultOptions(apiKey)
	for _, opt := range opts {
		opt(options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	// Set up logger
	var logger Logger
	if options.Logger != nil {
		logger = options.Logger
	} else if options.Debug {
		logger = NewDefaultLogger(true)
	} else {
		logger = &NullLogger{}
	}

	apiClient := api.NewClient(&api.Config{
		APIKey:   options.APIKey,
		Endpoint: options.Endpoint,
		Timeout:  options.Timeout,
		Retries:  options.Retries,
		Logger:   logger,
	})

	var spool *events.Spool
	if options.SpoolPath != "" {
		var err error
		spool, err = events.NewSpool(options.SpoolPath, options.APIKey, logger)
		if err != nil {
			return nil, err
		}
	}

	queue := events.NewQueue(&events.QueueConfig{
		Sender:        apiClient,
		Spool:         spool,
		MaxSize:       options.MaxQueueSize,
		FlushInterval: options.FlushInterval,
		BatchSize:     options.BatchSize,
		SDKVersion:    SDKVersion,
		Logger:        logger,
	})

	client := &Client{
		options:   options,
		apiClient: apiClient,
		queue:     queue,
		sessionID: uuid.NewString(),
		logger:    logger,
	}

	queue.Start()

	if options.LocalEvaluation {
		client.poller = flags.NewPoller(flags.PollerConfig{
			Fetcher:        apiClient,
			Interval:       options.PollingInterval,
			RequestTimeout: options.FeatureFlagRequestTimeout,
			Logger:         logger,
			OnError:        options.OnError,
			OnFlagsLoaded:  options.OnFlagsLoaded,
		})
	}

	logger.Info("PulseKit client created",
		"local_evaluation", options.LocalEvaluation,
	)

	return client, nil
}

// Capture records a telemetry event for the given distinct id.
func (c *Client) Capture(distinctID, event string, properties ...Properties) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if distinctID == "" || event == "" {
		return NewError(ErrEventInvalidData, "distinct id and event name are required")
	}

	props := map[string]any{"$session_id": c.sessionID}
	if len(properties) > 0 {
		for k, v := range properties[0] {
			props[k] = v
		}
	}

	c.queue.Enqueue(events.Message{
		Event:      event,
		DistinctID: distinctID,
		Properties: props,
	})
	return nil
}

// Identify associates person properties with the given distinct id.
func (c *Client) Identify(distinctID string, properties Properties) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if distinctID == "" {
		return NewError(ErrEventInvalidData, "distinct id is required")
	}

	c.queue.Enqueue(events.Message{
		Event:      "$identify",
		DistinctID: distinctID,
		Properties: map[string]any{
			"$session_id": c.sessionID,
			"$set":        map[string]any(properties),
		},
	})
	return nil
}

// Group associates properties with a group instance (e.g. an organization).
func (c *Client) Group(distinctID, groupType, groupKey string, properties Properties) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if distinctID == "" || groupType == "" || groupKey == "" {
		return NewError(ErrEventInvalidData, "distinct id, group type and group key are required")
	}

	c.queue.Enqueue(events.Message{
		Event:      "$groupidentify",
		DistinctID: distinctID,
		Properties: map[string]any{
			"$session_id": c.sessionID,
			"$group_type": groupType,
			"$group_key":  groupKey,
			"$group_set":  map[string]any(properties),
		},
	})
	return nil
}

// Alias links a new distinct id to an existing one.
func (c *Client) Alias(distinctID, alias string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if distinctID == "" || alias == "" {
		return NewError(ErrEventInvalidData, "distinct id and alias are required")
	}

	c.queue.Enqueue(events.Message{
		Event:      "$create_alias",
		DistinctID: distinctID,
		Properties: map[string]any{
			"$session_id": c.sessionID,
			"alias":       alias,
		},
	})
	return nil
}

// Flush sends all pending events now.
func (c *Client) Flush() {
	c.queue.Flush()
}

// Close stops background work, flushes pending events, and releases
// resources.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.logger.Debug("Closing SDK")

	if c.poller != nil {
		c.poller.Stop()
	}
	c.queue.Stop()
	c.apiClient.Close()

	c.logger.Info("SDK closed")
	return nil
}

func (c *Client) checkOpen() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return NewError(ErrClientClosed, "client is closed")
	}
	return nil
}

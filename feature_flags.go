package pulsekit

import (
	"github.com/pulsekit/pulsekit-go/internal/flags"
)

// FlagParams carries the optional inputs of a flag evaluation.
type FlagParams struct {
	// Groups maps group type names to the group keys being evaluated.
	Groups Groups

	// PersonProperties are the person's property values.
	PersonProperties Properties

	// GroupProperties are property values per group type name.
	GroupProperties map[string]Properties
}

// AllFlagsResult is the outcome of evaluating every cached flag.
type AllFlagsResult struct {
	// Flags maps flag keys to their evaluated values.
	Flags map[string]FlagValue

	// Payloads maps flag keys to their decoded payloads, where present.
	Payloads map[string]any

	// FallbackToServer is true when at least one flag could not be
	// evaluated locally; the caller should merge with a server response.
	FallbackToServer bool
}

// GetFeatureFlag evaluates a flag locally. A nil value means the flag could
// not be decided locally (unknown key or inconclusive evaluation) and the
// caller should ask the server. The error return is reserved for misuse:
// local evaluation disabled or a closed client.
func (c *Client) GetFeatureFlag(key, distinctID string, params ...FlagParams) (FlagValue, error) {
	snap, err := c.flagSnapshot()
	if err != nil {
		return nil, err
	}

	flag, ok := snap.FlagsByKey[key]
	if !ok {
		c.logger.Debug("Flag not found in local definitions", "key", key)
		return nil, nil
	}

	return c.computeFlag(snap, flag, distinctID, flagParams(params)), nil
}

// GetFeatureFlagPayload evaluates a flag locally and returns its decoded
// payload. A nil return means either the flag deferred to the server or it
// evaluated without a payload.
func (c *Client) GetFeatureFlagPayload(key, distinctID string, params ...FlagParams) (any, error) {
	value, err := c.GetFeatureFlag(key, distinctID, params...)
	if err != nil || value == nil {
		return nil, err
	}
	return c.ComputeFeatureFlagPayloadLocally(key, value)
}

// ComputeFeatureFlagPayloadLocally looks up the payload stored for
// matchValue on an already-evaluated flag. A nil return means the flag
// evaluated with no payload attached.
func (c *Client) ComputeFeatureFlagPayloadLocally(key string, matchValue FlagValue) (any, error) {
	if c.poller == nil {
		return nil, NewError(ErrLocalEvalDisabled, "local evaluation is not enabled")
	}
	if !c.poller.IsReady() {
		return nil, NewError(ErrFlagsNotLoaded, "flag definitions are not loaded")
	}

	flag, ok := c.poller.Current().FlagsByKey[key]
	if !ok {
		return nil, nil
	}
	return flags.DecodePayload(flag, matchValue), nil
}

// GetAllFlagsAndPayloads evaluates every cached flag independently. A flag
// that cannot be decided locally is skipped and FallbackToServer is set; one
// bad flag definition never aborts the batch.
func (c *Client) GetAllFlagsAndPayloads(distinctID string, params ...FlagParams) (*AllFlagsResult, error) {
	snap, err := c.flagSnapshot()
	if err != nil {
		return nil, err
	}

	p := flagParams(params)
	result := &AllFlagsResult{
		Flags:    make(map[string]FlagValue, len(snap.Flags)),
		Payloads: make(map[string]any),
	}

	for _, flag := range snap.Flags {
		value := c.computeFlag(snap, flag, distinctID, p)
		if value == nil {
			result.FallbackToServer = true
			continue
		}
		result.Flags[flag.Key] = value
		if payload := flags.DecodePayload(flag, value); payload != nil {
			result.Payloads[flag.Key] = payload
		}
	}
	return result, nil
}

// IsLocalEvaluationReady reports whether flag definitions have been loaded
// at least once and are non-empty.
func (c *Client) IsLocalEvaluationReady() bool {
	return c.poller != nil && c.poller.IsReady()
}

// ReloadFeatureFlags forces a definitions refresh now.
func (c *Client) ReloadFeatureFlags() error {
	if c.poller == nil {
		return NewError(ErrLocalEvalDisabled, "local evaluation is not enabled")
	}
	return c.poller.Load(true)
}

// StopFeatureFlagPoller cancels the background definitions refresh.
func (c *Client) StopFeatureFlagPoller() {
	if c.poller != nil {
		c.poller.Stop()
	}
}

// flagSnapshot ensures a first load has been attempted and returns the
// current definitions snapshot.
func (c *Client) flagSnapshot() (*flags.Snapshot, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if c.poller == nil {
		return nil, NewError(ErrLocalEvalDisabled, "local evaluation is not enabled")
	}
	// Blocks only until the first load attempt completes; afterwards
	// evaluation always proceeds against the last good snapshot.
	if err := c.poller.Load(false); err != nil {
		c.logger.Debug("Flag definitions load failed, evaluating against last snapshot", "error", err.Error())
	}
	return c.poller.Current(), nil
}

// computeFlag evaluates one flag against the snapshot, converting both
// inconclusive results and unexpected per-flag errors into the nil
// "ask the server" value.
func (c *Client) computeFlag(snap *flags.Snapshot, flag FlagDefinition, distinctID string, p FlagParams) FlagValue {
	evaluator := &flags.LocalEvaluator{
		Cohorts:          snap.Cohorts,
		GroupTypeMapping: snap.GroupTypeMapping,
		Logger:           c.logger,
	}
	value, err := evaluator.ComputeFlagLocally(flag, distinctID, p.Groups, p.PersonProperties, p.GroupProperties)
	if err != nil {
		if flags.IsInconclusive(err) {
			c.logger.Debug("Flag is inconclusive locally, falling back to server", "key", flag.Key, "reason", err.Error())
		} else {
			c.logger.Warn("Flag evaluation failed", "key", flag.Key, "error", err.Error())
			if c.options.OnError != nil {
				c.options.OnError(err)
			}
		}
		return nil
	}
	return value
}

// flagParams extracts params from the variadic parameter.
func flagParams(params []FlagParams) FlagParams {
	if len(params) > 0 {
		return params[0]
	}
	return FlagParams{}
}

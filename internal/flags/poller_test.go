package flags

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsekit/pulsekit-go/internal/types"
)

// stubFetcher replays scripted responses; the last one repeats once the
// script runs out.
type stubFetcher struct {
	mu        sync.Mutex
	responses []stubResponse
	calls     int
}

type stubResponse struct {
	status int
	body   []byte
	err    error
}

func (f *stubFetcher) FetchDefinitions(ctx context.Context) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.responses[len(f.responses)-1]
	if f.calls < len(f.responses) {
		r = f.responses[f.calls]
	}
	f.calls++
	return r.status, r.body, r.err
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const definitionsBody = `{
	"flags": [
		{"key": "beta", "active": true, "conditions": [{"rollout_percentage": 100}]},
		{"key": "off", "active": false, "conditions": []}
	],
	"group_type_mapping": {"0": "organization"},
	"cohorts": {"1": {"type": "AND", "values": [{"key": "plan", "operator": "exact", "value": "premium"}]}}
}`

// newTestPoller builds a poller without starting the background loop so
// tests drive Load explicitly.
func newTestPoller(fetcher DefinitionsFetcher, cfg PollerConfig) *Poller {
	cfg.Fetcher = fetcher
	interval := cfg.Interval
	if interval < MinPollingInterval {
		interval = MinPollingInterval
	}
	return &Poller{
		cfg:          cfg,
		baseInterval: interval,
		snap:         emptySnapshot(),
		interval:     interval,
		stopCh:       make(chan struct{}),
	}
}

func TestPollerPublishesOnOK(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 200, body: []byte(definitionsBody)}}}

	var loadedCount int
	p := newTestPoller(fetcher, PollerConfig{
		Interval:      time.Hour,
		Logger:        &types.NullLogger{},
		OnFlagsLoaded: func(count int) { loadedCount = count },
	})

	require.NoError(t, p.Load(true))

	assert.True(t, p.IsReady())
	assert.Equal(t, 2, loadedCount)

	snap := p.Current()
	require.Len(t, snap.Flags, 2)
	assert.Contains(t, snap.FlagsByKey, "beta")
	assert.Equal(t, "organization", snap.GroupTypeMapping["0"])
	assert.Contains(t, snap.Cohorts, "1")
}

func TestPollerLoadWithoutForceIsNoOpOnceLoaded(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 200, body: []byte(definitionsBody)}}}
	p := newTestPoller(fetcher, PollerConfig{Interval: time.Hour, Logger: &types.NullLogger{}})

	require.NoError(t, p.Load(true))
	require.NoError(t, p.Load(false))
	require.NoError(t, p.Load(false))
	assert.Equal(t, 1, fetcher.callCount())

	require.NoError(t, p.Load(true))
	assert.Equal(t, 2, fetcher.callCount())
}

func TestPollerSnapshotFullyReplaced(t *testing.T) {
	first := `{"flags": [{"key": "old-flag", "active": true, "conditions": []}]}`
	second := `{"flags": [{"key": "new-flag", "active": true, "conditions": []}]}`
	fetcher := &stubFetcher{responses: []stubResponse{
		{status: 200, body: []byte(first)},
		{status: 200, body: []byte(second)},
	}}
	p := newTestPoller(fetcher, PollerConfig{Interval: time.Hour, Logger: &types.NullLogger{}})

	require.NoError(t, p.Load(true))
	require.NoError(t, p.Load(true))

	snap := p.Current()
	assert.Contains(t, snap.FlagsByKey, "new-flag")
	assert.NotContains(t, snap.FlagsByKey, "old-flag")
}

func TestPollerAuthFailure(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{
		{status: 200, body: []byte(definitionsBody)},
		{status: 401},
	}}

	var reported error
	p := newTestPoller(fetcher, PollerConfig{
		Interval: time.Second,
		Logger:   &types.NullLogger{},
		OnError:  func(err error) { reported = err },
	})

	require.NoError(t, p.Load(true))
	err := p.Load(true)

	require.Error(t, err)
	var sdkErr *types.SDKError
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, types.ErrAuthUnauthorized, sdkErr.Code)
	assert.Equal(t, err, reported)

	// Backoff doubled, prior snapshot kept.
	assert.Equal(t, 2*time.Second, p.CurrentInterval())
	assert.True(t, p.IsReady())
	assert.Contains(t, p.Current().FlagsByKey, "beta")
}

func TestPollerQuotaExceededClearsDefinitions(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{
		{status: 200, body: []byte(definitionsBody)},
		{status: 402},
	}}

	var reported error
	p := newTestPoller(fetcher, PollerConfig{
		Interval: time.Second,
		Logger:   &types.NullLogger{},
		OnError:  func(err error) { reported = err },
	})

	require.NoError(t, p.Load(true))
	require.True(t, p.IsReady())

	err := p.Load(true)
	require.Error(t, err)

	// Definitions are dropped so stale values stop being served, but the
	// error callback is not invoked and the interval is not escalated.
	assert.False(t, p.IsReady())
	assert.Empty(t, p.Current().Flags)
	assert.Nil(t, reported)
	assert.Equal(t, time.Second, p.CurrentInterval())
}

func TestPollerRateLimitedBacksOff(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 429}}}

	var reported error
	p := newTestPoller(fetcher, PollerConfig{
		Interval: time.Second,
		Logger:   &types.NullLogger{},
		OnError:  func(err error) { reported = err },
	})

	require.Error(t, p.Load(true))
	assert.Equal(t, 2*time.Second, p.CurrentInterval())

	require.Error(t, p.Load(true))
	assert.Equal(t, 4*time.Second, p.CurrentInterval())

	var sdkErr *types.SDKError
	require.True(t, errors.As(reported, &sdkErr))
	assert.Equal(t, types.ErrRateLimited, sdkErr.Code)
	assert.False(t, p.IsReady())
}

func TestPollerBackoffCapped(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 429}}}
	p := newTestPoller(fetcher, PollerConfig{Interval: 20 * time.Second, Logger: &types.NullLogger{}})

	for i := 0; i < 5; i++ {
		_ = p.Load(true)
	}
	assert.Equal(t, MaxPollingBackoff, p.CurrentInterval())
}

func TestPollerBackoffResetsOnSuccess(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{
		{status: 429},
		{status: 200, body: []byte(definitionsBody)},
	}}
	p := newTestPoller(fetcher, PollerConfig{Interval: time.Second, Logger: &types.NullLogger{}})

	require.Error(t, p.Load(true))
	assert.Equal(t, 2*time.Second, p.CurrentInterval())

	require.NoError(t, p.Load(true))
	assert.Equal(t, time.Second, p.CurrentInterval())
}

func TestPollerMalformedResponseKeepsSnapshot(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{
		{status: 200, body: []byte(definitionsBody)},
		{status: 200, body: []byte(`{"unexpected": true}`)},
	}}

	var reported error
	p := newTestPoller(fetcher, PollerConfig{
		Interval: time.Hour,
		Logger:   &types.NullLogger{},
		OnError:  func(err error) { reported = err },
	})

	require.NoError(t, p.Load(true))
	err := p.Load(true)

	require.Error(t, err)
	var sdkErr *types.SDKError
	require.True(t, errors.As(reported, &sdkErr))
	assert.Equal(t, types.ErrMalformedResponse, sdkErr.Code)
	assert.Contains(t, p.Current().FlagsByKey, "beta")
}

func TestPollerNetworkErrorKeepsSnapshotQuietly(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	fetcher := &stubFetcher{responses: []stubResponse{
		{status: 200, body: []byte(definitionsBody)},
		{err: netErr},
	}}

	var reported error
	p := newTestPoller(fetcher, PollerConfig{
		Interval: time.Second,
		Logger:   &types.NullLogger{},
		OnError:  func(err error) { reported = err },
	})

	require.NoError(t, p.Load(true))
	err := p.Load(true)

	assert.Equal(t, netErr, err)
	assert.Nil(t, reported)
	assert.True(t, p.IsReady())
	assert.Equal(t, time.Second, p.CurrentInterval())
}

func TestPollerUnexpectedStatusKeepsSnapshotQuietly(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{
		{status: 200, body: []byte(definitionsBody)},
		{status: 500},
	}}

	var reported error
	p := newTestPoller(fetcher, PollerConfig{
		Interval: time.Second,
		Logger:   &types.NullLogger{},
		OnError:  func(err error) { reported = err },
	})

	require.NoError(t, p.Load(true))
	require.NoError(t, p.Load(true))

	assert.Nil(t, reported)
	assert.True(t, p.IsReady())
}

func TestPollerEmptyFlagListIsLoadedButNotReady(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 200, body: []byte(`{"flags": []}`)}}}
	p := newTestPoller(fetcher, PollerConfig{Interval: time.Hour, Logger: &types.NullLogger{}})

	require.NoError(t, p.Load(true))
	assert.False(t, p.IsReady())

	// The load still counts; non-forced loads stop refetching.
	require.NoError(t, p.Load(false))
	assert.Equal(t, 1, fetcher.callCount())
}

func TestPollerBackgroundLoop(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 200, body: []byte(definitionsBody)}}}
	p := NewPoller(PollerConfig{
		Fetcher:  fetcher,
		Interval: MinPollingInterval,
		Logger:   &types.NullLogger{},
	})
	defer p.Stop()

	assert.Eventually(t, func() bool {
		return p.IsReady() && fetcher.callCount() >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPollerIntervalClamped(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 200, body: []byte(definitionsBody)}}}
	p := NewPoller(PollerConfig{
		Fetcher:  fetcher,
		Interval: time.Millisecond,
		Logger:   &types.NullLogger{},
	})
	defer p.Stop()

	assert.Equal(t, MinPollingInterval, p.CurrentInterval())
}

func TestPollerStopIsIdempotent(t *testing.T) {
	fetcher := &stubFetcher{responses: []stubResponse{{status: 200, body: []byte(definitionsBody)}}}
	p := NewPoller(PollerConfig{Fetcher: fetcher, Interval: time.Hour, Logger: &types.NullLogger{}})

	p.Stop()
	p.Stop()
}

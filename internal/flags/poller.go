package flags

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pulsekit/pulsekit-go/internal/types"
)

const (
	// MinPollingInterval is the floor enforced on configured intervals.
	MinPollingInterval = 100 * time.Millisecond

	// MaxPollingBackoff caps the interval reached by backoff doubling.
	MaxPollingBackoff = 60 * time.Second
)

// DefinitionsFetcher fetches the raw local-evaluation payload. The poller
// owns status classification and backoff, so implementations must not retry
// on their own.
type DefinitionsFetcher interface {
	FetchDefinitions(ctx context.Context) (status int, body []byte, err error)
}

// Snapshot is one immutable generation of flag definitions. The poller
// replaces the whole snapshot on each successful load; readers must never
// observe a mix of old and new definitions.
type Snapshot struct {
	Flags            []FlagDefinition
	FlagsByKey       map[string]FlagDefinition
	GroupTypeMapping map[string]string
	Cohorts          map[string]PropertyGroup
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		FlagsByKey:       map[string]FlagDefinition{},
		GroupTypeMapping: map[string]string{},
		Cohorts:          map[string]PropertyGroup{},
	}
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Fetcher        DefinitionsFetcher
	Interval       time.Duration
	RequestTimeout time.Duration
	Logger         types.Logger
	OnError        func(error)
	OnFlagsLoaded  func(count int)
}

// Poller fetches flag definitions on construction and refreshes them in the
// background. It is the sole writer of the snapshot; evaluators read the
// last published generation.
type Poller struct {
	cfg          PollerConfig
	baseInterval time.Duration

	mu         sync.RWMutex
	snap       *Snapshot
	interval   time.Duration
	loadedOnce bool

	loads    singleflight.Group
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a poller, triggers an immediate load, and starts the
// refresh loop.
func NewPoller(cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval < MinPollingInterval {
		interval = MinPollingInterval
	}
	p := &Poller{
		cfg:          cfg,
		baseInterval: interval,
		snap:         emptySnapshot(),
		interval:     interval,
		stopCh:       make(chan struct{}),
	}
	go p.run()
	return p
}

// Stop cancels the refresh loop. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.log().Debug("Flag definition polling stopped")
	})
}

// Current returns the last published snapshot. Callers must treat it as
// read-only.
func (p *Poller) Current() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// IsReady reports whether at least one load succeeded and the current flag
// list is non-empty.
func (p *Poller) IsReady() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedOnce && len(p.snap.Flags) > 0
}

// Load fetches definitions now. Without force it is a no-op once a load has
// succeeded; concurrent callers share a single fetch.
func (p *Poller) Load(force bool) error {
	p.mu.RLock()
	loaded := p.loadedOnce
	p.mu.RUnlock()
	if loaded && !force {
		return nil
	}
	_, err, _ := p.loads.Do("load", func() (any, error) {
		return nil, p.load()
	})
	return err
}

func (p *Poller) run() {
	p.Load(true)
	for {
		p.mu.RLock()
		delay := p.interval
		p.mu.RUnlock()

		select {
		case <-p.stopCh:
			return
		case <-time.After(delay):
			p.Load(true)
		}
	}
}

// load performs one fetch and classifies the outcome. Failures are scoped to
// this poll cycle: the previous snapshot stays published unless the server
// reports quota exhaustion.
func (p *Poller) load() error {
	ctx := context.Background()
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}

	status, body, err := p.cfg.Fetcher.FetchDefinitions(ctx)
	if err != nil {
		// Network failure or timeout: keep serving the prior snapshot.
		p.log().Debug("Failed to fetch flag definitions", "error", err.Error())
		return err
	}

	switch status {
	case http.StatusOK:
		return p.publish(body)

	case http.StatusUnauthorized, http.StatusForbidden:
		sdkErr := types.NewError(types.ErrAuthUnauthorized, "permission denied fetching flag definitions; check the API key")
		p.escalateBackoff()
		p.reportError(sdkErr)
		return sdkErr

	case http.StatusPaymentRequired:
		sdkErr := types.NewError(types.ErrQuotaExceeded, "feature flags quota exceeded, clearing cached definitions")
		p.log().Warn(sdkErr.Message)
		p.clear()
		return sdkErr

	case http.StatusTooManyRequests:
		sdkErr := types.NewError(types.ErrRateLimited, "rate limited while fetching flag definitions")
		p.escalateBackoff()
		p.reportError(sdkErr)
		return sdkErr

	default:
		// Unexpected status: keep serving the prior snapshot.
		p.log().Debug("Unexpected status fetching flag definitions", "status", status)
		return nil
	}
}

// publish parses a 200 body and atomically replaces the snapshot. A body
// without the flags field is reported and the prior snapshot kept.
func (p *Poller) publish(body []byte) error {
	var probe struct {
		Flags            json.RawMessage          `json:"flags"`
		GroupTypeMapping map[string]string        `json:"group_type_mapping"`
		Cohorts          map[string]PropertyGroup `json:"cohorts"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		sdkErr := types.NewErrorWithCause(types.ErrMalformedResponse, "failed to parse flag definitions", err)
		p.reportError(sdkErr)
		return sdkErr
	}
	if probe.Flags == nil {
		sdkErr := types.NewError(types.ErrMalformedResponse, "flag definitions response has no flags field")
		p.reportError(sdkErr)
		return sdkErr
	}
	var flagList []FlagDefinition
	if err := json.Unmarshal(probe.Flags, &flagList); err != nil {
		sdkErr := types.NewErrorWithCause(types.ErrMalformedResponse, "failed to parse flag definitions", err)
		p.reportError(sdkErr)
		return sdkErr
	}

	snap := &Snapshot{
		Flags:            flagList,
		FlagsByKey:       make(map[string]FlagDefinition, len(flagList)),
		GroupTypeMapping: probe.GroupTypeMapping,
		Cohorts:          probe.Cohorts,
	}
	if snap.GroupTypeMapping == nil {
		snap.GroupTypeMapping = map[string]string{}
	}
	if snap.Cohorts == nil {
		snap.Cohorts = map[string]PropertyGroup{}
	}
	for _, flag := range flagList {
		snap.FlagsByKey[flag.Key] = flag
	}

	p.mu.Lock()
	p.snap = snap
	p.loadedOnce = true
	p.interval = p.baseInterval
	p.mu.Unlock()

	p.log().Debug("Flag definitions refreshed", "count", len(flagList))
	if p.cfg.OnFlagsLoaded != nil {
		p.cfg.OnFlagsLoaded(len(flagList))
	}
	return nil
}

// clear drops every cached definition so stale evaluations stop being
// served. Quota exhaustion is the only path here.
func (p *Poller) clear() {
	p.mu.Lock()
	p.snap = emptySnapshot()
	p.mu.Unlock()
}

// escalateBackoff doubles the refresh interval up to MaxPollingBackoff.
func (p *Poller) escalateBackoff() {
	p.mu.Lock()
	next := p.interval * 2
	if next > MaxPollingBackoff {
		next = MaxPollingBackoff
	}
	p.interval = next
	p.mu.Unlock()

	p.log().Debug("Flag polling backoff", "interval", next)
}

// CurrentInterval returns the effective refresh interval, including backoff.
func (p *Poller) CurrentInterval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}

func (p *Poller) reportError(err error) {
	p.log().Warn(err.Error())
	if p.cfg.OnError != nil {
		p.cfg.OnError(err)
	}
}

func (p *Poller) log() types.Logger {
	if p.cfg.Logger != nil {
		return p.cfg.Logger
	}
	return &types.NullLogger{}
}

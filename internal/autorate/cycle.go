package autorate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/galpt/wanctl/internal/config"
	"github.com/galpt/wanctl/internal/metrics"
	"github.com/galpt/wanctl/internal/ratelimit"
	"github.com/galpt/wanctl/internal/retry"
	"github.com/galpt/wanctl/internal/router"
	"github.com/galpt/wanctl/internal/rtt"
	"github.com/galpt/wanctl/internal/stateio"
	"github.com/galpt/wanctl/internal/wlog"
)

// Controller runs the per-WAN autorate cycle (§4.1). Fields mirroring
// injectable function hooks follow the teacher's testability idiom
// (ProbeFunc-style fields callers can swap for deterministic fakes).
type Controller struct {
	cfg     *config.AutorateConfig
	backend router.Backend
	store   *metrics.Store
	limiter *ratelimit.Limiter
	retryP  retry.Policy

	// MeasureFunc defaults to rtt.MeasureAll; tests substitute a fake.
	MeasureFunc func(ctx context.Context, hosts []string, count int, timeout time.Duration, maxConcurrent int) []rtt.HostResult

	// DryRun, when set, runs measurement and classification as normal but
	// never pushes queue limits to the router and never advances
	// LastApplied, so repeated runs keep re-logging the rates they would
	// have applied.
	DryRun bool

	// adaptiveConcurrency throttles the ping worker pool against CPU load
	// (ping.adaptive_concurrency_enabled); nil when the feature is off.
	adaptiveConcurrency *rtt.AdaptiveConcurrency

	state     State
	startedAt time.Time
}

// NewController builds a Controller with its router backend and metrics
// store already opened; state is loaded by LoadState before the first
// cycle.
func NewController(cfg *config.AutorateConfig, backend router.Backend, store *metrics.Store) *Controller {
	c := &Controller{
		cfg:         cfg,
		backend:     backend,
		store:       store,
		limiter:     ratelimit.New(cfg.RateLimitMaxWrites, time.Duration(cfg.RateLimitWindowSec)*time.Second),
		retryP:      retry.Default(),
		MeasureFunc: rtt.MeasureAll,
		state:       DefaultState(cfg.Download.MaxCapacityBps, cfg.Upload.MaxCapacityBps),
		startedAt:   time.Now(),
	}
	c.retryP.IsRetryable = router.IsRetryable
	if cfg.Ping.AdaptiveConcurrencyEnabled {
		c.adaptiveConcurrency = rtt.NewAdaptiveConcurrency(cfg.Ping.MaxConcurrentProbes, 2*time.Second)
	}
	return c
}

// LoadState loads persisted state from disk, falling back to defaults on
// missing/corrupt files per §4.8.
func (c *Controller) LoadState() {
	logger := wlog.For("autorate")
	decode := func(data []byte) error {
		s, err := Decode(data)
		if err != nil {
			return err
		}
		c.state = s
		return nil
	}
	recovered, err := stateio.Load(c.cfg.StateFile, decode)
	if err != nil {
		logger.Warn().Err(err).Msg("using default state")
		return
	}
	if recovered {
		logger.Info().Msg("recovered state from backup")
	}
}

// SaveState persists state atomically (§4.7, §4.8).
func (c *Controller) SaveState() error {
	c.state.Timestamp = time.Now().UTC()
	data, err := c.state.Encode()
	if err != nil {
		return fmt.Errorf("autorate: encode state: %w", err)
	}
	return stateio.Save(c.cfg.StateFile, data)
}

// State returns a copy of the current state, for the health handler.
func (c *Controller) State() State {
	return c.state
}

// RunCycle executes one iteration of the §4.1 algorithm. Returns ok=false
// only on a router-push failure; a state-save failure is returned as err
// with ok=true. Measurement failure is handled entirely by the fallback
// policy and never fails the cycle.
func (c *Controller) RunCycle(ctx context.Context) (ok bool, err error) {
	cycleID := uuid.NewString()
	logger := wlog.For("autorate").With().Str("cycle_id", cycleID).Logger()

	// Step 1: measure RTT, applying the fallback policy on total failure.
	rttMs, measured := c.measure(ctx)
	if !measured {
		switch c.cfg.Fallback.Mode {
		case config.FallbackFreeze:
			// Freeze: return success without updating EWMAs or state, using
			// last known values — no counter touch, no SaveState, so the
			// state file stays byte-for-byte unchanged while frozen.
			logger.Debug().Msg("measurement failed, freeze mode: holding last known state")
			return true, nil
		case config.FallbackUseLastRTT:
			c.state.ConsecutiveMeasureFailures++
			rttMs = c.state.LastRTTMs
			if rttMs == 0 {
				return true, c.finishCycle(true, cycleID)
			}
		case config.FallbackGracefulDegradation:
			c.state.ConsecutiveMeasureFailures++
			if c.state.ConsecutiveMeasureFailures >= c.cfg.Fallback.MaxConsecutiveFailures {
				// Force RED but hold previous rate caps — no router push,
				// no change to last_applied (spec §4.1 step 1).
				c.state.Download.CurrentState = Red
				c.state.Upload.CurrentState = UploadRed
				return true, c.finishCycle(false, cycleID)
			}
			return true, c.finishCycle(true, cycleID)
		}
	} else {
		c.state.ConsecutiveMeasureFailures = 0
	}
	c.state.LastRTTMs = rttMs

	// Step 2: baseline EWMA (idle-only), strict '<' on the raw-RTT delta.
	baselineDelta := rttMs - c.state.EWMA.BaselineRTTMs
	if baselineDelta < c.cfg.EWMA.BaselineUpdateThresholdMs {
		c.state.EWMA.BaselineRTTMs = (1-c.cfg.EWMA.AlphaBaseline)*c.state.EWMA.BaselineRTTMs + c.cfg.EWMA.AlphaBaseline*rttMs
		logger.Debug().Float64("baseline_rtt_ms", c.state.EWMA.BaselineRTTMs).Msg("baseline updated")
	}

	// Step 3: load EWMA (always).
	c.state.EWMA.LoadRTTMs = (1-c.cfg.EWMA.AlphaLoad)*c.state.EWMA.LoadRTTMs + c.cfg.EWMA.AlphaLoad*rttMs

	// Step 4: clamp both EWMAs into [10,60] ms.
	c.state.EWMA.BaselineRTTMs = clampRTT(c.state.EWMA.BaselineRTTMs)
	c.state.EWMA.LoadRTTMs = clampRTT(c.state.EWMA.LoadRTTMs)

	// Steps 5-6: classify both directions from the same congestion delta.
	delta := c.state.EWMA.LoadRTTMs - c.state.EWMA.BaselineRTTMs
	c.state.Download = classifyDownload(c.state.Download, delta, c.cfg.Thresholds)
	c.state.Upload = classifyUpload(c.state.Upload, delta, c.cfg.Thresholds)

	// Step 7: compute new rates from the just-classified states.
	newDL := downloadFloor(c.cfg.Download, c.state.Download.CurrentState)
	newUL := uploadFloor(c.cfg.Upload, c.state.Upload.CurrentState)
	c.state.Download.CurrentRateBps = newDL
	c.state.Upload.CurrentRateBps = newUL

	// Step 8: flash-wear skip.
	if newDL == c.state.LastApplied.DownloadRateBps && newUL == c.state.LastApplied.UploadRateBps {
		return true, c.finishCycle(true, cycleID)
	}

	// Step 9: rate-limit check.
	if !c.limiter.Allow() {
		logger.Warn().Msg("router write throttled by rate limiter")
		return true, c.finishCycle(true, cycleID)
	}

	if c.DryRun {
		logger.Info().Int64("download_bps", newDL).Int64("upload_bps", newUL).Msg("dry-run: would push rates to router")
		return true, c.finishCycle(true, cycleID)
	}

	// Step 10: push to router, retried with backoff; failure leaves
	// last_applied untouched and is surfaced via the failure counter.
	pushErr := retry.Do(ctx, c.retryP, func(ctx context.Context) error {
		if err := c.backend.SetQueueLimit(ctx, c.cfg.Queues.Download, newDL); err != nil {
			return err
		}
		return c.backend.SetQueueLimit(ctx, c.cfg.Queues.Upload, newUL)
	})
	if pushErr != nil {
		c.state.ConsecutiveRouterFailures++
		logger.Warn().Err(pushErr).Msg("router push failed")
		return false, c.finishCycle(false, cycleID)
	}
	c.state.ConsecutiveRouterFailures = 0
	c.state.LastApplied = LastApplied{DownloadRateBps: newDL, UploadRateBps: newUL}

	return true, c.finishCycle(false, cycleID)
}

// finishCycle persists state (step 11) and records metrics (step 12),
// always at most once per cycle. cycleID correlates these lines with the
// RunCycle invocation that produced them (§7).
func (c *Controller) finishCycle(skipMetrics bool, cycleID string) error {
	logger := wlog.For("autorate").With().Str("cycle_id", cycleID).Logger()
	if err := c.SaveState(); err != nil {
		logger.Warn().Err(err).Msg("state save failed")
		return err
	}
	if skipMetrics || c.store == nil || !c.cfg.Metrics.Enabled {
		return nil
	}
	now := time.Now().Unix()
	samples := []metrics.Sample{
		{TimestampSeconds: now, WANName: c.cfg.WANName, MetricName: "wanctl_rtt_ms", Value: c.state.LastRTTMs},
		{TimestampSeconds: now, WANName: c.cfg.WANName, MetricName: "wanctl_rtt_baseline_ms", Value: c.state.EWMA.BaselineRTTMs},
		{TimestampSeconds: now, WANName: c.cfg.WANName, MetricName: "wanctl_rtt_delta_ms", Value: c.state.EWMA.LoadRTTMs - c.state.EWMA.BaselineRTTMs},
		{TimestampSeconds: now, WANName: c.cfg.WANName, MetricName: "wanctl_rate_download_mbps", Value: float64(c.state.Download.CurrentRateBps) / 1_000_000},
		{TimestampSeconds: now, WANName: c.cfg.WANName, MetricName: "wanctl_rate_upload_mbps", Value: float64(c.state.Upload.CurrentRateBps) / 1_000_000},
		{TimestampSeconds: now, WANName: c.cfg.WANName, MetricName: "wanctl_state", Value: float64(stateCode(c.state.Download.CurrentState))},
	}
	if err := c.store.WriteMetricsBatch(samples); err != nil {
		logger.Warn().Err(err).Msg("metrics write failed")
	}
	return nil
}

func stateCode(s DownloadState) int {
	switch s {
	case Green:
		return 1
	case Yellow:
		return 2
	case SoftRed:
		return 3
	case Red:
		return 4
	}
	return 0
}

func (c *Controller) measure(ctx context.Context) (float64, bool) {
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Ping.TimeoutSeconds)*time.Second+time.Second)
	defer cancel()
	maxConcurrent := c.cfg.Ping.MaxConcurrentProbes
	if c.adaptiveConcurrency != nil {
		maxConcurrent = c.adaptiveConcurrency.Current()
	}
	results := c.MeasureFunc(pingCtx, c.cfg.Ping.Hosts, c.cfg.Ping.Count,
		time.Duration(c.cfg.Ping.TimeoutSeconds)*time.Second, maxConcurrent)
	successful := rtt.Successful(results)
	return rtt.Aggregate(len(c.cfg.Ping.Hosts), successful)
}

// RunDaemon drives RunCycle on cfg.Interval() until shutdown fires.
func (c *Controller) RunDaemon(ctx context.Context, shutdown *stateio.ShutdownEvent) int {
	logger := wlog.For("autorate")
	if c.adaptiveConcurrency != nil {
		go c.adaptiveConcurrency.Run(ctx)
	}
	ticker := time.NewTicker(c.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-shutdown.Done():
			logger.Info().Msg("shutdown requested, exiting")
			_ = c.SaveState()
			return 0
		case <-ticker.C:
			if _, err := c.RunCycle(ctx); err != nil {
				logger.Warn().Err(err).Msg("cycle failed")
			}
		}
	}
}

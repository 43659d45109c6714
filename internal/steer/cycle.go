package steer

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/galpt/wanctl/internal/config"
	"github.com/galpt/wanctl/internal/metrics"
	"github.com/galpt/wanctl/internal/retry"
	"github.com/galpt/wanctl/internal/router"
	"github.com/galpt/wanctl/internal/rtt"
	"github.com/galpt/wanctl/internal/stateio"
	"github.com/galpt/wanctl/internal/wlog"
)

// cakeFailDegradedAt is the consecutive-CAKE-read-failure count at which
// steering logs ERROR "degraded" for the stats reader (§4.2 step 3).
const cakeFailDegradedAt = 3

// QueueStatsFunc reads optional CAKE queue statistics for the shaping
// interface; nil when cake_aware_enabled is false.
type QueueStatsFunc func(ctx context.Context) (*router.QueueStats, error)

// Controller runs the steering daemon cycle (§4.2).
type Controller struct {
	cfg       *config.SteerConfig
	backend   router.Backend
	store     *metrics.Store
	retryP    retry.Policy
	hysteresis hysteresis

	MeasureFunc     func(ctx context.Context, hosts []string, count int, timeout time.Duration, maxConcurrent int) []rtt.HostResult
	QueueStats      QueueStatsFunc
	PingHosts       []string
	PingCount       int
	PingTimeout     time.Duration
	PingConcurrency int
	EWMAAlpha       float64

	// DryRun, when set, runs the full assessment and hysteresis evaluation
	// but never toggles the router's mangle rule. It is separate from the
	// confidence classifier, which never toggles the router in any mode
	// (Confidence.DryRun is not read).
	DryRun bool

	state     PersistedState
	startedAt time.Time

	// primary is this cycle's read of autorate's state file (§4.2 step 1);
	// primaryOK reports whether that read succeeded (primary is zero when
	// it did not).
	// Read-only context for operators — steering's own hysteresis
	// classifier never branches on it (§4.2 step 6 is self-contained).
	primary   primaryState
	primaryOK bool
}

// NewController builds a Controller; EWMAAlpha defaults to a steering-
// local smoothing constant distinct from autorate's since steering runs
// its own independent RTT measurement (§4.2 step 4: "fresh per-daemon
// smoothing").
func NewController(cfg *config.SteerConfig, backend router.Backend, store *metrics.Store, pingHosts []string, pingCount int, pingTimeout time.Duration, pingConcurrency int) *Controller {
	c := &Controller{
		cfg:             cfg,
		backend:         backend,
		store:           store,
		retryP:          retry.Default(),
		MeasureFunc:     rtt.MeasureAll,
		PingHosts:       pingHosts,
		PingCount:       pingCount,
		PingTimeout:     pingTimeout,
		PingConcurrency: pingConcurrency,
		EWMAAlpha:       0.05,
		state:           DefaultState(cfg.HistorySize),
		startedAt:       time.Now(),
	}
	c.retryP.IsRetryable = router.IsRetryable
	return c
}

// LoadState loads persisted steering state, falling back to defaults on
// missing/corrupt files (§4.8).
func (c *Controller) LoadState() {
	logger := wlog.For("steer")
	decode := func(data []byte) error {
		s, err := DecodeState(data)
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

// SaveState persists steering state atomically.
func (c *Controller) SaveState() error {
	c.state.Timestamp = time.Now().UTC()
	data, err := c.state.Encode()
	if err != nil {
		return err
	}
	return stateio.Save(c.cfg.StateFile, data)
}

// State returns a copy of the current state, for the health handler.
func (c *Controller) State() PersistedState {
	return c.state
}

// readPrimaryState loads autorate's state file non-exclusively, tolerant
// of a missing, stale, or partially-written file (§4.2 step 1, §5:
// "tolerates tearing").
func readPrimaryState(path string) (primaryState, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return primaryState{}, false
	}
	var p primaryState
	if err := json.Unmarshal(data, &p); err != nil {
		return primaryState{}, false
	}
	return p, true
}

// RunCycle executes one steering assessment (§4.2).
func (c *Controller) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := wlog.For("steer").With().Str("cycle_id", cycleID).Logger()

	// Step 1: read primary autorate state (best-effort, informational —
	// "understand what autorate is doing", surfaced on the health payload
	// and logged, but the hysteresis classifier below never branches on it).
	c.primary, c.primaryOK = readPrimaryState(c.cfg.CakeStateSources.Primary)
	if c.primaryOK {
		logger.Debug().
			Str("primary_download_state", c.primary.Download.CurrentState).
			Float64("primary_baseline_rtt_ms", c.primary.EWMA.BaselineRTTMs).
			Float64("primary_load_rtt_ms", c.primary.EWMA.LoadRTTMs).
			Msg("read primary autorate state")
	}

	// Step 2: measure own RTT.
	pingCtx, cancel := context.WithTimeout(ctx, c.PingTimeout+time.Second)
	results := c.MeasureFunc(pingCtx, c.PingHosts, c.PingCount, c.PingTimeout, c.PingConcurrency)
	cancel()
	rttMs, measured := rtt.Aggregate(len(c.PingHosts), rtt.Successful(results))

	var drops, queueDepth float64
	// Step 3: optional CAKE queue stats, tolerant of failure.
	if c.cfg.CakeAwareEnabled && c.QueueStats != nil {
		statsCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		stats, err := c.QueueStats(statsCtx)
		cancel()
		if err != nil {
			c.state.ConsecutiveCakeFail++
			if c.state.ConsecutiveCakeFail == 1 {
				logger.Warn().Err(err).Msg("cake stats read failed")
			} else if c.state.ConsecutiveCakeFail >= cakeFailDegradedAt {
				logger.Error().Err(err).Int("consecutive_failures", c.state.ConsecutiveCakeFail).Msg("cake stats reader degraded")
			}
		} else {
			c.state.ConsecutiveCakeFail = 0
			drops = float64(stats.Drops)
			queueDepth = float64(stats.QueuedPackets)
		}
	}

	if !measured {
		// No independent measurement this cycle; hold state, still persist.
		return c.finish(cycleID)
	}

	// Step 4: update steering's own EWMAs.
	c.state.LoadRTTMs = (1-c.EWMAAlpha)*c.state.LoadRTTMs + c.EWMAAlpha*rttMs
	baselineDelta := rttMs - c.state.BaselineRTTMs
	if baselineDelta < c.cfg.Assessment.RTTThresholdMs {
		c.state.BaselineRTTMs = (1-c.EWMAAlpha/10)*c.state.BaselineRTTMs + (c.EWMAAlpha/10)*rttMs
	}
	c.state.BaselineRTTMs = clampBaseline(c.state.BaselineRTTMs)
	c.state.LoadRTTMs = clampBaseline(c.state.LoadRTTMs)
	delta := c.state.LoadRTTMs - c.state.BaselineRTTMs

	c.state.HistoryRTT.push(rttMs)
	c.state.HistoryDelta.push(delta)
	c.state.CakeDropsHistory.push(drops)
	c.state.QueueDepthHistory.push(queueDepth)

	// Step 5: evaluate degradation.
	a := evaluateDegradation(c.cfg.Assessment, c.cfg.CakeAwareEnabled, delta, drops, queueDepth)
	c.appendCongestionHistory(a.state)

	// Step 6: hysteresis + transition.
	currentlySteering := c.state.SteeringEnabled
	switch c.hysteresis.step(a, c.cfg.RedSamplesRequired, c.cfg.GreenSamplesRequired, currentlySteering) {
	case activateSteering:
		c.executeTransition(ctx, true, cycleID)
	case recoverSteering:
		c.executeTransition(ctx, false, cycleID)
	}
	c.state.RedCount = c.hysteresis.RedCount
	c.state.GoodCount = c.hysteresis.GoodCount

	// Step 7: optional confidence classifier, shadow-only.
	if c.cfg.Confidence.Enabled {
		c.runConfidenceClassifier(delta, drops, queueDepth)
	}

	return c.finish(cycleID)
}

// executeTransition performs the router mangle toggle; only on success
// does CurrentState/SteeringEnabled/LastTransitionTs change, and the
// counter that fired is reset so the next recovery/activation starts
// clean — but a failed call must NOT reset the counters that fired
// (§9 anti-pattern: "Do not reset counters that drove a router call on
// that call's failure").
func (c *Controller) executeTransition(ctx context.Context, enable bool, cycleID string) {
	l := wlog.For("steer").With().Str("cycle_id", cycleID).Logger()
	if c.DryRun {
		l.Info().Bool("enable", enable).Msg("dry-run: would execute steering transition")
		return
	}
	var err error
	if enable {
		err = retry.Do(ctx, c.retryP, c.backend.EnableSteering)
	} else {
		err = retry.Do(ctx, c.retryP, c.backend.DisableSteering)
	}
	if err != nil {
		c.state.ConsecutiveRouterFail++
		l.Warn().Err(err).Bool("enable", enable).Msg("steering router action failed")
		return
	}
	c.state.ConsecutiveRouterFail = 0
	c.state.SteeringEnabled = enable
	if enable {
		c.state.CurrentState = Red
		c.hysteresis.RedCount = 0
	} else {
		c.state.CurrentState = Green
		c.hysteresis.GoodCount = 0
	}
	c.state.LastTransitionTs = time.Now().UTC()
	c.state.LastRouterActionTs = c.state.LastTransitionTs
	l.Info().Bool("enable", enable).Msg("steering transition executed")
}

func (c *Controller) appendCongestionHistory(s State) {
	c.state.CongestionHistory = append(c.state.CongestionHistory, s.String())
	if max := c.cfg.HistorySize; max > 0 && len(c.state.CongestionHistory) > 10 {
		c.state.CongestionHistory = c.state.CongestionHistory[len(c.state.CongestionHistory)-10:]
	}
}

// runConfidenceClassifier computes a shadow confidence score from the
// same signals the hysteresis classifier sees. Its decision is logged at
// debug level and recorded in state for the health payload, but never
// drives the router, whatever Confidence.DryRun holds (§4.2 step 7, §9).
func (c *Controller) runConfidenceClassifier(deltaMs, drops, queueDepth float64) {
	score := confidenceScore(deltaMs, drops, queueDepth, c.cfg.Assessment)
	decision := score >= 0.5
	wlog.For("steer").Debug().Float64("confidence_score", score).Bool("decision", decision).Msg("confidence classifier (shadow only)")
	c.state.Confidence.Score = score
	c.state.Confidence.DryRunDecision = decision
	if decision {
		c.state.Confidence.DryRunActivations++
	}
}

// confidenceScore blends normalized RTT-delta and queue-depth signals
// into a single [0,1] score; weights favor RTT since it is always
// available, queue stats only in CAKE-aware mode.
func confidenceScore(deltaMs, drops, queueDepth float64, cfg config.AssessmentConfig) float64 {
	rttComponent := clamp01(deltaMs / (cfg.RTTThresholdMs * 2))
	if cfg.CakeDropsThreshold <= 0 && cfg.CakeQueueDepthThreshold <= 0 {
		return rttComponent
	}
	queueComponent := clamp01(queueDepth / (cfg.CakeQueueDepthThreshold*2 + 1))
	dropComponent := clamp01(drops / (cfg.CakeDropsThreshold*2 + 1))
	return 0.6*rttComponent + 0.2*queueComponent + 0.2*dropComponent
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (c *Controller) finish(cycleID string) error {
	logger := wlog.For("steer").With().Str("cycle_id", cycleID).Logger()
	if err := c.SaveState(); err != nil {
		logger.Warn().Err(err).Msg("state save failed")
		return err
	}
	if c.store == nil || !c.cfg.Metrics.Enabled {
		return nil
	}
	now := time.Now().Unix()
	sample := metrics.Sample{
		TimestampSeconds: now,
		MetricName:       "wanctl_steering_enabled",
		Value:            boolToFloat(c.state.SteeringEnabled),
	}
	if err := c.store.WriteMetric(sample); err != nil {
		logger.Warn().Err(err).Msg("metrics write failed")
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// RunDaemon drives RunCycle on cfg.Interval() until shutdown fires.
func (c *Controller) RunDaemon(ctx context.Context, shutdown *stateio.ShutdownEvent) int {
	logger := wlog.For("steer")
	ticker := time.NewTicker(c.cfg.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-shutdown.Done():
			logger.Info().Msg("shutdown requested, exiting")
			_ = c.SaveState()
			return 0
		case <-ticker.C:
			if err := c.RunCycle(ctx); err != nil {
				logger.Warn().Err(err).Msg("cycle failed")
			}
		}
	}
}

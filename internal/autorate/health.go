package autorate

import (
	"time"

	"github.com/galpt/wanctl/internal/version"
)

// degradedThreshold is the consecutive-cycle-failure count at which the
// health endpoint flips from 200 to 503 (§4.5: "Degraded means:
// consecutive run-cycle failures >= 3").
const degradedThreshold = 3

// Healthy implements health.StatusProvider.
func (c *Controller) Healthy() bool {
	return c.state.ConsecutiveRouterFailures < degradedThreshold
}

// Payload implements health.StatusProvider.
func (c *Controller) Payload() map[string]any {
	status := "healthy"
	if !c.Healthy() {
		status = "degraded"
	}
	return map[string]any{
		"status":          status,
		"version":         version.Version,
		"uptime_seconds":  time.Since(c.startedAt).Seconds(),
		"wan":             c.cfg.WANName,
		"download": map[string]any{
			"state":         c.state.Download.CurrentState.String(),
			"current_rate_bps": c.state.Download.CurrentRateBps,
		},
		"upload": map[string]any{
			"state":         c.state.Upload.CurrentState.String(),
			"current_rate_bps": c.state.Upload.CurrentRateBps,
		},
		"rtt": map[string]any{
			"current_ms":  c.state.LastRTTMs,
			"baseline_ms": c.state.EWMA.BaselineRTTMs,
			"load_ms":     c.state.EWMA.LoadRTTMs,
		},
		"counters": map[string]any{
			"consecutive_measure_failures": c.state.ConsecutiveMeasureFailures,
			"consecutive_router_failures":  c.state.ConsecutiveRouterFailures,
			"rate_limit_throttled":         c.limiter.Throttled(),
		},
	}
}

package steer

import (
	"time"

	"github.com/galpt/wanctl/internal/version"
)

// routerFailDegradedAt is the consecutive-router-failure count at which
// the health endpoint flips from 200 to 503.
const routerFailDegradedAt = 3

// Healthy implements health.StatusProvider.
func (c *Controller) Healthy() bool {
	return c.state.ConsecutiveRouterFail < routerFailDegradedAt
}

// Payload implements health.StatusProvider, matching §4.5's steering
// payload shape.
func (c *Controller) Payload() map[string]any {
	status := "healthy"
	if !c.Healthy() {
		status = "degraded"
	}

	timeInState := time.Since(c.state.LastTransitionTs).Seconds()
	if c.state.LastTransitionTs.IsZero() {
		timeInState = time.Since(c.startedAt).Seconds()
	}

	payload := map[string]any{
		"status":         status,
		"version":        version.Version,
		"uptime_seconds": time.Since(c.startedAt).Seconds(),
		"steering": map[string]any{
			"enabled": c.state.SteeringEnabled,
		},
		"congestion": map[string]any{
			"primary": map[string]any{
				"state":      c.state.CurrentState.String(),
				"state_code": c.state.CurrentState.StateCode(),
			},
		},
		"decision": map[string]any{
			"last_transition_time_iso": c.state.LastTransitionTs.UTC().Format(time.RFC3339),
			"time_in_state_seconds":    timeInState,
		},
		"counters": map[string]any{
			"red_count":       c.state.RedCount,
			"good_count":      c.state.GoodCount,
			"router_failures": c.state.ConsecutiveRouterFail,
			"cake_failures":   c.state.ConsecutiveCakeFail,
		},
		"thresholds": map[string]any{
			"red_samples_required":   c.cfg.RedSamplesRequired,
			"green_samples_required": c.cfg.GreenSamplesRequired,
			"rtt_threshold_ms":       c.cfg.Assessment.RTTThresholdMs,
		},
	}

	if c.cfg.Confidence.Enabled {
		payload["confidence"] = map[string]any{
			"primary_score":     c.state.Confidence.Score,
			"dry_run_decision":  c.state.Confidence.DryRunDecision,
			"dry_run_activations": c.state.Confidence.DryRunActivations,
		}
	}

	// §4.2 step 1's read of autorate's state file: informational only, so
	// it is reported under its own "autorate" key rather than folded into
	// "congestion.primary" (steering's own assessment, a different thing).
	if c.primaryOK {
		payload["autorate"] = map[string]any{
			"download_state":    c.primary.Download.CurrentState,
			"baseline_rtt_ms":   c.primary.EWMA.BaselineRTTMs,
			"load_rtt_ms":       c.primary.EWMA.LoadRTTMs,
			"download_rate_bps": c.primary.LastApplied.DownloadRateBps,
			"upload_rate_bps":   c.primary.LastApplied.UploadRateBps,
		}
	}

	return payload
}

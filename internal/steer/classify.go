package steer

import "github.com/galpt/wanctl/internal/config"

// assessment is the per-cycle degradation signal computed in step 5.
type assessment struct {
	degraded bool // is_degraded
	recovered bool // is_recovered
	warning  bool // is_warning (CAKE-aware YELLOW)
	state    State
}

// evaluateDegradation implements §4.2 step 5: CAKE-aware mode requires
// both an RTT-delta breach and a queue-drop/depth breach to call it
// degraded; legacy mode (no queue stats available) degrades on RTT delta
// alone.
func evaluateDegradation(cfg config.AssessmentConfig, cakeAware bool, deltaMs, drops, queueDepth float64) assessment {
	rttBad := deltaMs > cfg.RTTThresholdMs
	rttGood := deltaMs <= cfg.RTTThresholdMs

	if !cakeAware {
		return assessment{
			degraded:  rttBad,
			recovered: rttGood,
			state:     stateFor(rttBad, false),
		}
	}

	queueBad := drops > cfg.CakeDropsThreshold || queueDepth > cfg.CakeQueueDepthThreshold
	degraded := rttBad && queueBad
	warning := rttBad && !queueBad
	recovered := rttGood

	return assessment{
		degraded:  degraded,
		recovered: recovered,
		warning:   warning,
		state:     stateFor(degraded, warning),
	}
}

func stateFor(degraded, warning bool) State {
	switch {
	case degraded:
		return Red
	case warning:
		return Yellow
	default:
		return Green
	}
}

// hysteresis is the unified red/good counter state machine of §4.2 step
// 6. Exactly one transition per cycle; on every transition the caller
// must invoke the router action before committing CurrentState (handled
// in cycle.go's executeTransition).
type hysteresis struct {
	RedCount  int
	GoodCount int
}

// transitionResult signals whether this tick wants to go active (steer
// away) or recover (steer back), or do nothing.
type transitionResult int

const (
	noTransition transitionResult = iota
	activateSteering
	recoverSteering
)

// step advances the counters for one assessment and reports whether a
// transition is due. YELLOW resets RedCount without transitioning and
// without touching GoodCount (§4.2 step 6: "on is_warning without
// is_degraded, reset red_count ... resets silently").
func (h *hysteresis) step(a assessment, redRequired, greenRequired int, currentlySteering bool) transitionResult {
	switch {
	case a.degraded:
		h.RedCount++
		h.GoodCount = 0
		if !currentlySteering && h.RedCount >= redRequired {
			return activateSteering
		}
	case a.warning:
		h.RedCount = 0
	case a.recovered:
		h.GoodCount++
		h.RedCount = 0
		if currentlySteering && h.GoodCount >= greenRequired {
			return recoverSteering
		}
	default:
		h.RedCount = 0
		h.GoodCount = 0
	}
	return noTransition
}

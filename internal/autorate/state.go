// Package autorate implements the per-WAN feedback-loop controller of
// §4.1: measure RTT, maintain baseline/load EWMAs, classify congestion
// state with asymmetric hysteresis, recompute rate caps, and push them to
// the router subject to flash-wear and rate-limit protection.
package autorate

import (
	"encoding/json"
	"time"
)

// DownloadState is the four-level download congestion state (§3.2, §4.1 step 5).
type DownloadState int

const (
	Green DownloadState = iota
	Yellow
	SoftRed
	Red
)

func (s DownloadState) String() string {
	switch s {
	case Green:
		return "GREEN"
	case Yellow:
		return "YELLOW"
	case SoftRed:
		return "SOFT_RED"
	case Red:
		return "RED"
	default:
		return "UNKNOWN"
	}
}

// UploadState is the three-level upload congestion state (§4.1 step 6).
type UploadState int

const (
	UploadGreen UploadState = iota
	UploadYellow
	UploadRed
)

func (s UploadState) String() string {
	switch s {
	case UploadGreen:
		return "GREEN"
	case UploadYellow:
		return "YELLOW"
	case UploadRed:
		return "RED"
	default:
		return "UNKNOWN"
	}
}

// DownloadSide holds the download direction's hysteresis counters and
// current decision (§3.2).
type DownloadSide struct {
	GreenStreak   int           `json:"green_streak"`
	SoftRedStreak int           `json:"soft_red_streak"`
	RedStreak     int           `json:"red_streak"`
	CurrentState  DownloadState `json:"current_state"`
	CurrentRateBps int64        `json:"current_rate_bps"`
}

// UploadSide holds the upload direction's hysteresis counters and
// current decision.
type UploadSide struct {
	GreenStreak    int         `json:"green_streak"`
	RedStreak      int         `json:"red_streak"`
	CurrentState   UploadState `json:"current_state"`
	CurrentRateBps int64       `json:"current_rate_bps"`
}

// EWMA holds the baseline and load RTT estimators, both clamped to
// [10,60] ms (§3.2 invariant).
type EWMA struct {
	BaselineRTTMs float64 `json:"baseline_rtt_ms"`
	LoadRTTMs     float64 `json:"load_rtt_ms"`
}

// LastApplied is what was most recently pushed to the router, used for
// the flash-wear skip (§4.1 step 8).
type LastApplied struct {
	DownloadRateBps int64 `json:"dl_rate_bps"`
	UploadRateBps   int64 `json:"ul_rate_bps"`
}

// State is the full persisted autorate state (§3.2).
type State struct {
	Download                    DownloadSide `json:"download"`
	Upload                      UploadSide   `json:"upload"`
	EWMA                        EWMA         `json:"ewma"`
	LastApplied                 LastApplied  `json:"last_applied"`
	ConsecutiveMeasureFailures  int          `json:"consecutive_measure_failures"`
	ConsecutiveRouterFailures   int          `json:"consecutive_router_failures"`
	LastRTTMs                   float64      `json:"last_rtt_ms"`
	Timestamp                   time.Time    `json:"timestamp"`
}

// rttClampMin/Max bound baseline_rtt and load_rtt (§3.2, §8).
const (
	rttClampMin = 10.0
	rttClampMax = 60.0
)

func clampRTT(v float64) float64 {
	if v < rttClampMin {
		return rttClampMin
	}
	if v > rttClampMax {
		return rttClampMax
	}
	return v
}

// DefaultState seeds a fresh controller: both EWMAs at the low end of
// their clamp range, GREEN on both directions, rates at max capacity.
func DefaultState(dlMaxBps, ulMaxBps int64) State {
	return State{
		Download: DownloadSide{CurrentState: Green, CurrentRateBps: dlMaxBps},
		Upload:   UploadSide{CurrentState: UploadGreen, CurrentRateBps: ulMaxBps},
		EWMA:     EWMA{BaselineRTTMs: rttClampMin, LoadRTTMs: rttClampMin},
	}
}

// Encode/Decode round-trip the state as JSON for stateio.Save/Load.

func (s State) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func Decode(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, err
	}
	s.EWMA.BaselineRTTMs = clampRTT(s.EWMA.BaselineRTTMs)
	s.EWMA.LoadRTTMs = clampRTT(s.EWMA.LoadRTTMs)
	return s, nil
}

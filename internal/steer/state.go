// Package steer implements the steering daemon of §4.2: single-authority
// cross-WAN congestion assessment that toggles a firewall mangle rule to
// divert traffic off a persistently impaired primary WAN.
package steer

import (
	"encoding/json"
	"time"
)

// State is steering's own coarse congestion assessment — distinct from
// autorate's four-state download machine (§4.2 step 5).
type State int

const (
	Starting State = iota
	Green
	Yellow
	Red
)

func (s State) String() string {
	switch s {
	case Green:
		return "GREEN"
	case Yellow:
		return "YELLOW"
	case Red:
		return "RED"
	default:
		return "STARTING"
	}
}

// StateCode maps to the health-endpoint's numeric encoding (§4.5).
func (s State) StateCode() int {
	switch s {
	case Green:
		return 0
	case Yellow:
		return 1
	case Red:
		return 2
	default:
		return 3
	}
}

// boundedHistory is a fixed-capacity ring buffer adapted from galpt-cake-
// stats' pkg/history ifaceState push/ordered pattern: push drops the
// oldest entry once at capacity (§3.2, §9).
type boundedHistory struct {
	Values []float64 `json:"values"`
	Cap    int        `json:"cap"`
}

func newBoundedHistory(capacity int) boundedHistory {
	return boundedHistory{Values: make([]float64, 0, capacity), Cap: capacity}
}

func (h *boundedHistory) push(v float64) {
	if h.Cap <= 0 {
		h.Cap = cap(h.Values)
	}
	h.Values = append(h.Values, v)
	if len(h.Values) > h.Cap {
		h.Values = h.Values[len(h.Values)-h.Cap:]
	}
}

// ConfidenceState is the optional shadow-deployment classifier's state
// (§4.2 step 7, §9).
type ConfidenceState struct {
	Score           float64 `json:"score"`
	DryRunDecision  bool    `json:"dry_run_decision"`
	DryRunActivations int   `json:"dry_run_activations"`
}

// PersistedState is the full persisted steering state (§3.2).
type PersistedState struct {
	CurrentState      State     `json:"current_state"`
	BadCount          int       `json:"bad_count"`
	GoodCount         int       `json:"good_count"`
	RedCount          int       `json:"red_count"`
	YellowCount       int       `json:"yellow_count"`
	CongestionHistory []string  `json:"congestion_state_history"`

	HistoryRTT        boundedHistory `json:"history_rtt"`
	HistoryDelta      boundedHistory `json:"history_delta"`
	CakeDropsHistory  boundedHistory `json:"cake_drops_history"`
	QueueDepthHistory boundedHistory `json:"queue_depth_history"`

	BaselineRTTMs         float64   `json:"baseline_rtt_ms"`
	LoadRTTMs             float64   `json:"load_rtt_ms"`
	LastTransitionTs      time.Time `json:"last_transition_ts"`
	LastRouterActionTs    time.Time `json:"last_router_action_ts"`
	ConsecutiveRouterFail int       `json:"consecutive_router_failures"`
	ConsecutiveCakeFail   int       `json:"consecutive_cake_failures"`
	SteeringEnabled       bool      `json:"steering_enabled"`

	Confidence ConfidenceState `json:"confidence"`

	Timestamp time.Time `json:"timestamp"`
}

const (
	baselineClampMin = 10.0
	baselineClampMax = 60.0
)

func clampBaseline(v float64) float64 {
	if v < baselineClampMin {
		return baselineClampMin
	}
	if v > baselineClampMax {
		return baselineClampMax
	}
	return v
}

// DefaultState seeds a fresh steering instance: STARTING state, empty
// bounded histories sized from historySize.
func DefaultState(historySize int) PersistedState {
	return PersistedState{
		CurrentState:      Starting,
		HistoryRTT:        newBoundedHistory(historySize),
		HistoryDelta:      newBoundedHistory(historySize),
		CakeDropsHistory:  newBoundedHistory(historySize),
		QueueDepthHistory: newBoundedHistory(historySize),
		BaselineRTTMs:     baselineClampMin,
		LoadRTTMs:         baselineClampMin,
	}
}

func (s PersistedState) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func DecodeState(data []byte) (PersistedState, error) {
	var s PersistedState
	if err := json.Unmarshal(data, &s); err != nil {
		return PersistedState{}, err
	}
	s.BaselineRTTMs = clampBaseline(s.BaselineRTTMs)
	s.LoadRTTMs = clampBaseline(s.LoadRTTMs)
	return s, nil
}

// primaryState is the subset of autorate's persisted state steering
// reads from cake_state_sources.primary (§4.2 step 1). Tolerant of
// missing/extra fields — absent fields decode as zero values and no
// field is checked for presence.
type primaryState struct {
	Download struct {
		CurrentState string `json:"current_state"`
	} `json:"download"`
	EWMA struct {
		BaselineRTTMs float64 `json:"baseline_rtt_ms"`
		LoadRTTMs     float64 `json:"load_rtt_ms"`
	} `json:"ewma"`
	LastApplied struct {
		DownloadRateBps int64 `json:"dl_rate_bps"`
		UploadRateBps   int64 `json:"ul_rate_bps"`
	} `json:"last_applied"`
}

package autorate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultState_StartsGreenAtMaxCapacity(t *testing.T) {
	s := DefaultState(900_000_000, 300_000_000)
	assert.Equal(t, Green, s.Download.CurrentState)
	assert.Equal(t, UploadGreen, s.Upload.CurrentState)
	assert.Equal(t, int64(900_000_000), s.Download.CurrentRateBps)
	assert.Equal(t, int64(300_000_000), s.Upload.CurrentRateBps)
	assert.Equal(t, rttClampMin, s.EWMA.BaselineRTTMs)
	assert.Equal(t, rttClampMin, s.EWMA.LoadRTTMs)
}

func TestClampRTT(t *testing.T) {
	assert.Equal(t, rttClampMin, clampRTT(1))
	assert.Equal(t, rttClampMax, clampRTT(1000))
	assert.Equal(t, 25.0, clampRTT(25))
}

func TestEncodeDecode_RoundTrips(t *testing.T) {
	s := DefaultState(900_000_000, 300_000_000)
	s.LastRTTMs = 42.5
	s.Download.CurrentState = Yellow
	s.ConsecutiveRouterFailures = 2

	data, err := s.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, s.LastRTTMs, decoded.LastRTTMs)
	assert.Equal(t, s.Download.CurrentState, decoded.Download.CurrentState)
	assert.Equal(t, s.ConsecutiveRouterFailures, decoded.ConsecutiveRouterFailures)
}

func TestDecode_ClampsOutOfRangeEWMA(t *testing.T) {
	// A state file written before a clamp-range change, or hand-edited,
	// should still load with both EWMAs re-clamped into [10,60].
	data := []byte(`{"ewma":{"baseline_rtt_ms":500,"load_rtt_ms":0}}`)
	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, rttClampMax, decoded.EWMA.BaselineRTTMs)
	assert.Equal(t, rttClampMin, decoded.EWMA.LoadRTTMs)
}

func TestDecode_RejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.Error(t, err)
}

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetRangeFlags() {
	rangeStr, fromStr, toStr = "1h", "", ""
}

func TestResolveRange_DefaultsToRangeDuration(t *testing.T) {
	defer resetRangeFlags()
	rangeStr, fromStr, toStr = "2h", "", ""
	start, end, err := resolveRange()
	require.NoError(t, err)
	assert.InDelta(t, 2*time.Hour, end.Sub(start), float64(time.Second))
}

func TestResolveRange_FromOverridesRange(t *testing.T) {
	defer resetRangeFlags()
	rangeStr, fromStr, toStr = "1h", "2020-01-01T00:00:00Z", "2020-01-01T01:00:00Z"
	start, end, err := resolveRange()
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01T00:00:00Z", start.UTC().Format(time.RFC3339))
	assert.Equal(t, "2020-01-01T01:00:00Z", end.UTC().Format(time.RFC3339))
}

func TestResolveRange_InvalidRangeReturnsError(t *testing.T) {
	defer resetRangeFlags()
	rangeStr, fromStr, toStr = "not-a-duration", "", ""
	_, _, err := resolveRange()
	assert.Error(t, err)
}

func TestResolveRange_InvalidFromReturnsError(t *testing.T) {
	defer resetRangeFlags()
	rangeStr, fromStr, toStr = "1h", "not-a-time", ""
	_, _, err := resolveRange()
	assert.Error(t, err)
}

package autorate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galpt/wanctl/internal/config"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	cfg := config.DefaultAutorateConfig()
	return NewController(cfg, nil, nil)
}

func TestHealthy_TrueBelowDegradedThreshold(t *testing.T) {
	c := newTestController(t)
	c.state.ConsecutiveRouterFailures = degradedThreshold - 1
	assert.True(t, c.Healthy())
}

func TestHealthy_FalseAtDegradedThreshold(t *testing.T) {
	c := newTestController(t)
	c.state.ConsecutiveRouterFailures = degradedThreshold
	assert.False(t, c.Healthy())
}

func TestPayload_ReflectsDegradedStatus(t *testing.T) {
	c := newTestController(t)
	c.state.ConsecutiveRouterFailures = degradedThreshold

	payload := c.Payload()
	assert.Equal(t, "degraded", payload["status"])
	assert.Equal(t, c.cfg.WANName, payload["wan"])

	download, ok := payload["download"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, c.state.Download.CurrentRateBps, download["current_rate_bps"])
}

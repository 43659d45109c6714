package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDCache_SetThenGetRoundTrips(t *testing.T) {
	c := newIDCache()
	_, ok := c.get("queue-download")
	assert.False(t, ok)

	c.set("queue-download", "*1")
	v, ok := c.get("queue-download")
	assert.True(t, ok)
	assert.Equal(t, "*1", v)
}

func TestIDCache_ResetClearsEntries(t *testing.T) {
	c := newIDCache()
	c.set("k", "v")
	c.reset()
	_, ok := c.get("k")
	assert.False(t, ok)
}

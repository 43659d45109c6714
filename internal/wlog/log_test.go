package wlog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DebugFalseSuppressesDebugLines(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, false)
	For("autorate").Debug().Msg("should not appear")
	assert.Empty(t, buf.String())
}

func TestInit_DebugTrueEmitsDebugLines(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, true)
	For("autorate").Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestFor_TagsSubsystemField(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, false)
	For("steer").Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "steer", line["subsystem"])
}

func TestQuiet_DropsInfoLevelLines(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, false)
	Quiet("health").Info().Msg("liveness poll")
	assert.Empty(t, buf.String())
}

func TestQuiet_StillEmitsErrorLevelLines(t *testing.T) {
	var buf bytes.Buffer
	Init(&buf, false)
	Quiet("health").Error().Msg("bind failed")
	assert.Contains(t, buf.String(), "bind failed")
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

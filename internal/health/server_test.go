package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	healthy bool
	payload map[string]any
}

func (f *fakeProvider) Healthy() bool            { return f.healthy }
func (f *fakeProvider) Payload() map[string]any { return f.payload }

func freePort(t *testing.T) int {
	t.Helper()
	return 19000 + (int(time.Now().UnixNano()) % 1000)
}

func TestServer_HealthyReturns200(t *testing.T) {
	port := freePort(t)
	s := Start("127.0.0.1", port, &fakeProvider{healthy: true, payload: map[string]any{"status": "green"}}, nil)
	defer s.Shutdown()
	require.NotNil(t, s)

	waitForServer(t, port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "green", body["status"])
}

func TestServer_UnhealthyReturns503(t *testing.T) {
	port := freePort(t) + 1
	s := Start("127.0.0.1", port, &fakeProvider{healthy: false, payload: map[string]any{}}, nil)
	defer s.Shutdown()
	waitForServer(t, port)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ShutdownIsANoOpWhenBindFailed(t *testing.T) {
	s := &Server{}
	assert.NotPanics(t, func() { s.Shutdown() })
}

func waitForServer(t *testing.T, port int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port)); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("health server never came up on port %d", port)
}

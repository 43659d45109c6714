package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galpt/wanctl/internal/metrics"
)

func TestHistoryHandler_NilStoreReturnsEmptyResult(t *testing.T) {
	h := HistoryHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics/history?range=1h", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}

func TestHistoryHandler_QueriesRealStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	store, err := metrics.Open(path)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.WriteMetric(metrics.Sample{
		TimestampSeconds: 1000, WANName: "wan0", MetricName: "wanctl_rtt_ms", Value: 12,
	}))

	h := HistoryHandler(store)
	req := httptest.NewRequest(http.MethodGet, "/metrics/history?from=1970-01-01T00:00:00Z&to=1970-01-01T01:00:00Z", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 12.0, resp.Data[0].Value)
}

func TestHistoryHandler_InvalidRangeReturns400(t *testing.T) {
	h := HistoryHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics/history?range=notaduration", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryHandler_InvalidFromToOrderingReturns400(t *testing.T) {
	h := HistoryHandler(nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics/history?from=1970-01-01T01:00:00Z&to=1970-01-01T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParsePage_DefaultsToMaxLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics/history", nil)
	limit, offset, err := parsePage(req)
	require.NoError(t, err)
	assert.Equal(t, metrics.MaxLimit, limit)
	assert.Equal(t, 0, offset)
}

func TestParsePage_RejectsNegativeOffset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics/history?offset=-1", nil)
	_, _, err := parsePage(req)
	assert.Error(t, err)
}

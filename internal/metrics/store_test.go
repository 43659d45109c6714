package metrics

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteAndQueryRoundTrips(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.WriteMetricsBatch([]Sample{
		{TimestampSeconds: 100, WANName: "wan0", MetricName: "wanctl_rtt_ms", Value: 12.5},
		{TimestampSeconds: 200, WANName: "wan0", MetricName: "wanctl_rtt_ms", Value: 15.0},
		{TimestampSeconds: 300, WANName: "wan1", MetricName: "wanctl_rtt_ms", Value: 99.0},
	}))

	rows, total, err := s.Query(QueryParams{StartSeconds: 0, EndSeconds: 1000, WANName: "wan0"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, rows, 2)
	assert.Equal(t, 12.5, rows[0].Value, "rows must be ordered by timestamp ascending")
	assert.Equal(t, 15.0, rows[1].Value)
}

func TestStore_QueryFiltersByMetricName(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.WriteMetricsBatch([]Sample{
		{TimestampSeconds: 1, WANName: "wan0", MetricName: "a", Value: 1},
		{TimestampSeconds: 2, WANName: "wan0", MetricName: "b", Value: 2},
	}))
	rows, _, err := s.Query(QueryParams{StartSeconds: 0, EndSeconds: 10, MetricNames: []string{"b"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].MetricName)
}

func TestStore_QueryClampsLimitToMaxLimit(t *testing.T) {
	s := openTestStore(t)
	rows, _, err := s.Query(QueryParams{StartSeconds: 0, EndSeconds: 10, Limit: MaxLimit + 1000})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_ComputeSummary(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.WriteMetricsBatch([]Sample{
		{TimestampSeconds: 1, WANName: "wan0", MetricName: "m", Value: 1},
		{TimestampSeconds: 2, WANName: "wan0", MetricName: "m", Value: 2},
		{TimestampSeconds: 3, WANName: "wan0", MetricName: "m", Value: 3},
	}))
	summaries, err := s.ComputeSummary(QueryParams{StartSeconds: 0, EndSeconds: 10})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1.0, summaries[0].Min)
	assert.Equal(t, 2.0, summaries[0].Avg)
	assert.Equal(t, 3, summaries[0].Count)
}

func TestStore_Retention(t *testing.T) {
	s := openTestStore(t)
	now := time.Unix(1_000_000, 0)
	old := now.Add(-40 * 24 * time.Hour).Unix()
	recent := now.Add(-1 * time.Hour).Unix()
	require.NoError(t, s.WriteMetricsBatch([]Sample{
		{TimestampSeconds: old, WANName: "wan0", MetricName: "m", Value: 1},
		{TimestampSeconds: recent, WANName: "wan0", MetricName: "m", Value: 2},
	}))

	deleted, err := s.Retention(30, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	rows, _, err := s.Query(QueryParams{StartSeconds: 0, EndSeconds: now.Unix()})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, recent, rows[0].TimestampSeconds)
}

func TestOpenReadOnly_SeesWriterCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.WriteMetric(Sample{TimestampSeconds: 1, WANName: "wan0", MetricName: "m", Value: 5}))

	reader, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer reader.Close()

	rows, _, err := reader.Query(QueryParams{StartSeconds: 0, EndSeconds: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 5.0, rows[0].Value)
}

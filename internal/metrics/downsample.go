package metrics

import (
	"database/sql"
	"fmt"
	"time"
)

// tier describes one downsampling step: aggregate sourceGranularity rows
// older than minAge into bucketSeconds-wide buckets at targetGranularity,
// then delete the consumed source rows (§4.6).
type tier struct {
	source      Granularity
	target      Granularity
	minAge      time.Duration
	bucketSecs  int64
}

var tiers = []tier{
	{source: Raw, target: Min1, minAge: time.Hour, bucketSecs: 60},
	{source: Min1, target: Min5, minAge: 24 * time.Hour, bucketSecs: 300},
	{source: Min5, target: Hour1, minAge: 7 * 24 * time.Hour, bucketSecs: 3600},
}

// Downsample runs every tier once. Safe to call repeatedly (opportunistic
// trigger per §3.4); re-running over an already-downsampled window is a
// no-op because the source rows for that window have already been
// deleted — bucket alignment is deterministic so results are bucket-
// stable (§8 round-trip law).
func (s *Store) Downsample(now time.Time) error {
	for _, t := range tiers {
		if err := s.downsampleTier(t, now); err != nil {
			return fmt.Errorf("metrics: downsample %s->%s: %w", t.source, t.target, err)
		}
	}
	return nil
}

func (s *Store) downsampleTier(t tier, now time.Time) error {
	threshold := now.Add(-t.minAge).Unix()

	keys, err := s.distinctKeys(t.source, threshold)
	if err != nil {
		return err
	}
	for _, k := range keys {
		isState := stateMetrics[k.metricName]
		bucketRows, err := s.bucketedAggregate(t.source, k, threshold, t.bucketSecs, isState)
		if err != nil {
			return err
		}
		if len(bucketRows) == 0 {
			continue
		}
		samples := make([]Sample, 0, len(bucketRows))
		for _, r := range bucketRows {
			samples = append(samples, Sample{
				TimestampSeconds: r.bucket,
				WANName:          k.wanName,
				MetricName:       k.metricName,
				Value:            r.value,
				Granularity:      t.target,
			})
		}
		if err := s.WriteMetricsBatch(samples); err != nil {
			return err
		}
		if _, err := s.db.Exec(
			`DELETE FROM metrics WHERE granularity = ? AND wan_name = ? AND metric_name = ? AND timestamp_seconds < ?`,
			string(t.source), k.wanName, k.metricName, threshold,
		); err != nil {
			return fmt.Errorf("metrics: delete consumed source rows: %w", err)
		}
	}
	return nil
}

type metricKey struct {
	wanName    string
	metricName string
}

func (s *Store) distinctKeys(gran Granularity, threshold int64) ([]metricKey, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT wan_name, metric_name FROM metrics WHERE granularity = ? AND timestamp_seconds < ?`,
		string(gran), threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: list distinct keys: %w", err)
	}
	defer rows.Close()
	var out []metricKey
	for rows.Next() {
		var k metricKey
		if err := rows.Scan(&k.wanName, &k.metricName); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

type bucketValue struct {
	bucket int64
	value  float64
}

// bucketedAggregate groups rows into bucketSecs-wide, boundary-aligned
// buckets ((ts/bucket)*bucket) and aggregates with AVG for numeric
// metrics or a SQL-side mode approximation for state metrics.
func (s *Store) bucketedAggregate(gran Granularity, k metricKey, threshold, bucketSecs int64, isState bool) ([]bucketValue, error) {
	var query string
	if isState {
		// Mode: the value with the highest count within the bucket; ties
		// broken by smallest value for determinism.
		query = `
			SELECT bucket, value FROM (
				SELECT (timestamp_seconds / ?) * ? AS bucket, value, COUNT(*) AS cnt,
				       ROW_NUMBER() OVER (PARTITION BY (timestamp_seconds / ?) ORDER BY COUNT(*) DESC, value ASC) AS rn
				FROM metrics
				WHERE granularity = ? AND wan_name = ? AND metric_name = ? AND timestamp_seconds < ?
				GROUP BY bucket, value
			) WHERE rn = 1`
		rows, err := s.db.Query(query, bucketSecs, bucketSecs, bucketSecs, string(gran), k.wanName, k.metricName, threshold)
		return scanBucketRows(rows, err)
	}
	query = `
		SELECT (timestamp_seconds / ?) * ? AS bucket, AVG(value) AS value
		FROM metrics
		WHERE granularity = ? AND wan_name = ? AND metric_name = ? AND timestamp_seconds < ?
		GROUP BY bucket`
	rows, err := s.db.Query(query, bucketSecs, bucketSecs, string(gran), k.wanName, k.metricName, threshold)
	return scanBucketRows(rows, err)
}

func scanBucketRows(rows *sql.Rows, err error) ([]bucketValue, error) {
	if err != nil {
		return nil, fmt.Errorf("metrics: aggregate bucket query: %w", err)
	}
	defer rows.Close()
	var out []bucketValue
	for rows.Next() {
		var b bucketValue
		if err := rows.Scan(&b.bucket, &b.value); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GranularityForRange picks a granularity from the span of [start,end]:
// raw up to 1h, 1m up to 1 day, 5m up to 7 days, 1h beyond (§4.6: "prefer
// raw for < 1h, 1m for 1h-1day, etc.").
func GranularityForRange(start, end time.Time) Granularity {
	span := end.Sub(start)
	switch {
	case span <= time.Hour:
		return Raw
	case span <= 24*time.Hour:
		return Min1
	case span <= 7*24*time.Hour:
		return Min5
	default:
		return Hour1
	}
}

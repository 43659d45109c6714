package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Row is one record returned by Query, matching the history endpoint's
// per-item shape (§4.5).
type Row struct {
	TimestampSeconds int64             `json:"timestamp_seconds"`
	WANName          string            `json:"wan_name"`
	MetricName       string            `json:"metric_name"`
	Value            float64           `json:"value"`
	Labels           map[string]string `json:"labels,omitempty"`
	Granularity      Granularity       `json:"granularity"`
}

// QueryParams bounds a metrics read. StartSeconds/EndSeconds always bound
// the timestamp range; zero MetricNames, WANName or Granularity mean
// "unfiltered"; Limit <= 0 means MaxLimit.
type QueryParams struct {
	StartSeconds int64
	EndSeconds   int64
	MetricNames  []string
	WANName      string
	Granularity  Granularity // empty = all granularities
	Limit        int
	Offset       int
}

// MaxLimit is the history endpoint's page-size cap (§4.5: "Maximum page
// size: 10 000 (cap silently)").
const MaxLimit = 10_000

// Query returns matching rows ordered by timestamp ascending, plus the
// total count ignoring Limit/Offset (for pagination metadata).
func (s *Store) Query(p QueryParams) (rows []Row, total int, err error) {
	if p.Limit <= 0 || p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	where, args := p.whereClause()

	var count int
	countQuery := "SELECT COUNT(*) FROM metrics WHERE " + where
	if err := s.db.QueryRow(countQuery, args...).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("metrics: count query: %w", err)
	}

	dataQuery := "SELECT timestamp_seconds, wan_name, metric_name, value, labels, granularity FROM metrics WHERE " +
		where + " ORDER BY timestamp_seconds ASC LIMIT ? OFFSET ?"
	dataArgs := append(append([]any{}, args...), p.Limit, p.Offset)

	rs, err := s.db.Query(dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("metrics: data query: %w", err)
	}
	defer rs.Close()

	out := make([]Row, 0, p.Limit)
	for rs.Next() {
		var r Row
		var labels *string
		var gran string
		if err := rs.Scan(&r.TimestampSeconds, &r.WANName, &r.MetricName, &r.Value, &labels, &gran); err != nil {
			return nil, 0, err
		}
		r.Granularity = Granularity(gran)
		if labels != nil && *labels != "" {
			if err := json.Unmarshal([]byte(*labels), &r.Labels); err != nil {
				return nil, 0, fmt.Errorf("metrics: decode labels: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, count, rs.Err()
}

func (p QueryParams) whereClause() (string, []any) {
	where := "timestamp_seconds >= ? AND timestamp_seconds <= ?"
	args := []any{p.StartSeconds, p.EndSeconds}
	if p.WANName != "" {
		where += " AND wan_name = ?"
		args = append(args, p.WANName)
	}
	if len(p.MetricNames) > 0 {
		where += " AND metric_name IN (" + placeholders(len(p.MetricNames)) + ")"
		for _, m := range p.MetricNames {
			args = append(args, m)
		}
	}
	if p.Granularity != "" {
		where += " AND granularity = ?"
		args = append(args, string(p.Granularity))
	}
	return where, args
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

// Summary holds min/avg/p95/p99/count for one (metric, wan) pair.
type Summary struct {
	MetricName string  `json:"metric_name"`
	WANName    string  `json:"wan_name"`
	Min        float64 `json:"min"`
	Avg        float64 `json:"avg"`
	P95        float64 `json:"p95"`
	P99        float64 `json:"p99"`
	Count      int     `json:"count"`
}

// ComputeSummary reads the matching rows (up to MaxLimit) and computes
// min/avg/percentiles/count client-side per (metric, wan) pair (SQLite
// has no native percentile_cont).
func (s *Store) ComputeSummary(p QueryParams) ([]Summary, error) {
	rows, _, err := s.Query(QueryParams{
		StartSeconds: p.StartSeconds, EndSeconds: p.EndSeconds,
		MetricNames: p.MetricNames, WANName: p.WANName, Granularity: p.Granularity,
		Limit: MaxLimit,
	})
	if err != nil {
		return nil, err
	}

	grouped := map[[2]string][]float64{}
	for _, r := range rows {
		key := [2]string{r.MetricName, r.WANName}
		grouped[key] = append(grouped[key], r.Value)
	}

	out := make([]Summary, 0, len(grouped))
	for key, values := range grouped {
		out = append(out, summarize(key[0], key[1], values))
	}
	return out, nil
}

func summarize(metricName, wanName string, values []float64) Summary {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sum := 0.0
	min := sorted[0]
	for _, v := range sorted {
		sum += v
		if v < min {
			min = v
		}
	}
	return Summary{
		MetricName: metricName,
		WANName:    wanName,
		Min:        min,
		Avg:        sum / float64(len(sorted)),
		P95:        percentile(sorted, 0.95),
		P99:        percentile(sorted, 0.99),
		Count:      len(sorted),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

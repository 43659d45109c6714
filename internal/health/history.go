package health

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/galpt/wanctl/internal/metrics"
)

// historyResponse mirrors §4.5's /metrics/history shape.
type historyResponse struct {
	Data     []metrics.Row  `json:"data"`
	Metadata historyMeta    `json:"metadata"`
}

type historyMeta struct {
	TotalCount   int         `json:"total_count"`
	ReturnedCount int        `json:"returned_count"`
	Granularity  string      `json:"granularity"`
	Limit        int         `json:"limit"`
	Offset       int         `json:"offset"`
	Query        queryEcho   `json:"query"`
}

type queryEcho struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// HistoryHandler builds the /metrics/history handler backed by store.
// store may be nil (metrics disabled); every request then returns an
// empty result set rather than erroring (§4.6: "missing database
// returns empty results rather than raising").
func HistoryHandler(store *metrics.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		start, end, err := parseRange(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		limit, offset, err := parsePage(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		params := metrics.QueryParams{
			StartSeconds: start.Unix(),
			EndSeconds:   end.Unix(),
			WANName:      r.URL.Query().Get("wan"),
			Limit:        limit,
			Offset:       offset,
		}
		if csv := r.URL.Query().Get("metrics"); csv != "" {
			params.MetricNames = strings.Split(csv, ",")
		}

		if store == nil {
			_ = json.NewEncoder(w).Encode(historyResponse{
				Data: []metrics.Row{},
				Metadata: historyMeta{
					Granularity: string(metrics.GranularityForRange(start, end)),
					Limit:       limit, Offset: offset,
					Query: queryEcho{Start: start.UTC().Format(time.RFC3339), End: end.UTC().Format(time.RFC3339)},
				},
			})
			return
		}

		params.Granularity = metrics.GranularityForRange(start, end)
		rows, total, err := store.Query(params)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = json.NewEncoder(w).Encode(historyResponse{
			Data: rows,
			Metadata: historyMeta{
				TotalCount: total, ReturnedCount: len(rows),
				Granularity: string(params.Granularity),
				Limit:       limit, Offset: offset,
				Query: queryEcho{Start: start.UTC().Format(time.RFC3339), End: end.UTC().Format(time.RFC3339)},
			},
		})
	}
}

func parseRange(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	now := time.Now()

	if rng := q.Get("range"); rng != "" {
		d, perr := time.ParseDuration(rng)
		if perr != nil || d <= 0 {
			return time.Time{}, time.Time{}, errInvalidParam("range")
		}
		return now.Add(-d), now, nil
	}

	fromS, toS := q.Get("from"), q.Get("to")
	if fromS != "" || toS != "" {
		from, ferr := time.Parse(time.RFC3339, fromS)
		to, terr := time.Parse(time.RFC3339, toS)
		if ferr != nil || terr != nil || !to.After(from) {
			return time.Time{}, time.Time{}, errInvalidParam("from/to")
		}
		return from, to, nil
	}

	// Default range: last hour (§4.5).
	return now.Add(-time.Hour), now, nil
}

func parsePage(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = metrics.MaxLimit
	if l := q.Get("limit"); l != "" {
		v, perr := strconv.Atoi(l)
		if perr != nil || v < 0 {
			return 0, 0, errInvalidParam("limit")
		}
		limit = v
	}
	if limit == 0 || limit > metrics.MaxLimit {
		limit = metrics.MaxLimit
	}
	if o := q.Get("offset"); o != "" {
		v, perr := strconv.Atoi(o)
		if perr != nil || v < 0 {
			return 0, 0, errInvalidParam("offset")
		}
		offset = v
	}
	return limit, offset, nil
}

func errInvalidParam(name string) error {
	return &paramError{name: name}
}

type paramError struct{ name string }

func (e *paramError) Error() string {
	return "invalid parameter: " + e.name
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

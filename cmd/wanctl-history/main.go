package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/galpt/wanctl/internal/metrics"
	"github.com/galpt/wanctl/internal/version"
)

var (
	dbPath      string
	rangeStr    string
	fromStr     string
	toStr       string
	metricNames []string
	wanName     string
	limit       int
	offset      int
	summaryMode bool

	rootCmd = &cobra.Command{
		Use:     "wanctl-history",
		Short:   "Read-only query tool for the wanctl metrics store",
		Version: version.Version,
		RunE:    run,
	}
)

func init() {
	rootCmd.Flags().StringVar(&dbPath, "db", "/var/lib/wanctl/metrics.db", "path to the metrics SQLite database")
	rootCmd.Flags().StringVar(&rangeStr, "range", "1h", "lookback duration (e.g. 1h, 30m); ignored if --from is set")
	rootCmd.Flags().StringVar(&fromStr, "from", "", "RFC3339 start time")
	rootCmd.Flags().StringVar(&toStr, "to", "", "RFC3339 end time (defaults to now)")
	rootCmd.Flags().StringSliceVar(&metricNames, "metrics", nil, "comma-separated metric names to include (default: all)")
	rootCmd.Flags().StringVar(&wanName, "wan", "", "restrict to a single WAN name")
	rootCmd.Flags().IntVar(&limit, "limit", 1000, fmt.Sprintf("max rows to return, capped at %d", metrics.MaxLimit))
	rootCmd.Flags().IntVar(&offset, "offset", 0, "row offset for pagination")
	rootCmd.Flags().BoolVar(&summaryMode, "summary", false, "print min/avg/p95/p99 per metric instead of raw rows")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	store, err := metrics.OpenReadOnly(dbPath)
	if err != nil {
		return fmt.Errorf("history: open store: %w", err)
	}
	defer store.Close()

	start, end, err := resolveRange()
	if err != nil {
		return err
	}

	params := metrics.QueryParams{
		StartSeconds: start.Unix(),
		EndSeconds:   end.Unix(),
		MetricNames:  metricNames,
		WANName:      wanName,
		Limit:        limit,
		Offset:       offset,
	}

	var out any
	if summaryMode {
		summaries, err := store.ComputeSummary(params)
		if err != nil {
			return fmt.Errorf("history: summary query: %w", err)
		}
		out = summaries
	} else {
		rows, total, err := store.Query(params)
		if err != nil {
			return fmt.Errorf("history: query: %w", err)
		}
		out = map[string]any{"rows": rows, "total": total}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func resolveRange() (start, end time.Time, err error) {
	end = time.Now()
	if toStr != "" {
		end, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			return start, end, fmt.Errorf("history: invalid --to: %w", err)
		}
	}
	if fromStr != "" {
		start, err = time.Parse(time.RFC3339, strings.TrimSpace(fromStr))
		if err != nil {
			return start, end, fmt.Errorf("history: invalid --from: %w", err)
		}
		return start, end, nil
	}
	d, err := time.ParseDuration(rangeStr)
	if err != nil {
		return start, end, fmt.Errorf("history: invalid --range: %w", err)
	}
	start = end.Add(-d)
	return start, end, nil
}

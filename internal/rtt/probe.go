// Package rtt implements the concurrent, multi-host RTT measurement
// primitive shared by the autorate controller and the steering daemon
// (§4.4). Each host is probed with the platform's ICMP ping binary and
// the mean RTT parsed from its textual summary line with a tolerant
// regex — the same "shell out, regex-parse" idiom the teacher repo uses
// for `tc qdisc show` and conntrack, applied here to `ping` instead of
// the teacher's raw TCP-connect timing.
package rtt

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// summaryRTT matches the trailing rtt line of both iputils-ping
// ("rtt min/avg/max/mdev = 10.1/12.3/15.0/1.2 ms") and BusyBox ping
// ("round-trip min/avg/max = 10.1/12.3/15.0 ms") output.
var summaryRTT = regexp.MustCompile(`(?:rtt|round-trip)\s+min/avg/max(?:/mdev)?\s*=\s*[\d.]+/([\d.]+)/[\d.]+(?:/[\d.]+)?\s*ms`)

// HostResult is one host's outcome: a finite RTT in milliseconds, or Err
// set when the host timed out, was unreachable, or its ping output
// didn't parse.
type HostResult struct {
	Host  string
	RTTMs float64
	Err   error
}

// PingFunc runs count probes against host and returns the mean RTT in
// milliseconds. It is a package variable (not a struct field, mirroring
// the teacher's injectable ProbeFunc pattern) so tests can substitute a
// deterministic fake without shelling out to a real ping binary.
var PingFunc = execPing

func execPing(ctx context.Context, host string, count int, timeout time.Duration) (float64, error) {
	deadlineSecs := int(timeout.Seconds())
	if deadlineSecs < 1 {
		deadlineSecs = 1
	}
	cmd := exec.CommandContext(ctx, "ping", "-n", "-c", strconv.Itoa(count), "-W", strconv.Itoa(deadlineSecs), host)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("rtt: ping %s: %w", host, err)
	}
	m := summaryRTT.FindStringSubmatch(string(out))
	if m == nil {
		return 0, fmt.Errorf("rtt: ping %s: could not parse rtt summary", host)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("rtt: ping %s: %w", host, err)
	}
	return v, nil
}

// MeasureAll fans out one probe per host, bounded by maxConcurrent, using
// a conc/pool worker pool in place of the teacher's hand-rolled
// chan+WaitGroup pool. Each host gets its own timeout; the pool itself
// never outlives ctx.
func MeasureAll(ctx context.Context, hosts []string, count int, timeout time.Duration, maxConcurrent int) []HostResult {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	p := pool.NewWithResults[HostResult]().WithMaxGoroutines(maxConcurrent)
	for _, h := range hosts {
		host := h
		p.Go(func() HostResult {
			rttMs, err := PingFunc(ctx, host, count, timeout)
			if err != nil {
				return HostResult{Host: host, Err: err}
			}
			return HostResult{Host: host, RTTMs: rttMs}
		})
	}
	return p.Wait()
}

// Successful filters HostResult down to the ones without an error.
func Successful(results []HostResult) []float64 {
	out := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.RTTMs)
		}
	}
	return out
}

// Aggregate implements §4.4's aggregation rule: median of successful
// results when 3 or more hosts are configured, otherwise the single
// successful result (or the first one, if somehow more than one
// succeeded with fewer than 3 hosts configured). Returns ok=false when
// nothing succeeded.
//
// Median-of-even-count convention (an Open Question in §9, pinned here):
// the mean of the two middle values.
func Aggregate(hostsConfigured int, successfulRTTs []float64) (rttMs float64, ok bool) {
	if len(successfulRTTs) == 0 {
		return 0, false
	}
	if hostsConfigured < 3 {
		return successfulRTTs[0], true
	}
	sorted := append([]float64(nil), successfulRTTs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

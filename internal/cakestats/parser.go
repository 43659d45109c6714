// Package cakestats adapts galpt-cake-stats' pkg/parser text scraper into
// the steering daemon's optional direct-kernel queue-stats reader (§4.2
// step 3): when CAKE-aware mode is enabled, steering can read `tc -s
// qdisc` straight from the shaping interface instead of going through the
// router backend's GetQueueStats. Only the single-qdisc-per-interface
// path is carried over — the cake_mq multi-hardware-queue aggregation in
// the source parser exists for a stats *dashboard* surveying every
// interface on the box, a surface this spec's Non-goals exclude, so it
// is left behind; the block-splitting, header-token, and "Sent ... (
// dropped N, ...)"/backlog line scrapers are kept verbatim in spirit.
package cakestats

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/galpt/wanctl/internal/router"
)

// Read shells out to `tc -s qdisc show dev <iface>` and returns the
// QueueStats for the first cake (or cake_mq) qdisc block found.
func Read(ctx context.Context, iface string) (*router.QueueStats, error) {
	out, err := exec.CommandContext(ctx, "tc", "-s", "qdisc", "show", "dev", iface).Output()
	if err != nil {
		return nil, fmt.Errorf("cakestats: tc -s qdisc show dev %s: %w", iface, err)
	}
	stats, ok := parse(string(out))
	if !ok {
		return nil, fmt.Errorf("cakestats: no cake qdisc found on %s", iface)
	}
	return stats, nil
}

func parse(raw string) (*router.QueueStats, bool) {
	lines := strings.Split(raw, "\n")
	var block []string
	for _, l := range lines {
		if strings.HasPrefix(l, "qdisc ") {
			if len(block) > 0 && isCakeHeader(block[0]) {
				break
			}
			block = []string{l}
			continue
		}
		if len(block) > 0 {
			block = append(block, l)
		}
	}
	if len(block) == 0 || !isCakeHeader(block[0]) {
		return nil, false
	}

	stats := &router.QueueStats{}
	for _, l := range block[1:] {
		trimmed := strings.TrimSpace(l)
		switch {
		case strings.HasPrefix(trimmed, "Sent "):
			parseSentLine(stats, trimmed)
		case strings.HasPrefix(trimmed, "backlog "):
			parseBacklogLine(stats, trimmed)
		}
	}
	return stats, true
}

func isCakeHeader(header string) bool {
	return strings.Contains(header, "qdisc cake ") || strings.Contains(header, "qdisc cake_mq ")
}

func parseSentLine(stats *router.QueueStats, line string) {
	fs := strings.Fields(line)
	if len(fs) >= 2 {
		stats.Bytes = parseUint(fs[1])
	}
	s, e := strings.Index(line, "("), strings.Index(line, ")")
	if s == -1 || e == -1 || e <= s {
		return
	}
	for _, part := range strings.Split(line[s+1:e], ",") {
		tokens := strings.Fields(strings.TrimSpace(part))
		for j := 0; j+1 < len(tokens); j += 2 {
			if tokens[j] == "dropped" {
				stats.Drops = parseUint(tokens[j+1])
			}
		}
	}
}

func parseBacklogLine(stats *router.QueueStats, line string) {
	fs := strings.Fields(line)
	if len(fs) >= 3 {
		stats.QueuedPackets = parseUint(strings.TrimSuffix(fs[2], "p"))
	}
}

func parseUint(s string) int64 {
	s = strings.TrimRight(s, "bBkKmMgGpP")
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

package cakestats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `qdisc noqueue 0: dev lo root refcnt 2
Sent 0 bytes 0 pkt (dropped 0, overlimits 0 requeues 0)
backlog 0b 0p requeues 0
qdisc cake 800d: dev eth1 root refcnt 2 bandwidth 50Mbit diffserv4 dual-srchost nat nowash no-ack-filter split-gso rtt 100ms atm overhead 48 memlimit 32Mb
Sent 453393887 bytes 1599017 pkt (dropped 2515, overlimits 2072988 requeues 0)
backlog 12b 7p requeues 0
memory used: 238656b of 32Mb
capacity estimate: 50Mbit
`

func TestParse_ExtractsCakeQdiscStats(t *testing.T) {
	stats, ok := parse(sampleOutput)
	require.True(t, ok)
	assert.Equal(t, int64(453393887), stats.Bytes)
	assert.Equal(t, int64(2515), stats.Drops)
	assert.Equal(t, int64(7), stats.QueuedPackets)
}

func TestParse_ReturnsFalseWhenNoCakeQdiscPresent(t *testing.T) {
	raw := `qdisc fq_codel 0: dev eth0 root refcnt 2
Sent 100 bytes 1 pkt (dropped 0, overlimits 0 requeues 0)
backlog 0b 0p requeues 0
`
	_, ok := parse(raw)
	assert.False(t, ok)
}

func TestParse_RecognizesCakeMQHeader(t *testing.T) {
	raw := `qdisc cake_mq 1: dev eth0 root refcnt 6
Sent 500 bytes 5 pkt (dropped 1, overlimits 0 requeues 0)
backlog 0b 2p requeues 0
`
	stats, ok := parse(raw)
	require.True(t, ok)
	assert.Equal(t, int64(500), stats.Bytes)
	assert.Equal(t, int64(1), stats.Drops)
	assert.Equal(t, int64(2), stats.QueuedPackets)
}

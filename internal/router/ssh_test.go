package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galpt/wanctl/internal/config"
)

func TestNewSSH_RequiresKeyPath(t *testing.T) {
	_, err := NewSSH(config.RouterConfig{Host: "10.0.0.1"}, config.Queues{}, "wanctl-steer")
	require.Error(t, err)
}

func TestNewSSH_RejectsUnreadableKeyPath(t *testing.T) {
	_, err := NewSSH(config.RouterConfig{Host: "10.0.0.1", SSHKeyPath: filepath.Join(t.TempDir(), "missing")}, config.Queues{}, "wanctl-steer")
	require.Error(t, err)
}

func TestNewSSH_RejectsMalformedKeyData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, writeFile(path, "not a real key"))
	_, err := NewSSH(config.RouterConfig{Host: "10.0.0.1", SSHKeyPath: path}, config.Queues{}, "wanctl-steer")
	require.Error(t, err)
}

func TestQueueStatsRegexes_ExtractFieldsFromRouterOSOutput(t *testing.T) {
	out := `  name="download" max-limit=50M/10M
    bytes=123456 packets=999 dropped=7 queued-packets=3
`
	var stats QueueStats
	if m := droppedRe.FindStringSubmatch(out); m != nil {
		stats.Drops = 7
		assert.Equal(t, "7", m[1])
	}
	if m := queuedPktRe.FindStringSubmatch(out); m != nil {
		assert.Equal(t, "3", m[1])
	}
	if m := bytesRe.FindStringSubmatch(out); m != nil {
		assert.Equal(t, "123456", m[1])
	}
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o600)
}

package router

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/galpt/wanctl/internal/config"
)

// sshBackend implements Backend over a persistent RouterOS CLI session
// (§6.1 alternative transport). Key-based auth only — RouterOS CLI over
// SSH with password auth is explicitly out of scope for this transport;
// operators who need password auth use the REST backend instead. The
// session auto-reconnects on use after a detected disconnect, mirroring
// the teacher's tolerance for transient subprocess failures in its
// shell-out-and-parse style, just applied to a long-lived connection
// instead of a one-shot exec.
type sshBackend struct {
	addr          string
	user          string
	signer        ssh.Signer
	dialTimeout   time.Duration
	queues        config.Queues
	mangleComment string

	mu     sync.Mutex
	client *ssh.Client
}

var droppedRe = regexp.MustCompile(`dropped[=:]\s*(\d+)`)
var queuedPktRe = regexp.MustCompile(`queued-packets[=:]\s*(\d+)`)
var bytesRe = regexp.MustCompile(`bytes[=:]\s*(\d+)`)

// NewSSH builds an SSH-transport Backend. cfg.SSHKeyPath must point at a
// private key file; RouterOS must already have the matching public key
// installed for cfg.User.
func NewSSH(cfg config.RouterConfig, queues config.Queues, mangleComment string) (Backend, error) {
	if cfg.SSHKeyPath == "" {
		return nil, fmt.Errorf("router(ssh): ssh_key is required for ssh transport")
	}
	keyData, err := os.ReadFile(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("router(ssh): read ssh_key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("router(ssh): parse private key: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &sshBackend{
		addr:          cfg.Host,
		user:          cfg.User,
		signer:        signer,
		dialTimeout:   timeout,
		queues:        queues,
		mangleComment: mangleComment,
	}, nil
}

func (s *sshBackend) connect() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	cfg := &ssh.ClientConfig{
		User:            s.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(s.signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // RouterOS host keys aren't pinned out of band here
		Timeout:         s.dialTimeout,
	}
	addr := s.addr
	if !strings.Contains(addr, ":") {
		addr = addr + ":22"
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("router(ssh): dial: %w", err)
	}
	s.client = client
	return client, nil
}

func (s *sshBackend) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

// run executes a single CLI command over a fresh session, reconnecting
// once on failure — the session-level analogue of the teacher's retry
// tolerance around transient ping/tc failures.
func (s *sshBackend) run(ctx context.Context, cmdLine string) (string, error) {
	out, err := s.runOnce(cmdLine)
	if err == nil {
		return out, nil
	}
	s.invalidate()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return s.runOnce(cmdLine)
}

func (s *sshBackend) runOnce(cmdLine string) (string, error) {
	client, err := s.connect()
	if err != nil {
		return "", err
	}
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("router(ssh): new session: %w", err)
	}
	defer session.Close()
	out, err := session.CombinedOutput(cmdLine)
	if err != nil {
		return "", fmt.Errorf("router(ssh): run %q: %w", cmdLine, err)
	}
	return string(out), nil
}

func (s *sshBackend) SetQueueLimit(ctx context.Context, queueID string, maxBps int64) error {
	cmd := fmt.Sprintf(`/queue tree set [find name="%s"] max-limit=%d`, queueID, maxBps)
	_, err := s.run(ctx, cmd)
	return err
}

func (s *sshBackend) ResetQueueCounters(ctx context.Context, queueID string) error {
	cmd := fmt.Sprintf(`/queue tree reset-counters [find name="%s"]`, queueID)
	_, err := s.run(ctx, cmd)
	return err
}

func (s *sshBackend) GetQueueStats(ctx context.Context, queueID string) (*QueueStats, error) {
	cmd := fmt.Sprintf(`/queue tree print detail where name="%s"`, queueID)
	out, err := s.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{}
	if m := droppedRe.FindStringSubmatch(out); m != nil {
		stats.Drops, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := queuedPktRe.FindStringSubmatch(out); m != nil {
		stats.QueuedPackets, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := bytesRe.FindStringSubmatch(out); m != nil {
		stats.Bytes, _ = strconv.ParseInt(m[1], 10, 64)
	}
	return stats, nil
}

func (s *sshBackend) EnableSteering(ctx context.Context) error {
	cmd := fmt.Sprintf(`/ip firewall mangle enable [find comment="%s"]`, s.mangleComment)
	_, err := s.run(ctx, cmd)
	return err
}

func (s *sshBackend) DisableSteering(ctx context.Context) error {
	cmd := fmt.Sprintf(`/ip firewall mangle disable [find comment="%s"]`, s.mangleComment)
	_, err := s.run(ctx, cmd)
	return err
}

func (s *sshBackend) TestConnection(ctx context.Context) error {
	_, err := s.run(ctx, "/system resource print")
	return err
}

func (s *sshBackend) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		err := s.client.Close()
		s.client = nil
		return err
	}
	return nil
}

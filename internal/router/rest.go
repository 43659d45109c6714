package router

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/galpt/wanctl/internal/config"
)

// restBackend implements Backend over the RouterOS REST API (§6.1):
// HTTP/1.1, HTTP Basic auth, self-signed-cert tolerant TLS, 5s connect /
// 10s total per request.
type restBackend struct {
	client        *http.Client
	baseURL       string
	user, pass    string
	queues        config.Queues
	mangleComment string
	cache         *idCache
}

// NewREST builds a REST-transport Backend.
func NewREST(cfg config.RouterConfig, queues config.Queues, mangleComment string) *restBackend {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectTimeout := 5 * time.Second
	if connectTimeout > timeout {
		connectTimeout = timeout
	}
	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // self-signed cert tolerance, §6.1
		DialContext:     dialer.DialContext,
	}
	return &restBackend{
		client:        &http.Client{Transport: transport, Timeout: timeout},
		baseURL:       fmt.Sprintf("https://%s", cfg.Host),
		user:          cfg.User,
		pass:          cfg.ResolvedPassword(),
		queues:        queues,
		mangleComment: mangleComment,
		cache:         newIDCache(),
	}
}

type restQueueTree struct {
	ID       string `json:".id"`
	Name     string `json:"name"`
	MaxLimit string `json:"max-limit"`
	Dropped  string `json:"dropped"`
	Queued   string `json:"queued-packets"`
	Bytes    string `json:"bytes"`
}

type restMangleRule struct {
	ID       string `json:".id"`
	Comment  string `json:"comment"`
	Disabled string `json:"disabled"`
}

func (r *restBackend) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("router(rest): marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("router(rest): build request: %w", err)
	}
	req.SetBasicAuth(r.user, r.pass)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("router(rest): %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("router(rest): %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
		if resp.StatusCode < 500 {
			return fmt.Errorf("%w: %w", ErrNotRetryable, err)
		}
		return err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("router(rest): decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (r *restBackend) resolveQueueID(ctx context.Context, name string) (string, error) {
	if id, ok := r.cache.get("queue:" + name); ok {
		return id, nil
	}
	var results []restQueueTree
	if err := r.do(ctx, http.MethodGet, "/rest/queue/tree?name="+name, nil, &results); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: router(rest): queue tree %q not found", ErrNotRetryable, name)
	}
	r.cache.set("queue:"+name, results[0].ID)
	return results[0].ID, nil
}

func (r *restBackend) resolveMangleID(ctx context.Context) (string, error) {
	if id, ok := r.cache.get("mangle:" + r.mangleComment); ok {
		return id, nil
	}
	var results []restMangleRule
	if err := r.do(ctx, http.MethodGet, "/rest/ip/firewall/mangle?comment="+r.mangleComment, nil, &results); err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", fmt.Errorf("%w: router(rest): mangle rule %q not found", ErrNotRetryable, r.mangleComment)
	}
	r.cache.set("mangle:"+r.mangleComment, results[0].ID)
	return results[0].ID, nil
}

func (r *restBackend) SetQueueLimit(ctx context.Context, queueID string, maxBps int64) error {
	id, err := r.resolveQueueID(ctx, queueID)
	if err != nil {
		return err
	}
	body := map[string]string{"max-limit": strconv.FormatInt(maxBps, 10)}
	return r.do(ctx, http.MethodPatch, "/rest/queue/tree/"+id, body, nil)
}

func (r *restBackend) ResetQueueCounters(ctx context.Context, queueID string) error {
	id, err := r.resolveQueueID(ctx, queueID)
	if err != nil {
		return err
	}
	return r.do(ctx, http.MethodPost, "/rest/queue/tree/"+id+"/reset-counters", nil, nil)
}

func (r *restBackend) GetQueueStats(ctx context.Context, queueID string) (*QueueStats, error) {
	id, err := r.resolveQueueID(ctx, queueID)
	if err != nil {
		return nil, err
	}
	var result restQueueTree
	if err := r.do(ctx, http.MethodGet, "/rest/queue/tree/"+id, nil, &result); err != nil {
		return nil, err
	}
	return &QueueStats{
		Drops:         parseIntOrZero(result.Dropped),
		QueuedPackets: parseIntOrZero(result.Queued),
		Bytes:         parseIntOrZero(result.Bytes),
	}, nil
}

func (r *restBackend) EnableSteering(ctx context.Context) error {
	return r.setMangleDisabled(ctx, false)
}

func (r *restBackend) DisableSteering(ctx context.Context) error {
	return r.setMangleDisabled(ctx, true)
}

func (r *restBackend) setMangleDisabled(ctx context.Context, disabled bool) error {
	id, err := r.resolveMangleID(ctx)
	if err != nil {
		return err
	}
	val := "no"
	if disabled {
		val = "yes"
	}
	return r.do(ctx, http.MethodPatch, "/rest/ip/firewall/mangle/"+id, map[string]string{"disabled": val}, nil)
}

func (r *restBackend) TestConnection(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/rest/system/resource", nil, nil)
}

func (r *restBackend) Close() error {
	r.cache.reset()
	r.client.CloseIdleConnections()
	return nil
}

func parseIntOrZero(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

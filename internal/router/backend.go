// Package router implements the transport-agnostic backend interface of
// §4.3: set queue limits, reset counters, read queue stats, toggle the
// steering mangle rule, and probe liveness, over either a RouterOS REST
// API or an SSH CLI session. Callers never see the transport; the
// factory in this file picks the variant from config.Transport.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/galpt/wanctl/internal/config"
)

// QueueStats is the subset of CAKE queue counters the steering daemon
// reads for its CAKE-aware degradation signal (§3.3, §4.2 step 3).
type QueueStats struct {
	Drops         int64
	QueuedPackets int64
	Bytes         int64
}

// Backend is the polymorphic router client contract (§4.3). Every
// implementation must be idempotent on Enable/DisableSteering and must
// treat "already in requested state" as success, not an error.
type Backend interface {
	SetQueueLimit(ctx context.Context, queueID string, maxBps int64) error
	ResetQueueCounters(ctx context.Context, queueID string) error
	GetQueueStats(ctx context.Context, queueID string) (*QueueStats, error)
	EnableSteering(ctx context.Context) error
	DisableSteering(ctx context.Context) error
	TestConnection(ctx context.Context) error
	Close() error
}

// ErrNotRetryable marks an error the retry wrapper must not retry (spec
// §4.3: "4xx responses are not retryable"). Wrap with this to opt an
// error out of the backoff loop.
var ErrNotRetryable = errors.New("router: not retryable")

// IsRetryable reports whether err should be retried: anything that is
// not explicitly wrapped as ErrNotRetryable.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrNotRetryable)
}

// New builds the Backend variant selected by cfg.Transport. No runtime
// reflection: the factory is a plain switch over the config string.
func New(cfg config.RouterConfig, queues config.Queues, mangleComment string) (Backend, error) {
	switch cfg.Transport {
	case config.TransportREST:
		return NewREST(cfg, queues, mangleComment), nil
	case config.TransportSSH:
		return NewSSH(cfg, queues, mangleComment)
	default:
		return nil, fmt.Errorf("router: unknown transport %q", cfg.Transport)
	}
}

// Package retry implements configurable exponential backoff with jitter,
// used to wrap every router transport call (§4.3, §4.7, §7).
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy configures attempts, initial delay, multiplier, jitter fraction
// and a predicate selecting which errors are worth retrying.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	Multiplier    float64
	JitterFrac    float64
	MaxElapsed    time.Duration
	IsRetryable   func(error) bool
}

// Default returns the spec's router-call policy: 3 attempts, exponential
// backoff with jitter, capped total elapsed time of a few seconds.
func Default() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2.0,
		JitterFrac:   0.2,
		MaxElapsed:   5 * time.Second,
		IsRetryable:  func(error) bool { return true },
	}
}

// Do runs fn, retrying on retryable errors up to MaxAttempts times or
// until MaxElapsed has passed, whichever comes first. It never retries
// past ctx cancellation and never exceeds the caller's own deadline
// (§5: "Retries use deadline-carrying backoff").
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	isRetryable := p.IsRetryable
	if isRetryable == nil {
		isRetryable = func(error) bool { return true }
	}

	start := time.Now()
	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		if p.MaxElapsed > 0 && time.Since(start) >= p.MaxElapsed {
			break
		}

		sleep := jitter(delay, p.JitterFrac)
		if p.MaxElapsed > 0 {
			if remaining := p.MaxElapsed - time.Since(start); remaining < sleep {
				sleep = remaining
			}
		}
		if sleep < 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * p.Multiplier)
	}
	return lastErr
}

func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	spread := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * spread
	result := float64(d) + offset
	if result < 0 {
		result = 0
	}
	return time.Duration(math.Round(result))
}

// Package retry provides exponential backoff for transport-level calls.
//
// Retries belong to the intensity adapters: the resolver treats a failed
// adapter call as a single terminal signal and falls through to the next
// source instead of retrying.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/VerdantProject/verdant/pkg/clock"
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor the delay grows by after each retry.
	Multiplier float64

	// Jitter adds randomness to delays: 0.1 means +/- 10% of the delay.
	Jitter float64

	// Clock is the clock used for delays. If nil, real time is used.
	Clock clock.Clock
}

// DefaultConfig returns retry configuration suited to the intensity APIs:
// short, few attempts, so a slow provider loses to the per-source timeout
// rather than holding a resolution slot.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Do executes fn with retry logic and returns the last error if all
// attempts fail.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(delayFor(cfg, attempt)):
		}
	}
	return lastErr
}

// delayFor computes the backoff delay for a zero-based attempt index.
func delayFor(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		delta := delay * cfg.Jitter
		delay += (rand.Float64()*2 - 1) * delta
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

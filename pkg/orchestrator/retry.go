package orchestrator

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/zen-systems/nexus/pkg/registry"
)

// RetryPolicy bounds automatic retries of transient upstream failures.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Jitter is the +/- fraction applied to each backoff, 0..1.
	Jitter float64
}

// DefaultRetryPolicy returns 2 retries with 200ms..2s backoff and 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		Jitter:      0.2,
	}
}

// DefaultTimeouts returns the per-attempt ceiling for each mode.
func DefaultTimeouts() map[registry.Mode]time.Duration {
	return map[registry.Mode]time.Duration{
		registry.ModeLow:    30 * time.Second,
		registry.ModeMedium: 45 * time.Second,
		registry.ModeHigh:   60 * time.Second,
	}
}

func computeBackoff(base, max time.Duration, attempt int) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

// applyJitter scales d by a factor in [1-frac, 1+frac]; r is in [0,1).
func applyJitter(d time.Duration, frac, r float64) time.Duration {
	if frac <= 0 || d <= 0 {
		return d
	}
	if frac > 1 {
		frac = 1
	}
	factor := 1 + frac*(2*r-1)
	return time.Duration(float64(d) * factor)
}

func (p RetryPolicy) delay(attempt int, r float64) time.Duration {
	d := applyJitter(computeBackoff(p.BaseBackoff, p.MaxBackoff, attempt), p.Jitter, r)
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func defaultJitterSource() float64 {
	return rand.Float64()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package worker

import (
	"context"
	"math"
	"time"

	"installbot/internal/config"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy defines exponential backoff parameters.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PolicyFromConfig converts the notifications retry section.
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: cfg.BackoffFactor,
	}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// Backoff returns a backoff.BackOff that follows NextDelay and stops after MaxRetries.
func (r RetryPolicy) Backoff(ctx context.Context) backoff.BackOffContext {
	return backoff.WithContext(&policyBackOff{policy: r}, ctx)
}

type policyBackOff struct {
	policy  RetryPolicy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.attempt >= b.policy.MaxRetries {
		return backoff.Stop
	}
	b.attempt++
	return b.policy.NextDelay(b.attempt)
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}

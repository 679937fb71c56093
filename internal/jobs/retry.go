package jobs

import (
	"math"
	"time"
)

// RetryPolicy controls how failed jobs are retried with exponential
// backoff. Each task kind carries its own policy.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// SyncRetryPolicy is the policy for platform sync jobs: 3 attempts.
// Upsert idempotence makes re-running a partially completed sync safe.
func SyncRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 30 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Minute,
	}
}

// WebhookRetryPolicy is the policy for webhook processing jobs. The
// ceiling is higher than for syncs because one external action can fan
// out into dependent events that must not be dropped on transient
// unavailability.
func WebhookRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Minute,
	}
}

// Exhausted reports whether the attempt count has spent the policy.
func (p *RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// NextDelay returns the backoff delay after the given attempt number
// (1-indexed), capped at MaxDelay.
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

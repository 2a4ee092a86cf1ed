package worker

import (
	"math"
	"time"

	"erpsync/internal/config"
)

// RetryPolicy decides what happens to an action after a failed replay.
// MaxRetries of zero keeps failing actions queued indefinitely; backoff is
// only applied when Backoff is set.
type RetryPolicy struct {
	MaxRetries    int
	Backoff       bool
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

func PolicyFromConfig(cfg config.SyncConfig) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		Backoff:       cfg.Backoff.Enabled,
		InitialDelay:  cfg.Backoff.InitialDelay,
		MaxDelay:      cfg.Backoff.MaxDelay,
		BackoffFactor: cfg.Backoff.Factor,
	}
}

// Exhausted reports whether an action with retryCount failures must leave the queue.
func (r RetryPolicy) Exhausted(retryCount int) bool {
	return r.MaxRetries > 0 && retryCount >= r.MaxRetries
}

// NextAttempt returns the earliest time the action may be replayed again,
// or the zero time when backoff is disabled.
func (r RetryPolicy) NextAttempt(now time.Time, retryCount int) time.Time {
	if !r.Backoff {
		return time.Time{}
	}
	return now.Add(r.NextDelay(retryCount))
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

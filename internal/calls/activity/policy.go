// Package activity provides the uniform invocation contract for all external,
// potentially slow or unreliable operations the call engine depends on. Every
// invocation runs under one retry/timeout policy; validation and auth failures
// are never retried and surface immediately.
package activity

import "time"

// RetryPolicy controls how the gateway executes one activity invocation.
type RetryPolicy struct {
	// StartToClose bounds a single attempt.
	StartToClose time.Duration
	// HeartbeatTimeout cancels an attempt whose heartbeats go stale. It is
	// enforced only once the activity has reported at least one heartbeat.
	HeartbeatTimeout time.Duration
	InitialInterval  time.Duration
	BackoffFactor    float64
	MaxInterval      time.Duration
	MaxAttempts      int
}

// DefaultPolicy returns the standard activity policy: 5 minute start-to-close,
// 30 second heartbeat, exponential backoff 1s doubling up to 30s, 5 attempts.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		StartToClose:     5 * time.Minute,
		HeartbeatTimeout: 30 * time.Second,
		InitialInterval:  1 * time.Second,
		BackoffFactor:    2,
		MaxInterval:      30 * time.Second,
		MaxAttempts:      5,
	}
}

// backoff returns the delay before the given retry (attempt is 1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.InitialInterval
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.BackoffFactor)
		if delay >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	if delay > p.MaxInterval {
		delay = p.MaxInterval
	}
	return delay
}

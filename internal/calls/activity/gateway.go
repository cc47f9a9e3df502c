package activity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"voicedesk_backend/platform/apperr"
	"voicedesk_backend/platform/logger"
)

// Checkpointer records completed activity invocations in a durable journal and
// serves them back during replay, so side effects are not re-executed after a
// process restart. The durable session implements this interface.
type Checkpointer interface {
	// NextRecorded returns the next journaled result for the named activity,
	// if the journal cursor has one. A non-empty recorded error string means
	// the activity terminated with a permanent failure; recordedKind carries
	// the persisted apperr kind of that failure.
	NextRecorded(name string) (payload json.RawMessage, recordedErr, recordedKind string, ok bool)
	// Record journals a completed invocation.
	Record(ctx context.Context, name string, result any, actErr error) error
}

// Gateway applies the retry/timeout policy to every external operation.
// It is the only component that must be safe under many calls concurrently.
type Gateway struct {
	policy RetryPolicy
	sem    chan struct{} // bounds in-flight attempts across all calls
	log    *logger.Logger
}

// NewGateway creates a gateway with the given policy. maxConcurrent bounds
// in-flight activity attempts across all calls; zero means unbounded.
func NewGateway(policy RetryPolicy, maxConcurrent int, log *logger.Logger) *Gateway {
	g := &Gateway{policy: policy, log: log}
	if maxConcurrent > 0 {
		g.sem = make(chan struct{}, maxConcurrent)
	}
	return g
}

// Policy returns the gateway's retry policy.
func (g *Gateway) Policy() RetryPolicy { return g.policy }

// Run invokes fn under the gateway policy, consulting the checkpointer first.
// Retries apply only to transient infrastructure failures; validation and auth
// errors surface immediately. On success (or permanent failure) the outcome is
// journaled through cp so a replay observes it instead of re-executing.
func Run[T any](ctx context.Context, g *Gateway, cp Checkpointer, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if cp != nil {
		if payload, recordedErr, recordedKind, ok := cp.NextRecorded(name); ok {
			if recordedErr != "" {
				// Recorded failures are permanent; entries from before the
				// kind was journaled replay as validation errors.
				kind := apperr.ParseKind(recordedKind)
				if kind == apperr.KindUnknown {
					kind = apperr.KindValidation
				}
				return zero, apperr.New(kind, recordedErr).WithOp(name)
			}
			var result T
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &result); err != nil {
					return zero, apperr.Wrap(apperr.KindInternal, "corrupt activity checkpoint", err).WithOp(name)
				}
			}
			return result, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := attemptOnce(ctx, g, fn)
		if err == nil {
			if cp != nil {
				if recErr := cp.Record(ctx, name, result, nil); recErr != nil {
					return zero, apperr.Wrap(apperr.KindInternal, "journal activity result", recErr).WithOp(name)
				}
			}
			return result, nil
		}

		if !apperr.Retryable(err) {
			if cp != nil {
				_ = cp.Record(ctx, name, nil, err)
			}
			return zero, err
		}

		lastErr = err
		if g.log != nil {
			g.log.ActivityError(name, attempt, err)
		}

		if attempt < g.policy.MaxAttempts {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(g.policy.backoff(attempt)):
			}
		}
	}

	return zero, apperr.Wrap(apperr.KindUnavailable, "activity retries exhausted", lastErr).WithOp(name)
}

// RunVoid is Run for activities without a result value.
func RunVoid(ctx context.Context, g *Gateway, cp Checkpointer, name string, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, g, cp, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// attemptOnce runs one invocation bounded by the start-to-close timeout and
// watched by the heartbeat monitor.
func attemptOnce[T any](ctx context.Context, g *Gateway, fn func(ctx context.Context) (T, error)) (T, error) {
	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
			defer func() { <-g.sem }()
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, g.policy.StartToClose)
	defer cancel()

	monitor := newHeartbeatMonitor(g.policy.HeartbeatTimeout, cancel)
	defer monitor.stop()

	result, err := fn(withHeartbeatMonitor(attemptCtx, monitor))
	if err != nil && attemptCtx.Err() != nil && apperr.GetKind(err) == apperr.KindUnknown {
		err = apperr.Wrap(apperr.KindTimeout, "activity deadline exceeded", err)
	}
	return result, err
}

// =============================================================================
// Heartbeats
// =============================================================================

type heartbeatCtxKey struct{}

// heartbeatMonitor cancels an attempt whose heartbeats go stale. Enforcement
// starts with the first heartbeat; activities that never report are bounded by
// the start-to-close timeout alone.
type heartbeatMonitor struct {
	timeout time.Duration
	cancel  context.CancelFunc

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newHeartbeatMonitor(timeout time.Duration, cancel context.CancelFunc) *heartbeatMonitor {
	return &heartbeatMonitor{timeout: timeout, cancel: cancel}
}

func (m *heartbeatMonitor) beat() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.timeout <= 0 {
		return
	}
	if m.timer == nil {
		m.timer = time.AfterFunc(m.timeout, m.cancel)
		return
	}
	m.timer.Reset(m.timeout)
}

func (m *heartbeatMonitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
	}
}

func withHeartbeatMonitor(ctx context.Context, m *heartbeatMonitor) context.Context {
	return context.WithValue(ctx, heartbeatCtxKey{}, m)
}

// RecordHeartbeat reports liveness from a long-running activity. Outside a
// gateway invocation it is a no-op.
func RecordHeartbeat(ctx context.Context) {
	if m, ok := ctx.Value(heartbeatCtxKey{}).(*heartbeatMonitor); ok {
		m.beat()
	}
}

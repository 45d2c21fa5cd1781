package strategy

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// Retryer re-runs one target's attempt with exponential backoff and jitter.
// The per-target RetryPolicy decides how many tries it gets and which
// statuses qualify.
type Retryer struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool

	rng    *rand.Rand
	logger *zap.Logger
}

// NewRetryer creates a retryer with the default backoff curve. logger may be
// nil.
func NewRetryer(logger *zap.Logger) *Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:       logger.With(zap.String("component", "retry")),
	}
}

// AttemptFunc performs one upstream try. status is the HTTP status observed
// (0 when the request never reached the upstream); retryAfter carries the
// parsed Retry-After header when the upstream sent one.
type AttemptFunc func(ctx context.Context) (status int, retryAfter time.Duration, err error)

// Do runs fn up to policy.Attempts times (minimum one). A retry happens only
// when the attempt failed and either the status is in the policy's gate or
// the error is marked retryable before any status existed.
func (r *Retryer) Do(ctx context.Context, policy *types.RetryPolicy, fn AttemptFunc) (int, error) {
	attempts := 1
	if policy != nil && policy.Attempts > 1 {
		attempts = policy.Attempts
	}

	var (
		lastStatus     int
		lastErr        error
		lastRetryAfter time.Duration
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)
			if policy.UseRetryAfterHeader && lastRetryAfter > 0 {
				delay = lastRetryAfter
			}
			r.logger.Debug("retrying attempt",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return lastStatus, types.NewError(types.ErrTimeout, "retry canceled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		status, retryAfter, err := fn(ctx)
		if err == nil {
			return status, nil
		}
		lastStatus, lastErr, lastRetryAfter = status, err, retryAfter

		if !r.shouldRetry(policy, status, err) {
			return status, err
		}
	}
	return lastStatus, lastErr
}

func (r *Retryer) shouldRetry(policy *types.RetryPolicy, status int, err error) bool {
	if status == 0 {
		return types.IsRetryable(err)
	}
	for _, c := range policy.StatusCodes() {
		if c == status {
			return true
		}
	}
	return false
}

func (r *Retryer) delay(attempt int) time.Duration {
	d := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt-1))
	if d > float64(r.MaxDelay) {
		d = float64(r.MaxDelay)
	}
	if r.Jitter {
		jitter := d * 0.25
		d += (r.rng.Float64()*2 - 1) * jitter
	}
	if d < float64(r.InitialDelay) {
		d = float64(r.InitialDelay)
	}
	return time.Duration(d)
}

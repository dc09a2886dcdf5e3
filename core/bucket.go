// Package core implements the token bucket algorithm as a pure function of
// bucket state and time. It holds no clocks, locks, or I/O: callers pass the
// current time in and get the next state back, which keeps the algorithm
// deterministic and directly testable. Concurrent wrappers live in
// pkg/tokengate.
package core

import (
	"math"
	"time"
)

// TokenBucket evaluates the token bucket rate limiting algorithm for one
// policy. It is stateless; the per-client state travels in BucketState.
type TokenBucket struct {
	config Config
}

// NewTokenBucket creates a token bucket evaluator with the given policy.
func NewTokenBucket(config Config) *TokenBucket {
	return &TokenBucket{config: config}
}

// Config returns the policy this evaluator was built with.
func (tb *TokenBucket) Config() Config {
	return tb.config
}

// Refill advances the bucket state to now, adding tokens for the elapsed
// time and capping at capacity. An uninitialized (zero) state comes back
// full. Elapsed time clamps at zero so a clock stepping backwards can never
// drain the bucket.
func (tb *TokenBucket) Refill(state BucketState, now time.Time) BucketState {
	if state.LastRefillAt.IsZero() {
		return BucketState{
			Tokens:       tb.config.Capacity,
			LastRefillAt: now,
		}
	}

	elapsed := now.Sub(state.LastRefillAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return BucketState{
		Tokens:       math.Min(state.Tokens+elapsed*tb.config.RefillPerSec, tb.config.Capacity),
		LastRefillAt: now,
	}
}

// Check evaluates a request costing a single token. See CheckN.
func (tb *TokenBucket) Check(state BucketState, now time.Time) (BucketState, CheckResult) {
	return tb.CheckN(state, now, 1)
}

// CheckN refills the bucket for the time elapsed since the last refill and
// then decides whether a request costing cost tokens is admitted. It returns
// the updated state and the decision.
//
// A request is admitted only when the refilled token level strictly exceeds
// cost; a request costing exactly the available tokens is rejected. One
// consequence is that cost greater than capacity can never be admitted, even
// from a full bucket.
func (tb *TokenBucket) CheckN(state BucketState, now time.Time, cost int64) (BucketState, CheckResult) {
	newState := tb.Refill(state, now)

	need := float64(cost)
	if cost > 0 && newState.Tokens > need {
		newState.Tokens -= need
		return newState, CheckResult{
			Allowed:   true,
			Remaining: newState.Tokens,
			Limit:     tb.config.Capacity,
		}
	}

	return newState, CheckResult{
		Allowed:      false,
		Remaining:    newState.Tokens,
		RetryAfterMs: tb.RetryAfterMs(newState, cost),
		Limit:        tb.config.Capacity,
	}
}

// RetryAfterMs estimates how long a caller must wait until a request costing
// cost tokens would be admitted, given an already refilled state. Rounded up
// one millisecond so that waiting the full duration always crosses the
// strict admission threshold.
func (tb *TokenBucket) RetryAfterMs(state BucketState, cost int64) int64 {
	if cost <= 0 {
		return 0
	}
	need := float64(cost) - state.Tokens
	if need < 0 {
		need = 0
	}
	retryAfterSec := need / tb.config.RefillPerSec
	if math.IsInf(retryAfterSec, 0) || math.IsNaN(retryAfterSec) {
		return math.MaxInt64
	}
	return int64(retryAfterSec*1000) + 1
}

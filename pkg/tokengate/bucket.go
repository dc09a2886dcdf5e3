package tokengate

import (
	"sync"
	"time"

	"github.com/tokengate/tokengate/core"
)

// Bucket rate limits a single client using the token bucket algorithm
// with lazy refill. Refill and admission happen atomically under one
// lock, so concurrent callers never admit more than the tokens cover.
type Bucket struct {
	bucket *core.TokenBucket
	state  core.BucketState
	now    func() time.Time
	mu     sync.Mutex
}

// NewBucket creates a new token bucket with the specified capacity and refill rate.
// Capacity determines the maximum burst size (max tokens available at once).
// RefillRate determines how many tokens are added per second.
//
// Example: NewBucket(100, 10.0) creates a bucket that:
// - Allows bursts up to 100 requests
// - Refills at 10 tokens/second (600 requests/minute sustained)
//
// The bucket starts full. Capacity and refill rate are fixed for the
// lifetime of the bucket.
func NewBucket(capacity int64, refillRate float64) (*Bucket, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if refillRate <= 0 {
		return nil, ErrInvalidRefillRate
	}

	b := &Bucket{
		bucket: core.NewTokenBucket(core.Config{
			Capacity:     float64(capacity),
			RefillPerSec: refillRate,
		}),
		now: time.Now,
	}
	b.state = core.BucketState{
		Tokens:       float64(capacity),
		LastRefillAt: b.now(),
	}
	return b, nil
}

// Allow attempts to consume one token from the bucket.
// Returns true if the request is allowed (strictly more than one token
// available), false otherwise.
// This method is thread-safe and can be called concurrently.
func (b *Bucket) Allow() bool {
	return b.AllowN(1)
}

// AllowN attempts to consume n tokens from the bucket.
// The request is allowed only when the refilled token level strictly
// exceeds n; a level exactly equal to the cost is rejected.
// This method is thread-safe and can be called concurrently.
func (b *Bucket) AllowN(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, result := b.bucket.CheckN(b.state, b.now(), n)
	b.state = state
	return result.Allowed
}

// Check runs one admission decision and returns the full result,
// including the remaining tokens and the retry hint for blocked
// requests. Middleware uses this to populate response headers from a
// single consistent snapshot.
func (b *Bucket) Check(n int64) core.CheckResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, result := b.bucket.CheckN(b.state, b.now(), n)
	b.state = state
	return result
}

// Remaining returns the number of whole tokens currently available.
// This is a snapshot and may change immediately due to concurrent access.
func (b *Bucket) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = b.bucket.Refill(b.state, b.now())
	return int64(b.state.Tokens)
}

// Capacity returns the maximum capacity of the bucket.
func (b *Bucket) Capacity() int64 {
	return int64(b.bucket.Config().Capacity)
}

// RefillRate returns the refill rate (tokens per second).
func (b *Bucket) RefillRate() float64 {
	return b.bucket.Config().RefillPerSec
}

// RetryAfter reports how long to wait before a single-token request
// would be allowed. Returns 0 if a request can be made immediately.
func (b *Bucket) RetryAfter() time.Duration {
	return b.RetryAfterN(1)
}

// RetryAfterN reports how long to wait before a request costing n
// tokens would be allowed. Returns 0 if it would be allowed now.
func (b *Bucket) RetryAfterN(n int64) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = b.bucket.Refill(b.state, b.now())
	if b.state.Tokens > float64(n) {
		return 0
	}
	return time.Duration(b.bucket.RetryAfterMs(b.state, n)) * time.Millisecond
}

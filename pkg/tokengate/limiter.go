package tokengate

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// RateLimiter is the main interface for rate limiting.
type RateLimiter interface {
	// Allow checks if a request with the given key is allowed.
	// Returns a Decision indicating whether the request should be allowed.
	Allow(key string) (*Decision, error)

	// AllowN checks if a request with the given key and token cost is
	// allowed. Heavier operations can charge more than one token.
	AllowN(key string, cost int64) (*Decision, error)

	// AllowRequest is a convenience method that extracts the key from the request
	// and checks it against the policy for the request's route.
	AllowRequest(r *http.Request) (*Decision, error)

	// Middleware returns an HTTP middleware that applies rate limiting.
	Middleware(next http.Handler) http.Handler

	// StartBackgroundCleanup starts a goroutine that periodically cleans up idle buckets.
	// Returns a function to stop the cleanup goroutine.
	StartBackgroundCleanup() func()
}

// Decision contains the result of a rate limit check. All fields come from
// one atomic admission decision, so Remaining reflects the bucket exactly
// as this request left it.
type Decision struct {
	// Allowed indicates whether the request should be allowed (true) or denied (false)
	Allowed bool

	// Remaining is the number of whole tokens remaining in the bucket
	Remaining int64

	// Limit is the total capacity of the bucket (max burst)
	Limit int64

	// RetryAfter is how long to wait before the request would be allowed
	// This is 0 if Allowed is true
	RetryAfter time.Duration

	// Key is the rate limit key that was used
	Key string

	// Route is the route path that was checked
	Route string
}

// rateLimiter is the concrete implementation of RateLimiter.
type rateLimiter struct {
	store           Store
	config          *Config
	keyExtractor    KeyExtractor
	routeExtractor  func(string) string
	defaultCost     int64
	cleanupAge      time.Duration
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new RateLimiter with the given options.
// If no options are provided, it uses sensible defaults.
//
// Example:
//
//	limiter, err := NewRateLimiter(
//	    WithDefaults(100, 10.0),  // 100 tokens, 10/sec refill
//	    WithKeyExtractor(ExtractIPWithProxy()),
//	)
func NewRateLimiter(opts ...Option) (RateLimiter, error) {
	// Start with defaults
	rl := &rateLimiter{
		config:          NewConfig(),
		keyExtractor:    nil, // Will be set below
		routeExtractor:  func(path string) string { return path },
		defaultCost:     1,
		cleanupAge:      1 * time.Hour,
		cleanupInterval: 10 * time.Minute,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	// Set key extractor if not explicitly provided via option
	if rl.keyExtractor == nil {
		extractor, err := ParseKeyExtractorConfig(rl.config.KeyExtractor)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key extractor config: %w", err)
		}
		rl.keyExtractor = extractor
	}

	// Create default store if not provided
	if rl.store == nil {
		bucketConfig := rl.config.Defaults.ToBucketConfig()
		store, err := NewInMemoryStore(bucketConfig, rl.cleanupAge)
		if err != nil {
			return nil, fmt.Errorf("failed to create default store: %w", err)
		}
		rl.store = store
	}

	return rl, nil
}

// Allow checks if a single-token request with the given key is allowed.
func (rl *rateLimiter) Allow(key string) (*Decision, error) {
	return rl.AllowN(key, 1)
}

// AllowN checks if a request with the given key and token cost is allowed.
func (rl *rateLimiter) AllowN(key string, cost int64) (*Decision, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if cost <= 0 {
		return nil, ErrInvalidCost
	}

	bucket, err := rl.store.GetBucket(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return checkBucket(bucket, key, "", cost), nil
}

// checkBucket runs one admission decision and packages the snapshot.
func checkBucket(bucket *Bucket, key, route string, cost int64) *Decision {
	result := bucket.Check(cost)

	decision := &Decision{
		Allowed:   result.Allowed,
		Remaining: int64(result.Remaining),
		Limit:     bucket.Capacity(),
		Key:       key,
		Route:     route,
	}
	if !result.Allowed {
		decision.RetryAfter = time.Duration(result.RetryAfterMs) * time.Millisecond
	}
	return decision
}

// AllowRequest checks if an HTTP request is allowed based on the configured
// key extractor and the policy for the request's route. Routes with their
// own policy get buckets separate from the shared default buckets, so a
// strict policy on /api/login never spends tokens meant for other routes.
func (rl *rateLimiter) AllowRequest(r *http.Request) (*Decision, error) {
	// Extract key
	key, err := rl.keyExtractor(r)
	if err != nil {
		return nil, fmt.Errorf("key extraction failed: %w", err)
	}

	// Get route and its policy
	route := rl.routeExtractor(r.URL.Path)
	policy := rl.config.GetPolicy(route)

	// Check if rate limiting is enabled for this route
	if !policy.Enabled {
		return &Decision{
			Allowed:   true,
			Remaining: policy.Capacity,
			Limit:     policy.Capacity,
			Key:       key,
			Route:     route,
		}, nil
	}

	// Routes with a dedicated policy use a bucket namespaced by route;
	// everything on the default policy shares one bucket per client.
	bucketKey := key
	if _, hasOverride := rl.config.Policies[route]; hasOverride {
		bucketKey = route + ":" + key
	}

	bucket, err := rl.store.GetBucketWithConfig(bucketKey, policy.ToBucketConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	decision := checkBucket(bucket, key, route, rl.defaultCost)
	return decision, nil
}

// Middleware returns an HTTP middleware that applies rate limiting.
// It sets standard rate limit headers and returns 429 when limits are exceeded.
//
// Standard Headers (RFC 6585 + draft-ietf-httpapi-ratelimit-headers):
//   - X-RateLimit-Limit: Maximum requests allowed in the window
//   - X-RateLimit-Remaining: Remaining requests in current window
//   - X-RateLimit-Reset: Time when the limit resets (Unix timestamp)
//   - Retry-After: Seconds to wait before retrying (when rate limited)
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := rl.AllowRequest(r)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		// Set rate limit headers (always, even when allowed)
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))

		if !decision.Allowed {
			// Retry-After takes whole seconds, rounded up so clients never
			// retry before the bucket can admit them.
			retrySeconds := int64(math.Ceil(decision.RetryAfter.Seconds()))
			resetTime := time.Now().Add(decision.RetryAfter).Unix()
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySeconds))

			// Return 429 Too Many Requests
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		// Request allowed - proceed to next handler
		next.ServeHTTP(w, r)
	})
}

// StartBackgroundCleanup starts a goroutine that periodically cleans up idle buckets.
// Returns a function to stop the cleanup goroutine.
func (rl *rateLimiter) StartBackgroundCleanup() func() {
	// If store supports background cleanup, use it
	if inMemStore, ok := rl.store.(*InMemoryStore); ok {
		return inMemStore.StartBackgroundCleanup(rl.cleanupInterval)
	}

	// Return no-op function for stores that don't support cleanup
	return func() {}
}

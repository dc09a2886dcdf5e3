// Package tokengate provides token bucket rate limiting for Go applications.
//
// TokenGate implements the token bucket algorithm for flexible, burst-friendly
// rate limiting with per-client buckets, per-route policies, and HTTP middleware.
//
// # Quick Start
//
// Basic usage with default settings:
//
//	limiter, err := tokengate.NewRateLimiter(
//	    tokengate.WithDefaults(100, 10.0),  // 100 tokens, 10/sec refill
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := limiter.Allow("user-123")
//	if !decision.Allowed {
//	    fmt.Printf("Rate limited. Retry after %v\n", decision.RetryAfter)
//	}
//
// # Admission Rule
//
// A request costs a positive whole number of tokens (1 unless stated
// otherwise) and is admitted only when the bucket holds strictly more
// tokens than the cost. A bucket at exactly the cost rejects the request,
// so a full bucket of capacity C covers C-1 unit requests back to back.
// Rejected requests consume nothing.
//
// Buckets refill lazily: tokens accumulate with elapsed time at the
// configured rate, capped at capacity, computed at check time rather than
// by a background timer.
//
// # HTTP Middleware
//
// Use as HTTP middleware for automatic rate limiting:
//
//	limiter, _ := tokengate.NewRateLimiter(
//	    tokengate.WithDefaults(100, 10.0),
//	    tokengate.WithKeyExtractor(tokengate.ExtractIPWithProxy()),
//	)
//
//	http.Handle("/api/", limiter.Middleware(yourHandler))
//
// The middleware automatically sets standard rate limit headers:
//   - X-RateLimit-Limit: Maximum requests allowed
//   - X-RateLimit-Remaining: Remaining requests in current window
//   - X-RateLimit-Reset: Unix timestamp when limit resets
//   - Retry-After: Seconds to wait before retrying (when rate limited)
//
// # Configuration
//
// Load configuration from YAML file:
//
//	limiter, err := tokengate.NewRateLimiter(
//	    tokengate.WithConfigFile("config.yaml"),
//	)
//
// Example YAML configuration:
//
//	defaults:
//	  capacity: 100
//	  refill_rate: 10.0
//	  enabled: true
//
//	policies:
//	  "/api/login":
//	    capacity: 5
//	    refill_rate: 0.083  # ~5 req/min
//	    enabled: true
//
//	key_extractor: "ip"
//	cleanup_age: "1h"
//
// # Key Extraction
//
// Multiple strategies for identifying clients:
//
//	// Extract from IP address
//	tokengate.WithKeyExtractor(tokengate.ExtractIP())
//
//	// Extract from IP with proxy support (X-Forwarded-For, X-Real-IP)
//	tokengate.WithKeyExtractor(tokengate.ExtractIPWithProxy())
//
//	// Extract from header
//	tokengate.WithKeyExtractor(tokengate.ExtractHeader("X-API-Key"))
//
//	// Extract from Bearer token
//	tokengate.WithKeyExtractor(tokengate.ExtractBearer())
//
//	// Extract from cookie
//	tokengate.WithKeyExtractor(tokengate.ExtractCookie("session_id"))
//
//	// Composite with fallback
//	tokengate.WithKeyExtractor(tokengate.ExtractComposite(
//	    tokengate.ExtractHeader("X-API-Key"),
//	    tokengate.ExtractIPWithProxy(),  // Fallback
//	))
//
// # Concurrency
//
// All operations are thread-safe. Each bucket refills and decides under a
// single lock, so concurrent requests against one key never admit more
// than the available tokens cover. Buckets for different keys are fully
// independent.
//
// # Storage
//
// The library uses an in-memory bucket store by default, which cleans up
// idle buckets automatically and works for single-instance deployments.
// The Store interface allows custom implementations. Rule definitions (not
// bucket state) can additionally be served from Redis via the rules
// package.
//
// # Examples
//
// See the examples/ directory and cmd/demo/ for complete working examples.
package tokengate

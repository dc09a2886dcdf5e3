package tokengate

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

// freezeBucket pre-creates the bucket for key and pins it to a manual
// clock. At a frozen instant no refill can occur, so the strict admission
// boundary is observable: a bucket sitting exactly at the cost denies.
// Advance time with *clock = clock.Add(d).
func freezeBucket(t *testing.T, store *InMemoryStore, key string, config BucketConfig) *time.Time {
	t.Helper()
	bucket, err := store.GetBucketWithConfig(key, config)
	if err != nil {
		t.Fatalf("GetBucketWithConfig(%s) failed: %v", key, err)
	}
	clock := time.Now()
	bucket.now = func() time.Time { return clock }
	return &clock
}

func TestNewRateLimiter(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "default rate limiter",
			opts:    nil,
			wantErr: false,
		},
		{
			name: "with defaults option",
			opts: []Option{
				WithDefaults(100, 10.0),
			},
			wantErr: false,
		},
		{
			name: "with config option",
			opts: []Option{
				WithConfig(NewConfig()),
			},
			wantErr: false,
		},
		{
			name: "with key extractor",
			opts: []Option{
				WithKeyExtractor(ExtractIPWithProxy()),
			},
			wantErr: false,
		},
		{
			name: "multiple options",
			opts: []Option{
				WithDefaults(50, 5.0),
				WithKeyExtractor(ExtractIP()),
				WithCleanupAge(30 * time.Minute),
			},
			wantErr: false,
		},
		{
			name: "invalid defaults (zero capacity)",
			opts: []Option{
				WithDefaults(0, 10.0),
			},
			wantErr: true,
		},
		{
			name: "invalid defaults (zero refill rate)",
			opts: []Option{
				WithDefaults(100, 0),
			},
			wantErr: true,
		},
		{
			name: "invalid default cost",
			opts: []Option{
				WithDefaultCost(0),
			},
			wantErr: true,
		},
		{
			name: "nil config",
			opts: []Option{
				WithConfig(nil),
			},
			wantErr: true,
		},
		{
			name: "nil key extractor",
			opts: []Option{
				WithKeyExtractor(nil),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewRateLimiter(tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Error("NewRateLimiter() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("NewRateLimiter() unexpected error: %v", err)
				return
			}
			if limiter == nil {
				t.Fatal("NewRateLimiter() returned nil limiter")
			}
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	config := BucketConfig{Capacity: 3, RefillRate: 1.0}
	store, err := NewInMemoryStore(config, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewInMemoryStore() failed: %v", err)
	}
	freezeBucket(t, store, "testkey", config)

	limiter, err := NewRateLimiter(
		WithDefaults(3, 1.0),
		WithStore(store),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	// Capacity 3 covers two unit requests: admission needs strictly more
	// tokens than the cost.
	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow("testkey")
		if err != nil {
			t.Errorf("Allow() unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if decision.Limit != 3 {
			t.Errorf("decision.Limit = %d, want 3", decision.Limit)
		}
		if decision.Remaining != int64(2-i) {
			t.Errorf("decision.Remaining = %d, want %d", decision.Remaining, 2-i)
		}
		if decision.Key != "testkey" {
			t.Errorf("decision.Key = %s, want testkey", decision.Key)
		}
	}

	// 3rd request should be denied (one token left equals the cost)
	decision, err := limiter.Allow("testkey")
	if err != nil {
		t.Fatalf("Allow() unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Error("3rd request should be denied")
	}
	if decision.Remaining != 1 {
		t.Errorf("decision.Remaining = %d, want 1 (denials consume nothing)", decision.Remaining)
	}
	if decision.RetryAfter == 0 {
		t.Error("decision.RetryAfter should be > 0 when denied")
	}
}

func TestRateLimiter_AllowN(t *testing.T) {
	config := BucketConfig{Capacity: 10, RefillRate: 1.0}
	store, err := NewInMemoryStore(config, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewInMemoryStore() failed: %v", err)
	}
	freezeBucket(t, store, "testkey", config)

	limiter, err := NewRateLimiter(
		WithDefaults(10, 1.0),
		WithStore(store),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	// Cost 4 against 10 tokens: admitted, 6 left
	decision, err := limiter.AllowN("testkey", 4)
	if err != nil {
		t.Fatalf("AllowN() unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Error("AllowN(4) should be allowed")
	}
	if decision.Remaining != 6 {
		t.Errorf("decision.Remaining = %d, want 6", decision.Remaining)
	}

	// Cost equal to the available tokens is denied
	decision, err = limiter.AllowN("testkey", 6)
	if err != nil {
		t.Fatalf("AllowN() unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Error("AllowN(6) should be denied with exactly 6 tokens")
	}
	if decision.Remaining != 6 {
		t.Errorf("decision.Remaining = %d, want 6 (denial consumed nothing)", decision.Remaining)
	}

	// One token less goes through
	decision, err = limiter.AllowN("testkey", 5)
	if err != nil {
		t.Fatalf("AllowN() unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Error("AllowN(5) should be allowed with 6 tokens")
	}
	if decision.Remaining != 1 {
		t.Errorf("decision.Remaining = %d, want 1", decision.Remaining)
	}

	// Non-positive costs are invalid
	if _, err := limiter.AllowN("testkey", 0); !errors.Is(err, ErrInvalidCost) {
		t.Errorf("AllowN(0) error = %v, want %v", err, ErrInvalidCost)
	}
	if _, err := limiter.AllowN("testkey", -3); !errors.Is(err, ErrInvalidCost) {
		t.Errorf("AllowN(-3) error = %v, want %v", err, ErrInvalidCost)
	}
}

func TestRateLimiter_Allow_EmptyKey(t *testing.T) {
	limiter, err := NewRateLimiter()
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	_, err = limiter.Allow("")
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Allow(\"\") error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestRateLimiter_Allow_DifferentKeys(t *testing.T) {
	config := BucketConfig{Capacity: 2, RefillRate: 1.0}
	store, err := NewInMemoryStore(config, 1*time.Hour)
	if err != nil {
		t.Fatalf("NewInMemoryStore() failed: %v", err)
	}
	freezeBucket(t, store, "key1", config)
	freezeBucket(t, store, "key2", config)

	limiter, err := NewRateLimiter(
		WithDefaults(2, 1.0),
		WithStore(store),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	// Capacity 2 covers one unit request per key
	decision, _ := limiter.Allow("key1")
	if !decision.Allowed {
		t.Error("first request for key1 should be allowed")
	}

	// key1 should be exhausted
	decision, _ = limiter.Allow("key1")
	if decision.Allowed {
		t.Error("key1 should be exhausted")
	}

	// key2 should still have tokens
	decision, _ = limiter.Allow("key2")
	if !decision.Allowed {
		t.Error("key2 should have tokens (separate bucket)")
	}
}

func TestRateLimiter_AllowRequest(t *testing.T) {
	limiter, err := NewRateLimiter(
		WithDefaults(5, 1.0),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	// Create test request
	req := httptest.NewRequest("GET", "/api/test", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	// First request should be allowed
	decision, err := limiter.AllowRequest(req)
	if err != nil {
		t.Fatalf("AllowRequest() unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Error("first request should be allowed")
	}
	if decision.Route != "/api/test" {
		t.Errorf("decision.Route = %s, want /api/test", decision.Route)
	}
	if decision.Key == "" {
		t.Error("decision.Key should not be empty")
	}
}

func TestRateLimiter_AllowRequest_RoutePolicy(t *testing.T) {
	config := NewConfig()
	loginPolicy := PolicyConfig{
		Capacity:   3,
		RefillRate: 1.0,
		Enabled:    true,
	}
	config.Policies["/api/login"] = loginPolicy

	store, err := NewInMemoryStore(config.Defaults.ToBucketConfig(), 1*time.Hour)
	if err != nil {
		t.Fatalf("NewInMemoryStore() failed: %v", err)
	}
	// Buckets for routes with their own policy are namespaced by route
	freezeBucket(t, store, "/api/login:ip:192.168.1.1", loginPolicy.ToBucketConfig())

	limiter, err := NewRateLimiter(
		WithConfig(config),
		WithStore(store),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	login := httptest.NewRequest("POST", "/api/login", nil)
	login.RemoteAddr = "192.168.1.1:12345"

	// The strict login policy covers two requests
	for i := 0; i < 2; i++ {
		decision, err := limiter.AllowRequest(login)
		if err != nil {
			t.Fatalf("AllowRequest() unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("login request %d should be allowed", i+1)
		}
		if decision.Limit != 3 {
			t.Errorf("decision.Limit = %d, want 3 (route policy)", decision.Limit)
		}
	}

	decision, err := limiter.AllowRequest(login)
	if err != nil {
		t.Fatalf("AllowRequest() unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Error("3rd login request should be denied")
	}

	// Other routes use the default policy and a separate bucket, so the
	// same client is still admitted there.
	search := httptest.NewRequest("GET", "/api/search", nil)
	search.RemoteAddr = "192.168.1.1:12345"

	decision, err = limiter.AllowRequest(search)
	if err != nil {
		t.Fatalf("AllowRequest() unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Error("search request should be allowed (separate default bucket)")
	}
	if decision.Limit != 100 {
		t.Errorf("decision.Limit = %d, want 100 (default policy)", decision.Limit)
	}
}

func TestRateLimiter_AllowRequest_DisabledPolicy(t *testing.T) {
	config := NewConfig()
	config.Policies["/api/unlimited"] = PolicyConfig{
		Capacity:   100,
		RefillRate: 10.0,
		Enabled:    false, // Disabled
	}

	limiter, err := NewRateLimiter(
		WithConfig(config),
		WithKeyExtractor(ExtractIP()),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/unlimited", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	// Should always allow (rate limiting disabled for this route)
	for i := 0; i < 200; i++ {
		decision, err := limiter.AllowRequest(req)
		if err != nil {
			t.Fatalf("AllowRequest() unexpected error: %v", err)
		}
		if !decision.Allowed {
			t.Errorf("request %d should be allowed (rate limiting disabled)", i+1)
		}
	}
}

func TestRateLimiter_AllowRequest_KeyExtractionFailed(t *testing.T) {
	limiter, err := NewRateLimiter(
		WithKeyExtractor(ExtractHeader("X-API-Key")),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	// Request without X-API-Key header
	req := httptest.NewRequest("GET", "/api/test", nil)

	_, err = limiter.AllowRequest(req)
	if !errors.Is(err, ErrKeyExtractionFailed) {
		t.Errorf("AllowRequest() error = %v, want %v", err, ErrKeyExtractionFailed)
	}
}

func TestRateLimiter_AllowRequest_CompositeExtractor(t *testing.T) {
	limiter, err := NewRateLimiter(
		WithDefaults(2, 1.0),
		WithKeyExtractor(ExtractComposite(
			ExtractHeader("X-API-Key"),
			ExtractIP(), // Fallback
		)),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	// Request with API key
	req1 := httptest.NewRequest("GET", "/api/test", nil)
	req1.Header.Set("X-API-Key", "key123")
	req1.RemoteAddr = "192.168.1.1:12345"

	decision1, err := limiter.AllowRequest(req1)
	if err != nil {
		t.Fatalf("AllowRequest() unexpected error: %v", err)
	}
	if !decision1.Allowed {
		t.Error("request with API key should be allowed")
	}

	// Request from same IP but different API key (should use separate bucket)
	req2 := httptest.NewRequest("GET", "/api/test", nil)
	req2.Header.Set("X-API-Key", "key456")
	req2.RemoteAddr = "192.168.1.1:12345"

	decision2, err := limiter.AllowRequest(req2)
	if err != nil {
		t.Fatalf("AllowRequest() unexpected error: %v", err)
	}
	if !decision2.Allowed {
		t.Error("request with different API key should be allowed (separate bucket)")
	}

	// Request without API key (should fall back to IP)
	req3 := httptest.NewRequest("GET", "/api/test", nil)
	req3.RemoteAddr = "192.168.1.2:12345"

	decision3, err := limiter.AllowRequest(req3)
	if err != nil {
		t.Fatalf("AllowRequest() unexpected error: %v", err)
	}
	if !decision3.Allowed {
		t.Error("request without API key should be allowed (IP fallback)")
	}
}

func TestRateLimiter_StartBackgroundCleanup(t *testing.T) {
	config := BucketConfig{
		Capacity:   10,
		RefillRate: 1.0,
	}
	store, err := NewInMemoryStore(config, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewInMemoryStore() failed: %v", err)
	}

	limiter, err := NewRateLimiter(
		WithStore(store),
		WithCleanupInterval(100*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}

	// Add some buckets
	limiter.Allow("key1")
	limiter.Allow("key2")

	if store.Count() != 2 {
		t.Fatalf("expected 2 buckets, got %d", store.Count())
	}

	// Start background cleanup
	stop := limiter.StartBackgroundCleanup()
	defer stop()

	// Wait for buckets to age and cleanup to run
	time.Sleep(200 * time.Millisecond)

	// Buckets should be cleaned up
	if store.Count() != 0 {
		t.Errorf("expected 0 buckets after cleanup, got %d", store.Count())
	}
}

func TestWithOptions(t *testing.T) {
	t.Run("WithStore", func(t *testing.T) {
		config := BucketConfig{Capacity: 10, RefillRate: 1.0}
		store, _ := NewInMemoryStore(config, 1*time.Hour)

		limiter, err := NewRateLimiter(WithStore(store))
		if err != nil {
			t.Errorf("WithStore() unexpected error: %v", err)
		}
		if limiter == nil {
			t.Error("limiter should not be nil")
		}
	})

	t.Run("WithConfigFile", func(t *testing.T) {
		// This requires a valid config file, tested in integration tests
		_, err := NewRateLimiter(WithConfigFile("nonexistent.yaml"))
		if err == nil {
			t.Error("WithConfigFile() expected error for nonexistent file, got nil")
		}
	})

	t.Run("WithCleanupInterval", func(t *testing.T) {
		limiter, err := NewRateLimiter(
			WithCleanupInterval(5 * time.Minute),
		)
		if err != nil {
			t.Errorf("WithCleanupInterval() unexpected error: %v", err)
		}
		if limiter == nil {
			t.Error("limiter should not be nil")
		}
	})

	t.Run("WithCleanupInterval negative", func(t *testing.T) {
		_, err := NewRateLimiter(
			WithCleanupInterval(-1 * time.Minute),
		)
		if err == nil {
			t.Error("WithCleanupInterval() expected error for negative interval, got nil")
		}
	})

	t.Run("WithDefaultCost", func(t *testing.T) {
		limiter, err := NewRateLimiter(
			WithDefaults(10, 1.0),
			WithDefaultCost(3),
		)
		if err != nil {
			t.Fatalf("WithDefaultCost() unexpected error: %v", err)
		}

		req := httptest.NewRequest("GET", "/api/test", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		// Each request charges 3 tokens: 10 -> 7 -> 4 -> 1, then denied
		for i := 0; i < 3; i++ {
			decision, err := limiter.AllowRequest(req)
			if err != nil {
				t.Fatalf("AllowRequest() unexpected error: %v", err)
			}
			if !decision.Allowed {
				t.Errorf("request %d should be allowed (cost 3)", i+1)
			}
		}

		decision, err := limiter.AllowRequest(req)
		if err != nil {
			t.Fatalf("AllowRequest() unexpected error: %v", err)
		}
		if decision.Allowed {
			t.Error("4th request should be denied (1 token < cost 3)")
		}
	})
}

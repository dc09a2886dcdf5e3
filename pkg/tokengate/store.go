package tokengate

import (
	"fmt"
	"sync"
	"time"
)

// Store defines the interface for bucket storage implementations.
// This allows for different backends (in-memory, sharded, etc.)
type Store interface {
	// GetBucket retrieves a bucket for the given key.
	// If the bucket doesn't exist, it creates a new one with the default config.
	GetBucket(key string) (*Bucket, error)

	// GetBucketWithConfig retrieves a bucket for the given key, creating it
	// with the supplied config if it doesn't exist. An existing bucket keeps
	// the capacity and refill rate it was created with.
	GetBucketWithConfig(key string, config BucketConfig) (*Bucket, error)

	// Cleanup removes expired or idle buckets to prevent memory leaks.
	// Returns the number of buckets removed.
	Cleanup() (int, error)

	// Count returns the total number of buckets in the store.
	Count() int
}

// BucketConfig holds the configuration for creating new buckets.
type BucketConfig struct {
	Capacity   int64   // Maximum tokens (burst size)
	RefillRate float64 // Tokens added per second
}

// InMemoryStore implements Store using an in-memory map.
// It's thread-safe and suitable for single-instance deployments.
type InMemoryStore struct {
	buckets     map[string]*bucketEntry
	config      BucketConfig
	mu          sync.RWMutex
	cleanupAge  time.Duration // Buckets idle longer than this are cleaned up
	lastCleanup time.Time
	now         func() time.Time
}

// bucketEntry wraps a bucket with metadata for cleanup.
type bucketEntry struct {
	bucket       *Bucket
	lastAccessed time.Time
	mu           sync.Mutex // Protects lastAccessed
}

// NewInMemoryStore creates a new in-memory store with the given bucket configuration.
// cleanupAge determines how long idle buckets are kept before cleanup (0 = no cleanup).
func NewInMemoryStore(config BucketConfig, cleanupAge time.Duration) (*InMemoryStore, error) {
	if config.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if config.RefillRate <= 0 {
		return nil, ErrInvalidRefillRate
	}

	return &InMemoryStore{
		buckets:     make(map[string]*bucketEntry),
		config:      config,
		cleanupAge:  cleanupAge,
		lastCleanup: time.Now(),
		now:         time.Now,
	}, nil
}

// GetBucket retrieves or creates a bucket for the given key using the
// store's default config. This method is thread-safe.
func (s *InMemoryStore) GetBucket(key string) (*Bucket, error) {
	return s.GetBucketWithConfig(key, s.config)
}

// GetBucketWithConfig retrieves or creates a bucket for the given key.
// Buckets are independent: requests under one key never consume tokens
// from another. This method is thread-safe.
func (s *InMemoryStore) GetBucketWithConfig(key string, config BucketConfig) (*Bucket, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	// Try read lock first (fast path - bucket exists)
	s.mu.RLock()
	entry, exists := s.buckets[key]
	s.mu.RUnlock()

	if exists {
		entry.touch(s.now())
		return entry.bucket, nil
	}

	// Bucket doesn't exist, acquire write lock to create it
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check: another goroutine might have created it
	entry, exists = s.buckets[key]
	if exists {
		entry.touch(s.now())
		return entry.bucket, nil
	}

	// Create new bucket
	bucket, err := NewBucket(config.Capacity, config.RefillRate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create bucket: %v", ErrStoreFailed, err)
	}

	s.buckets[key] = &bucketEntry{
		bucket:       bucket,
		lastAccessed: s.now(),
	}

	return bucket, nil
}

func (e *bucketEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastAccessed = now
	e.mu.Unlock()
}

// Cleanup removes buckets that haven't been accessed recently.
// Returns the number of buckets removed.
func (s *InMemoryStore) Cleanup() (int, error) {
	if s.cleanupAge == 0 {
		return 0, nil // Cleanup disabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.cleanupAge)
	removed := 0

	for key, entry := range s.buckets {
		entry.mu.Lock()
		lastAccessed := entry.lastAccessed
		entry.mu.Unlock()

		if lastAccessed.Before(cutoff) {
			delete(s.buckets, key)
			removed++
		}
	}

	s.lastCleanup = now
	return removed, nil
}

// Count returns the total number of buckets in the store.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

// StartBackgroundCleanup starts a goroutine that periodically cleans up idle buckets.
// Call the returned function to stop the cleanup goroutine.
func (s *InMemoryStore) StartBackgroundCleanup(interval time.Duration) func() {
	if s.cleanupAge == 0 || interval == 0 {
		// Return no-op function if cleanup is disabled
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

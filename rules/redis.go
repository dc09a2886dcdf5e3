package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces rule keys so Clear never touches foreign data
const redisKeyPrefix = "tokengate:rule:"

// RedisStore provides Redis-backed storage for rules, letting an admin
// surface in one process feed rule changes to limiters in another.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string        // Redis address (e.g., "localhost:6379")
	Password string        // Redis password (empty for no auth)
	DB       int           // Redis database number
	TTL      time.Duration // TTL for rules (0 = rules persist until deleted)
}

// NewRedisStore creates a new Redis-backed rule store.
// Rules are configuration, not ephemeral state, so the default TTL is 0
// and entries live until deleted.
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		ttl:    config.TTL,
	}
}

// Get retrieves the rule for a client. Returns (nil, nil) when absent.
func (s *RedisStore) Get(ctx context.Context, clientID string) (*Rule, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+clientID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var rule Rule
	if err := json.Unmarshal([]byte(val), &rule); err != nil {
		return nil, fmt.Errorf("decode rule for %s: %w", clientID, err)
	}
	return &rule, nil
}

// Set stores the rule for a client after validating it
func (s *RedisStore) Set(ctx context.Context, clientID string, rule Rule) error {
	if clientID == "" {
		return ErrInvalidClientID
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encode rule for %s: %w", clientID, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+clientID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the rule for a client
func (s *RedisStore) Delete(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+clientID).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes all rule keys from Redis
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	return iter.Err()
}

// Ping checks if the Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

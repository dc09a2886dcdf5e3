package tokengate

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCapacity is returned when bucket capacity is not positive.
	// It matches errors.Is(err, ErrInvalidConfig).
	ErrInvalidCapacity = fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)

	// ErrInvalidRefillRate is returned when the refill rate is not positive.
	// It matches errors.Is(err, ErrInvalidConfig).
	ErrInvalidRefillRate = fmt.Errorf("%w: refill rate must be positive", ErrInvalidConfig)

	// ErrInvalidCost is returned when a request cost is zero or negative
	ErrInvalidCost = errors.New("request cost must be positive")

	// ErrInvalidKey is returned when the rate limit key is invalid or empty
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrStoreFailed is returned when store operations fail
	ErrStoreFailed = errors.New("store operation failed")

	// ErrKeyExtractionFailed is returned when key extraction from request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")
)

// Package rules stores per-client rate limit rules. A rule carries the
// construction parameters for a client's bucket (capacity and refill rate);
// it never holds token levels, which stay in process memory.
package rules

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRule is returned when a rule fails validation
	ErrInvalidRule = errors.New("invalid rule")

	// ErrInvalidClientID is returned when the client id is empty
	ErrInvalidClientID = errors.New("client id cannot be empty")
)

// Rule holds the bucket parameters for one client.
type Rule struct {
	// Capacity is the maximum number of tokens (burst size)
	Capacity int64 `json:"capacity"`

	// RefillRate is the number of tokens added per second
	RefillRate float64 `json:"refill_rate"`
}

// Validate checks if the rule parameters are usable for bucket construction.
func (r *Rule) Validate() error {
	if r.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidRule)
	}
	if r.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive", ErrInvalidRule)
	}
	return nil
}

// Store defines the interface for rule storage backends.
type Store interface {
	// Get retrieves the rule for a client.
	// Returns (nil, nil) when no rule exists for the client.
	Get(ctx context.Context, clientID string) (*Rule, error)

	// Set stores the rule for a client, replacing any existing one.
	Set(ctx context.Context, clientID string, rule Rule) error

	// Delete removes the rule for a client.
	// Deleting an absent rule is not an error.
	Delete(ctx context.Context, clientID string) error

	// Close releases any resources held by the store.
	Close() error
}

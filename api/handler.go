// Package api exposes the rate limit service over HTTP: an admission
// check endpoint and an admin surface for per-client rules.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/metrics"
	"github.com/tokengate/tokengate/pkg/tokengate"
	"github.com/tokengate/tokengate/rules"
)

// Handler handles rate limit check requests
type Handler struct {
	buckets       tokengate.Store
	rules         rules.Store
	defaultPolicy tokengate.BucketConfig
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	now           func() time.Time
}

// NewHandler creates a new API handler. ruleStore and m may be nil, in
// which case rule lookups and instrumentation are skipped.
func NewHandler(buckets tokengate.Store, ruleStore rules.Store, defaultPolicy tokengate.BucketConfig, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		buckets:       buckets,
		rules:         ruleStore,
		defaultPolicy: defaultPolicy,
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

// CheckRequest represents the incoming rate limit check request
type CheckRequest struct {
	ClientID     string   `json:"client_id"`                // Required: unique identifier (user ID, API key, IP)
	Cost         *int64   `json:"cost,omitempty"`           // Optional: tokens to charge (default 1)
	Capacity     *int64   `json:"capacity,omitempty"`       // Optional: override capacity for new buckets
	RefillPerSec *float64 `json:"refill_per_sec,omitempty"` // Optional: override refill rate for new buckets
}

// CheckResponse represents the rate limit check response
type CheckResponse struct {
	Allowed      bool  `json:"allowed"`                  // Whether the request is allowed
	Remaining    int64 `json:"remaining"`                // Whole tokens remaining
	Limit        int64 `json:"limit"`                    // Total capacity of the client's bucket
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"` // Milliseconds until retry (if blocked)
	ResetAt      int64 `json:"reset_at"`                 // Unix timestamp when the bucket is full again
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CheckRateLimit handles POST /check requests.
//
// The effective policy for a client is resolved as: request overrides,
// then the cached rule, then the service default. The policy only
// matters when the client's bucket is first created; existing buckets
// keep the parameters they were created with.
func (h *Handler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.ClientID == "" {
		sendError(w, http.StatusBadRequest, "missing_client_id", "client_id is required")
		return
	}

	cost := int64(1)
	if req.Cost != nil {
		cost = *req.Cost
	}
	if cost <= 0 {
		sendError(w, http.StatusBadRequest, "invalid_cost", "cost must be positive")
		return
	}

	config, err := h.effectivePolicy(r.Context(), &req)
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid_policy", "capacity and refill_per_sec must be positive")
		return
	}

	bucket, err := h.buckets.GetBucketWithConfig(req.ClientID, config)
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", req.ClientID).Msg("bucket lookup failed")
		sendError(w, http.StatusInternalServerError, "store_error", "Failed to access rate limit state")
		return
	}

	start := time.Now()
	result := bucket.Check(cost)
	if h.metrics != nil {
		h.metrics.ObserveCheck(result.Allowed, time.Since(start))
	}

	// When the bucket will be back at capacity
	secondsToFull := (float64(bucket.Capacity()) - result.Remaining) / bucket.RefillRate()
	resetAt := h.now().Add(time.Duration(secondsToFull * float64(time.Second))).Unix()

	response := CheckResponse{
		Allowed:   result.Allowed,
		Remaining: int64(result.Remaining),
		Limit:     bucket.Capacity(),
		ResetAt:   resetAt,
	}

	statusCode := http.StatusOK
	if !result.Allowed {
		response.RetryAfterMs = result.RetryAfterMs
		statusCode = http.StatusTooManyRequests
		h.logger.Debug().
			Str("client_id", req.ClientID).
			Int64("cost", cost).
			Int64("retry_after_ms", result.RetryAfterMs).
			Msg("rate limited")
	}

	sendJSON(w, statusCode, response)
}

// effectivePolicy resolves the bucket config for this request:
// request overrides > cached rule > service default. A rule lookup
// failure degrades to the default policy rather than failing the check.
func (h *Handler) effectivePolicy(ctx context.Context, req *CheckRequest) (tokengate.BucketConfig, error) {
	config := h.defaultPolicy

	if h.rules != nil {
		rule, err := h.rules.Get(ctx, req.ClientID)
		if err != nil {
			h.logger.Warn().Err(err).Str("client_id", req.ClientID).Msg("rule lookup failed, using default policy")
		} else if rule != nil {
			config = tokengate.BucketConfig{
				Capacity:   rule.Capacity,
				RefillRate: rule.RefillRate,
			}
		}
	}

	if req.Capacity != nil {
		config.Capacity = *req.Capacity
	}
	if req.RefillPerSec != nil {
		config.RefillRate = *req.RefillPerSec
	}

	if config.Capacity <= 0 || config.RefillRate <= 0 {
		return tokengate.BucketConfig{}, tokengate.ErrInvalidConfig
	}
	return config, nil
}

func sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	sendJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

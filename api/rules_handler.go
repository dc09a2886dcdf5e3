package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/rules"
)

// RulesHandler serves the admin CRUD surface over the rule cache.
// Mount it at /rules/ so paths look like /rules/<client_id>.
type RulesHandler struct {
	rules  rules.Store
	logger zerolog.Logger
}

// NewRulesHandler creates a new rules admin handler
func NewRulesHandler(store rules.Store, logger zerolog.Logger) *RulesHandler {
	return &RulesHandler{
		rules:  store,
		logger: logger,
	}
}

func (h *RulesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimPrefix(r.URL.Path, "/rules/")
	if clientID == "" || strings.Contains(clientID, "/") {
		sendError(w, http.StatusBadRequest, "invalid_client_id", "Expected /rules/<client_id>")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getRule(w, r, clientID)
	case http.MethodPut:
		h.putRule(w, r, clientID)
	case http.MethodDelete:
		h.deleteRule(w, r, clientID)
	default:
		sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET, PUT and DELETE are allowed")
	}
}

func (h *RulesHandler) getRule(w http.ResponseWriter, r *http.Request, clientID string) {
	rule, err := h.rules.Get(r.Context(), clientID)
	if err != nil {
		h.logger.Error().Err(err).Str("client_id", clientID).Msg("rule lookup failed")
		sendError(w, http.StatusInternalServerError, "store_error", "Failed to read rule")
		return
	}
	if rule == nil {
		sendError(w, http.StatusNotFound, "rule_not_found", "No rule for this client")
		return
	}
	sendJSON(w, http.StatusOK, rule)
}

func (h *RulesHandler) putRule(w http.ResponseWriter, r *http.Request, clientID string) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if err := h.rules.Set(r.Context(), clientID, rule); err != nil {
		if errors.Is(err, rules.ErrInvalidRule) || errors.Is(err, rules.ErrInvalidClientID) {
			sendError(w, http.StatusBadRequest, "invalid_rule", err.Error())
			return
		}
		h.logger.Error().Err(err).Str("client_id", clientID).Msg("rule write failed")
		sendError(w, http.StatusInternalServerError, "store_error", "Failed to store rule")
		return
	}

	h.logger.Info().
		Str("client_id", clientID).
		Int64("capacity", rule.Capacity).
		Float64("refill_rate", rule.RefillRate).
		Msg("rule updated")
	sendJSON(w, http.StatusOK, rule)
}

func (h *RulesHandler) deleteRule(w http.ResponseWriter, r *http.Request, clientID string) {
	if err := h.rules.Delete(r.Context(), clientID); err != nil {
		h.logger.Error().Err(err).Str("client_id", clientID).Msg("rule delete failed")
		sendError(w, http.StatusInternalServerError, "store_error", "Failed to delete rule")
		return
	}
	h.logger.Info().Str("client_id", clientID).Msg("rule deleted")
	w.WriteHeader(http.StatusNoContent)
}

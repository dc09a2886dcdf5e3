package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/rules"
)

func rulesRequest(t *testing.T, h *RulesHandler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRulesHandler_PutGetDelete(t *testing.T) {
	handler := NewRulesHandler(rules.NewMemoryStore(), zerolog.Nop())

	// PUT creates the rule
	rec := rulesRequest(t, handler, http.MethodPut, "/rules/premium", rules.Rule{Capacity: 50, RefillRate: 5.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d (%s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	// GET returns it
	rec = rulesRequest(t, handler, http.MethodGet, "/rules/premium", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
	var rule rules.Rule
	if err := json.NewDecoder(rec.Body).Decode(&rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if rule.Capacity != 50 || rule.RefillRate != 5.0 {
		t.Errorf("rule = %+v, want capacity 50 refill 5.0", rule)
	}

	// DELETE removes it
	rec = rulesRequest(t, handler, http.MethodDelete, "/rules/premium", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = rulesRequest(t, handler, http.MethodGet, "/rules/premium", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRulesHandler_PutOverwrites(t *testing.T) {
	handler := NewRulesHandler(rules.NewMemoryStore(), zerolog.Nop())

	rulesRequest(t, handler, http.MethodPut, "/rules/premium", rules.Rule{Capacity: 50, RefillRate: 5.0})
	rec := rulesRequest(t, handler, http.MethodPut, "/rules/premium", rules.Rule{Capacity: 80, RefillRate: 8.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = rulesRequest(t, handler, http.MethodGet, "/rules/premium", nil)
	var rule rules.Rule
	if err := json.NewDecoder(rec.Body).Decode(&rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if rule.Capacity != 80 {
		t.Errorf("capacity = %d, want 80", rule.Capacity)
	}
}

func TestRulesHandler_PutInvalidRule(t *testing.T) {
	handler := NewRulesHandler(rules.NewMemoryStore(), zerolog.Nop())

	tests := []struct {
		name string
		rule rules.Rule
	}{
		{"zero capacity", rules.Rule{Capacity: 0, RefillRate: 5.0}},
		{"negative refill", rules.Rule{Capacity: 10, RefillRate: -1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := rulesRequest(t, handler, http.MethodPut, "/rules/premium", tt.rule)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestRulesHandler_PutInvalidJSON(t *testing.T) {
	handler := NewRulesHandler(rules.NewMemoryStore(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodPut, "/rules/premium", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRulesHandler_BadPaths(t *testing.T) {
	handler := NewRulesHandler(rules.NewMemoryStore(), zerolog.Nop())

	for _, path := range []string{"/rules/", "/rules/a/b"} {
		rec := rulesRequest(t, handler, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestRulesHandler_MethodNotAllowed(t *testing.T) {
	handler := NewRulesHandler(rules.NewMemoryStore(), zerolog.Nop())

	rec := rulesRequest(t, handler, http.MethodPost, "/rules/premium", rules.Rule{Capacity: 10, RefillRate: 1.0})
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

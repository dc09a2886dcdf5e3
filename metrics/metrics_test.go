package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCheck(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveCheck(true, 50*time.Microsecond)
	m.ObserveCheck(true, 50*time.Microsecond)
	m.ObserveCheck(false, 10*time.Microsecond)

	if got := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("allowed")); got != 2 {
		t.Errorf("checks_total{outcome=allowed} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("denied")); got != 1 {
		t.Errorf("checks_total{outcome=denied} = %v, want 1", got)
	}
}

func TestMiddleware_RecordsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	handler := m.Middleware("check")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("deny") != "" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/check", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/check?deny=1", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("check", "200")); got != 3 {
		t.Errorf("requests_total{handler=check,code=200} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("check", "429")); got != 1 {
		t.Errorf("requests_total{handler=check,code=429} = %v, want 1", got)
	}
}

func TestRegisterActiveBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()

	count := 7
	RegisterActiveBuckets(reg, func() int { return count })

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "tokengate_active_buckets" {
			found = true
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 7 {
				t.Errorf("active_buckets = %v, want 7", got)
			}
		}
	}
	if !found {
		t.Error("tokengate_active_buckets not registered")
	}

	// The gauge re-reads the count on every scrape
	count = 3
	families, err = reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "tokengate_active_buckets" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
				t.Errorf("active_buckets after change = %v, want 3", got)
			}
		}
	}
}

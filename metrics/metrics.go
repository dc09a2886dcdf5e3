// Package metrics exposes Prometheus instrumentation for the rate limit
// service: admission check counters, request counters, and latency
// histograms.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChecksTotal     *prometheus.CounterVec
	CheckDuration   prometheus.Histogram
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_checks_total",
				Help: "Total admission checks by outcome",
			},
			[]string{"outcome"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tokengate_check_duration_seconds",
				Help:    "Admission check duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_requests_total",
				Help: "Total HTTP requests by handler and status code",
			},
			[]string{"handler", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokengate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
	}

	reg.MustRegister(m.ChecksTotal, m.CheckDuration, m.RequestsTotal, m.RequestDuration)
	return m
}

// ObserveCheck records one admission decision and how long it took.
func (m *Metrics) ObserveCheck(allowed bool, duration time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.ChecksTotal.WithLabelValues(outcome).Inc()
	m.CheckDuration.Observe(duration.Seconds())
}

// RegisterActiveBuckets exposes a gauge that reads the current bucket
// count from the registry on every scrape.
func RegisterActiveBuckets(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tokengate_active_buckets",
			Help: "Number of buckets currently tracked",
		},
		func() float64 { return float64(count()) },
	))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware records request count and duration under the given handler
// label.
func (m *Metrics) Middleware(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(handler).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(handler, strconv.Itoa(code)).Inc()
		})
	}
}

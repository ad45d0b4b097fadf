// Package metrics exports scoring, cache and HTTP measurements to
// Prometheus from a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lifescore"

// Metrics owns every collector. It satisfies the recorder interfaces of
// the insights cache, the score worker and the rescore processor.
type Metrics struct {
	registry *prometheus.Registry

	classified   *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	rescored     *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors, plus Go runtime and process collectors, on
// a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		classified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_classified_total",
			Help:      "Transactions scored, by whether optional fields were missing.",
		}, []string{"degraded"}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_cache_lookups_total",
			Help:      "Insight cache lookups by result.",
		}, []string{"result"}),
		rescored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rescored_transactions_total",
			Help:      "Transactions re-scored by the background processor, by outcome.",
		}, []string{"outcome"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Classified(degraded bool) {
	m.classified.WithLabelValues(strconv.FormatBool(degraded)).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Rescored(ok, failed int) {
	m.rescored.WithLabelValues("ok").Add(float64(ok))
	m.rescored.WithLabelValues("failed").Add(float64(failed))
}

// Middleware times each request. Routes are labelled by chi pattern so path
// parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Package metrics holds the Prometheus counters for authentication, codes and access decisions.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service collectors.
type Metrics struct {
	codesIssued     *prometheus.CounterVec
	codeValidations *prometheus.CounterVec
	logins          *prometheus.CounterVec
	accessDecisions *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_codes_issued_total",
			Help: "Verification and reset codes issued, by purpose.",
		}, []string{"purpose"}),
		codeValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_code_validations_total",
			Help: "Code validation attempts, by purpose and result.",
		}, []string{"purpose", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts, by result.",
		}, []string{"result"}),
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Access evaluator decisions, by resource, action and decision.",
		}, []string{"resource", "action", "decision"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(m.codesIssued, m.codeValidations, m.logins, m.accessDecisions, m.httpRequests, m.httpDuration)
	return m
}

// CodeIssued counts an issued code.
func (m *Metrics) CodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.codesIssued.WithLabelValues(purpose).Inc()
}

// CodeValidated counts a validation attempt; result is "ok" or an error kind.
func (m *Metrics) CodeValidated(purpose, result string) {
	if m == nil {
		return
	}
	m.codeValidations.WithLabelValues(purpose, result).Inc()
}

// Login counts a login attempt.
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// AccessDecision counts an evaluator outcome.
func (m *Metrics) AccessDecision(resource, action, decision string) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(resource, action, decision).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument measures request count and latency. route labels the request
// with its pattern rather than the raw path to keep cardinality bounded.
func (m *Metrics) Instrument(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(sw, r)

			status := strconv.Itoa(sw.code)
			rt := route(r)
			m.httpDuration.WithLabelValues(r.Method, rt, status).Observe(time.Since(start).Seconds())
			m.httpRequests.WithLabelValues(r.Method, rt, status).Inc()
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

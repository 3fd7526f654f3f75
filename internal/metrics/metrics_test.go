package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CodeIssued("email-verify")
	m.CodeValidated("email-verify", "ok")
	m.Login("ok")
	m.AccessDecision("order", "read", "allow")
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CodeIssued("password-reset")
	m.CodeIssued("password-reset")
	m.Login("bad_credentials")
	m.AccessDecision("order", "update", "not_owner")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.codesIssued.WithLabelValues("password-reset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("bad_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.accessDecisions.WithLabelValues("order", "update", "not_owner")))
}

func TestInstrumentAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	h := m.Instrument(func(*http.Request) string { return "/teapot" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/teapot", "418")))

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

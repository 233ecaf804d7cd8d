package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordEnrollment("student", OutcomeSuccess)
	m.RecordEnrollment("student", OutcomeSuccess)
	m.RecordProvisioning("STUDENT", OutcomeFailure)
	m.RecordLogin("LOGIN_DISABLED")
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/enrollments", http.StatusCreated, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.enrollments.WithLabelValues("student", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.provisioning.WithLabelValues("STUDENT", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("LOGIN_DISABLED")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "enrollments_created_total")
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestNilMetricsServiceIsNoop(t *testing.T) {
	var m *MetricsService
	m.RecordEnrollment("student", OutcomeSuccess)
	m.RecordProvisioning("STUDENT", OutcomeSuccess)
	m.RecordLogin(OutcomeSuccess)
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

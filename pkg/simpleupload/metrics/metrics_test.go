package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveIssue(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveIssue(10*time.Millisecond, nil)
	c.ObserveIssue(5*time.Millisecond, nil)
	c.ObserveIssue(time.Millisecond, errors.New("bad credentials"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.policiesIssued.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.policiesIssued.WithLabelValues("error")))
}

func TestRecordRequest(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordRequest("POST", "/api/r2/upload-url", 200, 3*time.Millisecond, 512)
	c.RecordRequest("POST", "/api/r2/upload-url", 401, time.Millisecond, 30)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("POST", "/api/r2/upload-url", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("POST", "/api/r2/upload-url", "401")))
}

func TestHandler(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.ObserveIssue(time.Millisecond, nil)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "simpleupload_policies_issued_total")
}

func TestHandler_ServesSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	other := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "host_requests_total",
		Help: "Requests counted by the host app",
	})
	reg.MustRegister(other)
	other.Inc()

	c := New(reg)
	c.RecordRequest("POST", "/api/r2/upload-url", 200, time.Millisecond, 10)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "host_requests_total 1")
	assert.Contains(t, rr.Body.String(), "simpleupload_http_requests_total")
}

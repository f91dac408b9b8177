// Package metrics exposes Prometheus collectors for policy issuance and
// HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records upload policy and HTTP request metrics
type Collector struct {
	policiesIssued  *prometheus.CounterVec
	issueDuration   prometheus.Histogram
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	responseSize    *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

// New registers the collectors with reg. Handler serves reg when it is also
// a Gatherer, which holds for prometheus.DefaultRegisterer and for
// prometheus.NewRegistry(); otherwise it serves the default gatherer.
func New(reg prometheus.Registerer) *Collector {
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)
	return &Collector{
		policiesIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simpleupload_policies_issued_total",
				Help: "Upload policies issued, by outcome",
			},
			[]string{"outcome"},
		),
		issueDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "simpleupload_policy_sign_duration_seconds",
				Help:    "Time spent signing upload policies",
				Buckets: prometheus.DefBuckets,
			},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simpleupload_http_requests_total",
				Help: "HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simpleupload_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		responseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simpleupload_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		gatherer: gatherer,
	}
}

// ObserveIssue implements simpleupload.IssueObserver
func (c *Collector) ObserveIssue(duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.policiesIssued.WithLabelValues(outcome).Inc()
	c.issueDuration.Observe(duration.Seconds())
}

// RecordRequest implements api.MetricsCollector
func (c *Collector) RecordRequest(method, path string, statusCode int, duration time.Duration, size int64) {
	c.requestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.responseSize.WithLabelValues(method, path).Observe(float64(size))
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

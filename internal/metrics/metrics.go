// Package metrics exposes Prometheus instrumentation: request counters and
// latencies fed by the middleware, and store gauges collected straight from
// the live index on scrape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sevino_requests_total",
		Help: "HTTP requests by method and status class.",
	}, []string{"method", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sevino_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method"})

	BytesInTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sevino_bytes_in_total",
		Help: "Request body bytes received.",
	})

	BytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sevino_bytes_out_total",
		Help: "Response body bytes sent.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sevino_store_events_total",
		Help: "Store mutations by event type.",
	}, []string{"type"})
)

// RecordRequest tracks one finished HTTP request.
func RecordRequest(method string, status int, seconds float64, bytesIn, bytesOut int64) {
	RequestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	RequestDuration.WithLabelValues(method).Observe(seconds)
	if bytesIn > 0 {
		BytesInTotal.Add(float64(bytesIn))
	}
	if bytesOut > 0 {
		BytesOutTotal.Add(float64(bytesOut))
	}
}

// RecordEvent tracks one store mutation.
func RecordEvent(eventType string) {
	EventsTotal.WithLabelValues(eventType).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// StoreCollector reads bucket and object gauges from the index at scrape
// time, so restarts and rebuilds never skew them.
type StoreCollector struct {
	counts      func() map[string]int
	bucketsDesc *prometheus.Desc
	objectsDesc *prometheus.Desc
}

// NewStoreCollector wraps a per-bucket object count snapshot function.
func NewStoreCollector(counts func() map[string]int) *StoreCollector {
	return &StoreCollector{
		counts:      counts,
		bucketsDesc: prometheus.NewDesc("sevino_buckets", "Number of buckets.", nil, nil),
		objectsDesc: prometheus.NewDesc("sevino_bucket_objects", "Objects per bucket.", []string{"bucket"}, nil),
	}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bucketsDesc
	ch <- c.objectsDesc
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	per := c.counts()
	ch <- prometheus.MustNewConstMetric(c.bucketsDesc, prometheus.GaugeValue, float64(len(per)))
	for bucket, n := range per {
		ch <- prometheus.MustNewConstMetric(c.objectsDesc, prometheus.GaugeValue, float64(n), bucket)
	}
}

// Register adds a collector to the default registry.
func Register(c prometheus.Collector) error {
	return prometheus.Register(c)
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

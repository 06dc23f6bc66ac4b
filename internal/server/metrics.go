package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed on /metrics.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	documentsIngested prometheus.Counter
	chunksIngested    prometheus.Counter
	queriesTotal      *prometheus.CounterVec
	queryDuration     prometheus.Histogram
	indexVectors      prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "askdocs"
	}
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	m.documentsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_documents_total",
		Help:      "Documents ingested since start",
	})
	m.chunksIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_chunks_total",
		Help:      "Chunks indexed since start",
	})
	m.queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Questions answered, by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)
	m.queryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "End-to-end question answering latency",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
	})
	m.indexVectors = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_vectors",
		Help:      "Vectors currently held by the index",
	})

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.documentsIngested,
		m.chunksIngested,
		m.queriesTotal,
		m.queryDuration,
		m.indexVectors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware records request counts and latencies.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		c.Next()
		m.requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
}

func (m *Metrics) observeIngest(chunks int) {
	m.documentsIngested.Inc()
	m.chunksIngested.Add(float64(chunks))
}

func (m *Metrics) observeQuery(intent, outcome string, d time.Duration) {
	if intent == "" {
		intent = "none"
	}
	m.queriesTotal.WithLabelValues(intent, outcome).Inc()
	m.queryDuration.Observe(d.Seconds())
}

func (m *Metrics) setVectors(n int) {
	m.indexVectors.Set(float64(n))
}

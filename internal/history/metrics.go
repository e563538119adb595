package history

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "chatsync"

type serverMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rateLimited prometheus.Counter
	stored      prometheus.Gauge
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "requests_total",
			Help:      "History API requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "request_duration_seconds",
			Help:      "History API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "rate_limited_total",
			Help:      "POSTs rejected by the rate limiter.",
		}),
		stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "history",
			Name:      "stored_messages",
			Help:      "Messages in the last stored history.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.rateLimited, m.stored)
	return m
}

func (m *serverMetrics) observe(method string, code int, d time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(method).Observe(d.Seconds())
}

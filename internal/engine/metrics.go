package engine

import "github.com/prometheus/client_golang/prometheus"

// MetricsSubsystem is the Prometheus subsystem of session metrics.
const MetricsSubsystem = "session"

// Metrics contains metrics exposed by the session.
type Metrics struct {
	// Actions applied to the log, by origin (local, remote) and type.
	ActionsApplied *prometheus.CounterVec
	// Inbound copies of this session's own actions that were dropped.
	EchoesSuppressed prometheus.Counter
	// Payloads discarded because they failed to decode.
	DecodeErrors prometheus.Counter
	// Snapshots that arrived after bootstrap completed.
	StaleSnapshots prometheus.Counter
	// How bootstrap completed, by source (snapshot, timeout, failure).
	Bootstraps *prometheus.CounterVec
	// Local actions not published because the connection was down.
	PublishDropped prometheus.Counter
	// Publishes that the transport rejected.
	PublishErrors prometheus.Counter
	// Snapshot write attempts, by result (written, unchanged, failed).
	PersistWrites *prometheus.CounterVec
	// Messages currently in the log.
	LogMessages prometheus.Gauge
	// 1 while the connection status is Connected.
	Connected prometheus.Gauge
}

// NewMetrics builds session metrics and registers them with reg. A nil
// reg leaves them unregistered, which is what tests and embedded callers
// that do not export metrics want.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "actions_applied_total",
			Help:      "Actions applied to the log.",
		}, []string{"origin", "type"}),
		EchoesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "echoes_suppressed_total",
			Help:      "Inbound copies of own actions that were dropped.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "decode_errors_total",
			Help:      "Payloads discarded because they failed to decode.",
		}),
		StaleSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "stale_snapshots_total",
			Help:      "Snapshots that arrived after bootstrap completed.",
		}),
		Bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bootstraps_total",
			Help:      "Completed bootstraps by source.",
		}, []string{"source"}),
		PublishDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "publish_dropped_total",
			Help:      "Local actions not published because the connection was down.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "publish_errors_total",
			Help:      "Publishes rejected by the transport.",
		}),
		PersistWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "persist_writes_total",
			Help:      "Snapshot write attempts by result.",
		}, []string{"result"}),
		LogMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "log_messages",
			Help:      "Messages currently in the log.",
		}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "connected",
			Help:      "1 while the connection status is Connected.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ActionsApplied,
			m.EchoesSuppressed,
			m.DecodeErrors,
			m.StaleSnapshots,
			m.Bootstraps,
			m.PublishDropped,
			m.PublishErrors,
			m.PersistWrites,
			m.LogMessages,
			m.Connected,
		)
	}
	return m
}

// NopMetrics returns unregistered metrics.
func NopMetrics() *Metrics {
	return NewMetrics("", nil)
}

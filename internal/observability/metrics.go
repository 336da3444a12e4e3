package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	TrackedTasks     prometheus.Gauge
	UnreadTasks      prometheus.Gauge
	ReconcileEvents  *prometheus.CounterVec
	StreamFrames     *prometheus.CounterVec
	StreamReconnects prometheus.Counter
	SendLatency      prometheus.Histogram
	UIMessages       *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TrackedTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_tasks",
			Help:      "Number of tasks known to the registry.",
		}),
		UnreadTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_tasks",
			Help:      "Number of tasks flagged as having unseen updates.",
		}),
		ReconcileEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_events_total",
			Help:      "Reconciled events by source and outcome.",
		}, []string{"source", "outcome"}),
		StreamFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Subscription frames by decode result.",
		}, []string{"result"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Subscription websocket reconnect attempts.",
		}),
		SendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_latency_ms",
			Help:      "Latency of tasks/send round trips in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}),
		UIMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ui_messages_total",
			Help:      "Presentation websocket pushes by kind and result.",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) ObserveReconcile(source, outcome string) {
	if m == nil {
		return
	}
	m.ReconcileEvents.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveStreamFrame(result string) {
	if m == nil {
		return
	}
	m.StreamFrames.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStreamReconnect() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

func (m *Metrics) ObserveSendLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.SendLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SetTaskGauges(tracked, unread int) {
	if m == nil {
		return
	}
	m.TrackedTasks.Set(float64(tracked))
	m.UnreadTasks.Set(float64(unread))
}

func (m *Metrics) ObserveUIMessage(kind, result string) {
	if m == nil {
		return
	}
	m.UIMessages.WithLabelValues(kind, result).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

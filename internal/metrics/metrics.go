// Package metrics holds the Prometheus collectors for a cipherline client.
//
// A nil *Metrics is valid: every method is a no-op, so components can be
// built without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cipherline"

// Metrics groups the client collectors.
type Metrics struct {
	framesReceived   *prometheus.CounterVec
	frameErrors      *prometheus.CounterVec
	decryptFailures  prometheus.Counter
	groupKeyOutcomes *prometheus.CounterVec
	wrapResults      *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	unreadResyncs    prometheus.Counter
	eventsDropped    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "frames_received_total",
			Help: "Inbound frames by type.",
		}, []string{"type"}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "frame_errors_total",
			Help: "Inbound frames that could not be processed, by reason.",
		}, []string{"reason"}),
		decryptFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "decrypt_failures_total",
			Help: "Message bodies that failed to decrypt.",
		}),
		groupKeyOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "groupkey", Name: "resolutions_total",
			Help: "Group key resolutions by outcome.",
		}, []string{"outcome"}),
		wrapResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "groupkey", Name: "wraps_total",
			Help: "Group key wraps published, by result.",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "channel", Name: "outbound_queue_depth",
			Help: "Frames waiting for the channel to open.",
		}),
		unreadResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "unread_resyncs_total",
			Help: "Unread count reconciliations against the server.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "events_dropped_total",
			Help: "Events dropped because the consumer was not keeping up.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.framesReceived, m.frameErrors, m.decryptFailures, m.groupKeyOutcomes,
			m.wrapResults, m.queueDepth, m.unreadResyncs, m.eventsDropped,
		)
	}
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameReceived(kind string) {
	if m != nil {
		m.framesReceived.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FrameError(reason string) {
	if m != nil {
		m.frameErrors.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) DecryptFailed() {
	if m != nil {
		m.decryptFailures.Inc()
	}
}

func (m *Metrics) GroupKeyResolved(outcome string) {
	if m != nil {
		m.groupKeyOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) WrapPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.wrapResults.WithLabelValues(result).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.queueDepth.Set(float64(n))
	}
}

func (m *Metrics) UnreadResynced() {
	if m != nil {
		m.unreadResyncs.Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

// Package metrics provides Prometheus metrics for the voice coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "angelvoice"

// Metrics implements ports.Telemetry on Prometheus collectors.
type Metrics struct {
	ConnectionAttempts prometheus.Counter
	Reconnects         prometheus.Counter
	ConnectedGauge     prometheus.Gauge

	WakeWords          prometheus.Counter
	Commands           prometheus.Counter
	ResultsDropped     *prometheus.CounterVec
	RecognitionErrors  *prometheus.CounterVec
	ConfidenceObserved prometheus.Histogram

	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Total number of backend dial attempts",
		}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of scheduled reconnects",
		}),
		ConnectedGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the backend connection is open",
		}),

		WakeWords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_words_detected_total",
			Help:      "Total number of accepted wake word detections",
		}),
		Commands: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of captured commands",
		}),
		ResultsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_dropped_total",
			Help:      "Final recognition results that produced no event",
		}, []string{"reason"}),
		RecognitionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Recognition errors by engine code",
		}, []string{"code"}),
		ConfidenceObserved: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "corrected_confidence",
			Help:      "Confidence of final results after correction",
			Buckets:   prometheus.LinearBuckets(0.3, 0.05, 14),
		}),

		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages sent to the backend by type",
		}, []string{"type"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from the backend by type",
		}, []string{"type"}),
	}
}

func (m *Metrics) ConnectionAttempt() { m.ConnectionAttempts.Inc() }
func (m *Metrics) Reconnect()         { m.Reconnects.Inc() }

func (m *Metrics) Connected(connected bool) {
	if connected {
		m.ConnectedGauge.Set(1)
		return
	}
	m.ConnectedGauge.Set(0)
}

func (m *Metrics) Confidence(value float64)     { m.ConfidenceObserved.Observe(value) }
func (m *Metrics) WakeWordDetected()            { m.WakeWords.Inc() }
func (m *Metrics) Command()                     { m.Commands.Inc() }
func (m *Metrics) ResultDropped(reason string)  { m.ResultsDropped.WithLabelValues(reason).Inc() }
func (m *Metrics) RecognitionError(code string) { m.RecognitionErrors.WithLabelValues(code).Inc() }
func (m *Metrics) MessageSent(kind string)      { m.MessagesSent.WithLabelValues(kind).Inc() }
func (m *Metrics) MessageReceived(kind string)  { m.MessagesReceived.WithLabelValues(kind).Inc() }

// Package metrics holds the Prometheus collectors shared by the worker and the coordinator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "asr"

// Label values for decode errors. ReasonOther also buckets unknown response types.
const (
	ReasonTruncated       = "truncated"
	ReasonInvalidEncoding = "invalid_encoding"
	ReasonOther           = "other"
)

// Metrics contains all Prometheus metrics for the ASR worker and coordinator
type Metrics struct {
	// Worker frame metrics
	FramesReceived prometheus.Counter
	FramesDecoded  prometheus.Counter
	DecodeErrors   *prometheus.CounterVec
	TextMessages   prometheus.Counter
	ResponsesSent  prometheus.Counter

	// Recognition metrics
	RecognizeFailures prometheus.Counter
	RecognizeDuration prometheus.Histogram

	// Session registry metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved prometheus.Counter

	// Coordinator metrics
	ConnectedWorkers prometheus.Gauge
	ConnectedDevices prometheus.Gauge
	FramesSent       prometheus.Counter
	ResponsesRouted  *prometheus.CounterVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of binary frames received by the worker",
		}),
		FramesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Total number of frames decoded successfully",
		}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_decode_errors_total",
			Help:      "Total number of discarded frames by reason",
		}, []string{"reason"}),
		TextMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "text_messages_total",
			Help:      "Total number of non-frame text messages received by the worker",
		}),
		ResponsesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_sent_total",
			Help:      "Total number of responses sent by the worker",
		}),

		RecognizeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognize_failures_total",
			Help:      "Total number of failed recognition calls",
		}),
		RecognizeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognize_duration_seconds",
			Help:      "Time spent in the recognizer per frame",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of sessions in the registry",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_removed_total",
			Help:      "Total number of sessions removed",
		}),

		ConnectedWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_workers",
			Help:      "Current number of workers connected to the coordinator",
		}),
		ConnectedDevices: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_devices",
			Help:      "Current number of devices connected to the coordinator",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames sent to workers",
		}),
		ResponsesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_routed_total",
			Help:      "Total number of worker responses handled by the coordinator, by type",
		}, []string{"type"}),
	}
}

// NewUnregistered creates metrics backed by a private registry, for tests and tools
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

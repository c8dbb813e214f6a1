// Package metrics exposes dashboard counters on a private Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "agrovision"

var connectionStates = []string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

// Metrics holds every collector. It implements frames.Recorder and
// alerts.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	framesApplied     *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	frameDecodeErrors *prometheus.CounterVec
	cameras           prometheus.Gauge

	alertsReceived *prometheus.CounterVec
	alertsEvicted  prometheus.Counter
	alertsExpired  prometheus.Counter
	alertsDropped  prometheus.Counter
	notifications  *prometheus.CounterVec

	reconnectAttempts prometheus.Counter
	connectionState   *prometheus.GaugeVec

	chatStreams    *prometheus.CounterVec
	speechFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with runtime collectors on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "frames", Name: "applied_total",
			Help: "Camera frames swapped into their render target.",
		}, []string{"camera"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "frames", Name: "dropped_total",
			Help: "Camera frames dropped before display.",
		}, []string{"reason"}),
		frameDecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "frames", Name: "decode_failures_total",
			Help: "Camera frames that failed to decode.",
		}, []string{"camera"}),
		cameras: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "frames", Name: "cameras",
			Help: "Cameras seen this session.",
		}),
		alertsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "received_total",
			Help: "Alerts inserted into the alert list.",
		}, []string{"severity"}),
		alertsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "evicted_total",
			Help: "Alerts evicted for capacity.",
		}),
		alertsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "expired_total",
			Help: "Alerts removed after their time to live.",
		}),
		alertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "dropped_total",
			Help: "Malformed alerts dropped.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alerts", Name: "notifications_total",
			Help: "High severity notifications by outcome.",
		}, []string{"outcome"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "channel", Name: "reconnect_attempts_total",
			Help: "Reconnect attempts made by the event channel.",
		}),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "channel", Name: "state",
			Help: "1 for the current connection state.",
		}, []string{"state"}),
		chatStreams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "streams_total",
			Help: "Chat exchanges by outcome.",
		}, []string{"outcome"}),
		speechFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "chat", Name: "speech_failures_total",
			Help: "Speech synthesis, playback and transcription failures.",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.framesApplied, m.framesDropped, m.frameDecodeErrors, m.cameras,
		m.alertsReceived, m.alertsEvicted, m.alertsExpired, m.alertsDropped, m.notifications,
		m.reconnectAttempts, m.connectionState,
		m.chatStreams, m.speechFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.SetConnectionState("disconnected")
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) FrameApplied(cameraID string) { m.framesApplied.WithLabelValues(cameraID).Inc() }

func (m *Metrics) FrameDropped(reason string) { m.framesDropped.WithLabelValues(reason).Inc() }

func (m *Metrics) FrameDecodeFailed(cameraID string) {
	m.frameDecodeErrors.WithLabelValues(cameraID).Inc()
}

// SetCameras records the number of known cameras.
func (m *Metrics) SetCameras(n int) { m.cameras.Set(float64(n)) }

func (m *Metrics) AlertReceived(severity string) { m.alertsReceived.WithLabelValues(severity).Inc() }

func (m *Metrics) AlertEvicted() { m.alertsEvicted.Inc() }

func (m *Metrics) AlertExpired() { m.alertsExpired.Inc() }

func (m *Metrics) AlertDropped() { m.alertsDropped.Inc() }

func (m *Metrics) NotificationFired() { m.notifications.WithLabelValues("fired").Inc() }

func (m *Metrics) NotificationSuppressed() { m.notifications.WithLabelValues("suppressed").Inc() }

// ReconnectAttempt counts one reconnect dial.
func (m *Metrics) ReconnectAttempt() { m.reconnectAttempts.Inc() }

// SetConnectionState marks state as the only active connection state.
func (m *Metrics) SetConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(s).Set(v)
	}
}

// ChatStream counts a finished chat exchange ("ok" or "error").
func (m *Metrics) ChatStream(outcome string) { m.chatStreams.WithLabelValues(outcome).Inc() }

// SpeechFailed counts a failure of kind "tts", "playback" or "stt".
func (m *Metrics) SpeechFailed(kind string) { m.speechFailures.WithLabelValues(kind).Inc() }

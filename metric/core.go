package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the participant.
const Namespace = "simstation"

// Metrics contains the participant-level metrics shared by the driver and broker client.
// All Record methods are no-ops on a nil *Metrics.
type Metrics struct {
	// Participant metrics
	ServiceStatus     *prometheus.GaugeVec
	MessagesReceived  *prometheus.CounterVec
	MessagesPublished *prometheus.CounterVec
	DecodeFailures    *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	CurrentEpoch      *prometheus.GaugeVec
	EpochDuration     *prometheus.HistogramVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "service",
				Name:      "status",
				Help:      "Service status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"service"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of decoded messages received",
			},
			[]string{"service", "type"},
		),

		MessagesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of messages published",
			},
			[]string{"service", "topic"},
		),

		DecodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "messages",
				Name:      "decode_failures_total",
				Help:      "Total number of inbound payloads that could not be decoded",
			},
			[]string{"service", "topic"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"service", "type"},
		),

		CurrentEpoch: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "epoch",
				Name:      "current",
				Help:      "Epoch number currently being processed",
			},
			[]string{"service"},
		),

		EpochDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "epoch",
				Name:      "duration_seconds",
				Help:      "Time from epoch start to the ready status",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"service"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordServiceStatus updates service status metric
func (c *Metrics) RecordServiceStatus(service string, status int) {
	if c == nil {
		return
	}
	c.ServiceStatus.WithLabelValues(service).Set(float64(status))
}

// RecordMessageReceived increments received message counter
func (c *Metrics) RecordMessageReceived(service, messageType string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(service, messageType).Inc()
}

// RecordMessagePublished increments published message counter
func (c *Metrics) RecordMessagePublished(service, topic string) {
	if c == nil {
		return
	}
	c.MessagesPublished.WithLabelValues(service, topic).Inc()
}

// RecordDecodeFailure increments the decode failure counter
func (c *Metrics) RecordDecodeFailure(service, topic string) {
	if c == nil {
		return
	}
	c.DecodeFailures.WithLabelValues(service, topic).Inc()
}

// RecordError increments error counter
func (c *Metrics) RecordError(service, errorType string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(service, errorType).Inc()
}

// RecordEpochStarted sets the current epoch gauge
func (c *Metrics) RecordEpochStarted(service string, epoch int) {
	if c == nil {
		return
	}
	c.CurrentEpoch.WithLabelValues(service).Set(float64(epoch))
}

// RecordEpochCompleted observes how long the epoch took
func (c *Metrics) RecordEpochCompleted(service string, duration time.Duration) {
	if c == nil {
		return
	}
	c.EpochDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	if c == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	if c == nil {
		return
	}
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	if c == nil {
		return
	}
	c.NATSCircuitBreaker.Set(float64(state))
}

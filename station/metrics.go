package station

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/simstation/metric"
)

// Request outcomes recorded by the requests counter.
const (
	outcomeAccepted     = "accepted"
	outcomeOtherStation = "other_station"
	outcomeDuplicate    = "duplicate"
	outcomeWrongEpoch   = "wrong_epoch"
	outcomeNoEpoch      = "no_epoch"
)

// stationMetrics holds Prometheus metrics for the station state machine.
type stationMetrics struct {
	requests  *prometheus.CounterVec // By station and outcome
	published *prometheus.CounterVec // By station and message type
	failures  *prometheus.CounterVec // By station and stage (encode, publish)
	maxPower  *prometheus.GaugeVec   // By station
	output    *prometheus.GaugeVec   // By station, last PowerOutput sent
}

// newStationMetrics creates and registers station metrics with the provided registry.
func newStationMetrics(registry *metric.MetricsRegistry) (*stationMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &stationMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "requests_total",
			Help:      "Power requirement messages received, by outcome",
		}, []string{"station", "outcome"}),

		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "published_total",
			Help:      "Station messages published",
		}, []string{"station", "type"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "send_failures_total",
			Help:      "Outbound station messages that could not be built or delivered",
		}, []string{"station", "stage"}),

		maxPower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "max_power",
			Help:      "Configured maximum power of the station",
		}, []string{"station"}),

		output: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "station",
			Name:      "power_output",
			Help:      "Last power output published by the station",
		}, []string{"station"}),
	}

	if err := registry.RegisterCounterVec("station", "requests_total", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("station", "published_total", m.published); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("station", "send_failures_total", m.failures); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("station", "max_power", m.maxPower); err != nil {
		return nil, err
	}
	if err := registry.RegisterGaugeVec("station", "power_output", m.output); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *stationMetrics) recordRequest(station, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(station, outcome).Inc()
}

func (m *stationMetrics) recordPublished(station, messageType string) {
	if m == nil {
		return
	}
	m.published.WithLabelValues(station, messageType).Inc()
}

func (m *stationMetrics) recordFailure(station, stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(station, stage).Inc()
}

func (m *stationMetrics) setMaxPower(station string, power int) {
	if m == nil {
		return
	}
	m.maxPower.WithLabelValues(station).Set(float64(power))
}

func (m *stationMetrics) setOutput(station string, power int) {
	if m == nil {
		return
	}
	m.output.WithLabelValues(station).Set(float64(power))
}

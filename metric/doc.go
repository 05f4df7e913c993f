// Package metric provides Prometheus metrics for the simulation participant and an
// HTTP server that exposes them.
//
// A MetricsRegistry owns a private prometheus.Registry with the core participant
// metrics (messages received and published, decode failures, errors, current epoch,
// epoch duration, NATS connectivity) already registered, plus the Go runtime and
// process collectors. Components register their own collectors through the
// MetricsRegistrar methods, keyed by service and metric name:
//
//	registry := metric.NewMetricsRegistry()
//	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
//	    Namespace: metric.Namespace,
//	    Subsystem: "station",
//	    Name:      "requests_total",
//	    Help:      "Power requirement messages by outcome",
//	}, []string{"station", "outcome"})
//	if err := registry.RegisterCounterVec("station", "requests_total", requests); err != nil {
//	    return err
//	}
//
// Registering the same service and metric name twice returns an invalid-class error.
//
// Core metrics are recorded through registry.CoreMetrics(). Every Record method is a
// no-op on a nil *Metrics, so components built without a registry need no guards.
//
// Server serves /metrics in the Prometheus exposition format and /health:
//
//	server := metric.NewServer(9090, "/metrics", registry, nil)
//	go func() { _ = server.Start() }()
//	defer server.Stop(5 * time.Second)
package metric

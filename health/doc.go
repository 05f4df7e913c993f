// Package health provides thread-safe health tracking for the participant's components
// and an HTTP handler that serves the aggregate.
//
// # Health States
//
// A Status is healthy, degraded or unhealthy. Aggregate combines sub-statuses: any
// unhealthy child makes the parent unhealthy, otherwise any degraded child makes it
// degraded.
//
// # Usage
//
//	monitor := health.NewMonitor()
//	monitor.Update("broker", health.NewDegraded("broker", "reconnecting"))
//	monitor.Watch("driver", driver) // anything with Health() health.Status
//
//	http.Handle("/health", monitor.Handler("station"))
//
// The handler refreshes watched providers, aggregates, and writes the result as JSON with
// status 200, or 503 when the aggregate is unhealthy.
//
// # Sanitization
//
// FromError builds an unhealthy status from an error. Its message is stripped of URLs,
// file paths, IP addresses, ports and credential-looking pairs:
//
//	health.FromError("nats", err)
//	// "dial nats://10.0.0.5:4222 refused" becomes "dial [URL] refused"
package health

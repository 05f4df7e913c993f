// Package natsclient provides the NATS transport for simulation participants, with
// circuit breaker protection and automatic reconnection.
//
// Client satisfies simulation.Broker: Publish sends an encoded message to a subject and
// Subscribe delivers a subject to a handler until the subscription context is done.
// Topics map one to one onto NATS subjects.
//
// # Circuit Breaker
//
// Connection failures are counted. After the threshold (default 5) the circuit opens and
// Connect fails fast with ErrCircuitOpen. After the current backoff the circuit half-opens
// and the next Connect may try again. Each round that ends open doubles the backoff up to
// the configured maximum. A successful connect or reconnect resets it.
//
// # Connection Lifecycle
//
// Disconnected → Connecting → Connected → Reconnecting → Connected. Status reports the
// current state and Health turns it into a health.Status for the health endpoint:
// connected is healthy, connecting or reconnecting is degraded, anything else unhealthy.
//
// # TLS
//
// WithTLSConfig secures the connection. Build the config with tlsutil.LoadClientTLSConfig
// to trust extra CAs or present a client certificate.
//
// # Usage
//
//	client, err := natsclient.NewClient(cfg.NATSURL,
//	    natsclient.WithName("station-xyz"),
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(metricsRegistry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	err = client.Subscribe(ctx, "Epoch", func(ctx context.Context, data []byte) {
//	    msg, err := registry.Decode(data)
//	    // ...
//	})
//
// # Errors
//
// Errors from Publish, Subscribe and Connect are classified transient (see the errors
// package), so callers may retry them. ErrNotConnected wraps errors.ErrNoConnection.
//
// # Testing
//
// NewTestClient starts a NATS server in a container via testcontainers-go and returns a
// connected client cleaned up with the test. Integration tests run only with
// INTEGRATION_TESTS=1.
package natsclient

package natsclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/health"
	"github.com/c360/simstation/metric"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error values returned by the client. Both classify as transient.
var (
	ErrNotConnected = fmt.Errorf("not connected to NATS: %w", errors.ErrNoConnection)
	ErrCircuitOpen  = fmt.Errorf("nats: %w", errors.ErrCircuitOpen)
)

// Status holds runtime status information for the client
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	LastFailureTime time.Time
	Reconnects      int32
	RTT             time.Duration
}

// Client is the NATS transport of a simulation participant. It publishes encoded
// messages and delivers subscribed subjects to handlers, guarding connection attempts
// with a circuit breaker.
type Client struct {
	url      string
	status   atomic.Value // stores ConnectionStatus
	failures atomic.Int32
	logger   *slog.Logger
	metrics  *metric.Metrics

	conn *nats.Conn
	subs []*nats.Subscription

	// Circuit breaker
	lastFailure      atomic.Value // stores time.Time
	backoff          atomic.Value // stores time.Duration
	circuitFailures  atomic.Int32 // failures in current circuit round
	circuitThreshold int32        // failures before opening circuit
	maxBackoff       time.Duration
	reconnects       atomic.Int32

	// Connection options
	maxReconnects  int
	reconnectWait  time.Duration
	pingInterval   time.Duration
	timeout        time.Duration
	drainTimeout   time.Duration
	handlerTimeout time.Duration

	// Authentication, cleared on close
	username string
	password string
	token    string

	clientName string
	tlsConfig  *tls.Config

	// Callbacks
	onDisconnect   func(error)
	onReconnect    func()
	onHealthChange func(bool)

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a new NATS client with optional configuration
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default(),
		maxReconnects:    -1, // infinite by default
		reconnectWait:    2 * time.Second,
		pingInterval:     30 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
		handlerTimeout:   30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	c.lastFailure.Store(time.Time{})

	c.logger.Debug("Created NATS client", "url", url)
	return c, nil
}

// URL returns the NATS server URL
func (m *Client) URL() string {
	return m.url
}

// Status returns the current connection status
func (m *Client) Status() ConnectionStatus {
	val := m.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// GetConnection returns the current NATS connection
func (m *Client) GetConnection() *nats.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Client) setStatus(status ConnectionStatus) {
	m.status.Store(status)
	m.metrics.RecordNATSStatus(status == StatusConnected)
	if status == StatusCircuitOpen {
		m.metrics.RecordCircuitBreakerState(1)
	} else {
		m.metrics.RecordCircuitBreakerState(0)
	}
}

// IsHealthy returns true if the connection is healthy
func (m *Client) IsHealthy() bool {
	return m.Status() == StatusConnected
}

// Failures returns the current failure count
func (m *Client) Failures() int32 {
	return m.failures.Load()
}

// Backoff returns the current backoff duration
func (m *Client) Backoff() time.Duration {
	return m.backoff.Load().(time.Duration)
}

// recordFailure records a connection failure and opens the circuit after the
// threshold. Each round that ends opened doubles the backoff up to maxBackoff.
func (m *Client) recordFailure() {
	totalFailures := m.failures.Add(1)
	m.lastFailure.Store(time.Now())
	circuitFailures := m.circuitFailures.Add(1)

	m.logger.Debug("Recorded connection failure", "failures", totalFailures, "circuit_failures", circuitFailures)

	if circuitFailures < m.circuitThreshold {
		return
	}

	currentBackoff := m.backoff.Load().(time.Duration)
	newBackoff := currentBackoff * 2
	if newBackoff > m.maxBackoff {
		newBackoff = m.maxBackoff
	}

	currentStatus := m.Status()
	if currentStatus == StatusCircuitOpen {
		m.backoff.Store(newBackoff)
		m.circuitFailures.Store(0)
		m.logger.Warn("Circuit breaker still open", "backoff", newBackoff)
		return
	}

	// only one goroutine opens the circuit
	if m.status.CompareAndSwap(currentStatus, StatusCircuitOpen) {
		m.metrics.RecordNATSStatus(false)
		m.metrics.RecordCircuitBreakerState(1)
		m.backoff.Store(newBackoff)
		m.circuitFailures.Store(0)
		m.logger.Warn("Circuit breaker opened", "failures", circuitFailures, "backoff", currentBackoff)
		time.AfterFunc(currentBackoff, m.testCircuit)
	}
}

// resetCircuit resets the circuit breaker state
func (m *Client) resetCircuit() {
	m.failures.Store(0)
	m.circuitFailures.Store(0)
	m.backoff.Store(time.Second)
	m.lastFailure.Store(time.Time{})

	if m.Status() == StatusCircuitOpen {
		m.setStatus(StatusDisconnected)
	}
}

// testCircuit half-opens the circuit so the next Connect may try again.
func (m *Client) testCircuit() {
	if m.Status() == StatusCircuitOpen {
		m.logger.Debug("Circuit breaker half-open, next connect attempt allowed")
		m.setStatus(StatusDisconnected)
	}
}

// WaitForConnection waits for the connection to be established
func (m *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Client", "WaitForConnection", "wait for connection")
		case <-ticker.C:
			if m.IsHealthy() {
				return nil
			}
		}
	}
}

// ConnectionOptions returns the NATS connection options
func (m *Client) ConnectionOptions() []nats.Option {
	return m.buildConnectionOptions()
}

func (m *Client) buildConnectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(m.maxReconnects),
		nats.ReconnectWait(m.reconnectWait),
		nats.PingInterval(m.pingInterval),
		nats.Timeout(m.timeout),
		nats.DrainTimeout(m.drainTimeout),
		nats.DisconnectErrHandler(m.handleDisconnect),
		nats.ReconnectHandler(m.handleReconnect),
		nats.ClosedHandler(m.handleClosed),
		nats.ErrorHandler(m.handleError),
	}

	if m.username != "" && m.password != "" {
		opts = append(opts, nats.UserInfo(m.username, m.password))
	}
	if m.token != "" {
		opts = append(opts, nats.Token(m.token))
	}
	if m.clientName != "" {
		opts = append(opts, nats.Name(m.clientName))
	}
	if m.tlsConfig != nil {
		opts = append(opts, nats.Secure(m.tlsConfig))
	}

	return opts
}

// GetStatus returns current status information
func (m *Client) GetStatus() *Status {
	status := &Status{
		Status:          m.Status(),
		FailureCount:    m.failures.Load(),
		LastFailureTime: m.lastFailure.Load().(time.Time),
		Reconnects:      m.reconnects.Load(),
	}
	if rtt, err := m.RTT(); err == nil {
		status.RTT = rtt
	}
	return status
}

// Health reports the connection as a health status. An open circuit is unhealthy,
// a reconnecting client is degraded.
func (m *Client) Health() health.Status {
	var status health.Status
	switch m.Status() {
	case StatusConnected:
		status = health.NewHealthy("nats", "Connected to "+m.url)
	case StatusReconnecting, StatusConnecting:
		status = health.NewDegraded("nats", m.Status().String())
	case StatusCircuitOpen:
		status = health.NewUnhealthy("nats", fmt.Sprintf("circuit open after %d failures", m.failures.Load()))
	default:
		status = health.NewUnhealthy("nats", "disconnected")
	}
	return status.WithMetrics(&health.Metrics{ErrorCount: int(m.failures.Load())})
}

// Connect establishes connection to NATS server
func (m *Client) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return errors.WrapFatal(errors.ErrShuttingDown, "Client", "Connect", "client closed")
	}
	if m.Status() == StatusCircuitOpen {
		m.logger.Debug("Circuit breaker is open, skipping connection attempt")
		return ErrCircuitOpen
	}

	m.setStatus(StatusConnecting)
	m.logger.Info("Connecting to NATS", "url", m.url)

	opts := m.buildConnectionOptions()
	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(m.url, opts...)
		if err != nil {
			connectDone <- err
			return
		}
		if ctx.Err() != nil {
			// caller gave up while the dial was in flight
			conn.Close()
			connectDone <- ctx.Err()
			return
		}
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		connectDone <- nil
	}()

	var err error
	select {
	case err = <-connectDone:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.recordFailure()
		if m.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		m.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.logger.Info("Connected to NATS", "url", m.url)

	m.mu.RLock()
	onHealthChange := m.onHealthChange
	m.mu.RUnlock()
	if onHealthChange != nil {
		onHealthChange(true)
	}
	return nil
}

// Close unsubscribes everything and drains the connection. The drain is bounded by
// the context deadline and the drain timeout, whichever ends first.
func (m *Client) Close(ctx context.Context) error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if m.closed.Load() {
		return nil
	}
	m.closed.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, sub := range m.subs {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) &&
			!stderrors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, errors.Wrap(err, "Client", "Close", "unsubscribe"))
			m.logger.Error("Failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}
	m.subs = nil

	if m.conn != nil {
		drainTimeout := m.drainTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		conn := m.conn
		drainDone := make(chan error, 1)
		go func() {
			drainDone <- conn.Drain()
		}()

		select {
		case err := <-drainDone:
			if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
				errs = append(errs, errors.Wrap(err, "Client", "Close", "drain connection"))
				m.logger.Error("Drain failed", "error", err)
			}
		case <-time.After(drainTimeout):
			errs = append(errs, errors.WrapTransient(
				fmt.Errorf("drain timeout after %v", drainTimeout), "Client", "Close", "drain connection"))
			m.logger.Error("Drain timed out, force closing", "timeout", drainTimeout)
		case <-ctx.Done():
			errs = append(errs, errors.Wrap(ctx.Err(), "Client", "Close", "drain connection"))
			m.logger.Error("Context cancelled during drain, force closing")
		}

		conn.Close()
		m.conn = nil
	}

	m.username = ""
	m.password = ""
	m.token = ""

	m.setStatus(StatusDisconnected)
	return stderrors.Join(errs...)
}

// RTT returns the round-trip time to the NATS server
func (m *Client) RTT() (time.Duration, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return 0, ErrNotConnected
	}
	return conn.RTT()
}

// Subscribe delivers messages on subject to handler until ctx is done. Each handler
// call gets a context derived from ctx bounded by the handler timeout.
func (m *Client) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if handler == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "Subscribe", "nil handler")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || !m.conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Subscribe", fmt.Sprintf("subscribe to %s", subject))
	}

	timeout := m.handlerTimeout
	sub, err := m.conn.Subscribe(subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		handler(msgCtx, msg.Data)
	})
	if err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err),
			"Client", "Subscribe", fmt.Sprintf("subscribe to %s", subject))
	}
	m.subs = append(m.subs, sub)

	context.AfterFunc(ctx, func() {
		if err := sub.Unsubscribe(); err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) &&
			!stderrors.Is(err, nats.ErrBadSubscription) {
			m.logger.Debug("Unsubscribe after cancel failed", "subject", subject, "error", err)
		}
	})

	m.logger.Debug("Subscribed", "subject", subject)
	return nil
}

// Publish publishes a message to a NATS subject
func (m *Client) Publish(_ context.Context, subject string, data []byte) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Publish", fmt.Sprintf("publish to %s", subject))
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrPublishFailed, err),
			"Client", "Publish", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (m *Client) Flush(ctx context.Context) error {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "Client", "Flush", "flush")
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return errors.WrapTransient(err, "Client", "Flush", "flush")
	}
	return nil
}

func (m *Client) handleDisconnect(_ *nats.Conn, err error) {
	if m.closed.Load() {
		return
	}
	m.setStatus(StatusReconnecting)
	m.logger.Warn("Disconnected from NATS", "error", err)

	m.mu.RLock()
	onDisconnect := m.onDisconnect
	onHealthChange := m.onHealthChange
	m.mu.RUnlock()

	if onDisconnect != nil {
		go onDisconnect(err)
	}
	if onHealthChange != nil {
		go onHealthChange(false)
	}
}

func (m *Client) handleReconnect(_ *nats.Conn) {
	m.setStatus(StatusConnected)
	m.resetCircuit()
	m.reconnects.Add(1)
	m.metrics.RecordNATSReconnect()
	m.logger.Info("Reconnected to NATS", "url", m.url)

	m.mu.RLock()
	onReconnect := m.onReconnect
	onHealthChange := m.onHealthChange
	m.mu.RUnlock()

	if onReconnect != nil {
		go onReconnect()
	}
	if onHealthChange != nil {
		go onHealthChange(true)
	}
}

func (m *Client) handleClosed(_ *nats.Conn) {
	m.setStatus(StatusDisconnected)

	m.mu.RLock()
	onHealthChange := m.onHealthChange
	m.mu.RUnlock()

	if onHealthChange != nil {
		go onHealthChange(false)
	}
}

func (m *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	m.logger.Error("NATS error", "subject", subject, "error", err)
}

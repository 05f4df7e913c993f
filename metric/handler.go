package metric

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360/simstation/errors"
)

// Server represents the metrics HTTP server
type Server struct {
	port     int
	path     string
	server   *http.Server
	registry *MetricsRegistry
	health   http.Handler
	mu       sync.Mutex // protects server field
}

// NewServer creates a new metrics server with the provided registry.
// health, when non-nil, serves /health; otherwise /health always answers OK.
func NewServer(port int, path string, registry *MetricsRegistry, health http.Handler) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}

	return &Server{
		port:     port,
		path:     path,
		registry: registry,
		health:   health,
	}
}

// Handler builds the HTTP routes served by the metrics server
func (s *Server) Handler() (http.Handler, error) {
	if s.registry == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("nil registry"),
			"Server", "Handler", "metrics registry not provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(
		s.registry.PrometheusRegistry(),
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		},
	))

	if s.health != nil {
		mux.Handle("/health", s.health)
	} else {
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
	}

	return mux, nil
}

// Start serves metrics until Stop is called. It blocks, and returns nil after a
// clean Stop.
func (s *Server) Start() error {
	s.mu.Lock()

	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("server already running"),
			"Server", "Start", "cannot start server that is already running")
	}

	handler, err := s.Handler()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("failed to listen on port %d", s.port))
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = server
	s.mu.Unlock()

	if err := server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("failed to serve on port %d", s.port))
	}
	return nil
}

// Stop shuts the metrics server down, waiting up to timeout for open requests
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil // reset server field to allow restart
	if err != nil {
		return errors.WrapTransient(err, "Server", "Stop",
			"failed to stop HTTP server")
	}
	return nil
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}

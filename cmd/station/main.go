// Package main implements the charging station participant of a co-simulation.
// The station publishes its state every epoch, waits for the power requirement
// addressed to it and answers with its power output, exchanging messages over NATS.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/simstation/config"
	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/health"
	"github.com/c360/simstation/message"
	"github.com/c360/simstation/metric"
	"github.com/c360/simstation/natsclient"
	"github.com/c360/simstation/pkg/retry"
	"github.com/c360/simstation/pkg/tlsutil"
	"github.com/c360/simstation/simulation"
	"github.com/c360/simstation/station"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "simstation"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath, logger)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	logger.Info("Starting station",
		"version", Version,
		"simulation_id", cfg.SimulationID,
		"component_name", cfg.ComponentName,
		"station_id", cfg.Station.StationID,
		"max_power", cfg.Station.MaxPower)

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	return serve(signalCtx, cfg, logger, cliCfg.ShutdownTimeout)
}

// loadConfig layers the optional file and the environment over the defaults, fills in
// generated identities and validates the result.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyGeneratedDefaults(cfg, logger)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyGeneratedDefaults(cfg *config.Config, logger *slog.Logger) {
	if cfg.SimulationID == "" {
		cfg.SimulationID = uuid.NewString()
		logger.Warn("SIMULATION_ID not set, generated one; other participants will not match it",
			"simulation_id", cfg.SimulationID)
	}
	if cfg.ComponentName == "" {
		cfg.ComponentName = "station-" + uuid.NewString()[:8]
		logger.Info("COMPONENT_NAME not set, generated one", "component_name", cfg.ComponentName)
	}
}

// participant is a station machine driven through the simulation epochs.
type participant struct {
	registry *message.Registry
	machine  *station.Machine
	driver   *simulation.Driver
}

func newParticipant(
	cfg *config.Config, broker simulation.Broker, metricsRegistry *metric.MetricsRegistry, logger *slog.Logger,
) (*participant, error) {
	registry := message.NewRegistry(message.WithStrict(cfg.StrictMessages))
	if err := simulation.RegisterCore(registry); err != nil {
		return nil, errors.WrapFatal(err, "main", "newParticipant", "register core messages")
	}
	if err := station.RegisterMessages(registry); err != nil {
		return nil, errors.WrapFatal(err, "main", "newParticipant", "register station messages")
	}

	ids := simulation.NewGenerator(cfg.SimulationID, cfg.ComponentName)
	status := simulation.NewStatusReporter(registry, broker, ids, metricsRegistry.CoreMetrics(), logger)

	machine, err := station.NewMachine(cfg.Station, station.Dependencies{
		Registry:        registry,
		Publisher:       broker,
		IDs:             ids,
		Reporter:        status,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	statusRetry := retry.DefaultConfig()
	statusRetry.MaxAttempts = cfg.Status.MaxAttempts
	statusRetry.InitialDelay = cfg.Status.InitialDelay
	statusRetry.MaxDelay = cfg.Status.MaxDelay

	driver, err := simulation.NewDriver(simulation.Config{
		Name:         cfg.ComponentName,
		PollInterval: cfg.PollInterval,
		StatusRetry:  statusRetry,
	}, machine, simulation.Dependencies{
		Registry: registry,
		Broker:   broker,
		Status:   status,
		Metrics:  metricsRegistry.CoreMetrics(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	machine.SetWake(driver.Wake)

	return &participant{registry: registry, machine: machine, driver: driver}, nil
}

func newNATSClient(cfg *config.Config, metricsRegistry *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.ComponentName),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metricsRegistry),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.Timeout),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.TLS.Enabled {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.NATS.TLS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, natsclient.WithTLSConfig(tlsConfig))
	}
	return natsclient.NewClient(cfg.NATS.URL, opts...)
}

// connectToNATS connects with retries and waits for the connection to be ready
func connectToNATS(ctx context.Context, client *natsclient.Client, attempts int, logger *slog.Logger) error {
	retryCfg := retry.Quick()
	retryCfg.MaxAttempts = attempts
	retryCfg.Retryable = errors.IsTransient
	retryCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("NATS connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	if err := retry.Do(ctx, retryCfg, func() error { return client.Connect(ctx) }); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nil
}

// serve runs the station until ctx is done or the simulation stops.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	metricsRegistry := metric.NewMetricsRegistry()

	client, err := newNATSClient(cfg, metricsRegistry, logger)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("NATS close failed", "error", err)
		}
	}()
	if err := connectToNATS(ctx, client, cfg.NATS.ConnectRetry, logger); err != nil {
		return err
	}

	p, err := newParticipant(cfg, client, metricsRegistry, logger)
	if err != nil {
		return err
	}

	monitor := health.NewMonitor()
	monitor.Watch("nats", client)
	monitor.Watch("driver", p.driver)

	var server *metric.Server
	if cfg.Metrics.Port > 0 {
		server = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, monitor.Handler(appName))
	}

	return runParticipant(ctx, p, server, logger, shutdownTimeout)
}

// runParticipant starts the driver and the optional metrics server and waits until ctx
// is done, the simulation stops or the server fails.
func runParticipant(
	ctx context.Context, p *participant, server *metric.Server, logger *slog.Logger, shutdownTimeout time.Duration,
) error {
	if err := p.driver.Start(ctx); err != nil {
		return fmt.Errorf("start driver: %w", err)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	g, gctx := errgroup.WithContext(runCtx)
	if server != nil {
		g.Go(func() error {
			logger.Info("Metrics server listening", "address", server.Address())
			serveErr := make(chan error, 1)
			go func() { serveErr <- server.Start() }()
			select {
			case err := <-serveErr:
				return err
			case <-gctx.Done():
				return nil
			}
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("Received shutdown signal")
		case <-p.driver.Done():
			logger.Info("Simulation stopped")
		}
		defer stopRun()

		var errs []error
		if err := p.driver.Stop(shutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("stop driver: %w", err))
		}
		if server != nil {
			if err := server.Stop(shutdownTimeout); err != nil {
				errs = append(errs, fmt.Errorf("stop metrics server: %w", err))
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("graceful shutdown failed: %v", errs)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Station shutdown complete", "completed_epoch", p.driver.CompletedEpoch())
	return nil
}

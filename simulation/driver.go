package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/health"
	"github.com/c360/simstation/message"
	"github.com/c360/simstation/metric"
	"github.com/c360/simstation/pkg/retry"
)

// DefaultPollInterval is how often an open epoch is re-processed without a wake signal.
const DefaultPollInterval = time.Second

// Service status gauge values.
const (
	serviceStopped = 0
	serviceRunning = 2
	serviceFailed  = 4
)

// Config holds the driver settings.
type Config struct {
	Name         string        // component name used in logs and metrics
	PollInterval time.Duration // <=0 means DefaultPollInterval
	StatusRetry  retry.Config  // retry policy for ready Status publication
}

// Dependencies are the collaborators a Driver runs against.
type Dependencies struct {
	Registry *message.Registry
	Broker   Broker
	Status   *StatusReporter
	Metrics  *metric.Metrics // optional
	Logger   *slog.Logger    // optional
}

// Driver owns the epoch lifecycle of one participant. It follows SimState and Epoch
// messages, feeds the participant's inbound topics to it, and calls ProcessEpoch until
// the participant reports the epoch complete.
type Driver struct {
	name         string
	participant  Participant
	registry     *message.Registry
	broker       Broker
	status       *StatusReporter
	metrics      *metric.Metrics
	logger       *slog.Logger
	pollInterval time.Duration
	statusRetry  retry.Config
	topics       map[string]bool

	events   chan *message.Message
	wake     chan struct{}
	shutdown chan struct{}
	finished chan struct{}
	finish   sync.Once
	cancel   context.CancelFunc

	running     atomic.Bool
	lifecycleMu sync.Mutex
	wg          sync.WaitGroup

	mu           sync.RWMutex
	startTime    time.Time
	simRunning   bool
	epoch        int
	epochActive  bool
	epochStarted time.Time
	triggers     []string
	completed    int
	lastErr      error
	lastActivity time.Time

	messagesReceived int64
	errorCount       int64
}

// NewDriver creates a driver for participant.
func NewDriver(cfg Config, participant Participant, deps Dependencies) (*Driver, error) {
	switch {
	case participant == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Driver", "NewDriver", "participant required")
	case deps.Registry == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Driver", "NewDriver", "message registry required")
	case deps.Broker == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Driver", "NewDriver", "broker required")
	case deps.Status == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Driver", "NewDriver", "status reporter required")
	}

	if cfg.Name == "" {
		cfg.Name = deps.Status.name
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StatusRetry.Retryable == nil {
		cfg.StatusRetry.Retryable = errors.IsTransient
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	topics := make(map[string]bool)
	for _, topic := range participant.Topics() {
		topics[topic] = true
	}

	return &Driver{
		name:         cfg.Name,
		participant:  participant,
		registry:     deps.Registry,
		broker:       deps.Broker,
		status:       deps.Status,
		metrics:      deps.Metrics,
		logger:       logger,
		pollInterval: cfg.PollInterval,
		statusRetry:  cfg.StatusRetry,
		topics:       topics,
		events:       make(chan *message.Message, 16),
		wake:         make(chan struct{}, 1),
		shutdown:     make(chan struct{}),
		finished:     make(chan struct{}),
		completed:    -1,
	}, nil
}

// Start subscribes to SimState, Epoch and the participant's topics and starts the
// run loop.
func (d *Driver) Start(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Driver", "Start", "check running state")
	}
	select {
	case <-d.shutdown:
		return errors.WrapFatal(errors.ErrShuttingDown, "Driver", "Start", "driver already stopped")
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)

	subjects := []string{TopicSimState, TopicEpoch}
	for _, topic := range d.participant.Topics() {
		if topic != TopicSimState && topic != TopicEpoch {
			subjects = append(subjects, topic)
		}
	}
	for _, topic := range subjects {
		if err := d.broker.Subscribe(runCtx, topic, d.handler(topic)); err != nil {
			cancel()
			d.logger.Error("Failed to subscribe",
				"component", d.name,
				"topic", topic,
				"error", err)
			return errors.WrapTransient(err, "Driver", "Start", fmt.Sprintf("subscribe to %s", topic))
		}
		d.logger.Debug("Subscribed", "component", d.name, "topic", topic)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.mu.Lock()
	d.startTime = time.Now()
	d.mu.Unlock()
	d.metrics.RecordServiceStatus(d.name, serviceRunning)

	d.wg.Add(1)
	go d.run(runCtx)

	d.logger.Info("Simulation driver started",
		"component", d.name,
		"topics", subjects,
		"poll_interval", d.pollInterval)
	return nil
}

// Stop ends the run loop and the subscriptions.
func (d *Driver) Stop(timeout time.Duration) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if !d.running.Load() {
		return nil
	}

	close(d.shutdown)
	d.cancel()

	waitCh := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(timeout):
		d.metrics.RecordServiceStatus(d.name, serviceFailed)
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"Driver", "Stop", "graceful shutdown")
	}

	d.running.Store(false)
	d.metrics.RecordServiceStatus(d.name, serviceStopped)
	d.logger.Info("Simulation driver stopped", "component", d.name)
	return nil
}

// Done is closed when the run loop exits, either after a stopped SimState or Stop.
func (d *Driver) Done() <-chan struct{} {
	return d.finished
}

// CompletedEpoch returns the last epoch the participant completed, or -1.
func (d *Driver) CompletedEpoch() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.completed
}

// Health reports the driver state for the health endpoint.
func (d *Driver) Health() health.Status {
	running := d.running.Load()

	d.mu.RLock()
	defer d.mu.RUnlock()

	var status health.Status
	switch {
	case !running:
		status = health.NewUnhealthy(d.name, "Driver not running")
	case d.lastErr != nil:
		status = health.NewDegraded(d.name,
			fmt.Sprintf("epoch %d: %s", d.epoch, health.FromError(d.name, d.lastErr).Message))
	case d.epochActive:
		status = health.NewHealthy(d.name, fmt.Sprintf("Processing epoch %d", d.epoch))
	case !d.simRunning:
		status = health.NewHealthy(d.name, "Waiting for simulation start")
	default:
		status = health.NewHealthy(d.name, fmt.Sprintf("Epoch %d complete", d.completed))
	}

	var uptime time.Duration
	if !d.startTime.IsZero() {
		uptime = time.Since(d.startTime)
	}
	return status.WithMetrics(&health.Metrics{
		Uptime:            uptime,
		ErrorCount:        int(atomic.LoadInt64(&d.errorCount)),
		MessagesProcessed: atomic.LoadInt64(&d.messagesReceived),
		LastActivity:      d.lastActivity,
	})
}

func (d *Driver) handler(topic string) func(context.Context, []byte) {
	return func(ctx context.Context, data []byte) {
		msg, err := d.registry.Decode(data)
		if err != nil {
			d.metrics.RecordDecodeFailure(d.name, topic)
			d.logger.Debug("Ignoring undecodable message",
				"component", d.name,
				"topic", topic,
				"error", err)
			return
		}
		if msg.SimulationID() != d.status.ids.SimulationID() {
			d.logger.Debug("Ignoring message from another simulation",
				"component", d.name,
				"topic", topic,
				"simulation_id", msg.SimulationID())
			return
		}

		atomic.AddInt64(&d.messagesReceived, 1)
		d.metrics.RecordMessageReceived(d.name, msg.Type())
		d.mu.Lock()
		d.lastActivity = time.Now()
		d.mu.Unlock()

		switch {
		case msg.Type() == TypeSimState || msg.Type() == TypeEpoch:
			select {
			case d.events <- msg:
			case <-d.finished:
			case <-d.shutdown:
			case <-ctx.Done():
			}
		case d.topics[topic]:
			if d.participant.HandleMessage(ctx, topic, msg) {
				d.Wake()
			}
		default:
			d.logger.Debug("Ignoring message",
				"component", d.name,
				"topic", topic,
				"type", msg.Type())
		}
	}
}

// Wake asks the run loop to call ProcessEpoch now. A pending wake is enough.
func (d *Driver) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Driver) run(ctx context.Context) {
	defer d.wg.Done()
	defer d.finish.Do(func() { close(d.finished) })

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case msg := <-d.events:
			if stop := d.control(ctx, msg); stop {
				return
			}
		case <-d.wake:
			d.process(ctx)
		case <-ticker.C:
			d.process(ctx)
		}
	}
}

// control applies a SimState or Epoch message and reports whether the run loop should end.
func (d *Driver) control(ctx context.Context, msg *message.Message) bool {
	if state, ok := SimulationState(msg); ok {
		return d.simState(ctx, msg, state)
	}
	if epoch, ok := ParseEpoch(msg); ok {
		d.beginEpoch(ctx, msg, epoch)
	}
	return false
}

func (d *Driver) simState(ctx context.Context, msg *message.Message, state string) bool {
	switch state {
	case StateRunning:
		d.mu.Lock()
		already := d.simRunning
		d.simRunning = true
		d.mu.Unlock()
		if already {
			d.logger.Debug("Simulation already running", "component", d.name)
			return false
		}
		d.logger.Info("Simulation running", "component", d.name, "simulation_id", msg.SimulationID())
		d.sendReady(ctx, 0, []string{msg.MessageID()})
		return false
	case StateStopped:
		d.mu.Lock()
		d.simRunning = false
		d.epochActive = false
		d.mu.Unlock()
		d.logger.Info("Simulation stopped", "component", d.name, "simulation_id", msg.SimulationID())
		return true
	}
	return false
}

func (d *Driver) beginEpoch(ctx context.Context, msg *message.Message, epoch EpochInterval) {
	triggers := []string{msg.MessageID()}

	d.mu.Lock()
	switch {
	case d.epochActive && epoch.Number == d.epoch:
		d.mu.Unlock()
		d.logger.Debug("Ignoring repeated epoch message", "component", d.name, "epoch", epoch.Number)
		return
	case !d.epochActive && epoch.Number == d.completed:
		previous := d.triggers
		d.mu.Unlock()
		d.logger.Debug("Epoch already complete, resending ready", "component", d.name, "epoch", epoch.Number)
		d.sendReady(ctx, epoch.Number, previous)
		return
	}
	if d.epochActive {
		d.logger.Warn("Abandoning incomplete epoch",
			"component", d.name,
			"epoch", d.epoch,
			"next_epoch", epoch.Number)
	}
	d.epoch = epoch.Number
	d.epochActive = true
	d.epochStarted = time.Now()
	d.triggers = triggers
	d.lastErr = nil
	d.mu.Unlock()

	d.participant.OnEpochBegin(epoch.Number, triggers)
	d.metrics.RecordEpochStarted(d.name, epoch.Number)
	d.logger.Debug("Epoch started",
		"component", d.name,
		"epoch", epoch.Number,
		"start_time", epoch.Start,
		"end_time", epoch.End)

	d.process(ctx)
}

func (d *Driver) process(ctx context.Context) {
	d.mu.RLock()
	active, epoch := d.epochActive, d.epoch
	d.mu.RUnlock()
	if !active {
		return
	}

	complete, err := d.participant.ProcessEpoch(ctx)
	if err != nil {
		atomic.AddInt64(&d.errorCount, 1)
		d.mu.Lock()
		d.lastErr = err
		d.mu.Unlock()
		d.logger.Warn("Epoch processing failed, will retry",
			"component", d.name,
			"epoch", epoch,
			"error", err)
		return
	}
	if !complete {
		return
	}

	d.mu.Lock()
	if !d.epochActive || d.epoch != epoch {
		d.mu.Unlock()
		return
	}
	d.epochActive = false
	d.completed = epoch
	d.lastErr = nil
	started, triggers := d.epochStarted, d.triggers
	d.mu.Unlock()

	d.metrics.RecordEpochCompleted(d.name, time.Since(started))
	d.logger.Debug("Epoch complete", "component", d.name, "epoch", epoch)
	d.sendReady(ctx, epoch, triggers)
}

func (d *Driver) sendReady(ctx context.Context, epoch int, triggers []string) {
	err := retry.Do(ctx, d.statusRetry, func() error {
		return d.status.Ready(ctx, epoch, triggers)
	})
	if err == nil {
		return
	}

	atomic.AddInt64(&d.errorCount, 1)
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	d.status.ReportError(ctx, epoch, errors.Wrap(err, "Driver", "sendReady", fmt.Sprintf("ready status for epoch %d", epoch)))
}

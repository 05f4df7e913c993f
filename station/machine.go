package station

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/message"
	"github.com/c360/simstation/metric"
	"github.com/c360/simstation/simulation"
)

// Phase is the position of the station within the current epoch.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingStatusSend
	PhaseAwaitingRequest
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingStatusSend:
		return "awaiting_status_send"
	case PhaseAwaitingRequest:
		return "awaiting_request"
	case PhaseComplete:
		return "complete"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// EpochState is the per-epoch bookkeeping of the station.
type EpochState struct {
	Number          int
	TriggeringIDs   []string
	StatusSent      bool
	RequestReceived bool
	RequestedPower  int    // valid when RequestReceived
	RequestID       string // message id of the accepted request
}

func (s EpochState) clone() EpochState {
	s.TriggeringIDs = append([]string{}, s.TriggeringIDs...)
	return s
}

// Dependencies are the collaborators of a Machine.
type Dependencies struct {
	Registry        *message.Registry
	Publisher       simulation.Publisher
	IDs             *simulation.Generator
	Reporter        simulation.ErrorReporter
	MetricsRegistry *metric.MetricsRegistry // optional
	Logger          *slog.Logger            // optional
}

// Machine is the epoch interaction state machine of one station.
//
// Each epoch it publishes StationState, waits for a PowerRequirement addressed to
// its station, then publishes PowerOutput carrying the requested power. State
// changes only after a successful publish, so a failed send is retried by the next
// ProcessEpoch call.
type Machine struct {
	cfg       Config
	registry  *message.Registry
	publisher simulation.Publisher
	ids       *simulation.Generator
	reporter  simulation.ErrorReporter
	logger    *slog.Logger
	core      *metric.Metrics
	metrics   *stationMetrics

	// processMu serializes epoch transitions and sends; mu guards state and phase and
	// is never held across a publish.
	processMu sync.Mutex
	mu        sync.Mutex
	state     EpochState
	phase     Phase
	wake      func()
}

// NewMachine creates a station state machine. The config is used as given; see
// Config.Validate.
func NewMachine(cfg Config, deps Dependencies) (*Machine, error) {
	switch {
	case deps.Registry == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Machine", "NewMachine", "message registry required")
	case deps.Publisher == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Machine", "NewMachine", "publisher required")
	case deps.IDs == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Machine", "NewMachine", "id generator required")
	case deps.Reporter == nil:
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Machine", "NewMachine", "error reporter required")
	}
	if _, ok := deps.Registry.Lookup(TypeStationState); !ok {
		return nil, errors.WrapFatal(&message.UnknownTypeError{Type: TypeStationState},
			"Machine", "NewMachine", "station messages not registered")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newStationMetrics(deps.MetricsRegistry)
	if err != nil {
		logger.Error("Failed to initialize station metrics", "component", "station", "error", err)
		metrics = nil // Continue without metrics
	}
	metrics.setMaxPower(cfg.StationID, cfg.MaxPower)

	return &Machine{
		cfg:       cfg,
		registry:  deps.Registry,
		publisher: deps.Publisher,
		ids:       deps.IDs,
		reporter:  deps.Reporter,
		logger:    logger.With("component", "station", "station_id", cfg.StationID),
		core:      deps.MetricsRegistry.CoreMetrics(),
		metrics:   metrics,
	}, nil
}

// SetWake installs the callback used when an epoch can advance without waiting for
// the next poll. The driver's Wake fits.
func (m *Machine) SetWake(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wake = fn
}

// Topics lists the inbound topics of the station.
func (m *Machine) Topics() []string {
	return []string{m.cfg.PowerRequirementTopic}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// State returns a copy of the current epoch state.
func (m *Machine) State() EpochState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// OnEpochBegin resets the epoch state. It waits for an in-flight ProcessEpoch.
func (m *Machine) OnEpochBegin(epoch int, triggeringIDs []string) {
	m.processMu.Lock()
	defer m.processMu.Unlock()

	m.mu.Lock()
	m.state = EpochState{Number: epoch, TriggeringIDs: message.UniqueIDs(triggeringIDs)}
	m.phase = PhaseAwaitingStatusSend
	m.mu.Unlock()

	m.logger.Debug("Epoch begins", "epoch", epoch, "triggering_ids", triggeringIDs)
}

// ProcessEpoch sends StationState if it has not been sent this epoch, otherwise
// PowerOutput once a request has been accepted. It reports true when the epoch is
// complete. A send failure is reported, returned, and leaves the state unchanged.
func (m *Machine) ProcessEpoch(ctx context.Context) (bool, error) {
	m.processMu.Lock()
	defer m.processMu.Unlock()

	m.mu.Lock()
	phase := m.phase
	state := m.state.clone()
	m.mu.Unlock()

	switch phase {
	case PhaseIdle:
		return false, nil
	case PhaseComplete:
		return true, nil
	}

	if !state.StatusSent {
		values := message.Values{AttrStationID: m.cfg.StationID, AttrMaxPower: m.cfg.MaxPower}
		if err := m.send(ctx, state.Number, m.cfg.StationStateTopic, TypeStationState, state.TriggeringIDs, values); err != nil {
			return false, err
		}

		m.mu.Lock()
		m.state.StatusSent = true
		m.phase = PhaseAwaitingRequest
		pending, wake := m.state.RequestReceived, m.wake
		m.mu.Unlock()

		if pending && wake != nil {
			wake()
		}
		return false, nil
	}

	if !state.RequestReceived {
		return false, nil
	}

	triggers := message.UniqueIDs(append(state.TriggeringIDs, state.RequestID))
	values := message.Values{AttrStationID: m.cfg.StationID, AttrPowerOutput: state.RequestedPower}
	if err := m.send(ctx, state.Number, m.cfg.PowerOutputTopic, TypePowerOutput, triggers, values); err != nil {
		return false, err
	}
	m.metrics.setOutput(m.cfg.StationID, state.RequestedPower)

	m.mu.Lock()
	m.phase = PhaseComplete
	m.mu.Unlock()

	m.logger.Debug("Epoch complete", "epoch", state.Number, "power_output", state.RequestedPower)
	return true, nil
}

// HandleMessage records the first PowerRequirement addressed to this station in the
// current epoch. Everything else is ignored at debug level. It returns true when a
// request was accepted.
func (m *Machine) HandleMessage(_ context.Context, topic string, msg *message.Message) bool {
	if msg == nil {
		return false
	}
	in := Classify(msg)
	if in.Kind != InboundRequest {
		m.logger.Debug("Ignoring message", "topic", topic, "type", msg.Type(), "source", msg.SourceProcessID())
		return false
	}

	req := in.Request
	if req.StationID != m.cfg.StationID {
		m.metrics.recordRequest(m.cfg.StationID, outcomeOtherStation)
		m.logger.Debug("Ignoring PowerRequirement for another station",
			"target", req.StationID,
			"source", req.SourceProcessID)
		return false
	}

	m.mu.Lock()
	var outcome string
	switch {
	case m.phase == PhaseIdle:
		outcome = outcomeNoEpoch
	case req.EpochNumber != m.state.Number:
		outcome = outcomeWrongEpoch
	case m.state.RequestReceived:
		outcome = outcomeDuplicate
	default:
		outcome = outcomeAccepted
		m.state.RequestReceived = true
		m.state.RequestedPower = req.Power
		m.state.RequestID = req.MessageID
	}
	epoch := m.state.Number
	m.mu.Unlock()

	m.metrics.recordRequest(m.cfg.StationID, outcome)
	if outcome != outcomeAccepted {
		m.logger.Debug("Ignoring PowerRequirement",
			"reason", outcome,
			"epoch", epoch,
			"request_epoch", req.EpochNumber,
			"source", req.SourceProcessID)
		return false
	}

	m.logger.Debug("Received PowerRequirement",
		"epoch", epoch,
		"power", req.Power,
		"source", req.SourceProcessID)
	return true
}

// send builds, encodes and publishes one message. Build and publish failures go to
// the error reporter.
func (m *Machine) send(
	ctx context.Context, epoch int, topic, messageType string, triggers []string, values message.Values,
) error {
	msg, err := m.registry.New(messageType, m.ids.Envelope(epoch, triggers), values)
	var data []byte
	if err == nil {
		data, err = m.registry.Encode(msg)
	}
	if err != nil {
		m.metrics.recordFailure(m.cfg.StationID, "encode")
		err = errors.WrapInvalid(err, "Machine", "send", fmt.Sprintf("build %s message", messageType))
		m.logger.Error("Failed to build message", "type", messageType, "epoch", epoch, "error", err)
		m.reporter.ReportError(ctx, epoch, err)
		return err
	}

	if err := m.publisher.Publish(ctx, topic, data); err != nil {
		m.metrics.recordFailure(m.cfg.StationID, "publish")
		var pubErr *simulation.PublishError
		if !stderrors.As(err, &pubErr) {
			err = &simulation.PublishError{Topic: topic, Err: err}
		}
		m.logger.Error("Failed to publish message", "type", messageType, "topic", topic, "epoch", epoch, "error", err)
		m.reporter.ReportError(ctx, epoch, err)
		return err
	}

	m.metrics.recordPublished(m.cfg.StationID, messageType)
	m.core.RecordMessagePublished("station", topic)
	m.logger.Debug("Published message", "type", messageType, "topic", topic, "epoch", epoch)
	return nil
}

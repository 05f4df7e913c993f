package station

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/message"
	"github.com/c360/simstation/metric"
	"github.com/c360/simstation/simulation"
)

const testSimulationID = "2026-10-14T08:00:00.000Z"

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) ReportError(_ context.Context, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error{}, r.errs...)
}

// flakyPublisher fails the next n publishes, then delegates.
type flakyPublisher struct {
	next     simulation.Publisher
	failures atomic.Int32
}

func (p *flakyPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if p.failures.Add(-1) >= 0 {
		return stderrors.New("nats: connection closed")
	}
	return p.next.Publish(ctx, topic, data)
}

type machineHarness struct {
	t          *testing.T
	reg        *message.Registry
	broker     *simulation.MemoryBroker
	reporter   *recordingReporter
	controller *simulation.Generator
	machine    *Machine
}

func newTestRegistry(t *testing.T) *message.Registry {
	t.Helper()
	reg := message.NewRegistry()
	require.NoError(t, simulation.RegisterCore(reg))
	require.NoError(t, RegisterMessages(reg))
	return reg
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StationID = "XYZ"
	cfg.MaxPower = 1000
	return cfg
}

func newMachineHarness(t *testing.T, cfg Config, publisher simulation.Publisher, metrics *metric.MetricsRegistry) *machineHarness {
	t.Helper()

	reg := newTestRegistry(t)
	broker := simulation.NewMemoryBroker()
	if publisher == nil {
		publisher = broker
	}
	reporter := &recordingReporter{}

	machine, err := NewMachine(cfg, Dependencies{
		Registry:        reg,
		Publisher:       publisher,
		IDs:             simulation.NewGenerator(testSimulationID, "station-xyz"),
		Reporter:        reporter,
		MetricsRegistry: metrics,
	})
	require.NoError(t, err)

	return &machineHarness{
		t:          t,
		reg:        reg,
		broker:     broker,
		reporter:   reporter,
		controller: simulation.NewGenerator(testSimulationID, "controller"),
		machine:    machine,
	}
}

func (h *machineHarness) request(epoch int, stationID string, power int) *message.Message {
	h.t.Helper()
	msg, err := h.reg.New(TypePowerRequirement, h.controller.Envelope(epoch, nil), message.Values{
		AttrStationID: stationID,
		AttrPower:     power,
	})
	require.NoError(h.t, err)
	return msg
}

func (h *machineHarness) process() bool {
	h.t.Helper()
	complete, err := h.machine.ProcessEpoch(context.Background())
	require.NoError(h.t, err)
	return complete
}

func (h *machineHarness) published(topic string) []*message.Message {
	h.t.Helper()
	var out []*message.Message
	for _, p := range h.broker.Messages(topic) {
		msg, err := h.reg.Decode(p.Data)
		require.NoError(h.t, err)
		out = append(out, msg)
	}
	return out
}

func TestNewMachine_RequiresDependencies(t *testing.T) {
	reg := newTestRegistry(t)
	broker := simulation.NewMemoryBroker()
	ids := simulation.NewGenerator(testSimulationID, "s")
	reporter := &recordingReporter{}

	tests := []struct {
		name string
		deps Dependencies
	}{
		{"registry", Dependencies{Publisher: broker, IDs: ids, Reporter: reporter}},
		{"publisher", Dependencies{Registry: reg, IDs: ids, Reporter: reporter}},
		{"ids", Dependencies{Registry: reg, Publisher: broker, Reporter: reporter}},
		{"reporter", Dependencies{Registry: reg, Publisher: broker, IDs: ids}},
		{"unregistered messages", Dependencies{Registry: message.NewRegistry(), Publisher: broker, IDs: ids, Reporter: reporter}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMachine(testConfig(), tt.deps)
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestMachine_IdleBeforeFirstEpoch(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)

	assert.Equal(t, PhaseIdle, h.machine.Phase())
	assert.False(t, h.process())
	assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(0, "XYZ", 5)))
	assert.Empty(t, h.broker.Messages(""))
	assert.Equal(t, []string{DefaultPowerRequirementTopic}, h.machine.Topics())
}

func TestMachine_ScenarioA_StatusFirst(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	h.machine.OnEpochBegin(3, []string{"manager-3"})
	assert.Equal(t, PhaseAwaitingStatusSend, h.machine.Phase())

	assert.False(t, h.process())

	states := h.published(DefaultStationStateTopic)
	require.Len(t, states, 1)
	assert.Equal(t, TypeStationState, states[0].Type())
	assert.Equal(t, 3, states[0].EpochNumber())
	assert.Equal(t, []string{"manager-3"}, states[0].TriggeringMessageIDs())
	stationID, _ := states[0].String(AttrStationID)
	maxPower, _ := states[0].Int(AttrMaxPower)
	assert.Equal(t, "XYZ", stationID)
	assert.Equal(t, 1000, maxPower)

	assert.Equal(t, PhaseAwaitingRequest, h.machine.Phase())
	assert.True(t, h.machine.State().StatusSent)

	// nothing more happens until a request arrives
	assert.False(t, h.process())
	assert.Len(t, h.broker.Messages(""), 1)
}

func TestMachine_ScenarioB_RequestAnswered(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	h.machine.OnEpochBegin(3, []string{"manager-3"})
	require.False(t, h.process())

	req := h.request(3, "XYZ", 42)
	assert.True(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, req))

	state := h.machine.State()
	assert.True(t, state.RequestReceived)
	assert.Equal(t, 42, state.RequestedPower)
	assert.Equal(t, req.MessageID(), state.RequestID)

	assert.True(t, h.process())
	assert.Equal(t, PhaseComplete, h.machine.Phase())

	outputs := h.published(DefaultPowerOutputTopic)
	require.Len(t, outputs, 1)
	power, _ := outputs[0].Int(AttrPowerOutput)
	assert.Equal(t, 42, power)
	assert.Equal(t, 3, outputs[0].EpochNumber())
	assert.Equal(t, []string{"manager-3", req.MessageID()}, outputs[0].TriggeringMessageIDs())

	// a complete epoch stays complete without publishing again
	assert.True(t, h.process())
	assert.Len(t, h.broker.Messages(""), 2)
}

func TestMachine_ScenarioC_OtherStationIgnored(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	h.machine.OnEpochBegin(3, nil)
	require.False(t, h.process())
	before := h.machine.State()

	assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(3, "ABC", 42)))

	assert.Equal(t, before, h.machine.State())
	assert.False(t, h.process())
	assert.Len(t, h.broker.Messages(""), 1, "only the StationState was published")
	assert.Empty(t, h.reporter.reported())
}

func TestMachine_ScenarioD_ValidationFailureReported(t *testing.T) {
	cfg := testConfig()
	cfg.StationID = ""
	h := newMachineHarness(t, cfg, nil, nil)
	h.machine.OnEpochBegin(1, nil)

	complete, err := h.machine.ProcessEpoch(context.Background())
	require.Error(t, err)
	assert.False(t, complete)
	assert.True(t, errors.IsInvalid(err))

	var verr *message.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, AttrStationID, verr.Attribute)

	reported := h.reporter.reported()
	require.Len(t, reported, 1)
	assert.ErrorAs(t, reported[0], &verr)

	assert.Empty(t, h.broker.Messages(""), "nothing is published")
	assert.False(t, h.machine.State().StatusSent)
	assert.Equal(t, PhaseAwaitingStatusSend, h.machine.Phase())
}

func TestMachine_RequestBeforeStatusKeepsOrder(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	var woken atomic.Int32
	h.machine.SetWake(func() { woken.Add(1) })

	h.machine.OnEpochBegin(5, []string{"manager-5"})
	assert.True(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(5, "XYZ", 11)))

	// the first call only sends the status, even though the request is in
	assert.False(t, h.process())
	assert.Equal(t, int32(1), woken.Load(), "a pending request wakes the driver after the status is out")
	assert.Empty(t, h.broker.Messages(DefaultPowerOutputTopic))

	assert.True(t, h.process())

	all := h.broker.Messages("")
	require.Len(t, all, 2)
	assert.Equal(t, DefaultStationStateTopic, all[0].Topic)
	assert.Equal(t, DefaultPowerOutputTopic, all[1].Topic)
}

func TestMachine_FirstRequestWins(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	h.machine.OnEpochBegin(2, nil)
	require.False(t, h.process())

	assert.True(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(2, "XYZ", 42)))
	assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(2, "XYZ", 7)))
	assert.Equal(t, 42, h.machine.State().RequestedPower)

	require.True(t, h.process())
	assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(2, "XYZ", 9)))
	require.True(t, h.process())

	outputs := h.published(DefaultPowerOutputTopic)
	require.Len(t, outputs, 1)
	power, _ := outputs[0].Int(AttrPowerOutput)
	assert.Equal(t, 42, power)
}

func TestMachine_EpochIsolation(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	h.machine.OnEpochBegin(1, []string{"manager-1"})
	require.False(t, h.process())
	require.True(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(1, "XYZ", 3)))
	require.True(t, h.process())

	h.machine.OnEpochBegin(2, []string{"manager-2"})
	state := h.machine.State()
	assert.Equal(t, 2, state.Number)
	assert.False(t, state.StatusSent)
	assert.False(t, state.RequestReceived)
	assert.Zero(t, state.RequestedPower)
	assert.Empty(t, state.RequestID)
	assert.Equal(t, []string{"manager-2"}, state.TriggeringIDs)
	assert.Equal(t, PhaseAwaitingStatusSend, h.machine.Phase())

	// a late request for the previous epoch is not carried over
	assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(1, "XYZ", 3)))
	assert.False(t, h.process())
	assert.False(t, h.process())
	assert.Len(t, h.published(DefaultPowerOutputTopic), 1)
}

func TestMachine_WrongEpochRequestIgnored(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newMachineHarness(t, testConfig(), nil, registry)
	h.machine.OnEpochBegin(3, []string{"manager-3"})
	require.False(t, h.process())

	before := h.machine.State()
	require.Equal(t, PhaseAwaitingRequest, h.machine.Phase())

	for _, epoch := range []int{2, 4} {
		assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(epoch, "XYZ", 77)))
	}

	assert.Equal(t, before, h.machine.State())
	assert.Equal(t, PhaseAwaitingRequest, h.machine.Phase())
	assert.False(t, h.process())
	assert.Empty(t, h.published(DefaultPowerOutputTopic))
	assert.Len(t, h.published(DefaultStationStateTopic), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.machine.metrics.requests.WithLabelValues("XYZ", outcomeWrongEpoch)))
}

func TestMachine_IgnoresUnknownMessages(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	h.machine.OnEpochBegin(1, nil)

	status, err := h.reg.New(TypeStationState, h.controller.Envelope(1, nil), message.Values{
		AttrStationID: "XYZ",
		AttrMaxPower:  10,
	})
	require.NoError(t, err)

	assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, status))
	assert.False(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, nil))
	assert.False(t, h.machine.State().RequestReceived)
}

func TestMachine_PublishFailureLeavesStateForRetry(t *testing.T) {
	broker := simulation.NewMemoryBroker()
	publisher := &flakyPublisher{next: broker}
	publisher.failures.Store(1)

	h := newMachineHarness(t, testConfig(), publisher, nil)
	h.broker = broker
	h.machine.OnEpochBegin(4, nil)

	complete, err := h.machine.ProcessEpoch(context.Background())
	require.Error(t, err)
	assert.False(t, complete)
	assert.True(t, errors.IsTransient(err))
	var pubErr *simulation.PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, DefaultStationStateTopic, pubErr.Topic)

	assert.False(t, h.machine.State().StatusSent)
	require.Len(t, h.reporter.reported(), 1)

	// the retry re-emits the status
	assert.False(t, h.process())
	assert.True(t, h.machine.State().StatusSent)
	assert.Len(t, h.published(DefaultStationStateTopic), 1)

	publisher.failures.Store(1)
	require.True(t, h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(4, "XYZ", 8)))
	_, err = h.machine.ProcessEpoch(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseAwaitingRequest, h.machine.Phase())

	assert.True(t, h.process())
	assert.Len(t, h.published(DefaultPowerOutputTopic), 1)
}

func TestMachine_ConcurrentRequestsAndProcessing(t *testing.T) {
	h := newMachineHarness(t, testConfig(), nil, nil)
	h.machine.OnEpochBegin(9, nil)

	requests := make([]*message.Message, 20)
	for i := range requests {
		requests[i] = h.request(9, "XYZ", i)
	}

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for _, req := range requests {
		wg.Add(1)
		go func(req *message.Message) {
			defer wg.Done()
			if h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, req) {
				accepted.Add(1)
			}
		}(req)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.machine.ProcessEpoch(context.Background())
		}()
	}
	wg.Wait()

	complete := false
	for i := 0; i < 3 && !complete; i++ {
		complete = h.process()
	}
	require.True(t, complete)

	assert.Equal(t, int32(1), accepted.Load())
	assert.Len(t, h.published(DefaultStationStateTopic), 1)
	outputs := h.published(DefaultPowerOutputTopic)
	require.Len(t, outputs, 1)
	power, _ := outputs[0].Int(AttrPowerOutput)
	assert.Equal(t, h.machine.State().RequestedPower, power)

	all := h.broker.Messages("")
	assert.Equal(t, DefaultStationStateTopic, all[0].Topic)
}

func TestMachine_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	h := newMachineHarness(t, testConfig(), nil, registry)

	h.machine.OnEpochBegin(1, nil)
	require.False(t, h.process())
	h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(1, "ABC", 1))
	h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(1, "XYZ", 250))
	h.machine.HandleMessage(context.Background(), DefaultPowerRequirementTopic, h.request(1, "XYZ", 1))
	require.True(t, h.process())

	m := h.machine.metrics
	require.NotNil(t, m)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("XYZ", outcomeAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("XYZ", outcomeOtherStation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("XYZ", outcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("XYZ", TypePowerOutput)))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.maxPower.WithLabelValues("XYZ")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.output.WithLabelValues("XYZ")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().MessagesPublished.WithLabelValues("station", DefaultPowerOutputTopic)))

	// a second machine on the same registry runs without station metrics
	second, err := NewMachine(testConfig(), Dependencies{
		Registry:        h.reg,
		Publisher:       h.broker,
		IDs:             simulation.NewGenerator(testSimulationID, "station-2"),
		Reporter:        h.reporter,
		MetricsRegistry: registry,
	})
	require.NoError(t, err)
	assert.Nil(t, second.metrics)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "awaiting_status_send", PhaseAwaitingStatusSend.String())
	assert.Equal(t, "awaiting_request", PhaseAwaitingRequest.String())
	assert.Equal(t, "complete", PhaseComplete.String())
	assert.Equal(t, "Phase(9)", Phase(9).String())
}

package simulation

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/c360/simstation/errors"
	"github.com/c360/simstation/message"
)

const testSimulationID = "2026-10-14T08:00:00.000Z"

func newCoreRegistry(t *testing.T) *message.Registry {
	t.Helper()
	reg := message.NewRegistry()
	require.NoError(t, RegisterCore(reg))
	return reg
}

func TestGenerator(t *testing.T) {
	gen := NewGenerator(testSimulationID, "station-1")
	fixed := time.Date(2026, 10, 14, 8, 0, 0, 123456789, time.UTC)
	gen.now = func() time.Time { return fixed }

	assert.Equal(t, "station-1-1", gen.NextID())
	assert.Equal(t, "station-1-2", gen.NextID())

	triggers := []string{"manager-7"}
	env := gen.Envelope(3, triggers)
	triggers[0] = "changed"

	assert.Equal(t, testSimulationID, env.SimulationID)
	assert.Equal(t, "station-1", env.SourceProcessID)
	assert.Equal(t, "station-1-3", env.MessageID)
	assert.Equal(t, 3, env.EpochNumber)
	assert.Equal(t, fixed, env.Timestamp)
	assert.Equal(t, []string{"manager-7"}, env.TriggeringMessageIDs)
}

func TestRegisterCore(t *testing.T) {
	reg := newCoreRegistry(t)
	assert.Equal(t, []string{TypeEpoch, TypeSimState, TypeStatus}, reg.Types())

	err := RegisterCore(reg)
	var dup *message.DuplicateSchemaError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, TypeSimState, dup.Type)
}

func TestCoreMessages_RoundTrip(t *testing.T) {
	reg := newCoreRegistry(t)
	gen := NewGenerator(testSimulationID, "manager")

	start := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	epochMsg, err := reg.New(TypeEpoch, gen.Envelope(2, nil), message.Values{
		AttrStartTime: message.FormatTimestamp(start),
		AttrEndTime:   message.FormatTimestamp(start.Add(time.Hour)),
	})
	require.NoError(t, err)

	data, err := reg.Encode(epochMsg)
	require.NoError(t, err)
	decoded, err := reg.Decode(data)
	require.NoError(t, err)
	assert.True(t, epochMsg.Equal(decoded))

	interval, ok := ParseEpoch(decoded)
	require.True(t, ok)
	assert.Equal(t, 2, interval.Number)
	assert.True(t, interval.Start.Equal(start))
	assert.True(t, interval.End.Equal(start.Add(time.Hour)))

	_, ok = SimulationState(decoded)
	assert.False(t, ok)
}

func TestCoreMessages_Validation(t *testing.T) {
	reg := newCoreRegistry(t)
	gen := NewGenerator(testSimulationID, "manager")

	_, err := reg.New(TypeSimState, gen.Envelope(0, nil), message.Values{AttrSimulationState: "paused"})
	var verr *message.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, AttrSimulationState, verr.Attribute)

	_, err = reg.New(TypeEpoch, gen.Envelope(1, nil), message.Values{
		AttrStartTime: "yesterday",
		AttrEndTime:   "2026-10-14T09:00:00.000Z",
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, AttrStartTime, verr.Attribute)

	_, err = reg.New(TypeStatus, gen.Envelope(1, nil), message.Values{AttrValue: "done"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, AttrValue, verr.Attribute)
}

func TestMemoryBroker(t *testing.T) {
	broker := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())

	var first, second [][]byte
	require.NoError(t, broker.Subscribe(ctx, "a", func(_ context.Context, data []byte) {
		first = append(first, data)
	}))
	require.NoError(t, broker.Subscribe(context.Background(), "a", func(_ context.Context, data []byte) {
		second = append(second, data)
	}))

	payload := []byte("one")
	require.NoError(t, broker.Publish(context.Background(), "a", payload))
	payload[0] = 'X'
	require.NoError(t, broker.Publish(context.Background(), "b", []byte("other")))

	require.Len(t, first, 1)
	assert.Equal(t, "one", string(first[0]))
	assert.Len(t, second, 1)

	cancel()
	require.NoError(t, broker.Publish(context.Background(), "a", []byte("two")))
	assert.Len(t, first, 1, "cancelled subscription receives nothing")
	assert.Len(t, second, 2)

	assert.Len(t, broker.Messages("a"), 2)
	assert.Len(t, broker.Messages(""), 3)
	assert.Equal(t, "one", string(broker.Messages("a")[0].Data))

	err := broker.Subscribe(context.Background(), "a", nil)
	assert.True(t, errors.IsInvalid(err))

	broker.Close()
	err = broker.Publish(context.Background(), "a", []byte("late"))
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "a", pubErr.Topic)
	assert.Error(t, broker.Subscribe(context.Background(), "a", func(context.Context, []byte) {}))
}

func TestPublishError_Classification(t *testing.T) {
	cause := stderrors.New("nats: outbound buffer full")
	err := &PublishError{Topic: "PowerOutputTopic", Err: cause}

	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrPublishFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "publish to PowerOutputTopic: nats: outbound buffer full", err.Error())
}

func TestStatusReporter(t *testing.T) {
	reg := newCoreRegistry(t)
	broker := NewMemoryBroker()
	reporter := NewStatusReporter(reg, broker, NewGenerator(testSimulationID, "station-1"), nil, nil)
	ctx := context.Background()

	require.NoError(t, reporter.Ready(ctx, 4, []string{"manager-9"}))
	reporter.ReportError(ctx, 4, stderrors.New("cannot build PowerOutput"))
	reporter.ReportError(ctx, 4, nil)

	ready := broker.Messages(TopicStatusReady)
	require.Len(t, ready, 1)
	msg, err := reg.Decode(ready[0].Data)
	require.NoError(t, err)
	assert.Equal(t, 4, msg.EpochNumber())
	assert.Equal(t, []string{"manager-9"}, msg.TriggeringMessageIDs())
	value, _ := msg.String(AttrValue)
	assert.Equal(t, StatusReady, value)

	failed := broker.Messages(TopicStatusError)
	require.Len(t, failed, 1)
	msg, err = reg.Decode(failed[0].Data)
	require.NoError(t, err)
	value, _ = msg.String(AttrValue)
	assert.Equal(t, StatusError, value)
	description, _ := msg.String(AttrDescription)
	assert.Equal(t, "cannot build PowerOutput", description)
}

func TestStatusReporter_ErrorRateLimit(t *testing.T) {
	reg := newCoreRegistry(t)
	broker := NewMemoryBroker()
	reporter := NewStatusReporter(reg, broker, NewGenerator(testSimulationID, "station-1"), nil, nil)
	reporter.LimitErrors(rate.Every(time.Hour), 2)

	for i := 0; i < 5; i++ {
		reporter.ReportError(context.Background(), 1, fmt.Errorf("failure %d", i))
	}

	failed := broker.Messages(TopicStatusError)
	require.Len(t, failed, 2, "burst bounds the published error statuses")
	msg, err := reg.Decode(failed[1].Data)
	require.NoError(t, err)
	description, _ := msg.String(AttrDescription)
	assert.Equal(t, "failure 1", description)

	require.NoError(t, reporter.Ready(context.Background(), 1, nil), "ready statuses are never limited")
}

func TestStatusReporter_PublishFailure(t *testing.T) {
	reg := newCoreRegistry(t)
	broker := NewMemoryBroker()
	broker.Close()
	reporter := NewStatusReporter(reg, broker, NewGenerator(testSimulationID, "station-1"), nil, nil)

	err := reporter.Ready(context.Background(), 1, nil)
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, TopicStatusReady, pubErr.Topic)
	assert.True(t, errors.IsTransient(err))

	assert.NotPanics(t, func() {
		reporter.ReportError(context.Background(), 1, stderrors.New("boom"))
	})
}

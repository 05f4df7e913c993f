package natsclient

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/c360/simstation/message"
	"github.com/c360/simstation/simulation"
	"github.com/c360/simstation/station"
)

// IntegrationSuite runs against a NATS container shared by every test.
type IntegrationSuite struct {
	suite.Suite
	nats *TestClient
}

func TestIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run NATS integration tests")
	}
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupSuite() {
	tc, err := NewSharedTestClient(WithFastStartup())
	s.Require().NoError(err)
	s.nats = tc
}

func (s *IntegrationSuite) TearDownSuite() {
	if s.nats != nil {
		_ = s.nats.Terminate()
	}
}

func (s *IntegrationSuite) newClient(name string) *Client {
	client, err := NewClient(s.nats.URL, WithName(name), WithMaxReconnects(0))
	s.Require().NoError(err)
	s.Require().NoError(client.Connect(context.Background()))
	s.T().Cleanup(func() { _ = client.Close(context.Background()) })
	return client
}

func (s *IntegrationSuite) TestConnect() {
	client := s.newClient("connect")
	s.True(client.IsHealthy())
	s.True(client.Health().IsHealthy())

	rtt, err := client.RTT()
	s.NoError(err)
	s.Greater(rtt, time.Duration(0))
}

func (s *IntegrationSuite) TestPublishSubscribe() {
	ctx := context.Background()
	client := s.newClient("pubsub")

	received := make(chan string, 1)
	s.Require().NoError(client.Subscribe(ctx, "Test.PubSub", func(_ context.Context, data []byte) {
		received <- string(data)
	}))
	s.Require().NoError(client.Flush(ctx))
	s.Require().NoError(client.Publish(ctx, "Test.PubSub", []byte("hello")))

	select {
	case msg := <-received:
		s.Equal("hello", msg)
	case <-time.After(2 * time.Second):
		s.Fail("message not received")
	}
}

func (s *IntegrationSuite) TestSubscriptionEndsWithContext() {
	client := s.newClient("cancel")
	ctx, cancel := context.WithCancel(context.Background())

	var count atomic.Int32
	s.Require().NoError(client.Subscribe(ctx, "Test.Cancel", func(context.Context, []byte) {
		count.Add(1)
	}))
	s.Require().NoError(client.Flush(context.Background()))

	s.Require().NoError(client.Publish(context.Background(), "Test.Cancel", []byte("1")))
	s.Eventually(func() bool { return count.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(client.Publish(context.Background(), "Test.Cancel", []byte("2")))
	s.Require().NoError(client.Flush(context.Background()))
	time.Sleep(100 * time.Millisecond)
	s.Equal(int32(1), count.Load())
}

func (s *IntegrationSuite) TestCloseDisconnects() {
	client, err := NewClient(s.nats.URL, WithMaxReconnects(0))
	s.Require().NoError(err)
	s.Require().NoError(client.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.NoError(client.Close(ctx))
	s.Equal(StatusDisconnected, client.Status())
	s.Error(client.Publish(context.Background(), "Test.Closed", []byte("x")))
}

// TestStationEpoch runs one station epoch over NATS with a scripted manager and
// controller on a second connection.
func (s *IntegrationSuite) TestStationEpoch() {
	const simulationID = "2026-10-14T08:00:00.000Z"
	ctx := context.Background()

	reg := message.NewRegistry()
	s.Require().NoError(simulation.RegisterCore(reg))
	s.Require().NoError(station.RegisterMessages(reg))

	stationConn := s.newClient("station")
	peerConn := s.newClient("peer")

	ids := simulation.NewGenerator(simulationID, "station-xyz")
	status := simulation.NewStatusReporter(reg, stationConn, ids, nil, nil)
	cfg := station.DefaultConfig()
	cfg.StationID = "XYZ"
	cfg.MaxPower = 1000

	machine, err := station.NewMachine(cfg, station.Dependencies{
		Registry: reg, Publisher: stationConn, IDs: ids, Reporter: status,
	})
	s.Require().NoError(err)
	driver, err := simulation.NewDriver(simulation.Config{Name: "station-xyz"}, machine, simulation.Dependencies{
		Registry: reg, Broker: stationConn, Status: status,
	})
	s.Require().NoError(err)
	machine.SetWake(driver.Wake)

	peer := simulation.NewGenerator(simulationID, "manager")
	s.Require().NoError(peerConn.Subscribe(ctx, station.DefaultStationStateTopic, func(ctx context.Context, data []byte) {
		state, err := reg.Decode(data)
		if err != nil {
			return
		}
		id, _ := state.String(station.AttrStationID)
		reply, err := reg.EncodeValues(station.TypePowerRequirement, peer.Envelope(state.EpochNumber(), nil),
			message.Values{station.AttrStationID: id, station.AttrPower: 77})
		if err == nil {
			_ = peerConn.Publish(ctx, station.DefaultPowerRequirementTopic, reply)
		}
	}))

	outputs := make(chan *message.Message, 1)
	ready := make(chan int, 4)
	s.Require().NoError(peerConn.Subscribe(ctx, station.DefaultPowerOutputTopic, func(_ context.Context, data []byte) {
		if msg, err := reg.Decode(data); err == nil {
			outputs <- msg
		}
	}))
	s.Require().NoError(peerConn.Subscribe(ctx, simulation.TopicStatusReady, func(_ context.Context, data []byte) {
		if msg, err := reg.Decode(data); err == nil {
			ready <- msg.EpochNumber()
		}
	}))
	s.Require().NoError(peerConn.Flush(ctx))

	s.Require().NoError(driver.Start(ctx))
	defer func() { _ = driver.Stop(2 * time.Second) }()
	s.Require().NoError(stationConn.Flush(ctx))

	send := func(topic, messageType string, epoch int, values message.Values) {
		data, err := reg.EncodeValues(messageType, peer.Envelope(epoch, nil), values)
		s.Require().NoError(err)
		s.Require().NoError(peerConn.Publish(ctx, topic, data))
	}
	send(simulation.TopicSimState, simulation.TypeSimState, 0,
		message.Values{simulation.AttrSimulationState: simulation.StateRunning})
	s.Equal(0, s.receive(ready))

	start := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	send(simulation.TopicEpoch, simulation.TypeEpoch, 1, message.Values{
		simulation.AttrStartTime: message.FormatTimestamp(start),
		simulation.AttrEndTime:   message.FormatTimestamp(start.Add(time.Hour)),
	})

	select {
	case out := <-outputs:
		power, _ := out.Int(station.AttrPowerOutput)
		s.Equal(77, power)
		s.Equal(1, out.EpochNumber())
	case <-time.After(5 * time.Second):
		s.Fail("no PowerOutput")
	}
	s.Equal(1, s.receive(ready))
}

func (s *IntegrationSuite) receive(ch <-chan int) int {
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		s.Fail("timed out waiting for status")
		return -1
	}
}

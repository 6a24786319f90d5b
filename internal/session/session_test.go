package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/soilsense/internal/sensor"
	"github.com/srg/soilsense/internal/session"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakePeripheral simulates a connected probe without a radio.
type fakePeripheral struct {
	mu        sync.Mutex
	addr      string
	connected bool
	values    map[string][]byte
	failUUID  string        // reads of this UUID fail
	readDelay time.Duration // per-read latency, set before Connect
	reads     []string

	done     chan struct{}
	doneOnce sync.Once
	doneErr  error
}

func newFakePeripheral() *fakePeripheral {
	return &fakePeripheral{
		addr: "AA:BB:CC:DD:EE:FF",
		values: map[string][]byte{
			sensor.CharTemperature: sensor.EncodeTemperature(25.0),
			sensor.CharMoisture:    sensor.EncodeMoisture(40.0),
			sensor.CharPH:          sensor.EncodePH(6.5),
		},
		done: make(chan struct{}),
	}
}

func (p *fakePeripheral) Address() string { return p.addr }

func (p *fakePeripheral) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *fakePeripheral) Disconnect() error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
	return nil
}

func (p *fakePeripheral) ReadAttribute(uuid string, _ time.Duration) ([]byte, error) {
	if p.readDelay > 0 {
		time.Sleep(p.readDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, uuid)
	if uuid == p.failUUID {
		return nil, errors.New("att read error")
	}
	data, ok := p.values[uuid]
	if !ok {
		return nil, fmt.Errorf("unknown characteristic %s", uuid)
	}
	return data, nil
}

func (p *fakePeripheral) Done() <-chan struct{} { return p.done }

func (p *fakePeripheral) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneErr
}

// remoteClose simulates the probe dropping the link on its own.
func (p *fakePeripheral) remoteClose() {
	p.mu.Lock()
	p.doneErr = errors.New("link supervision timeout")
	p.mu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
}

func (p *fakePeripheral) readLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.reads))
	copy(out, p.reads)
	return out
}

// fakeDiscoverer hands out a prepared peripheral and counts invocations.
type fakeDiscoverer struct {
	mu         sync.Mutex
	peripheral *fakePeripheral
	err        error
	calls      int
}

func (d *fakeDiscoverer) Discover(_ context.Context, _ string, _ time.Duration) (session.Peripheral, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.peripheral, nil
}

func (d *fakeDiscoverer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type SessionManagerTestSuite struct {
	suite.Suite

	peripheral *fakePeripheral
	discoverer *fakeDiscoverer
	manager    *session.Manager

	readings chan sensor.Reading
	closed   chan error
}

func (s *SessionManagerTestSuite) SetupTest() {
	s.peripheral = newFakePeripheral()
	s.discoverer = &fakeDiscoverer{peripheral: s.peripheral}
	s.readings = make(chan sensor.Reading, 16)
	s.closed = make(chan error, 1)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s.manager = session.NewManager(s.discoverer, session.Config{
		PollInterval: 20 * time.Millisecond,
		Logger:       logger,
		OnReading:    func(r sensor.Reading) { s.readings <- r },
		OnClosed:     func(err error) { s.closed <- err },
	})
}

func (s *SessionManagerTestSuite) TearDownTest() {
	s.manager.Disconnect()
}

func (s *SessionManagerTestSuite) waitReading() sensor.Reading {
	select {
	case r := <-s.readings:
		return r
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for a reading")
		return sensor.Reading{}
	}
}

func (s *SessionManagerTestSuite) waitClosed() error {
	select {
	case err := <-s.closed:
		return err
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for session close")
		return nil
	}
}

func (s *SessionManagerTestSuite) logMessages() []string {
	entries := s.manager.Log().Entries()
	msgs := make([]string, len(entries))
	for i, e := range entries {
		msgs[i] = e.Message
	}
	return msgs
}

func (s *SessionManagerTestSuite) countLogContaining(substr string) int {
	n := 0
	for _, msg := range s.logMessages() {
		if strings.Contains(msg, substr) {
			n++
		}
	}
	return n
}

// GOAL: Verify the happy path — Connect discovers the probe, opens the link,
// publishes an immediate reading, and keeps polling on the fixed interval.
func (s *SessionManagerTestSuite) TestConnectPublishesImmediateReading() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.Equal(session.StateConnected, s.manager.State())

	// The first cycle completed inside Connect: the reading is already there.
	_, ok := s.manager.Reading()
	s.True(ok, "a Connected session must already hold a reading")

	r := s.waitReading()
	s.InDelta(25.0, r.Temperature, 0.001)
	s.InDelta(40.0, r.Moisture, 0.001)
	s.InDelta(6.5, r.PH, 0.001)

	got, ok := s.manager.Reading()
	s.True(ok)
	s.InDelta(25.0, got.Temperature, 0.001)

	// The timer keeps firing: a second cycle arrives without intervention.
	s.waitReading()

	// Reads happen in fixed order within each cycle.
	reads := s.peripheral.readLog()
	s.Require().GreaterOrEqual(len(reads), 3)
	s.Equal([]string{sensor.CharTemperature, sensor.CharMoisture, sensor.CharPH}, reads[:3])

	// Milestones are logged newest-first.
	msgs := s.logMessages()
	s.Require().NotEmpty(msgs)
	s.Equal(1, s.countLogContaining("Scanning for"))
	s.Equal(1, s.countLogContaining("Connected"))
	s.True(msgs[len(msgs)-1] != "" && strings.Contains(msgs[len(msgs)-1], "Scanning"),
		"oldest entry must be the scan milestone")
}

// GOAL: Verify the first poll is synchronous - a reading exists the moment
// Connect returns, never a Connected session with an absent reading.
//
// TEST SCENARIO: reads are slow, so an asynchronous first poll would still
// be in flight when Connect returns.
func (s *SessionManagerTestSuite) TestReadingPresentWhenConnectReturns() {
	s.peripheral.readDelay = 30 * time.Millisecond

	s.Require().NoError(s.manager.Connect(context.Background()))

	s.Equal(session.StateConnected, s.manager.State())
	r, ok := s.manager.Reading()
	s.Require().True(ok, "a Connected session must already hold a reading")
	s.InDelta(25.0, r.Temperature, 0.001)
	s.InDelta(40.0, r.Moisture, 0.001)
	s.InDelta(6.5, r.PH, 0.001)

	// All three attributes were read before Connect resolved.
	s.GreaterOrEqual(len(s.peripheral.readLog()), 3)
}

// GOAL: Verify Connect is rejected while a session is active and that
// discovery never runs a second time.
func (s *SessionManagerTestSuite) TestConnectWhileConnectedIsRejected() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitReading()

	err := s.manager.Connect(context.Background())
	s.ErrorIs(err, session.ErrSessionActive)
	s.Equal(1, s.discoverer.callCount())
	s.Equal(session.StateConnected, s.manager.State())
}

// GOAL: Verify Disconnect is idempotent from every state.
func (s *SessionManagerTestSuite) TestDisconnectIdempotent() {
	// From Disconnected, twice.
	s.manager.Disconnect()
	s.manager.Disconnect()
	s.Equal(session.StateDisconnected, s.manager.State())

	// From Connected, twice.
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitReading()
	s.manager.Disconnect()
	s.NoError(s.waitClosed())
	s.manager.Disconnect()
	s.Equal(session.StateDisconnected, s.manager.State())

	// The last reading is cleared on teardown.
	_, ok := s.manager.Reading()
	s.False(ok)

	// A fresh Connect works after a full cycle.
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitReading()
	s.Equal(2, s.discoverer.callCount())
}

// GOAL: Verify a failed read of any single attribute aborts the cycle,
// publishes nothing, logs the cause once, and tears the session down without
// retrying.
//
// TEST SCENARIO: each attribute in turn is made to fail before the first
// poll, so the synchronous first poll is the failing one and Connect itself
// reports the error.
func (s *SessionManagerTestSuite) TestReadFailureTearsDownSession() {
	cases := []struct {
		attribute string
		uuid      string
	}{
		{"temperature", sensor.CharTemperature},
		{"moisture", sensor.CharMoisture},
		{"ph", sensor.CharPH},
	}

	for _, tc := range cases {
		s.Run(tc.attribute, func() {
			s.SetupTest()
			s.peripheral.failUUID = tc.uuid

			err := s.manager.Connect(context.Background())
			var rerr *session.ReadError
			s.Require().ErrorAs(err, &rerr)
			s.Equal(tc.attribute, rerr.Attribute)

			// OnClosed fires with the same cause.
			s.Require().ErrorAs(s.waitClosed(), &rerr)
			s.Equal(tc.attribute, rerr.Attribute)

			s.Equal(session.StateDisconnected, s.manager.State())
			_, ok := s.manager.Reading()
			s.False(ok, "no reading may be published from a failed cycle")
			s.Equal(1, s.countLogContaining("Read failed"))

			// Terminal: no retry ever happens.
			before := len(s.peripheral.readLog())
			time.Sleep(60 * time.Millisecond)
			s.Equal(before, len(s.peripheral.readLog()))
			s.Empty(s.readings)
		})
	}
}

// GOAL: Verify a malformed payload is treated exactly like a transport-level
// read failure.
func (s *SessionManagerTestSuite) TestMalformedPayloadTearsDownSession() {
	s.peripheral.values[sensor.CharMoisture] = []byte{0x01} // short

	err := s.manager.Connect(context.Background())
	var rerr *session.ReadError
	s.Require().ErrorAs(err, &rerr)
	s.Equal("moisture", rerr.Attribute)
	s.Require().ErrorAs(s.waitClosed(), &rerr)

	// pH was never read: the cycle aborted at moisture.
	reads := s.peripheral.readLog()
	s.NotContains(reads, sensor.CharPH)
}

// GOAL: Verify an unsolicited remote close mirrors Disconnect (state, timer,
// cleared reading) but is distinguishable in the log and the close cause.
func (s *SessionManagerTestSuite) TestRemoteCloseMirrorsDisconnect() {
	s.Require().NoError(s.manager.Connect(context.Background()))
	s.waitReading()

	s.peripheral.remoteClose()

	err := s.waitClosed()
	s.ErrorIs(err, session.ErrRemoteClosed)
	s.Equal(session.StateDisconnected, s.manager.State())

	_, ok := s.manager.Reading()
	s.False(ok)
	s.Equal(1, s.countLogContaining("Probe closed the connection"))
	s.Equal(0, s.countLogContaining("Session closed"))

	// No further polls after the remote close.
	before := len(s.peripheral.readLog())
	time.Sleep(60 * time.Millisecond)
	s.Equal(before, len(s.peripheral.readLog()))
}

// GOAL: Verify discovery and link failures surface as their own error kinds
// and leave the manager reusable.
func (s *SessionManagerTestSuite) TestConnectFailures() {
	s.Run("discovery failure", func() {
		s.SetupTest()
		s.discoverer.err = errors.New("no advertisement seen")

		err := s.manager.Connect(context.Background())
		var derr *session.DiscoveryError
		s.Require().ErrorAs(err, &derr)
		s.Equal(session.StateDisconnected, s.manager.State())
		s.Equal(1, s.countLogContaining("Discovery failed"))
	})

	s.Run("manager is reusable after discovery failure", func() {
		s.SetupTest()
		s.discoverer.err = errors.New("no advertisement seen")
		s.Error(s.manager.Connect(context.Background()))

		s.discoverer.err = nil
		s.Require().NoError(s.manager.Connect(context.Background()))
		s.waitReading()
	})
}

func (s *SessionManagerTestSuite) TestLogNewestFirst() {
	log := &session.Log{}
	log.Append("first")
	log.Append("second")
	log.Appendf("third %d", 3)

	entries := log.Entries()
	s.Require().Len(entries, 3)
	s.Equal("third 3", entries[0].Message)
	s.Equal("second", entries[1].Message)
	s.Equal("first", entries[2].Message)
	s.Equal(3, log.Len())
}

func TestSessionManagerTestSuite(t *testing.T) {
	suite.Run(t, new(SessionManagerTestSuite))
}

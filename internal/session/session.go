// Package session manages the single polling session against a soil probe:
// discovery by advertised name, link setup, a fixed-interval poll of the
// three soil characteristics, and teardown on user request, read failure, or
// remote close.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/soilsense/internal/groutine"
	"github.com/srg/soilsense/internal/sensor"
)

// State is the session lifecycle state. Transitions:
// Disconnected → Connecting → Connected → Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Discoverer locates a probe by its advertised local name.
type Discoverer interface {
	Discover(ctx context.Context, name string, timeout time.Duration) (Peripheral, error)
}

// Peripheral is one connectable probe. The production implementation wraps
// the BLE transport; tests substitute fakes.
type Peripheral interface {
	Address() string
	Connect(ctx context.Context) error
	Disconnect() error

	// ReadAttribute reads the raw value of one characteristic by UUID.
	ReadAttribute(uuid string, timeout time.Duration) ([]byte, error)

	// Done is closed when the link drops for any reason; Err reports the
	// cause (nil for a locally requested disconnect).
	Done() <-chan struct{}
	Err() error
}

const (
	// DefaultPollInterval is the fixed cadence between poll cycles.
	DefaultPollInterval = 5 * time.Second

	// DefaultDiscoveryTimeout bounds scanning for the probe's advertisement.
	DefaultDiscoveryTimeout = 30 * time.Second

	// DefaultReadTimeout bounds each individual characteristic read.
	DefaultReadTimeout = 5 * time.Second
)

// Config carries the manager's collaborators and tunables. Zero durations
// take the package defaults; an empty DeviceName takes sensor.DeviceName.
type Config struct {
	DeviceName       string
	PollInterval     time.Duration
	DiscoveryTimeout time.Duration
	ReadTimeout      time.Duration
	Logger           *logrus.Logger

	// OnReading is called after every successful poll cycle.
	OnReading func(sensor.Reading)

	// OnStateChange is called on every state transition.
	OnStateChange func(State)

	// OnClosed is called once per session when it ends. The cause is nil
	// for a user disconnect, ErrRemoteClosed for an unsolicited remote
	// close, or the terminal *ReadError.
	OnClosed func(error)
}

// Manager owns the single probe session. All methods are safe for
// concurrent use; observers read state, the last reading, and the log
// without affecting the session.
type Manager struct {
	discoverer Discoverer
	cfg        Config
	logger     *logrus.Logger
	log        *Log

	mu          sync.Mutex
	state       State
	generation  uint64 // bumped on every teardown; stale workers check it
	peripheral  Peripheral
	cancelPoll  context.CancelFunc
	lastReading *sensor.Reading
}

// NewManager creates a session manager using the given discoverer.
func NewManager(d Discoverer, cfg Config) *Manager {
	if cfg.DeviceName == "" {
		cfg.DeviceName = sensor.DeviceName
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}

	return &Manager{
		discoverer: d,
		cfg:        cfg,
		logger:     logger,
		log:        &Log{},
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reading returns the most recent complete reading, if one exists. It is
// reset on every teardown: a disconnected session has no reading.
func (m *Manager) Reading() (sensor.Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastReading == nil {
		return sensor.Reading{}, false
	}
	return *m.lastReading, true
}

// Log returns the session log.
func (m *Manager) Log() *Log {
	return m.log
}

// Connect discovers the probe, opens the link, runs the first poll, and arms
// the repeating poll timer. The first poll completes before Connect returns,
// so a Connected session always has a reading; if it fails, the session is
// torn down and Connect returns the ReadError (OnClosed fires with the same
// cause). Connect is rejected while a session is already connecting or
// connected: discovery must not run twice, and the caller is expected to
// Disconnect first.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return ErrSessionActive
	}
	m.state = StateConnecting
	gen := m.generation
	m.mu.Unlock()
	m.notifyState(StateConnecting)

	m.log.Appendf("Scanning for %q...", m.cfg.DeviceName)
	m.logger.WithField("name", m.cfg.DeviceName).Info("Starting probe discovery")

	per, err := m.discoverer.Discover(ctx, m.cfg.DeviceName, m.cfg.DiscoveryTimeout)
	if err != nil {
		derr := &DiscoveryError{Name: m.cfg.DeviceName, Cause: err}
		m.log.Appendf("Discovery failed: %v", err)
		m.abortConnecting(gen)
		return derr
	}

	m.log.Appendf("Found %q at %s, connecting...", m.cfg.DeviceName, per.Address())

	if err := per.Connect(ctx); err != nil {
		cerr := &ConnectionError{Address: per.Address(), Cause: err}
		m.log.Appendf("Connection failed: %v", err)
		m.abortConnecting(gen)
		return cerr
	}

	m.mu.Lock()
	if m.generation != gen {
		// Disconnect raced the handshake; the session is already closed.
		m.mu.Unlock()
		_ = per.Disconnect()
		return ErrSessionActive
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	m.state = StateConnected
	m.peripheral = per
	m.cancelPoll = cancel
	m.mu.Unlock()

	m.log.Append("Connected")
	m.logger.WithField("address", per.Address()).Info("Probe connected")
	m.notifyState(StateConnected)

	groutine.Go(pollCtx, "session-link-monitor", func(ctx context.Context) {
		select {
		case <-per.Done():
			// Done also closes on a local disconnect; only an unsolicited
			// drop of the current generation is a remote close.
			m.mu.Lock()
			stale := m.generation != gen
			m.mu.Unlock()
			if stale {
				return
			}
			m.log.Append("Probe closed the connection")
			m.teardown(gen, ErrRemoteClosed)
		case <-ctx.Done():
		}
	})

	// First poll runs on the caller: a Connected session never exists
	// without a reading.
	if err := m.poll(gen); err != nil {
		if errors.Is(err, errSessionStopped) {
			// A concurrent Disconnect won the race; the session is closed.
			return nil
		}
		return err
	}

	groutine.Go(pollCtx, "session-poll-loop", func(ctx context.Context) {
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if m.poll(gen) != nil {
					return
				}
			}
		}
	})

	return nil
}

// Disconnect closes the session. It is idempotent and safe from any state;
// calling it on an already disconnected session is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	gen := m.generation
	m.mu.Unlock()

	m.log.Append("Session closed")
	m.teardown(gen, nil)
}

// errSessionStopped means the session this poll belonged to is gone; the
// cycle was skipped and no teardown ran.
var errSessionStopped = errors.New("session stopped")

// poll runs one cycle: three sequential reads in fixed order. All three must
// decode or the cycle aborts and the session is torn down, returning the
// ReadError. A nil return means a reading was published.
func (m *Manager) poll(gen uint64) error {
	m.mu.Lock()
	if m.state != StateConnected || m.generation != gen {
		m.mu.Unlock()
		return errSessionStopped
	}
	per := m.peripheral
	m.mu.Unlock()

	reading := sensor.Reading{Timestamp: time.Now()}

	steps := []struct {
		attribute string
		uuid      string
		decode    func([]byte) (float64, error)
		field     *float64
	}{
		{"temperature", sensor.CharTemperature, sensor.DecodeTemperature, &reading.Temperature},
		{"moisture", sensor.CharMoisture, sensor.DecodeMoisture, &reading.Moisture},
		{"ph", sensor.CharPH, sensor.DecodePH, &reading.PH},
	}

	for _, step := range steps {
		data, err := per.ReadAttribute(step.uuid, m.cfg.ReadTimeout)
		if err == nil {
			var v float64
			v, err = step.decode(data)
			if err == nil {
				*step.field = v
				continue
			}
		}

		rerr := &ReadError{Attribute: step.attribute, Cause: err}
		m.log.Appendf("Read failed (%s): %v", step.attribute, err)
		m.logger.WithError(err).WithField("attribute", step.attribute).Warn("Poll failed, closing session")
		m.teardown(gen, rerr)
		return rerr
	}

	// Publish only if the session is still the one this poll belongs to.
	m.mu.Lock()
	if m.state != StateConnected || m.generation != gen {
		m.mu.Unlock()
		return errSessionStopped
	}
	m.lastReading = &reading
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"temperature": reading.Temperature,
		"moisture":    reading.Moisture,
		"ph":          reading.PH,
	}).Debug("Reading published")

	if m.cfg.OnReading != nil {
		m.cfg.OnReading(reading)
	}
	return nil
}

// abortConnecting reverts a failed Connect attempt back to Disconnected
// without treating it as a session teardown.
func (m *Manager) abortConnecting(gen uint64) {
	m.mu.Lock()
	if m.generation == gen && m.state == StateConnecting {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	m.notifyState(StateDisconnected)
}

// teardown ends the session exactly once per generation: stops the poll
// loop and link monitor, closes the link, clears the handle and the last
// reading. cause is nil for a user disconnect.
func (m *Manager) teardown(gen uint64, cause error) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.state = StateDisconnected
	per := m.peripheral
	cancel := m.cancelPoll
	m.peripheral = nil
	m.cancelPoll = nil
	m.lastReading = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if per != nil {
		if err := per.Disconnect(); err != nil {
			m.logger.WithError(err).Debug("Error closing probe link")
		}
	}

	m.notifyState(StateDisconnected)
	if m.cfg.OnClosed != nil {
		m.cfg.OnClosed(cause)
	}
}

func (m *Manager) notifyState(s State) {
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(s)
	}
}

// Package scanner handles BLE discovery of soil probes: the full survey used
// by the scan command and the targeted find-by-name used before connecting.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/soilsense/internal/device"
	goble "github.com/srg/soilsense/internal/device/go-ble"
	"github.com/srg/soilsense/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type       DeviceEventType
	DeviceInfo device.DeviceInfo
}

// ScannerFactory creates the underlying adapter scanner.
// This is a variable so that it can be overridden in tests.
//
//nolint:revive // ScannerFactory name mirrors goble.DeviceFactory
var ScannerFactory = func() (device.Scanner, error) {
	return goble.NewScanner()
}

// DeviceBuilder turns an advertisement into a tracked device.
// Overridable in tests alongside ScannerFactory.
var DeviceBuilder = func(adv device.Advertisement, logger *logrus.Logger) device.Device {
	return goble.NewBLEDeviceFromAdvertisement(adv, logger)
}

// Scanner handles BLE probe discovery
type Scanner struct {
	devices *hashmap.Map[string, device.Device]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool

	// NameFilter keeps only devices whose advertised local name matches
	// exactly. Empty means keep everything.
	NameFilter string

	AllowList []string
	BlockList []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// NewScanner creates a new BLE scanner
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		events: ringchan.New[DeviceEvent](100),
		logger: logger,
	}, nil
}

// Scan performs BLE discovery with provided options
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]device.DeviceInfo, error) {
	s.devices = hashmap.New[string, device.Device]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")

	progressCallback("Scanning")

	adapter, err := ScannerFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE adapter: %w", err)
	}

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err = adapter.Scan(scanCtx, opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	progressCallback("Processing results")

	devices := make(map[string]device.DeviceInfo, s.devices.Len())
	s.devices.Range(func(key string, value device.Device) bool {
		devices[key] = value
		return true
	})

	return devices, nil
}

// FindByName scans until a device advertising the given local name shows up,
// then returns it. The context bounds the wait; expiry surfaces as a
// not-found error.
func (s *Scanner) FindByName(ctx context.Context, name string, timeout time.Duration) (device.Device, error) {
	if name == "" {
		return nil, fmt.Errorf("device name must not be empty")
	}

	adapter, err := ScannerFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE adapter: %w", err)
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan device.Device, 1)
	handler := func(adv device.Advertisement) {
		if adv.LocalName() != name {
			return
		}
		select {
		case found <- DeviceBuilder(adv, s.logger):
			cancel() // stop scanning, we have a match
		default:
		}
	}

	err = adapter.Scan(scanCtx, true, handler)

	select {
	case dev := <-found:
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name(),
			"address": dev.Address(),
			"rssi":    dev.RSSI(),
		}).Info("Probe found")
		return dev, nil
	default:
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return nil, fmt.Errorf("no device named %q found within %v", name, timeout)
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	deviceID := adv.Addr()

	dev, existing := s.devices.Get(deviceID)
	if !existing {
		if !s.shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		dev, existing = s.devices.GetOrInsert(deviceID, DeviceBuilder(adv, s.logger))
	}

	event := DeviceEvent{
		DeviceInfo: dev,
	}

	if existing {
		dev.Update(adv)
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  dev.Name(),
			"address": dev.Address(),
			"rssi":    dev.RSSI(),
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	s.events.Send(event)
}

// shouldIncludeDevice applies the name/allow/block filters
func (s *Scanner) shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	if opts == nil {
		return true
	}

	if opts.NameFilter != "" && adv.LocalName() != opts.NameFilter {
		return false
	}

	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// EventMetrics reports event stream counters, including how many events were
// overwritten because the consumer fell behind.
func (s *Scanner) EventMetrics() ringchan.Metrics {
	return s.events.GetMetrics()
}

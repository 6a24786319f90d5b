// Package probe adapts the BLE transport to the narrow collaborator
// interfaces the session manager depends on.
package probe

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/soilsense/internal/device"
	"github.com/srg/soilsense/internal/sensor"
	"github.com/srg/soilsense/internal/session"
	"github.com/srg/soilsense/scanner"
)

// Discoverer finds soil probes by advertised name using the BLE scanner.
type Discoverer struct {
	logger *logrus.Logger
}

func NewDiscoverer(logger *logrus.Logger) *Discoverer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Discoverer{logger: logger}
}

// Discover scans until a probe advertising the given name appears.
func (d *Discoverer) Discover(ctx context.Context, name string, timeout time.Duration) (session.Peripheral, error) {
	sc, err := scanner.NewScanner(d.logger)
	if err != nil {
		return nil, err
	}

	dev, err := sc.FindByName(ctx, name, timeout)
	if err != nil {
		return nil, err
	}

	return &Peripheral{dev: dev, logger: d.logger}, nil
}

// Peripheral wraps a discovered device.Device as a session.Peripheral. The
// soil characteristics all live under the Environmental Sensing service.
type Peripheral struct {
	dev    device.Device
	logger *logrus.Logger
}

func (p *Peripheral) Address() string {
	return p.dev.Address()
}

func (p *Peripheral) Connect(ctx context.Context) error {
	return p.dev.Connect(ctx, nil)
}

func (p *Peripheral) Disconnect() error {
	return p.dev.Disconnect()
}

// ReadAttribute reads the raw value of one soil characteristic.
func (p *Peripheral) ReadAttribute(uuid string, timeout time.Duration) ([]byte, error) {
	normalized, err := device.ValidateUUID(uuid)
	if err != nil {
		return nil, err
	}
	uuid = normalized[0]

	conn := p.dev.GetConnection()
	if conn == nil {
		return nil, device.ErrNotConnected
	}

	char, err := conn.GetCharacteristic(sensor.ServiceEnvironmental, uuid)
	if err != nil {
		return nil, err
	}
	return char.Read(timeout)
}

func (p *Peripheral) Done() <-chan struct{} {
	conn := p.dev.GetConnection()
	if conn == nil {
		return nil
	}
	return conn.Done()
}

func (p *Peripheral) Err() error {
	conn := p.dev.GetConnection()
	if conn == nil {
		return device.ErrNotInitialized
	}
	return conn.Err()
}

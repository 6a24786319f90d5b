package goble

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/soilsense/internal/device"
	"github.com/srg/soilsense/internal/groutine"
)

const (
	// DefaultConnectTimeout bounds dialing plus profile discovery.
	DefaultConnectTimeout = 30 * time.Second
)

// BLEConnection represents a live BLE connection to a probe.
type BLEConnection struct {
	client    ble.Client
	logger    *logrus.Logger
	connMutex sync.RWMutex

	isConnected bool
	services    map[string]*BLEService

	// done is closed when the link drops; doneErr records why.
	done      chan struct{}
	doneOnce  sync.Once
	doneMutex sync.Mutex
	doneErr   error
}

func NewBLEConnection(logger *logrus.Logger) *BLEConnection {
	return &BLEConnection{
		services: make(map[string]*BLEService),
		logger:   logger,
	}
}

// Connect establishes a BLE connection and populates live characteristics.
func (c *BLEConnection) Connect(ctx context.Context, address string, opts *device.ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}

	if c.isConnectedInternal() {
		c.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	// Create a BLE adapter using the factory (allows for mocking in tests)
	dev, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return device.NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", address, device.NormalizeError(err))
	}

	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	bleProfile, err := client.DiscoverProfile(true)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}

	// Populate services and characteristics from the discovered profile
	c.services = make(map[string]*BLEService)
	for _, bleSvc := range bleProfile.Services {
		svcRawUUID := bleSvc.UUID.String()
		svcUUID := device.NormalizeUUID(svcRawUUID)
		c.logger.WithField("service_uuid", svcRawUUID).Debug("Found service UUID")
		svc, ok := c.services[svcUUID]
		if !ok {
			svc = NewBLEService(svcRawUUID)
			c.services[svcUUID] = svc
		}

		for _, bleCharacteristic := range bleSvc.Characteristics {
			charRawUUID := bleCharacteristic.UUID.String()
			charUUID := device.NormalizeUUID(charRawUUID)
			c.logger.WithFields(logrus.Fields{
				"service_uuid": svcUUID,
				"char_uuid":    charRawUUID,
			}).Debug("Found characteristic UUID")
			svc.addCharacteristic(charUUID, NewCharacteristic(bleCharacteristic, c))
		}
	}

	c.client = client
	c.isConnected = true
	c.done = make(chan struct{})
	c.doneOnce = sync.Once{}
	c.doneErr = nil

	// Monitor the go-ble client Disconnected() channel so unsolicited remote
	// closes surface through Done()/Err().
	if notifier, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		done := c.done
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-notifier.Disconnected():
				if c.logger != nil {
					c.logger.Warn("Transport reported unsolicited disconnection")
				}
				c.markDone(device.ErrNotConnected)
				c.teardown()
			case <-done:
				// Link already closed locally, exit monitor
			}
		})
	} else if c.logger != nil {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	totalChars := 0
	for _, svc := range c.services {
		totalChars += len(svc.GetCharacteristics())
	}

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(c.services),
		"characteristics": totalChars,
	}).Info("BLE device connected successfully")
	return nil
}

// Disconnect closes the link. Safe to call multiple times and when never
// connected.
func (c *BLEConnection) Disconnect() error {
	c.markDone(nil)
	return c.teardown()
}

// markDone records the link-drop cause and closes the done channel once.
func (c *BLEConnection) markDone(cause error) {
	c.doneMutex.Lock()
	defer c.doneMutex.Unlock()
	if c.doneErr == nil {
		c.doneErr = cause
	}
	if c.done != nil {
		c.doneOnce.Do(func() { close(c.done) })
	}
}

// teardown releases the client and clears connection state.
func (c *BLEConnection) teardown() error {
	c.connMutex.Lock()
	if c.client == nil || !c.isConnected {
		c.connMutex.Unlock()
		if c.logger != nil {
			c.logger.Debug("Disconnect called but already disconnected")
		}
		return nil
	}

	if c.logger != nil {
		c.logger.WithField("services", len(c.services)).Info("Disconnecting BLE device...")
	}

	client := c.client
	c.client = nil
	c.isConnected = false
	c.connMutex.Unlock()

	// Disconnect the BLE client (network call) outside the lock
	disconnectErr := client.CancelConnection()

	if c.logger != nil {
		if disconnectErr != nil {
			c.logger.WithField("error", disconnectErr).Warn("BLE device disconnected with errors")
		} else {
			c.logger.Info("BLE device disconnected successfully")
		}
	}

	return device.NormalizeError(disconnectErr)
}

// isConnectedInternal checks the connection status without acquiring locks.
// Should only be called when the caller already holds connMutex.
func (c *BLEConnection) isConnectedInternal() bool {
	return c.client != nil && c.isConnected
}

func (c *BLEConnection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnectedInternal()
}

// Done returns a channel closed when the link has dropped for any reason.
// Returns nil if the connection was never established.
func (c *BLEConnection) Done() <-chan struct{} {
	c.doneMutex.Lock()
	defer c.doneMutex.Unlock()
	return c.done
}

// Err reports why the link dropped: nil for a local Disconnect,
// device.ErrNotConnected for an unsolicited remote close. Only meaningful
// once Done() is closed.
func (c *BLEConnection) Err() error {
	c.doneMutex.Lock()
	defer c.doneMutex.Unlock()
	return c.doneErr
}

// GetCharacteristic retrieves a characteristic by service and characteristic
// UUID. Both UUIDs are normalized for consistent lookup (lowercase, no
// dashes). Returns a NotFoundError if either is not found.
func (c *BLEConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	normalizedServiceUUID := device.NormalizeUUID(service)
	normalizedCharUUID := device.NormalizeUUID(uuid)

	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	svc, ok := c.services[normalizedServiceUUID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}

	char, ok := svc.characteristic(normalizedCharUUID)
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}

	return char, nil
}

// Services returns all discovered BLE services for this connection,
// sorted by UUID for consistent ordering. Thread-safe.
func (c *BLEConnection) Services() []device.Service {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	result := make([]device.Service, 0, len(c.services))
	for _, v := range c.services {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}

// GetService retrieves a specific service by its UUID.
func (c *BLEConnection) GetService(uuid string) (device.Service, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	normalizedUUID := device.NormalizeUUID(uuid)
	svc, ok := c.services[normalizedUUID]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

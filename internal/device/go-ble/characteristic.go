package goble

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/soilsense/internal/bledb"
	"github.com/srg/soilsense/internal/device"
)

const (
	// DefaultReadTimeout is the default timeout for characteristic read
	// operations. This prevents indefinite blocking if a probe becomes
	// unresponsive during a read.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteChunkSize is the maximum number of bytes to write in a
	// single BLE operation. BLE 4.0/4.1 defines an ATT_MTU of 23 bytes
	// (20 bytes payload after ATT header overhead); 20-byte chunks work on
	// every BLE version.
	DefaultWriteChunkSize = 20

	// DefaultWriteDelay is the delay between consecutive write chunks so the
	// peripheral's receive buffer is not overwhelmed.
	DefaultWriteDelay = 10 * time.Millisecond
)

// BLECharacteristic implements device.Characteristic over a go-ble handle.
type BLECharacteristic struct {
	uuid       string
	knownName  string
	properties string
	bleChar    *ble.Characteristic
	connection *BLEConnection // parent connection for client access
}

func NewCharacteristic(c *ble.Characteristic, conn *BLEConnection) *BLECharacteristic {
	rawUUID := c.UUID.String()

	return &BLECharacteristic{
		uuid:       device.NormalizeUUID(rawUUID), // store normalized
		knownName:  bledb.LookupCharacteristic(rawUUID),
		properties: propsToString(c.Property),
		bleChar:    c,
		connection: conn,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) KnownName() string {
	return c.knownName
}

func (c *BLECharacteristic) Properties() string {
	return c.properties
}

// Read reads the current value of the characteristic from the probe with the
// given timeout. A zero timeout uses DefaultReadTimeout. The timeout prevents
// indefinite blocking if the probe becomes unresponsive mid-read.
func (c *BLECharacteristic) Read(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	client, err := c.liveClient()
	if err != nil {
		return nil, err
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		data, err := client.ReadCharacteristic(c.bleChar)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, device.NormalizeError(result.err))
		}
		return result.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("reading characteristic %s after %v: %w", c.uuid, timeout, device.ErrTimeout)
	}
}

// Write writes data to the characteristic in MTU-sized chunks.
func (c *BLECharacteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	client, err := c.liveClient()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for len(data) > 0 {
		if time.Now().After(deadline) {
			return fmt.Errorf("writing characteristic %s: %w", c.uuid, device.ErrTimeout)
		}
		n := len(data)
		if n > DefaultWriteChunkSize {
			n = DefaultWriteChunkSize
		}
		if err := client.WriteCharacteristic(c.bleChar, data[:n], !withResponse); err != nil {
			return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, device.NormalizeError(err))
		}
		data = data[n:]
		time.Sleep(DefaultWriteDelay)
	}
	return nil
}

// liveClient snapshots the connection's client under lock.
func (c *BLECharacteristic) liveClient() (ble.Client, error) {
	if c.connection == nil || c.bleChar == nil {
		return nil, fmt.Errorf("characteristic %s: %w", c.uuid, device.ErrNotInitialized)
	}

	c.connection.connMutex.RLock()
	defer c.connection.connMutex.RUnlock()
	if c.connection.client == nil {
		return nil, fmt.Errorf("characteristic %s: %w", c.uuid, device.ErrNotConnected)
	}
	return c.connection.client, nil
}

// propsToString renders a characteristic property bitmask as a
// comma-separated list (e.g., "read,notify").
func propsToString(p ble.Property) string {
	var parts []string
	if p&ble.CharBroadcast != 0 {
		parts = append(parts, "broadcast")
	}
	if p&ble.CharRead != 0 {
		parts = append(parts, "read")
	}
	if p&ble.CharWriteNR != 0 {
		parts = append(parts, "write-without-response")
	}
	if p&ble.CharWrite != 0 {
		parts = append(parts, "write")
	}
	if p&ble.CharNotify != 0 {
		parts = append(parts, "notify")
	}
	if p&ble.CharIndicate != 0 {
		parts = append(parts, "indicate")
	}
	return strings.Join(parts, ",")
}

package session

import (
	"errors"
	"fmt"
)

// ErrSessionActive is returned by Connect when a session is already
// connecting or connected. Discovery must never run twice concurrently, so
// the second caller is rejected instead of queued.
var ErrSessionActive = errors.New("session already active")

// ErrRemoteClosed is the teardown cause when the probe (or the radio stack)
// closes the link without a local Disconnect.
var ErrRemoteClosed = errors.New("probe closed the connection")

// DiscoveryError reports that no probe with the expected advertised name was
// found, or that scanning itself failed or was cancelled.
type DiscoveryError struct {
	Name  string
	Cause error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering probe %q: %v", e.Name, e.Cause)
}

func (e *DiscoveryError) Unwrap() error { return e.Cause }

// ConnectionError reports a failure to open the link to an already
// discovered probe.
type ConnectionError struct {
	Address string
	Cause   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to probe %s: %v", e.Address, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// ReadError reports a failed or undecodable characteristic read during a
// poll cycle. It is terminal: the session is torn down, not retried.
type ReadError struct {
	Attribute string
	Cause     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Attribute, e.Cause)
}

func (e *ReadError) Unwrap() error { return e.Cause }

package main

import (
	"errors"

	"github.com/srg/soilsense/internal/analysis"
	"github.com/srg/soilsense/internal/device"
	"github.com/srg/soilsense/internal/session"
)

// FormatUserError turns internal error chains into a message a gardener can
// act on. Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, session.ErrSessionActive):
		return "A probe session is already running. Disconnect it first."
	case errors.Is(err, session.ErrRemoteClosed):
		return "The probe closed the connection. Check its battery and move closer."
	}

	var derr *session.DiscoveryError
	if errors.As(err, &derr) {
		return "No soil probe found. Make sure the probe is powered on and in range. (" + derr.Cause.Error() + ")"
	}

	var cerr *session.ConnectionError
	if errors.As(err, &cerr) {
		return "Could not connect to the probe at " + cerr.Address + ". (" + cerr.Cause.Error() + ")"
	}

	var rerr *session.ReadError
	if errors.As(err, &rerr) {
		return "Reading the " + rerr.Attribute + " sensor failed; the session was closed. (" + rerr.Cause.Error() + ")"
	}

	var berr *analysis.BackendError
	if errors.As(err, &berr) {
		return "The analysis service did not return a usable answer. Try again in a moment. (" + berr.Cause.Error() + ")"
	}

	return err.Error()
}

package main

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/srg/soilsense/internal/analysis"
	"github.com/srg/soilsense/internal/device"
	"github.com/srg/soilsense/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bluetooth off",
			err:  device.ErrBluetoothOff,
			want: "Bluetooth is turned off",
		},
		{
			name: "session active",
			err:  session.ErrSessionActive,
			want: "already running",
		},
		{
			name: "discovery failure",
			err:  &session.DiscoveryError{Name: "SoilSense", Cause: errors.New("scan timeout")},
			want: "No soil probe found",
		},
		{
			name: "connection failure",
			err:  &session.ConnectionError{Address: "AA:BB", Cause: errors.New("dial failed")},
			want: "AA:BB",
		},
		{
			name: "read failure",
			err:  &session.ReadError{Attribute: "moisture", Cause: errors.New("att timeout")},
			want: "moisture",
		},
		{
			name: "backend failure",
			err:  &analysis.BackendError{Op: "parse", Cause: errors.New("empty response")},
			want: "analysis service",
		},
		{
			name: "unknown error passes through",
			err:  errors.New("something odd"),
			want: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.want)
		})
	}

	assert.Empty(t, FormatUserError(nil))
}

func TestTruncateDisplay(t *testing.T) {
	assert.Equal(t, "short", truncateDisplay("short", 20))
	assert.Equal(t, "exactly-twenty-chars", truncateDisplay("exactly-twenty-chars", 20))
	assert.Equal(t, "a-name-that-is-on...", truncateDisplay("a-name-that-is-only-too-long", 20))

	// Multi-byte advertised names must never be split mid-rune.
	got := truncateDisplay("Влагомер-для-теплицы-№2", 20)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 20, utf8.RuneCountInString(got))
	assert.Equal(t, "Влагомер-для-тепл...", got)
}

func TestParseManualReading(t *testing.T) {
	r, err := parseManualReading("21.5, 38, 6.4")
	require.NoError(t, err)
	assert.InDelta(t, 21.5, r.Temperature, 0.001)
	assert.InDelta(t, 38.0, r.Moisture, 0.001)
	assert.InDelta(t, 6.4, r.PH, 0.001)

	_, err = parseManualReading("21.5,38")
	assert.Error(t, err)

	_, err = parseManualReading("hot,38,6.4")
	assert.Error(t, err)
}

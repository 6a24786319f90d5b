package sensor_test

import (
	"testing"
	"time"

	"github.com/srg/soilsense/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GOAL: Verify the probe wire format against known vectors so codec and
// simulated-probe encoders stay in agreement.
func TestDecodeKnownVectors(t *testing.T) {
	// 2500 (0xC4 0x09 LE) -> 25.00°C
	temp, err := sensor.DecodeTemperature([]byte{0xC4, 0x09})
	require.NoError(t, err)
	assert.InDelta(t, 25.0, temp, 0.001)

	// Negative temperature: -5.25°C = -525 = 0xFDF3
	temp, err = sensor.DecodeTemperature([]byte{0xF3, 0xFD})
	require.NoError(t, err)
	assert.InDelta(t, -5.25, temp, 0.001)

	// 4000 (0xA0 0x0F LE) -> 40.00%
	moist, err := sensor.DecodeMoisture([]byte{0xA0, 0x0F})
	require.NoError(t, err)
	assert.InDelta(t, 40.0, moist, 0.001)

	// float32(6.5) LE -> pH 6.5
	ph, err := sensor.DecodePH([]byte{0x00, 0x00, 0xD0, 0x40})
	require.NoError(t, err)
	assert.InDelta(t, 6.5, ph, 0.001)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	temp, err := sensor.DecodeTemperature(sensor.EncodeTemperature(21.37))
	require.NoError(t, err)
	assert.InDelta(t, 21.37, temp, 0.005)

	moist, err := sensor.DecodeMoisture(sensor.EncodeMoisture(55.5))
	require.NoError(t, err)
	assert.InDelta(t, 55.5, moist, 0.005)

	ph, err := sensor.DecodePH(sensor.EncodePH(7.2))
	require.NoError(t, err)
	assert.InDelta(t, 7.2, ph, 0.001)
}

func TestDecodeRejectsShortPayloads(t *testing.T) {
	_, err := sensor.DecodeTemperature([]byte{0x01})
	assert.Error(t, err)

	_, err = sensor.DecodeMoisture(nil)
	assert.Error(t, err)

	_, err = sensor.DecodePH([]byte{0x00, 0x00, 0xD0})
	assert.Error(t, err)
}

func TestDecodePHRejectsNonFinite(t *testing.T) {
	// float32 NaN
	_, err := sensor.DecodePH([]byte{0x00, 0x00, 0xC0, 0x7F})
	assert.Error(t, err)

	// float32 +Inf
	_, err = sensor.DecodePH([]byte{0x00, 0x00, 0x80, 0x7F})
	assert.Error(t, err)
}

func TestReadingValidate(t *testing.T) {
	good := sensor.Reading{
		Timestamp:   time.Now(),
		Temperature: 22.5,
		Moisture:    38.0,
		PH:          6.8,
	}
	assert.NoError(t, good.Validate())

	bad := good
	bad.PH = 15.2
	assert.Error(t, bad.Validate())

	bad = good
	bad.Moisture = -1
	assert.Error(t, bad.Validate())

	bad = good
	bad.Temperature = 180
	assert.Error(t, bad.Validate())
}

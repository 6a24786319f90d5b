package trend_test

import (
	"testing"
	"time"

	"github.com/srg/soilsense/internal/sensor"
	"github.com/srg/soilsense/internal/trend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(temp float64) sensor.Reading {
	return sensor.Reading{Timestamp: time.Now(), Temperature: temp, Moisture: 40, PH: 6.5}
}

func TestCollectorValidation(t *testing.T) {
	_, err := trend.NewCollector(0, 10)
	assert.Error(t, err)

	_, err = trend.NewCollector(trend.MaxBufferSize+1, 10)
	assert.Error(t, err)

	_, err = trend.NewCollector(16, 0)
	assert.Error(t, err)
}

func TestAddAndDrain(t *testing.T) {
	c, err := trend.NewCollector(16, 10)
	require.NoError(t, err)

	assert.Empty(t, c.Drain())

	c.Add(reading(20))
	c.Add(reading(21))
	c.Add(reading(22))

	window := c.Drain()
	require.Len(t, window, 3)
	assert.InDelta(t, 20, window[0].Temperature, 0.001, "window must be oldest first")
	assert.InDelta(t, 22, window[2].Temperature, 0.001)

	// Draining again without new readings returns the same window.
	assert.Len(t, c.Drain(), 3)
}

// GOAL: Verify the display window stays bounded and keeps the newest
// readings.
func TestWindowBound(t *testing.T) {
	c, err := trend.NewCollector(64, 3)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		c.Add(reading(float64(20 + i)))
	}

	window := c.Drain()
	require.Len(t, window, 3)
	assert.InDelta(t, 25, window[0].Temperature, 0.001)
	assert.InDelta(t, 27, window[2].Temperature, 0.001)
}

func TestSeries(t *testing.T) {
	window := []sensor.Reading{reading(20), reading(22)}

	temps := trend.Series(window, trend.Temperature)
	assert.Equal(t, []float64{20, 22}, temps)

	moist := trend.Series(window, trend.Moisture)
	assert.Equal(t, []float64{40, 40}, moist)

	phs := trend.Series(window, trend.PH)
	assert.Equal(t, []float64{6.5, 6.5}, phs)
}

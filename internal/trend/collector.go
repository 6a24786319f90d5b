// Package trend keeps a rolling window of recent readings for the live
// monitor display. Producers enqueue from the session callback; the UI loop
// drains into the window on its own cadence, so a stalled terminal never
// blocks polling.
package trend

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/soilsense/internal/sensor"
)

// MaxBufferSize guards against accidental misconfiguration.
const MaxBufferSize uint32 = 1024 * 1024

// Collector buffers readings and maintains a bounded display window.
type Collector struct {
	buffer mpmc.RichOverlappedRingBuffer[sensor.Reading]

	mu        sync.Mutex
	window    []sensor.Reading
	maxWindow int

	overwritten int64 // lost to buffer overflow, atomic
}

// NewCollector creates a collector. bufferSize is the transfer buffer
// capacity; windowSize is how many readings the display window keeps.
func NewCollector(bufferSize uint32, windowSize int) (*Collector, error) {
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxBufferSize)
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be > 0")
	}

	return &Collector{
		buffer:    mpmc.NewOverlappedRingBuffer[sensor.Reading](bufferSize),
		maxWindow: windowSize,
	}, nil
}

// Add enqueues one reading. The ring buffer drops the oldest pending entry
// on overflow, so this never blocks the caller.
func (c *Collector) Add(r sensor.Reading) {
	overwrites, err := c.buffer.EnqueueM(r)
	if err != nil {
		// Overlapped buffer only errors on misuse; count it as loss.
		atomic.AddInt64(&c.overwritten, 1)
		return
	}
	atomic.AddInt64(&c.overwritten, int64(overwrites))
}

// Drain moves all pending readings into the window and returns a snapshot,
// oldest first.
func (c *Collector) Drain() []sensor.Reading {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.buffer.IsEmpty() {
		r, err := c.buffer.Dequeue()
		if err != nil {
			break
		}
		c.window = append(c.window, r)
	}
	if excess := len(c.window) - c.maxWindow; excess > 0 {
		c.window = append(c.window[:0], c.window[excess:]...)
	}

	out := make([]sensor.Reading, len(c.window))
	copy(out, c.window)
	return out
}

// Overwritten reports how many readings were lost to buffer overflow.
func (c *Collector) Overwritten() int64 {
	return atomic.LoadInt64(&c.overwritten)
}

// Series extracts one metric from a window, oldest first.
func Series(window []sensor.Reading, metric func(sensor.Reading) float64) []float64 {
	out := make([]float64, len(window))
	for i, r := range window {
		out[i] = metric(r)
	}
	return out
}

// Metric selectors for Series.
var (
	Temperature = func(r sensor.Reading) float64 { return r.Temperature }
	Moisture    = func(r sensor.Reading) float64 { return r.Moisture }
	PH          = func(r sensor.Reading) float64 { return r.PH }
)

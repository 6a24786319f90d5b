package sensor

import (
	"fmt"
	"time"
)

// Reading is one complete sample from a probe: all three characteristics
// read back-to-back in a single poll cycle.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature_c"`
	Moisture    float64   `json:"moisture_pct"`
	PH          float64   `json:"ph"`
}

func (r Reading) String() string {
	return fmt.Sprintf("%.2f°C  %.2f%%  pH %.2f", r.Temperature, r.Moisture, r.PH)
}

// Validate rejects values outside the probe's physical operating envelope.
// The codec already guarantees well-formed numbers; this catches a probe
// returning garbage (uninitialized sensor, broken electrode).
func (r Reading) Validate() error {
	if r.Temperature < -50 || r.Temperature > 100 {
		return fmt.Errorf("temperature %.2f°C outside plausible range [-50, 100]", r.Temperature)
	}
	if r.Moisture < 0 || r.Moisture > 100 {
		return fmt.Errorf("moisture %.2f%% outside range [0, 100]", r.Moisture)
	}
	if r.PH < 0 || r.PH > 14 {
		return fmt.Errorf("pH %.2f outside range [0, 14]", r.PH)
	}
	return nil
}

// Package sensor reads the one-wire temperature probe. On Linux the kernel
// w1 sysfs interface backs it; elsewhere a simulated sampler stands in.
package sensor

import (
	"context"
	"fmt"
)

// Celsius is a temperature reading.
type Celsius float64

func (c Celsius) Float64() float64 { return float64(c) }

func (c Celsius) String() string { return fmt.Sprintf("%.1f°C", float64(c)) }

// FromRaw converts the sensor's 16-bit scratchpad value (1/16 °C units).
func FromRaw(raw int16) Celsius {
	return Celsius(float64(raw) / 16.0)
}

// Sampler produces one temperature reading per call.
type Sampler interface {
	Sample(ctx context.Context) (Celsius, error)
}

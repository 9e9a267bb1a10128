package sensor

import (
	"context"
	"math/rand"
	"sync"
)

// SimSampler generates readings around a base temperature with small jitter.
// It keeps bench setups and non-Linux development working without a probe.
type SimSampler struct {
	mu   sync.Mutex
	base float64
	rng  *rand.Rand
}

func NewSimSampler(base float64, seed int64) *SimSampler {
	return &SimSampler{base: base, rng: rand.New(rand.NewSource(seed))}
}

func (s *SimSampler) Sample(ctx context.Context) (Celsius, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// random walk, quantized to the probe's 1/16 °C resolution
	s.base += (s.rng.Float64() - 0.5) * 0.25
	raw := int16(s.base * 16)
	return FromRaw(raw), nil
}

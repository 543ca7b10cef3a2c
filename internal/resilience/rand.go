package resilience

import "math/rand/v2"

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// NewSeededRand returns a deterministic jitter source.
func NewSeededRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

package generate

import (
	"math/rand/v2"
	"sync"

	"llmcore/internal/backend"
)

// GreedySeed is the fixed seed used for zero-temperature steps, which makes
// their output reproducible.
const GreedySeed uint32 = 1234

// Sampler picks the sampling policy for each decode step. Temperatures above
// zero draw a fresh seed from the source on every step.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler returns a Sampler drawing seeds from src. A nil src is seeded
// from the runtime's random generator.
func NewSampler(src rand.Source) *Sampler {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Sampler{rng: rand.New(src)}
}

// Params returns the parameters for one step at the given temperature.
func (s *Sampler) Params(temperature float32) backend.SampleParams {
	if temperature <= 0 {
		return backend.SampleParams{Temperature: 0, Seed: GreedySeed}
	}
	s.mu.Lock()
	seed := s.rng.Uint32()
	s.mu.Unlock()
	return backend.SampleParams{Temperature: temperature, Seed: seed}
}

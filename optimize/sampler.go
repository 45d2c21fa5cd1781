// Package optimize implements the adaptive optimization plane: semantic
// clustering of a skill's request population, Thompson Sampling over arms,
// parameter materialization and reward feedback.
package optimize

import (
	"math"
	"math/rand"
	"sync"

	"github.com/idkhub-com/reactive-agents/types"
)

// Sampler draws Beta-distributed Thompson samples. Safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler creates a sampler from a seed source; src may be nil.
func NewSampler(src rand.Source) *Sampler {
	if src == nil {
		src = rand.NewSource(rand.Int63())
	}
	return &Sampler{rng: rand.New(src)}
}

// BetaParams derives the temperature-shaped Beta parameters from an arm's
// stats. successes = total_reward, failures = n − total_reward (fractional
// rewards allowed); the temperature reshapes the parameters, not the sample:
// T > 1 flattens the posterior, T < 1 sharpens it. Fresh arms at any
// temperature stay at Beta(1,1).
func BetaParams(stats types.ArmStats, temperature float64) (alpha, beta float64) {
	if temperature <= 0 {
		temperature = 1.0
	}
	successes := stats.TotalReward
	failures := float64(stats.N) - stats.TotalReward
	if successes < 0 {
		successes = 0
	}
	if failures < 0 {
		failures = 0
	}
	alpha = successes/temperature + 1
	beta = failures/temperature + 1
	return alpha, beta
}

// SampleBeta draws x ~ Beta(alpha, beta) as G₁/(G₁+G₂) over two Gamma draws.
func (s *Sampler) SampleBeta(alpha, beta float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	g1 := s.gamma(alpha)
	g2 := s.gamma(beta)
	if g1+g2 == 0 {
		return 0.5
	}
	return g1 / (g1 + g2)
}

// Float64 exposes a uniform draw from the sampler's source.
func (s *Sampler) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// gamma draws from Gamma(shape, 1) using Marsaglia-Tsang squeeze; shapes
// below one are boosted through Gamma(a) = Gamma(a+1)·U^(1/a).
func (s *Sampler) gamma(shape float64) float64 {
	if shape < 1 {
		u := s.rng.Float64()
		for u == 0 {
			u = s.rng.Float64()
		}
		return s.gamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := s.rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}

// PickArm runs Thompson Sampling over the arms: one Beta sample per arm,
// highest sample wins. Returns -1 for an empty slate.
func (s *Sampler) PickArm(arms []types.Arm, temperature float64) int {
	best, bestSample := -1, -1.0
	for i := range arms {
		alpha, beta := BetaParams(arms[i].Stats, temperature)
		sample := s.SampleBeta(alpha, beta)
		if sample > bestSample {
			best, bestSample = i, sample
		}
	}
	return best
}

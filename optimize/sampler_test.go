package optimize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idkhub-com/reactive-agents/types"
)

func TestBetaParams(t *testing.T) {
	tests := []struct {
		name        string
		stats       types.ArmStats
		temperature float64
		wantAlpha   float64
		wantBeta    float64
	}{
		{
			name:        "fresh arm is uniform",
			stats:       types.ArmStats{},
			temperature: 1.0,
			wantAlpha:   1.0,
			wantBeta:    1.0,
		},
		{
			name:        "fresh arm stays uniform under any temperature",
			stats:       types.ArmStats{},
			temperature: 4.0,
			wantAlpha:   1.0,
			wantBeta:    1.0,
		},
		{
			name:        "fractional rewards split into successes and failures",
			stats:       types.ArmStats{N: 10, TotalReward: 7.5},
			temperature: 1.0,
			wantAlpha:   8.5,
			wantBeta:    3.5,
		},
		{
			name:        "high temperature flattens the posterior",
			stats:       types.ArmStats{N: 10, TotalReward: 7.5},
			temperature: 5.0,
			wantAlpha:   2.5,
			wantBeta:    1.5,
		},
		{
			name:        "low temperature sharpens the posterior",
			stats:       types.ArmStats{N: 10, TotalReward: 7.5},
			temperature: 0.5,
			wantAlpha:   16.0,
			wantBeta:    6.0,
		},
		{
			name:        "non-positive temperature defaults to one",
			stats:       types.ArmStats{N: 4, TotalReward: 2},
			temperature: 0,
			wantAlpha:   3.0,
			wantBeta:    3.0,
		},
		{
			name:        "reward above n clamps failures at zero",
			stats:       types.ArmStats{N: 2, TotalReward: 3},
			temperature: 1.0,
			wantAlpha:   4.0,
			wantBeta:    1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alpha, beta := BetaParams(tt.stats, tt.temperature)
			assert.InDelta(t, tt.wantAlpha, alpha, 1e-12)
			assert.InDelta(t, tt.wantBeta, beta, 1e-12)
		})
	}
}

func TestSampleBetaBounds(t *testing.T) {
	s := NewSampler(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		x := s.SampleBeta(2.5, 0.7)
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 1.0)
	}
}

func TestSampleBetaConcentrates(t *testing.T) {
	s := NewSampler(rand.NewSource(7))

	// Beta(91, 11) has mean ~0.89; the sample average over many draws should
	// land close to it.
	var sum float64
	const draws = 2000
	for i := 0; i < draws; i++ {
		sum += s.SampleBeta(91, 11)
	}
	assert.InDelta(t, 91.0/102.0, sum/draws, 0.02)
}

func TestPickArmPrefersWinner(t *testing.T) {
	s := NewSampler(rand.NewSource(42))

	arms := []types.Arm{
		{ID: "weak", Stats: types.ArmStats{N: 100, TotalReward: 20}},
		{ID: "strong", Stats: types.ArmStats{N: 100, TotalReward: 90}},
	}

	strongWins := 0
	const trials = 500
	for i := 0; i < trials; i++ {
		if s.PickArm(arms, 1.0) == 1 {
			strongWins++
		}
	}
	assert.Greater(t, strongWins, trials*8/10, "the dominant arm should win most pulls")
}

func TestPickArmHighTemperatureExplores(t *testing.T) {
	s := NewSampler(rand.NewSource(42))

	arms := []types.Arm{
		{ID: "weak", Stats: types.ArmStats{N: 100, TotalReward: 20}},
		{ID: "strong", Stats: types.ArmStats{N: 100, TotalReward: 90}},
	}

	weakWins := 0
	const trials = 500
	for i := 0; i < trials; i++ {
		if s.PickArm(arms, 50.0) == 0 {
			weakWins++
		}
	}
	// Near-flat posteriors pull the weak arm an order of magnitude above its
	// greedy share (well under 1% of pulls at T=1).
	assert.Greater(t, weakWins, trials/20)
}

func TestPickArmEmpty(t *testing.T) {
	s := NewSampler(rand.NewSource(1))
	assert.Equal(t, -1, s.PickArm(nil, 1.0))
}

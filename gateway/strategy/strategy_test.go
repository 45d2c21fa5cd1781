package strategy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/types"
)

func cfg(mode types.StrategyMode, targets ...types.Target) *types.Config {
	return &types.Config{
		Targets:  targets,
		Strategy: types.Strategy{Mode: mode},
	}
}

func target(provider string, weight float64) types.Target {
	return types.Target{Provider: provider, Weight: weight}
}

func TestSingleYieldsOnce(t *testing.T) {
	s := NewSelector(cfg(types.StrategySingle, target("openai", 0), target("groq", 0)), nil, nil)

	i, tgt, ok := s.Next(0)
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, "openai", tgt.Provider)

	_, _, ok = s.Next(503)
	assert.False(t, ok, "single mode never falls back")
}

func TestFallbackWalksInOrder(t *testing.T) {
	s := NewSelector(cfg(types.StrategyFallback,
		target("openai", 0), target("anthropic", 0), target("groq", 0)), nil, nil)

	i, _, ok := s.Next(0)
	require.True(t, ok)
	assert.Equal(t, 0, i)

	i, tgt, ok := s.Next(503)
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, "anthropic", tgt.Provider)

	i, _, ok = s.Next(429)
	require.True(t, ok)
	assert.Equal(t, 2, i)

	_, _, ok = s.Next(500)
	assert.False(t, ok, "targets are exhausted")
}

func TestFallbackStopsOnNonRetryableStatus(t *testing.T) {
	s := NewSelector(cfg(types.StrategyFallback, target("openai", 0), target("groq", 0)), nil, nil)

	_, _, ok := s.Next(0)
	require.True(t, ok)

	_, _, ok = s.Next(401)
	assert.False(t, ok, "401 is not in the default fallback gate")
}

func TestFallbackCustomStatusGate(t *testing.T) {
	c := cfg(types.StrategyFallback, target("openai", 0), target("groq", 0))
	c.Strategy.OnStatusCodes = []int{418}
	s := NewSelector(c, nil, nil)

	_, _, ok := s.Next(0)
	require.True(t, ok)

	_, _, ok = s.Next(503)
	assert.False(t, ok, "custom gates replace the default set entirely")

	s = NewSelector(c, nil, nil)
	_, _, ok = s.Next(0)
	require.True(t, ok)
	i, _, ok := s.Next(418)
	require.True(t, ok)
	assert.Equal(t, 1, i)
}

func TestLoadbalanceWeightedDraw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	counts := map[int]int{}
	for n := 0; n < 5000; n++ {
		s := NewSelector(cfg(types.StrategyLoadbalance,
			target("a", 3), target("b", 1), target("zero", 0)), nil, rng)
		i, _, ok := s.Next(0)
		require.True(t, ok)
		counts[i]++
	}

	assert.Zero(t, counts[2], "zero-weight targets are never drawn")
	ratio := float64(counts[0]) / float64(counts[1])
	assert.InDelta(t, 3.0, ratio, 0.5, "draw frequency follows weight")
}

func TestLoadbalanceRedrawExcludesTried(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n < 100; n++ {
		s := NewSelector(cfg(types.StrategyLoadbalance,
			target("a", 1), target("b", 1), target("c", 1)), nil, rng)

		seen := map[int]bool{}
		i, _, ok := s.Next(0)
		require.True(t, ok)
		seen[i] = true

		i, _, ok = s.Next(503)
		require.True(t, ok)
		assert.False(t, seen[i], "redraw must exclude tried targets")
		seen[i] = true

		i, _, ok = s.Next(503)
		require.True(t, ok)
		assert.False(t, seen[i])

		_, _, ok = s.Next(503)
		assert.False(t, ok, "all targets tried")
	}
}

func TestConditionalRouting(t *testing.T) {
	def := 2
	c := &types.Config{
		Targets: []types.Target{target("fast", 0), target("smart", 0), target("default", 0)},
		Strategy: types.Strategy{
			Mode: types.StrategyConditional,
			Conditions: []types.Condition{
				{Query: map[string]any{"model": "gpt-4o-mini"}, Target: 0},
				{Query: map[string]any{"metadata.tier": "premium"}, Target: 1},
			},
			Default: &def,
		},
	}

	t.Run("first match wins", func(t *testing.T) {
		body := map[string]any{"model": "gpt-4o-mini", "metadata": map[string]any{"tier": "premium"}}
		i, tgt, ok := NewSelector(c, body, nil).Next(0)
		require.True(t, ok)
		assert.Equal(t, 0, i)
		assert.Equal(t, "fast", tgt.Provider)
	})

	t.Run("dotted path", func(t *testing.T) {
		body := map[string]any{"model": "gpt-4o", "metadata": map[string]any{"tier": "premium"}}
		i, _, ok := NewSelector(c, body, nil).Next(0)
		require.True(t, ok)
		assert.Equal(t, 1, i)
	})

	t.Run("default", func(t *testing.T) {
		body := map[string]any{"model": "gpt-4o"}
		i, _, ok := NewSelector(c, body, nil).Next(0)
		require.True(t, ok)
		assert.Equal(t, 2, i)
	})

	t.Run("no fallback after conditional pick", func(t *testing.T) {
		s := NewSelector(c, map[string]any{"model": "gpt-4o-mini"}, nil)
		_, _, ok := s.Next(0)
		require.True(t, ok)
		_, _, ok = s.Next(503)
		assert.False(t, ok)
	})

	t.Run("no match and no default", func(t *testing.T) {
		noDefault := *c
		noDefault.Strategy.Default = nil
		_, _, ok := NewSelector(&noDefault, map[string]any{"model": "other"}, nil).Next(0)
		assert.False(t, ok)
	})
}

func TestMatchValueContainment(t *testing.T) {
	assert.True(t, matchValue("a", "a"))
	assert.True(t, matchValue(float64(3), 3), "numeric types normalize before comparing")
	assert.True(t, matchValue([]any{"a", "b"}, "b"), "list value matches by containment")
	assert.True(t, matchValue("b", []any{"a", "b"}), "list expectation matches by membership")
	assert.False(t, matchValue("c", []any{"a", "b"}))
	assert.False(t, matchValue(nil, "a"))
}

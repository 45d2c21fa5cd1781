// Package strategy walks a Config's target list: single, ordered fallback,
// weighted load balancing and declarative conditional routing, plus the
// per-target retry loop with exponential backoff.
package strategy

import (
	"math/rand"
	"reflect"
	"strings"

	"github.com/idkhub-com/reactive-agents/types"
)

// Selector yields the targets to attempt for one request, in order. It is
// not safe for concurrent use; each request builds its own.
type Selector struct {
	targets  []types.Target
	strategy types.Strategy
	body     map[string]any
	rng      *rand.Rand

	started bool
	tried   map[int]bool
	cursor  int
}

// NewSelector builds a selector. body is the canonical request body used by
// conditional predicates; rng may be nil.
func NewSelector(cfg *types.Config, body map[string]any, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Selector{
		targets:  cfg.Targets,
		strategy: cfg.Strategy,
		body:     body,
		rng:      rng,
		tried:    make(map[int]bool),
	}
}

// Next returns the next target to attempt. lastStatus is the HTTP status of
// the previous attempt, or 0 on the first call. ok=false means the walk is
// over.
func (s *Selector) Next(lastStatus int) (int, *types.Target, bool) {
	if !s.started {
		s.started = true
		return s.first()
	}
	if !s.statusContinues(lastStatus) {
		return 0, nil, false
	}

	switch s.strategy.ModeOrDefault() {
	case types.StrategyFallback:
		for s.cursor < len(s.targets) {
			i := s.cursor
			s.cursor++
			if !s.tried[i] {
				s.tried[i] = true
				return i, &s.targets[i], true
			}
		}
	case types.StrategyLoadbalance:
		if i, ok := s.draw(); ok {
			s.tried[i] = true
			return i, &s.targets[i], true
		}
	}
	// single and conditional never fall back.
	return 0, nil, false
}

func (s *Selector) first() (int, *types.Target, bool) {
	switch s.strategy.ModeOrDefault() {
	case types.StrategyLoadbalance:
		i, ok := s.draw()
		if !ok {
			return 0, nil, false
		}
		s.tried[i] = true
		return i, &s.targets[i], true
	case types.StrategyConditional:
		for _, cond := range s.strategy.Conditions {
			if matchQuery(s.body, cond.Query) {
				s.tried[cond.Target] = true
				return cond.Target, &s.targets[cond.Target], true
			}
		}
		if s.strategy.Default != nil {
			i := *s.strategy.Default
			s.tried[i] = true
			return i, &s.targets[i], true
		}
		return 0, nil, false
	default:
		if len(s.targets) == 0 {
			return 0, nil, false
		}
		s.tried[0] = true
		s.cursor = 1
		return 0, &s.targets[0], true
	}
}

// statusContinues reports whether the previous attempt's status permits
// another target.
func (s *Selector) statusContinues(status int) bool {
	codes := s.strategy.OnStatusCodes
	if len(codes) == 0 {
		codes = types.DefaultRetryStatusCodes
	}
	for _, c := range codes {
		if c == status {
			return true
		}
	}
	// The default gate also spans the whole 5xx class.
	if len(s.strategy.OnStatusCodes) == 0 && status >= 500 && status < 600 {
		return true
	}
	return false
}

// draw picks an untried target by weighted draw. Targets without a positive
// weight are excluded.
func (s *Selector) draw() (int, bool) {
	total := 0.0
	for i := range s.targets {
		if !s.tried[i] && s.targets[i].Weight > 0 {
			total += s.targets[i].Weight
		}
	}
	if total == 0 {
		return 0, false
	}
	pick := s.rng.Float64() * total
	for i := range s.targets {
		if s.tried[i] || s.targets[i].Weight <= 0 {
			continue
		}
		pick -= s.targets[i].Weight
		if pick <= 0 {
			return i, true
		}
	}
	return 0, false
}

// matchQuery evaluates a conditional predicate: every entry must match the
// value at its dotted path, by equality or containment. No code execution.
func matchQuery(body map[string]any, query map[string]any) bool {
	if len(query) == 0 {
		return false
	}
	for path, want := range query {
		got, ok := readPath(body, path)
		if !ok || !matchValue(got, want) {
			return false
		}
	}
	return true
}

func matchValue(got, want any) bool {
	if reflect.DeepEqual(normalize(got), normalize(want)) {
		return true
	}
	// A list on either side matches by containment.
	if list, ok := got.([]any); ok {
		for _, item := range list {
			if reflect.DeepEqual(normalize(item), normalize(want)) {
				return true
			}
		}
	}
	if list, ok := want.([]any); ok {
		for _, item := range list {
			if reflect.DeepEqual(normalize(got), normalize(item)) {
				return true
			}
		}
	}
	return false
}

// normalize folds numeric types to float64 so JSON-decoded values compare.
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}

func readPath(m map[string]any, path string) (any, bool) {
	cur := any(m)
	for _, p := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Package evals implements the evaluator framework: a registry of scoring
// methods that grade served requests in [0,1] and feed rewards back to the
// optimizer.
package evals

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/idkhub-com/reactive-agents/types"
)

// Details describes a method for discovery endpoints.
type Details struct {
	Tag         string `json:"tag"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Params is the validated configuration of one evaluation. Zero values fall
// back to method defaults.
type Params struct {
	Threshold   float64 `json:"threshold,omitempty"`
	JudgeModel  string  `json:"judge_model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	Verbose     bool    `json:"verbose,omitempty"`
	StrictMode  bool    `json:"strict_mode,omitempty"`

	TargetLatencyMS int64 `json:"target_latency_ms,omitempty"`
	MaxLatencyMS    int64 `json:"max_latency_ms,omitempty"`
}

// Result is the outcome of scoring one log.
type Result struct {
	Score       float64         `json:"score"`
	Extras      json.RawMessage `json:"extras,omitempty"`
	DisplayInfo []string        `json:"display_info,omitempty"`
	Note        string          `json:"note,omitempty"`
}

// Method is one evaluation strategy.
type Method interface {
	Details() Details
	ValidateParams(p *Params) error
	EvaluateLog(ctx context.Context, p *Params, log *types.Log) (*Result, error)
}

// Registry holds the method set. It is populated at startup and read-only
// afterwards.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

func (r *Registry) Register(m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Details().Tag] = m
}

// Resolve returns the method for a tag.
func (r *Registry) Resolve(tag string) (Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[tag]
	if !ok {
		return nil, types.NewError(types.ErrInvalidMethod, "unknown evaluation method: "+tag).WithParam("method")
	}
	return m, nil
}

// List returns the registered method details sorted by registration map
// iteration; callers sort for display.
func (r *Registry) List() []Details {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Details, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m.Details())
	}
	return out
}

// AverageReward folds multiple method scores into the single arm reward:
// uniform average over results without an error. The second return is false
// when nothing scored.
func AverageReward(results []types.EvaluationResult) (float64, bool) {
	var sum float64
	var n int
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		sum += r.Score
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

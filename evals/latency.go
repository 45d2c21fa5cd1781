package evals

import (
	"context"
	"fmt"
	"time"

	"github.com/idkhub-com/reactive-agents/types"
)

// TagLatency identifies the deterministic latency method; it is the default
// reward signal for optimizing skills with no attached evaluations.
const TagLatency = "latency"

const (
	defaultTargetLatencyMS = 500
	defaultMaxLatencyMS    = 10000
)

// LatencyMethod scores a log by how fast the upstream answered. Streamed
// responses are scored on time to first token, buffered ones on total
// duration.
type LatencyMethod struct{}

func (m *LatencyMethod) Details() Details {
	return Details{
		Tag:         TagLatency,
		Label:       "Latency",
		Description: "Scores responses on time to first token (or total duration) against a target/max window.",
	}
}

func (m *LatencyMethod) ValidateParams(p *Params) error {
	target, max := m.window(p)
	if target < 0 || max <= 0 {
		return types.NewError(types.ErrInvalidRequest, "latency window must be positive").WithParam("max_latency_ms")
	}
	if target >= max {
		return types.NewError(types.ErrInvalidRequest, "target_latency_ms must be below max_latency_ms").WithParam("target_latency_ms")
	}
	return nil
}

func (m *LatencyMethod) EvaluateLog(ctx context.Context, p *Params, log *types.Log) (*Result, error) {
	elapsed, ok := m.observed(log)
	if !ok {
		return &Result{
			Score: 0.5,
			Note:  "no timing information on log",
		}, nil
	}

	target, max := m.window(p)
	ms := elapsed.Milliseconds()

	var score float64
	switch {
	case ms <= target:
		score = 1.0
	case ms >= max:
		score = 0.0
	default:
		score = float64(max-ms) / float64(max-target)
	}

	return &Result{
		Score:       score,
		DisplayInfo: []string{fmt.Sprintf("observed %dms against [%d, %d]ms", ms, target, max)},
	}, nil
}

// observed prefers TTFT over total duration.
func (m *LatencyMethod) observed(log *types.Log) (time.Duration, bool) {
	if ttft, ok := log.TTFT(); ok {
		return ttft, true
	}
	if log.DurationMS > 0 {
		return time.Duration(log.DurationMS) * time.Millisecond, true
	}
	return 0, false
}

func (m *LatencyMethod) window(p *Params) (target, max int64) {
	target, max = defaultTargetLatencyMS, defaultMaxLatencyMS
	if p != nil && p.TargetLatencyMS > 0 {
		target = p.TargetLatencyMS
	}
	if p != nil && p.MaxLatencyMS > 0 {
		max = p.MaxLatencyMS
	}
	return target, max
}

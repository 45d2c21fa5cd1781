package evals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/idkhub-com/reactive-agents/types"
)

// Judge is the reentrant inference surface judge methods score with. The
// request pipeline implements it by routing through its own public entry
// point under an internal skill.
type Judge interface {
	Complete(ctx context.Context, model string, temperature float64, system, user string) (string, error)
}

const (
	defaultJudgeModel       = "gpt-4o-mini"
	defaultJudgeTemperature = 0.0

	// maxJudgeDepth bounds judge-of-judge recursion through the reentrant
	// gateway call.
	maxJudgeDepth = 2
)

type judgeDepthKey struct{}

// WithJudgeDepth marks a context as one judge call deeper. The pipeline
// propagates the returned context into any evaluations its reentrant request
// spawns.
func WithJudgeDepth(ctx context.Context) context.Context {
	return context.WithValue(ctx, judgeDepthKey{}, JudgeDepth(ctx)+1)
}

// JudgeDepth reports how many judge hops deep the context already is.
func JudgeDepth(ctx context.Context) int {
	d, _ := ctx.Value(judgeDepthKey{}).(int)
	return d
}

// judgeEnvelope is the JSON verdict the judge model is instructed to emit.
type judgeEnvelope struct {
	Criteria       string   `json:"criteria"`
	Score          float64  `json:"score"`
	Reasoning      string   `json:"reasoning,omitempty"`
	OverallSuccess *bool    `json:"overall_success,omitempty"`
	DisplayInfo    []string `json:"display_info,omitempty"`
}

// judgeMethod is one LLM-as-judge evaluation. The per-method difference is
// the criteria block injected into a shared prompt scaffold.
type judgeMethod struct {
	details  Details
	criteria string

	judge   Judge
	limiter *rate.Limiter
	logger  *zap.Logger
}

func (m *judgeMethod) Details() Details { return m.details }

func (m *judgeMethod) ValidateParams(p *Params) error {
	if p == nil {
		return nil
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return types.NewError(types.ErrInvalidRequest, "threshold must be within [0,1]").WithParam("threshold")
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return types.NewError(types.ErrInvalidRequest, "judge temperature must be within [0,2]").WithParam("temperature")
	}
	return nil
}

func (m *judgeMethod) EvaluateLog(ctx context.Context, p *Params, log *types.Log) (*Result, error) {
	if JudgeDepth(ctx) >= maxJudgeDepth {
		return nil, types.NewError(types.ErrForbidden, "judge recursion depth exceeded")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.ErrTimeout, "judge rate wait canceled").WithCause(err)
	}

	model := defaultJudgeModel
	temperature := defaultJudgeTemperature
	if p != nil && p.JudgeModel != "" {
		model = p.JudgeModel
	}
	if p != nil && p.Temperature > 0 {
		temperature = p.Temperature
	}

	system, user := m.buildPrompt(log)
	raw, err := m.judge.Complete(WithJudgeDepth(ctx), model, temperature, system, user)
	if err != nil {
		return nil, err
	}

	envelope, err := parseJudgeEnvelope(raw)
	if err != nil {
		m.logger.Warn("judge verdict unparseable",
			zap.String("method", m.details.Tag),
			zap.String("log_id", log.ID),
			zap.Error(err))
		return nil, err
	}

	score := envelope.Score
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	threshold := 0.5
	if p != nil && p.Threshold > 0 {
		threshold = p.Threshold
	}
	if p != nil && p.StrictMode {
		// Strict mode accepts nothing short of a perfect verdict.
		threshold = 1.0
		if score < 1.0 {
			score = 0.0
		}
	}

	extras, _ := json.Marshal(map[string]any{
		"criteria":    envelope.Criteria,
		"judge_model": model,
		"threshold":   threshold,
		"passed":      score >= threshold,
	})

	result := &Result{Score: score, Extras: extras}
	if p != nil && p.Verbose && envelope.Reasoning != "" {
		result.DisplayInfo = append(result.DisplayInfo, envelope.Reasoning)
	}
	result.DisplayInfo = append(result.DisplayInfo, envelope.DisplayInfo...)
	return result, nil
}

func (m *judgeMethod) buildPrompt(log *types.Log) (system, user string) {
	system = fmt.Sprintf(`You are an impartial evaluator of AI assistant exchanges.

Evaluation criteria:
%s

Respond with a single JSON object and nothing else:
{"criteria": "<criteria you applied>", "score": <number between 0.0 and 1.0>, "reasoning": "<one short paragraph>", "overall_success": <true or false>}`, m.criteria)

	var b strings.Builder
	b.WriteString("Evaluate the following exchange.\n\n")
	b.WriteString("## Request\n")
	b.WriteString(renderBody(log.RequestBody))
	b.WriteString("\n\n## Response\n")
	b.WriteString(renderBody(log.ResponseBody))
	return system, b.String()
}

// renderBody pretty-prints a logged JSON body for the judge prompt; invalid
// or empty bodies render as a placeholder.
func renderBody(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	var buf strings.Builder
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return string(raw)
	}
	return strings.TrimRight(buf.String(), "\n")
}

// parseJudgeEnvelope extracts the JSON verdict from the judge's reply,
// tolerating markdown code fences and surrounding prose.
func parseJudgeEnvelope(raw string) (*judgeEnvelope, error) {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	var env judgeEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "judge reply is not a valid verdict envelope").WithCause(err)
	}
	return &env, nil
}

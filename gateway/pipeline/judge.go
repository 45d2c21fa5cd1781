package pipeline

import (
	"context"
	"encoding/json"

	"github.com/idkhub-com/reactive-agents/types"
)

// JudgeClient satisfies the evaluator framework's reentrant inference
// surface. Judge prompts go through the same Execute path as client traffic,
// bound to the reserved internal judge skill so their logs never feed an
// optimizing skill's arms.
type JudgeClient struct {
	pipeline   *Pipeline
	provider   string
	apiKey     string
	agent      string
	customHost string
}

// NewJudgeClient binds judge completions to one provider credential. agent
// may be empty to skip agent attribution on judge logs.
func NewJudgeClient(p *Pipeline, provider, apiKey, agent string) *JudgeClient {
	return &JudgeClient{pipeline: p, provider: provider, apiKey: apiKey, agent: agent}
}

// WithCustomHost routes judge calls at a non-default provider host, for
// self-hosted judge deployments.
func (c *JudgeClient) WithCustomHost(host string) *JudgeClient {
	c.customHost = host
	return c
}

// Complete runs one buffered judge completion and returns the assistant text.
func (c *JudgeClient) Complete(ctx context.Context, model string, temperature float64, system, user string) (string, error) {
	req := &types.Request{
		Function: types.FunctionChatComplete,
		Chat: &types.ChatBody{
			Model: model,
			Messages: []types.Message{
				types.NewSystemMessage(system),
				types.NewUserMessage(user),
			},
			SamplingParams: types.SamplingParams{Temperature: &temperature},
		},
	}
	cfg := &types.Config{
		Targets: []types.Target{{
			Provider:   c.provider,
			APIKey:     c.apiKey,
			CustomHost: c.customHost,
			Config:     &types.TargetConfiguration{Provider: c.provider, Model: model},
		}},
		Strategy: types.Strategy{Mode: types.StrategySingle},
	}
	if c.agent != "" {
		cfg.Agent = c.agent
		cfg.Skill = "internal/llm-judge"
	}

	result, err := c.pipeline.Execute(ctx, req, cfg)
	if err != nil {
		return "", err
	}
	if result.Response == nil {
		return "", types.NewError(types.ErrInternal, "judge call produced no buffered response")
	}
	var resp types.Response
	if err := json.Unmarshal(result.Response.Bytes, &resp); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "judge response is not a canonical completion").WithCause(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", types.NewError(types.ErrUpstreamError, "judge response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

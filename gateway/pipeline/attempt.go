package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/gateway/cache"
	"github.com/idkhub-com/reactive-agents/gateway/hooks"
	"github.com/idkhub-com/reactive-agents/gateway/observ"
	"github.com/idkhub-com/reactive-agents/types"
)

// attempt is everything one target attempt needs after resolution.
type attempt struct {
	dialect gateway.Dialect
	target  *types.Target
	req     *types.Request
	url     string
	headers map[string]string
	body    map[string]any
}

// attemptTarget serves the request through one target. The returned status
// feeds the strategy gate when the attempt fails.
func (e *execution) attemptTarget(ctx context.Context, idx int, target *types.Target) (*Result, int, error) {
	prep, err := e.prepare(ctx, target)
	if err != nil {
		return nil, statusOf(err), err
	}

	e.builder.SetTarget(target.Provider, prep.req.Model())

	if e.req.Function.IsStreaming() {
		return e.attemptStream(ctx, prep)
	}
	return e.attemptBuffered(ctx, prep)
}

// prepare resolves the dialect, applies the target configuration and builds
// the upstream body, URL and headers.
func (e *execution) prepare(ctx context.Context, target *types.Target) (*attempt, error) {
	dialect, err := gateway.Resolve(target.Provider)
	if err != nil {
		return nil, err
	}
	if v, ok := dialect.(gateway.CustomFieldsValidator); ok {
		if err := v.ValidateCustomFields(target); err != nil {
			return nil, err
		}
	}
	if err := e.resolveAPIKey(ctx, target); err != nil {
		return nil, err
	}

	reqCopy, err := cloneRequest(e.req)
	if err != nil {
		return nil, err
	}
	applyTargetConfig(reqCopy, target.Config)

	table := dialect.ParamTable(reqCopy.Function)
	if table == nil {
		return nil, types.NewError(types.ErrInvalidMethod,
			fmt.Sprintf("provider %q does not support %s", target.Provider, reqCopy.Function)).
			WithHTTPStatus(http.StatusNotFound)
	}
	var caps *gateway.Capabilities
	if cp, ok := dialect.(gateway.CapabilityProvider); ok {
		caps = cp.Capabilities(reqCopy.Function)
	}
	tr, err := gateway.BuildUpstreamBody(reqCopy, table, caps)
	if err != nil {
		return nil, err
	}
	if len(tr.DroppedParams) > 0 {
		e.builder.SetMetadata("dropped_params", tr.DroppedParams)
	}
	for k, v := range e.cfg.OverrideParams {
		tr.Body[k] = v
	}
	if target.Config != nil {
		for k, v := range target.Config.AdditionalParams {
			tr.Body[k] = v
		}
	}

	baseURL, err := dialect.BaseURL(target)
	if err != nil {
		return nil, err
	}
	endpoint, err := dialect.Endpoint(reqCopy, target)
	if err != nil {
		return nil, err
	}
	headers, err := dialect.Headers(target, reqCopy.Function)
	if err != nil {
		return nil, err
	}

	return &attempt{
		dialect: dialect,
		target:  target,
		req:     reqCopy,
		url:     baseURL + endpoint,
		headers: headers,
		body:    tr.Body,
	}, nil
}

// attemptBuffered serves a non-streaming function, going through the cache
// when the target enables it.
func (e *execution) attemptBuffered(ctx context.Context, prep *attempt) (*Result, int, error) {
	entry, cacheStatus, err := e.fetchEntry(ctx, prep, false)
	if err != nil {
		return nil, statusOf(err), err
	}
	e.builder.SetCacheStatus(cacheStatus)

	body, err := e.runOutputHooks(ctx, prep, entry.Body, entry.Status)
	if err != nil {
		return nil, statusOf(err), err
	}

	e.finishSuccess(entry.Status, body)
	return &Result{
		Response: &types.RawResponse{Status: entry.Status, ContentType: entry.ContentType, Bytes: body},
		LogID:    e.builder.LogID(),
	}, entry.Status, nil
}

// attemptStream serves a streaming function. With caching enabled the
// upstream call is buffered and the stream is synthesized from the complete
// body, so cache hits replay without an upstream call; without caching the
// upstream stream is proxied chunk by chunk.
func (e *execution) attemptStream(ctx context.Context, prep *attempt) (*Result, int, error) {
	if cacheEnabled(prep.target.Cache) {
		entry, cacheStatus, err := e.fetchEntry(ctx, prep, true)
		if err != nil {
			return nil, statusOf(err), err
		}
		e.builder.SetCacheStatus(cacheStatus)

		body, err := e.runOutputHooks(ctx, prep, entry.Body, entry.Status)
		if err != nil {
			return nil, statusOf(err), err
		}
		stream, err := e.synthesizeStream(ctx, body)
		if err != nil {
			return nil, statusOf(err), err
		}
		e.finishSuccess(entry.Status, body)
		return &Result{Stream: stream, LogID: e.builder.LogID()}, entry.Status, nil
	}
	return e.proxyStream(ctx, prep)
}

// fetchEntry performs the upstream call, collapsed through the cache when
// the target's policy enables it. stripStream forces a buffered upstream
// call for stream synthesis.
func (e *execution) fetchEntry(ctx context.Context, prep *attempt, stripStream bool) (*cache.Entry, types.CacheStatus, error) {
	body := prep.body
	if stripStream {
		body = make(map[string]any, len(prep.body))
		for k, v := range prep.body {
			if k == "stream" {
				continue
			}
			body[k] = v
		}
	}

	compute := func(cctx context.Context) (*cache.Entry, error) {
		return e.callUpstream(cctx, prep, body)
	}

	if e.pipeline.cache == nil || !cacheEnabled(prep.target.Cache) {
		entry, err := compute(ctx)
		return entry, types.CacheNA, err
	}

	lookup := cache.Lookup{
		Scope:        e.cacheScope(prep),
		Fingerprint:  cache.Fingerprint(prep.target.Provider, prep.req.Model(), prep.req.Function, prep.req, e.cfg.StrictCompliance),
		ForceRefresh: e.cfg.ForceRefresh,
	}
	if prep.target.Cache.Mode == types.CacheSemantic {
		lookup.Embedding = e.embedding
	}
	return e.pipeline.cache.Fetch(ctx, prep.target.Cache, lookup, compute)
}

// cacheScope isolates semantic matches per skill when one is bound, else
// per provider+model.
func (e *execution) cacheScope(prep *attempt) string {
	if e.skill != nil {
		return "skill:" + e.skill.ID
	}
	return "target:" + prep.target.Provider + ":" + prep.req.Model()
}

// runOutputHooks threads the buffered response through the output hooks.
func (e *execution) runOutputHooks(ctx context.Context, prep *attempt, responseBody []byte, status int) ([]byte, error) {
	if len(e.cfg.OutputHooks) == 0 {
		return responseBody, nil
	}
	reqBody, _ := json.Marshal(prep.req)

	// Output hook records reset on every attempt; input records stand.
	outcome := e.pipeline.hooks.RunOutput(ctx, e.cfg.OutputHooks, reqBody, responseBody, status, e.cfg.Metadata)
	e.hookResults.OutputHooks = outcome.Results
	if outcome.Denied() {
		return nil, hooks.DenyError(hooks.StageOutput, outcome.DeniedBy, &e.hookResults)
	}
	if len(outcome.ResponseBody) > 0 {
		return outcome.ResponseBody, nil
	}
	return responseBody, nil
}

// finishSuccess finalizes the log for a served buffered response.
func (e *execution) finishSuccess(status int, body []byte) {
	if len(e.hookResults.InputHooks) > 0 || len(e.hookResults.OutputHooks) > 0 {
		e.builder.SetHookResults(&e.hookResults)
	}
	e.recordUsage(body)
	e.builder.Finalize(status, body)
	e.publishCompletion()
}

// recordUsage attaches token usage to the log, estimating it when the
// upstream left it out.
func (e *execution) recordUsage(body []byte) {
	if !e.req.Function.SupportsOptimization() {
		return
	}
	var resp types.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}
	e.builder.SetMetadata("usage", observ.EstimateUsage(e.req, &resp))
}

func cacheEnabled(policy *types.CachePolicy) bool {
	return policy != nil && policy.Mode != "" && policy.Mode != types.CacheDisabled
}

func statusOf(err error) int {
	if terr, ok := err.(*types.Error); ok {
		return terr.Status()
	}
	return http.StatusInternalServerError
}

func cloneRequest(req *types.Request) (*types.Request, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to clone request").WithCause(err)
	}
	var copied types.Request
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to clone request").WithCause(err)
	}
	return &copied, nil
}

// applyTargetConfig lays the resolved configuration over the request copy.
// Configured values win: the configuration is the materialized arm (or the
// caller's explicit per-target bundle), not a fallback.
func applyTargetConfig(req *types.Request, cfg *types.TargetConfiguration) {
	if cfg == nil {
		return
	}
	if cfg.Model != "" {
		req.SetModel(cfg.Model)
	}
	if sp := req.Sampling(); sp != nil {
		if cfg.Temperature != nil {
			sp.Temperature = cfg.Temperature
		}
		if cfg.TopP != nil {
			sp.TopP = cfg.TopP
		}
		if cfg.MaxTokens != nil {
			sp.MaxTokens = cfg.MaxTokens
		}
		if cfg.FrequencyPenalty != nil {
			sp.FrequencyPenalty = cfg.FrequencyPenalty
		}
		if cfg.PresencePenalty != nil {
			sp.PresencePenalty = cfg.PresencePenalty
		}
		if len(cfg.Stop) > 0 {
			sp.Stop = cfg.Stop
		}
		if cfg.Seed != nil {
			sp.Seed = cfg.Seed
		}
		if cfg.ReasoningEffort != "" {
			sp.ReasoningEffort = cfg.ReasoningEffort
		}
	}
	if cfg.SystemPrompt != nil {
		applySystemPrompt(req, *cfg.SystemPrompt)
	}
}

// applySystemPrompt replaces the leading system message (or inserts one).
func applySystemPrompt(req *types.Request, prompt string) {
	switch {
	case req.Chat != nil:
		if len(req.Chat.Messages) > 0 && req.Chat.Messages[0].Role == types.RoleSystem {
			req.Chat.Messages[0].Content = prompt
			return
		}
		req.Chat.Messages = append([]types.Message{types.NewSystemMessage(prompt)}, req.Chat.Messages...)
	case req.Responses != nil:
		req.Responses.Instructions = prompt
	}
}

// Package pipeline drives one inference request end to end: config
// resolution, optimization, hooks, strategy walk, upstream transport,
// caching, stream handling and log assembly.
package pipeline

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/embedding"
	"github.com/idkhub-com/reactive-agents/events"
	"github.com/idkhub-com/reactive-agents/gateway/cache"
	"github.com/idkhub-com/reactive-agents/gateway/hooks"
	"github.com/idkhub-com/reactive-agents/gateway/observ"
	"github.com/idkhub-com/reactive-agents/gateway/strategy"
	"github.com/idkhub-com/reactive-agents/optimize"
	"github.com/idkhub-com/reactive-agents/types"
)

// Store is the slice of the storage connector the pipeline consumes.
type Store interface {
	observ.LogStore
	GetAgentByName(ctx context.Context, name string) (*types.Agent, error)
	GetSkillByName(ctx context.Context, agentID, name string) (*types.Skill, error)
	CreateSkill(ctx context.Context, skill *types.Skill) error
	GetAIProviderAPIKeyByID(ctx context.Context, id string) (*types.ProviderAPIKey, error)
	GetAIProviderAPIKeys(ctx context.Context, provider string) ([]types.ProviderAPIKey, error)
}

// reservedSkills may be auto-created on first use; every other unknown skill
// is a 404. The judge skill carries the evaluator's reentrant traffic.
var reservedSkills = map[string]types.Skill{
	"internal/llm-judge": {Name: "internal/llm-judge"},
}

// Result is the outcome of one executed request. Exactly one of Response and
// Stream is set: buffered functions produce Response, streaming functions
// produce a channel of SSE frames that ends with "data: [DONE]\n\n".
type Result struct {
	Response *types.RawResponse
	Stream   <-chan []byte
	LogID    string
}

// Pipeline wires the gateway subsystems together.
type Pipeline struct {
	store     Store
	cache     *cache.Cache
	hooks     *hooks.Engine
	optimizer *optimize.Optimizer
	embedder  embedding.Embedder
	events    *events.Broadcaster
	client    *http.Client
	retryer   *strategy.Retryer
	rng       *rand.Rand
	logger    *zap.Logger

	// OnComplete runs asynchronously after the log is finalized; the server
	// attaches evaluation scoring and reward feedback here.
	OnComplete func(log types.Log)
}

// Options carries the optional collaborators.
type Options struct {
	Cache     *cache.Cache
	Hooks     *hooks.Engine
	Optimizer *optimize.Optimizer
	Embedder  embedding.Embedder
	Events    *events.Broadcaster
	Client    *http.Client
	Logger    *zap.Logger
}

func New(store Store, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	hookEngine := opts.Hooks
	if hookEngine == nil {
		hookEngine = hooks.NewEngine(logger)
	}
	return &Pipeline{
		store:     store,
		cache:     opts.Cache,
		hooks:     hookEngine,
		optimizer: opts.Optimizer,
		embedder:  opts.Embedder,
		events:    opts.Events,
		client:    client,
		retryer:   strategy.NewRetryer(logger),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger.With(zap.String("component", "pipeline")),
	}
}

// Execute runs the full request lifecycle. Returned errors are *types.Error
// and carry the HTTP status the caller should answer with.
func (p *Pipeline) Execute(ctx context.Context, req *types.Request, cfg *types.Config) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	builder := observ.NewBuilder(p.store, p.logger, req.Function, http.MethodPost)
	builder.SetTrace(cfg.TraceID, cfg.SpanID)
	if raw, err := json.Marshal(req); err == nil {
		builder.SetRequestBody(raw)
	}

	run := &execution{pipeline: p, req: req, cfg: cfg, builder: builder}

	if err := run.resolveSkill(ctx); err != nil {
		return nil, run.fail(err)
	}
	run.computeEmbedding(ctx)
	if err := run.optimizeTargets(ctx); err != nil {
		return nil, run.fail(err)
	}
	if err := run.runInputHooks(ctx); err != nil {
		return nil, run.fail(err)
	}
	builder.Create(ctx)

	result, err := run.walkTargets(ctx)
	if err != nil {
		return nil, run.fail(err)
	}
	return result, nil
}

// execution is the per-request state threaded through the stages.
type execution struct {
	pipeline *Pipeline
	req      *types.Request
	cfg      *types.Config
	builder  *observ.Builder

	agent       *types.Agent
	skill       *types.Skill
	embedding   []float32
	selection   *optimize.Selection
	hookResults types.HookResults
}

// fail finalizes the log with the error's status and passes the error on.
func (e *execution) fail(err error) error {
	terr, ok := err.(*types.Error)
	if !ok {
		terr = types.NewError(types.ErrInternal, err.Error())
	}
	if len(e.hookResults.InputHooks) > 0 || len(e.hookResults.OutputHooks) > 0 {
		e.builder.SetHookResults(&e.hookResults)
	}
	body, _ := json.Marshal(terr.Envelope())
	e.builder.Finalize(terr.Status(), body)
	e.publishCompletion()
	return terr
}

func (e *execution) resolveSkill(ctx context.Context) error {
	if e.cfg.Agent == "" {
		return nil
	}
	agent, err := e.pipeline.store.GetAgentByName(ctx, e.cfg.Agent)
	if err != nil {
		return err
	}
	e.agent = agent

	if e.cfg.Skill == "" {
		e.builder.SetAgent(agent.ID, "")
		return nil
	}
	skill, err := e.pipeline.store.GetSkillByName(ctx, agent.ID, e.cfg.Skill)
	if err != nil {
		terr, ok := err.(*types.Error)
		if !ok || terr.Code != types.ErrNotFound {
			return err
		}
		reserved, ok := reservedSkills[e.cfg.Skill]
		if !ok {
			return terr
		}
		created := reserved
		created.AgentID = agent.ID
		if cerr := e.pipeline.store.CreateSkill(ctx, &created); cerr != nil {
			return cerr
		}
		skill = &created
	}
	e.skill = skill
	e.builder.SetAgent(agent.ID, skill.ID)
	return nil
}

// computeEmbedding is best-effort: without a vector the request simply skips
// semantic routing and the semantic cache tier.
func (e *execution) computeEmbedding(ctx context.Context) {
	if e.pipeline.embedder == nil || !e.req.Function.SupportsOptimization() {
		return
	}
	needsVector := e.skill != nil && e.skill.Optimize
	for i := range e.cfg.Targets {
		if c := e.cfg.Targets[i].Cache; c != nil && c.Mode == types.CacheSemantic {
			needsVector = true
		}
	}
	if !needsVector {
		return
	}
	text := e.req.UserVisibleText()
	if text == "" {
		return
	}
	vector, err := e.pipeline.embedder.EmbedText(ctx, text)
	if err != nil {
		e.pipeline.logger.Warn("embedding computation failed", zap.Error(err))
		return
	}
	e.embedding = vector
	e.builder.SetEmbedding(vector)
}

// optimizeTargets lets the optimizer fill in configurations for targets the
// caller left open.
func (e *execution) optimizeTargets(ctx context.Context) error {
	if e.pipeline.optimizer == nil || e.skill == nil {
		return nil
	}
	selection, err := e.pipeline.optimizer.Select(ctx, e.skill, e.req.Function,
		e.embedding, e.cfg.SystemPromptVariables, nil)
	if err != nil {
		return err
	}
	if selection == nil {
		return nil
	}
	e.selection = selection
	e.builder.SetArm(selection.ClusterID, selection.ArmID)
	for i := range e.cfg.Targets {
		if e.cfg.Targets[i].Config == nil {
			cfgCopy := *selection.Config
			e.cfg.Targets[i].Config = &cfgCopy
		}
	}
	return nil
}

func (e *execution) runInputHooks(ctx context.Context) error {
	if len(e.cfg.InputHooks) == 0 {
		return nil
	}
	body, err := json.Marshal(e.req)
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to serialize request for hooks").WithCause(err)
	}
	outcome := e.pipeline.hooks.RunInput(ctx, e.cfg.InputHooks, body, e.cfg.Metadata)
	e.hookResults.InputHooks = outcome.Results
	if outcome.Denied() {
		return hooks.DenyError(hooks.StageInput, outcome.DeniedBy, &e.hookResults)
	}
	if len(outcome.Body) > 0 && string(outcome.Body) != string(body) {
		var overridden types.Request
		if err := json.Unmarshal(outcome.Body, &overridden); err != nil {
			return types.NewError(types.ErrInvalidRequest, "hook produced an invalid request body override").WithCause(err)
		}
		*e.req = overridden
		e.builder.SetRequestBody(outcome.Body)
	}
	return nil
}

// walkTargets runs the strategy loop, attempting targets until one serves
// the request or the walk is exhausted.
func (e *execution) walkTargets(ctx context.Context) (*Result, error) {
	bodyMap := e.canonicalBodyMap()
	selector := strategy.NewSelector(e.cfg, bodyMap, e.pipeline.rng)

	lastStatus := 0
	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrTimeout, "request canceled").WithCause(err)
		}
		idx, target, ok := selector.Next(lastStatus)
		if !ok {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, types.NewError(types.ErrUnavailable, "no target available for this request")
		}

		result, status, err := e.attemptTarget(ctx, idx, target)
		if err == nil {
			return result, nil
		}
		lastStatus, lastErr = status, err
		e.pipeline.logger.Debug("target attempt failed",
			zap.Int("target", idx),
			zap.String("provider", target.Provider),
			zap.Int("status", status),
			zap.Error(err))
	}
}

func (e *execution) canonicalBodyMap() map[string]any {
	raw, err := json.Marshal(e.req)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// resolveAPIKey fills target.APIKey from the stored credentials when the
// caller referenced a key by id or left it to the provider default.
func (e *execution) resolveAPIKey(ctx context.Context, target *types.Target) error {
	if target.APIKey != "" {
		return nil
	}
	if target.APIKeyID != "" {
		key, err := e.pipeline.store.GetAIProviderAPIKeyByID(ctx, target.APIKeyID)
		if err != nil {
			return err
		}
		target.APIKey = key.Value
		return nil
	}
	keys, err := e.pipeline.store.GetAIProviderAPIKeys(ctx, target.Provider)
	if err != nil || len(keys) == 0 {
		return nil
	}
	target.APIKey = keys[0].Value
	return nil
}

func (e *execution) publishCompletion() {
	log := e.builder.Snapshot()
	if e.pipeline.events != nil {
		e.pipeline.events.PublishJSON("log.completed", map[string]any{
			"log_id":       log.ID,
			"status":       log.Status,
			"provider":     log.Provider,
			"model":        log.Model,
			"function":     log.FunctionName,
			"duration_ms":  log.DurationMS,
			"cache_status": log.CacheStatus,
		})
	}
	if e.pipeline.OnComplete != nil {
		go e.pipeline.OnComplete(log)
	}
}

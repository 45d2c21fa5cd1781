// Package hooks runs the ordered input and output hook lists of a request
// Config. Hooks are registered by name; execution is sequential, overrides
// are threaded so every hook sees the latest body, and the first deny
// short-circuits with a 446 envelope.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// Stage distinguishes the two hook lists.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// Input is what one hook evaluation sees.
type Input struct {
	Stage Stage

	// Body is the canonical request body, including any override a prior
	// hook produced.
	Body json.RawMessage

	// ResponseBody and ResponseStatus are set for output hooks only.
	ResponseBody   json.RawMessage
	ResponseStatus int

	Metadata map[string]any
}

// Hook evaluates one stage of a request.
type Hook interface {
	Name() string
	Evaluate(ctx context.Context, in *Input) (*types.HookVerdict, error)
}

// Outcome is the result of running one hook list.
type Outcome struct {
	// Results is the ordered execution record, one entry per hook that ran.
	Results []types.HookResult
	// Body is the request body after any overrides.
	Body json.RawMessage
	// ResponseBody is the response body after any overrides (output stage).
	ResponseBody json.RawMessage
	// DeniedBy names the hook that denied, or "".
	DeniedBy string
}

// Denied reports whether the run was short-circuited by a deny.
func (o *Outcome) Denied() bool { return o.DeniedBy != "" }

// Engine resolves hook names and runs the lists.
type Engine struct {
	mu     sync.RWMutex
	hooks  map[string]Hook
	logger *zap.Logger
}

// NewEngine creates a hook engine. logger may be nil.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		hooks:  make(map[string]Hook),
		logger: logger.With(zap.String("component", "hooks")),
	}
}

// Register adds a hook under its name. Later registrations replace earlier
// ones.
func (e *Engine) Register(h Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[h.Name()] = h
}

func (e *Engine) resolve(name string) (Hook, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.hooks[name]
	return h, ok
}

// RunInput executes the named input hooks in order against the request body.
func (e *Engine) RunInput(ctx context.Context, names []string, body json.RawMessage, metadata map[string]any) *Outcome {
	return e.run(ctx, StageInput, names, &Input{
		Stage:    StageInput,
		Body:     body,
		Metadata: metadata,
	})
}

// RunOutput executes the named output hooks in order. Output hooks see both
// the (final) request body and the response body with its status.
func (e *Engine) RunOutput(ctx context.Context, names []string, body, responseBody json.RawMessage, status int, metadata map[string]any) *Outcome {
	return e.run(ctx, StageOutput, names, &Input{
		Stage:          StageOutput,
		Body:           body,
		ResponseBody:   responseBody,
		ResponseStatus: status,
		Metadata:       metadata,
	})
}

func (e *Engine) run(ctx context.Context, stage Stage, names []string, in *Input) *Outcome {
	out := &Outcome{Body: in.Body, ResponseBody: in.ResponseBody}

	for _, name := range names {
		start := time.Now()
		result := types.HookResult{Hook: name}

		hook, ok := e.resolve(name)
		if !ok {
			// An unregistered hook is recorded but never blocks the request.
			result.Error = fmt.Sprintf("hook %q is not registered", name)
			result.DurationMS = time.Since(start).Milliseconds()
			out.Results = append(out.Results, result)
			e.logger.Warn("unknown hook", zap.String("hook", name), zap.String("stage", string(stage)))
			continue
		}

		verdict, err := hook.Evaluate(ctx, in)
		result.DurationMS = time.Since(start).Milliseconds()
		if err != nil {
			result.Error = err.Error()
			out.Results = append(out.Results, result)
			e.logger.Warn("hook failed",
				zap.String("hook", name),
				zap.String("stage", string(stage)),
				zap.Error(err))
			continue
		}
		if verdict == nil {
			out.Results = append(out.Results, result)
			continue
		}

		result.Annotations = verdict.Annotations
		if len(verdict.RequestBodyOverride) > 0 {
			result.Overrode = true
			out.Body = verdict.RequestBodyOverride
			in.Body = verdict.RequestBodyOverride
		}
		if stage == StageOutput && len(verdict.OutputBodyOverride) > 0 {
			result.Overrode = true
			out.ResponseBody = verdict.OutputBodyOverride
			in.ResponseBody = verdict.OutputBodyOverride
		}
		if verdict.DenyRequest {
			result.DenyRequest = true
			out.Results = append(out.Results, result)
			out.DeniedBy = name
			return out
		}

		out.Results = append(out.Results, result)
	}
	return out
}

// DenyError builds the 446 error for a denied run, carrying the full ordered
// hook log so the client envelope can surface it.
func DenyError(stage Stage, deniedBy string, results *types.HookResults) *types.Error {
	return types.NewError(types.ErrHookDenied,
		fmt.Sprintf("request denied by %s hook %q", stage, deniedBy)).
		WithHookResults(results)
}

// FuncHook adapts a function to the Hook interface, mainly for tests and
// inline policies.
type FuncHook struct {
	HookName string
	Fn       func(ctx context.Context, in *Input) (*types.HookVerdict, error)
}

func (f *FuncHook) Name() string { return f.HookName }

func (f *FuncHook) Evaluate(ctx context.Context, in *Input) (*types.HookVerdict, error) {
	return f.Fn(ctx, in)
}

package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// StrategyMode selects how the pipeline walks the configured targets.
type StrategyMode string

const (
	StrategySingle      StrategyMode = "single"
	StrategyFallback    StrategyMode = "fallback"
	StrategyLoadbalance StrategyMode = "loadbalance"
	StrategyConditional StrategyMode = "conditional"
)

// DefaultRetryStatusCodes are the upstream statuses that trigger a retry or
// strategy fallback when no per-target override is configured.
var DefaultRetryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// RetryPolicy is the per-target retry configuration.
type RetryPolicy struct {
	Attempts            int   `json:"attempts"`
	OnStatusCodes       []int `json:"on_status_codes,omitempty"`
	UseRetryAfterHeader bool  `json:"use_retry_after_header,omitempty"`
}

// StatusCodes returns the configured gate or the default set.
func (p *RetryPolicy) StatusCodes() []int {
	if p != nil && len(p.OnStatusCodes) > 0 {
		return p.OnStatusCodes
	}
	return DefaultRetryStatusCodes
}

// CacheMode selects the request cache behavior.
type CacheMode string

const (
	CacheDisabled CacheMode = "disabled"
	CacheSimple   CacheMode = "simple"
	CacheSemantic CacheMode = "semantic"
)

// CachePolicy is the per-target cache configuration.
//
// On streaming functions, enabling the cache buffers the complete upstream
// response before it is replayed as a synthesized stream: the result becomes
// cacheable at the cost of time-to-first-token on the miss.
type CachePolicy struct {
	Mode                CacheMode     `json:"mode"`
	TTL                 time.Duration `json:"ttl,omitempty"`
	MaxAge              time.Duration `json:"max_age,omitempty"`
	SimilarityThreshold float64       `json:"similarity_threshold,omitempty"`
}

// TargetConfiguration is the resolved parameter bundle applied against one
// upstream for one attempt. Nil pointers mean "not set".
type TargetConfiguration struct {
	Provider         string         `json:"provider"`
	Model            string         `json:"model"`
	SystemPrompt     *string        `json:"system_prompt,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	Seed             *int           `json:"seed,omitempty"`
	ReasoningEffort  string         `json:"reasoning_effort,omitempty"`
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// Validate checks the configuration's numeric ranges.
func (c *TargetConfiguration) Validate() error {
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return NewError(ErrInvalidRequest, "target temperature must be between 0 and 2").WithParam("temperature")
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return NewError(ErrInvalidRequest, "target top_p must be between 0 and 1").WithParam("top_p")
	}
	if c.FrequencyPenalty != nil && (*c.FrequencyPenalty < -2 || *c.FrequencyPenalty > 2) {
		return NewError(ErrInvalidRequest, "target frequency_penalty must be between -2 and 2").WithParam("frequency_penalty")
	}
	if c.PresencePenalty != nil && (*c.PresencePenalty < -2 || *c.PresencePenalty > 2) {
		return NewError(ErrInvalidRequest, "target presence_penalty must be between -2 and 2").WithParam("presence_penalty")
	}
	switch c.ReasoningEffort {
	case "", "minimal", "low", "medium", "high":
	default:
		return NewError(ErrInvalidRequest, "target reasoning_effort is invalid").WithParam("reasoning_effort")
	}
	return nil
}

// Target is one provider binding attempted by the strategy engine.
type Target struct {
	Provider   string            `json:"provider"`
	APIKey     string            `json:"api_key,omitempty"`
	APIKeyID   string            `json:"api_key_id,omitempty"`
	CustomHost string            `json:"custom_host,omitempty"`
	Weight     float64           `json:"weight,omitempty"`
	Retry      *RetryPolicy      `json:"retry,omitempty"`
	Cache      *CachePolicy      `json:"cache,omitempty"`
	Overrides  map[string]string `json:"overrides,omitempty"`

	// Config is filled in by the optimizer (or copied from the caller's
	// request) before the strategy loop runs.
	Config *TargetConfiguration `json:"config,omitempty"`
}

// Condition is one declarative predicate of a conditional strategy. Query
// maps dotted request paths to expected values; a list value matches by
// containment. No code execution is involved.
type Condition struct {
	Query  map[string]any `json:"query"`
	Target int            `json:"target"`
}

// Strategy is the target-walk policy of a request Config.
type Strategy struct {
	Mode          StrategyMode `json:"mode"`
	OnStatusCodes []int        `json:"on_status_codes,omitempty"`
	Conditions    []Condition  `json:"conditions,omitempty"`
	Default       *int         `json:"default,omitempty"`
}

// Config is the per-request control envelope carried in the x-idk-config
// header or the body-embedded equivalent.
type Config struct {
	Agent string `json:"agent,omitempty"`
	Skill string `json:"skill,omitempty"`

	Targets  []Target `json:"targets"`
	Strategy Strategy `json:"strategy"`

	InputHooks []string `json:"input_hooks,omitempty"`
	// OutputHooks run against the complete response. On buffered functions
	// (and cached streams) a deny blocks delivery with a 446; on live
	// streams the frames are already on the wire, so a deny is recorded in
	// the hook log but cannot be enforced.
	OutputHooks []string `json:"output_hooks,omitempty"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	OverrideParams   map[string]any `json:"override_params,omitempty"`
	ForceRefresh     bool           `json:"force_refresh,omitempty"`
	StrictCompliance bool           `json:"strict_compliance,omitempty"`

	RequestTimeout time.Duration  `json:"request_timeout,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	// SystemPromptVariables feed the optimizer's prompt template rendering.
	SystemPromptVariables map[string]string `json:"system_prompt_variables,omitempty"`
}

// ParseConfig decodes and validates a Config envelope from raw JSON.
func ParseConfig(raw []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, NewError(ErrInvalidRequest, "invalid config envelope").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the envelope's structural constraints.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return NewError(ErrInvalidRequest, "config requires at least one target").WithParam("targets")
	}
	switch c.Strategy.Mode {
	case "", StrategySingle, StrategyFallback, StrategyLoadbalance:
	case StrategyConditional:
		if len(c.Strategy.Conditions) == 0 && c.Strategy.Default == nil {
			return NewError(ErrInvalidRequest, "conditional strategy requires conditions or a default").WithParam("strategy")
		}
		for _, cond := range c.Strategy.Conditions {
			if cond.Target < 0 || cond.Target >= len(c.Targets) {
				return NewError(ErrInvalidRequest,
					fmt.Sprintf("condition target %d out of range", cond.Target)).WithParam("strategy")
			}
		}
		if c.Strategy.Default != nil && (*c.Strategy.Default < 0 || *c.Strategy.Default >= len(c.Targets)) {
			return NewError(ErrInvalidRequest, "strategy default target out of range").WithParam("strategy")
		}
	default:
		return NewError(ErrInvalidRequest,
			fmt.Sprintf("unknown strategy mode %q", c.Strategy.Mode)).WithParam("strategy")
	}
	for i := range c.Targets {
		if c.Targets[i].Provider == "" {
			return NewError(ErrInvalidRequest,
				fmt.Sprintf("target %d has no provider", i)).WithParam("targets")
		}
		if c.Targets[i].Config != nil {
			if err := c.Targets[i].Config.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Mode returns the strategy mode, defaulting to single.
func (s Strategy) ModeOrDefault() StrategyMode {
	if s.Mode == "" {
		return StrategySingle
	}
	return s.Mode
}

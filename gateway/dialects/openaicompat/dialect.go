// Package openaicompat implements the shared dialect for OpenAI-compatible
// providers. Named dialects (openai, deepseek, qwen, groq, mistral, ...)
// embed this and only override what differs: tag, base URL, headers and the
// odd endpoint or parameter rule.
package openaicompat

import (
	"fmt"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/types"
)

// Config holds the per-provider knobs of an OpenAI-compatible dialect.
type Config struct {
	// Tag is the provider tag the dialect registers under.
	Tag string

	// DefaultBaseURL is used when the target has no custom host.
	DefaultBaseURL string

	// APIKeyRequired defaults to true.
	APIKeyRequired *bool

	// ExtraHeaders are added to every request (e.g. an org header).
	ExtraHeaders map[string]string

	// RoleRewrites maps canonical roles to provider roles before the
	// messages are serialized (e.g. developer -> system for Mistral).
	RoleRewrites map[types.Role]types.Role

	// FrameSeparator overrides the upstream SSE frame separator.
	FrameSeparator string

	// EndpointPrefix replaces the default "/v1" path prefix. Gemini's
	// OpenAI-compatible surface mounts the routes directly under the base
	// URL, so it sets this to "".
	EndpointPrefix *string

	// NativeResponses enables the provider's native /v1/responses endpoint.
	// When false, CREATE_MODEL_RESPONSE is lowered to a chat completion.
	NativeResponses bool

	// Capabilities restricts canonical parameters per model (dropped or
	// renamed before the body is built).
	Capabilities *gateway.Capabilities
}

// Dialect is the OpenAI-compatible dialect implementation.
type Dialect struct {
	cfg Config
}

// New creates an OpenAI-compatible dialect from the config.
func New(cfg Config) *Dialect {
	if cfg.FrameSeparator == "" {
		cfg.FrameSeparator = "\n\n"
	}
	return &Dialect{cfg: cfg}
}

// Tag implements gateway.Dialect.
func (d *Dialect) Tag() string { return d.cfg.Tag }

// APIKeyRequired implements gateway.Dialect.
func (d *Dialect) APIKeyRequired() bool {
	if d.cfg.APIKeyRequired != nil {
		return *d.cfg.APIKeyRequired
	}
	return true
}

// StreamFrameSeparator implements gateway.Dialect.
func (d *Dialect) StreamFrameSeparator() string { return d.cfg.FrameSeparator }

// Capabilities implements gateway.CapabilityProvider.
func (d *Dialect) Capabilities(fn types.FunctionName) *gateway.Capabilities {
	return d.cfg.Capabilities
}

// BaseURL implements gateway.Dialect.
func (d *Dialect) BaseURL(target *types.Target) (string, error) {
	raw := d.cfg.DefaultBaseURL
	if target != nil && target.CustomHost != "" {
		raw = target.CustomHost
	}
	return gateway.ValidateBaseURL(raw)
}

// Headers implements gateway.Dialect.
func (d *Dialect) Headers(target *types.Target, fn types.FunctionName) (map[string]string, error) {
	h := map[string]string{"Content-Type": "application/json"}
	apiKey := ""
	if target != nil {
		apiKey = target.APIKey
	}
	if apiKey == "" && d.APIKeyRequired() {
		return nil, types.NewError(types.ErrUnauthorized,
			fmt.Sprintf("provider %s requires an API key", d.cfg.Tag))
	}
	if apiKey != "" {
		h["Authorization"] = "Bearer " + apiKey
	}
	for k, v := range d.cfg.ExtraHeaders {
		h[k] = v
	}
	return h, nil
}

// Endpoint implements gateway.Dialect.
func (d *Dialect) Endpoint(req *types.Request, target *types.Target) (string, error) {
	prefix := "/v1"
	if d.cfg.EndpointPrefix != nil {
		prefix = *d.cfg.EndpointPrefix
	}
	switch req.Function {
	case types.FunctionChatComplete, types.FunctionStreamChatComplete:
		return prefix + "/chat/completions", nil
	case types.FunctionComplete, types.FunctionStreamComplete:
		return prefix + "/completions", nil
	case types.FunctionCreateModelResponse:
		if d.cfg.NativeResponses {
			return prefix + "/responses", nil
		}
		// Lowered to chat for providers without a native Responses API.
		return prefix + "/chat/completions", nil
	case types.FunctionEmbed:
		return prefix + "/embeddings", nil
	case types.FunctionGenerateImage:
		return prefix + "/images/generations", nil
	case types.FunctionModerate:
		return prefix + "/moderations", nil
	case types.FunctionCreateSpeech:
		return prefix + "/audio/speech", nil
	case types.FunctionCreateTranscription:
		return prefix + "/audio/transcriptions", nil
	case types.FunctionCreateTranslation:
		return prefix + "/audio/translations", nil
	case types.FunctionUploadFile:
		return prefix + "/files", nil
	case types.FunctionProxy:
		if req.Proxy != nil {
			return req.Proxy.Path, nil
		}
	}
	return "", types.NewError(types.ErrInvalidMethod,
		fmt.Sprintf("provider %s does not support %s", d.cfg.Tag, req.Function))
}

// rewriteRoles applies the dialect's role rewrites to a message list.
func (d *Dialect) rewriteRoles(msgs []types.Message) []types.Message {
	if len(d.cfg.RoleRewrites) == 0 {
		return msgs
	}
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if to, ok := d.cfg.RoleRewrites[out[i].Role]; ok {
			out[i].Role = to
		}
	}
	return out
}

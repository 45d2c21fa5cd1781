package types

import "encoding/json"

// HookVerdict is the outcome of a single hook execution.
type HookVerdict struct {
	DenyRequest         bool              `json:"deny_request"`
	RequestBodyOverride json.RawMessage   `json:"request_body_override,omitempty"`
	OutputBodyOverride  json.RawMessage   `json:"output_body_override,omitempty"`
	Annotations         map[string]string `json:"annotations,omitempty"`
}

// HookResult records one executed hook on the request log.
type HookResult struct {
	Hook        string            `json:"hook"`
	DenyRequest bool              `json:"deny_request"`
	Overrode    bool              `json:"overrode,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
	Error       string            `json:"error,omitempty"`
	DurationMS  int64             `json:"duration_ms"`
}

// HookResults groups the ordered input and output hook records.
type HookResults struct {
	InputHooks  []HookResult `json:"input_hooks,omitempty"`
	OutputHooks []HookResult `json:"output_hooks,omitempty"`
}

// Denied reports whether any recorded hook denied the request.
func (r *HookResults) Denied() bool {
	if r == nil {
		return false
	}
	for _, h := range r.InputHooks {
		if h.DenyRequest {
			return true
		}
	}
	for _, h := range r.OutputHooks {
		if h.DenyRequest {
			return true
		}
	}
	return false
}

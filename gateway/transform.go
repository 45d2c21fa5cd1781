package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/idkhub-com/reactive-agents/types"
)

// Capabilities restricts which canonical parameters reach a given
// (provider, model, function) triple. Unsupported parameters are dropped
// without error; legacy renames rewrite the output path.
type Capabilities struct {
	// Unsupported maps "model:param" or "*:param" to true.
	Unsupported map[string]bool
	// Renames maps "model:param" or "*:param" to a replacement output path.
	Renames map[string]string
}

// Lookup resolves the capability policy for one parameter.
func (c *Capabilities) Lookup(model, param string) (drop bool, rename string) {
	if c == nil {
		return false, ""
	}
	if c.Unsupported[model+":"+param] || c.Unsupported["*:"+param] {
		return true, ""
	}
	if r, ok := c.Renames[model+":"+param]; ok {
		return false, r
	}
	if r, ok := c.Renames["*:"+param]; ok {
		return false, r
	}
	return false, ""
}

// TransformResult is the outcome of one parameter-table application.
type TransformResult struct {
	Body map[string]any
	// DroppedParams lists canonical parameters removed by capability policy;
	// the pipeline attaches them to the log metadata.
	DroppedParams []string
}

// BuildUpstreamBody applies a dialect parameter table to a canonical request,
// producing the upstream body. Rules run in table order:
//
//  1. Transform, if present, supplies the value; otherwise the canonical
//     field is read by dotted path. Empty strings count as absent.
//  2. Absent + Required fails with MissingParameter.
//  3. Absent + Default substitutes the default.
//  4. Numeric values clamp silently into [Min, Max].
//  5. The value is written to the dotted output path.
//
// caps may be nil.
func BuildUpstreamBody(req *types.Request, table ParamTable, caps *Capabilities) (*TransformResult, error) {
	canonical, err := canonicalBodyMap(req)
	if err != nil {
		return nil, err
	}
	model := req.Model()

	out := make(map[string]any)
	var dropped []string

	for _, rule := range table {
		var (
			value  any
			absent bool
		)
		if rule.Transform != nil {
			v, ok := rule.Transform(req)
			value, absent = v, !ok
		} else {
			v, ok := readDottedPath(canonical, rule.Canonical)
			value, absent = v, !ok
		}
		if s, ok := value.(string); ok && s == "" {
			// An empty string carries no information on the wire: it is
			// absent, so Required fires and optional params are omitted.
			absent = true
		}

		if absent {
			if rule.Required {
				return nil, types.NewError(types.ErrMissingParameter,
					fmt.Sprintf("missing required parameter %q", rule.Canonical)).
					WithParam(rule.Canonical).
					WithHTTPStatus(422)
			}
			if rule.Default == nil {
				continue
			}
			value = rule.Default
		}

		if rule.Min != nil || rule.Max != nil {
			value = clampNumeric(value, rule.Min, rule.Max)
		}

		param := rule.Param
		if drop, rename := caps.Lookup(model, rule.Canonical); drop {
			dropped = append(dropped, rule.Canonical)
			continue
		} else if rename != "" {
			param = rename
		}

		writeDottedPath(out, param, value)
	}

	return &TransformResult{Body: out, DroppedParams: dropped}, nil
}

// canonicalBodyMap flattens the active body into a generic map so rules can
// read canonical fields by dotted path.
func canonicalBodyMap(req *types.Request) (map[string]any, error) {
	var body any
	switch {
	case req.Chat != nil:
		body = req.Chat
	case req.Completion != nil:
		body = req.Completion
	case req.Responses != nil:
		body = req.Responses
	case req.Embeddings != nil:
		body = req.Embeddings
	case req.Image != nil:
		body = req.Image
	case req.Moderation != nil:
		body = req.Moderation
	case req.Speech != nil:
		body = req.Speech
	case req.Transcription != nil:
		body = req.Transcription
	case req.Translation != nil:
		body = req.Translation
	case req.File != nil:
		body = req.File
	case req.Proxy != nil:
		body = req.Proxy
	default:
		return nil, types.NewError(types.ErrInvalidRequest, "request has no body")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to flatten request body").WithCause(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to flatten request body").WithCause(err)
	}
	for k, v := range req.AdditionalParams {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
	return m, nil
}

func readDottedPath(m map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	cur := any(m)
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func writeDottedPath(m map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func clampNumeric(value any, min, max *float64) any {
	f, ok := toFloat(value)
	if !ok {
		return value
	}
	if min != nil && f < *min {
		f = *min
	}
	if max != nil && f > *max {
		f = *max
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Package triton implements a KServe-style dialect for NVIDIA Triton
// inference servers. Triton runs locally or in-cluster and needs no API key;
// the conversation is flattened into a text input tensor.
package triton

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/types"
)

const defaultBaseURL = "http://localhost:8000"

// Dialect is the Triton/KServe dialect.
type Dialect struct{}

// New creates the Triton dialect.
func New() *Dialect { return &Dialect{} }

// Tag implements gateway.Dialect.
func (d *Dialect) Tag() string { return "triton" }

// APIKeyRequired implements gateway.Dialect. Local inference servers carry
// no credential.
func (d *Dialect) APIKeyRequired() bool { return false }

// StreamFrameSeparator implements gateway.Dialect.
func (d *Dialect) StreamFrameSeparator() string { return "\n" }

// BaseURL implements gateway.Dialect.
func (d *Dialect) BaseURL(target *types.Target) (string, error) {
	raw := defaultBaseURL
	if target != nil && target.CustomHost != "" {
		raw = target.CustomHost
	}
	return gateway.ValidateBaseURL(raw)
}

// Headers implements gateway.Dialect.
func (d *Dialect) Headers(target *types.Target, fn types.FunctionName) (map[string]string, error) {
	h := map[string]string{"Content-Type": "application/json"}
	if target != nil && target.APIKey != "" {
		h["Authorization"] = "Bearer " + target.APIKey
	}
	return h, nil
}

// Endpoint implements gateway.Dialect. KServe routes inference through the
// model-scoped infer path.
func (d *Dialect) Endpoint(req *types.Request, target *types.Target) (string, error) {
	switch req.Function {
	case types.FunctionChatComplete, types.FunctionComplete:
		model := req.Model()
		if model == "" {
			return "", types.NewError(types.ErrInvalidRequest, "triton requires a model name").WithParam("model")
		}
		return fmt.Sprintf("/v2/models/%s/infer", model), nil
	}
	return "", types.NewError(types.ErrInvalidMethod,
		fmt.Sprintf("provider triton does not support %s", req.Function))
}

// ParamTable implements gateway.Dialect. The conversation is wrapped into a
// KServe inputs array; sampling params ride along as parameters.
func (d *Dialect) ParamTable(fn types.FunctionName) gateway.ParamTable {
	switch fn {
	case types.FunctionChatComplete, types.FunctionComplete:
	default:
		return nil
	}
	lo, hi := 0.0, 2.0
	topLo, topHi := 0.0, 1.0
	return gateway.ParamTable{
		{Canonical: "messages", Param: "inputs", Required: true, Transform: kserveInputs},
		{Canonical: "temperature", Param: "parameters.temperature", Min: &lo, Max: &hi},
		{Canonical: "top_p", Param: "parameters.top_p", Min: &topLo, Max: &topHi},
		{Canonical: "max_tokens", Param: "parameters.max_tokens", Default: float64(256)},
	}
}

type kserveInput struct {
	Name     string   `json:"name"`
	Shape    []int    `json:"shape"`
	Datatype string   `json:"datatype"`
	Data     []string `json:"data"`
}

// kserveInputs flattens the conversation into a single BYTES tensor.
func kserveInputs(req *types.Request) (any, bool) {
	msgs, err := req.ExtractMessages()
	if err != nil || len(msgs) == 0 {
		return nil, false
	}
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return []kserveInput{{
		Name:     "text_input",
		Shape:    []int{1},
		Datatype: "BYTES",
		Data:     []string{b.String()},
	}}, true
}

type wireOutput struct {
	Name string   `json:"name"`
	Data []string `json:"data"`
}

type wireResponse struct {
	ModelName string       `json:"model_name"`
	Outputs   []wireOutput `json:"outputs"`
}

// TransformResponse implements gateway.Dialect. The first text output tensor
// becomes the assistant message.
func (d *Dialect) TransformResponse(body []byte, status int, header http.Header, strict bool, req *types.Request) (*types.RawResponse, error) {
	if status >= 400 {
		return nil, d.TransformError(body, status)
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil || len(wr.Outputs) == 0 {
		if strict {
			e := types.NewError(types.ErrUpstreamError, "provider returned an unparseable response").
				WithProvider("triton").WithRetryable(true)
			e.Details = &types.ErrorDetails{ProviderBody: string(body)}
			return nil, e
		}
		return &types.RawResponse{Status: http.StatusOK, ContentType: "application/json", Bytes: body}, nil
	}

	content := ""
	for _, out := range wr.Outputs {
		if len(out.Data) > 0 {
			content = strings.Join(out.Data, "")
			break
		}
	}

	model := wr.ModelName
	if model == "" {
		model = req.Model()
	}
	msg := types.NewAssistantMessage(content)
	resp := types.Response{
		ID:       fmt.Sprintf("triton-%d", time.Now().UnixNano()),
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    model,
		Provider: "triton",
		Choices:  []types.Choice{{Index: 0, Message: &msg, FinishReason: "stop"}},
	}
	return types.JSONResponse(http.StatusOK, resp)
}

// TransformChunk implements gateway.Dialect. Triton responses are buffered;
// client-side streams are synthesized by the pipeline, so any upstream frame
// is treated as a full response marker.
func (d *Dialect) TransformChunk(raw []byte, state *types.StreamState, strict bool, req *types.Request) ([]byte, error) {
	state.Finished = true
	return nil, nil
}

// TransformError implements gateway.Dialect.
func (d *Dialect) TransformError(body []byte, status int) *types.Error {
	var we struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &we) == nil && we.Error != "" {
		msg = we.Error
	}

	code := types.ErrUpstreamError
	retryable := status >= 500
	switch status {
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusNotFound:
		code = types.ErrNotFound
	case http.StatusServiceUnavailable:
		code, retryable = types.ErrUnavailable, true
	}

	e := types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider("triton")
	e.Details = &types.ErrorDetails{
		OriginalError:  msg,
		OriginalStatus: status,
		ProviderBody:   string(body),
	}
	return e
}

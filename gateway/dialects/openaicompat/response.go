package openaicompat

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/idkhub-com/reactive-agents/types"
)

// Upstream wire shapes shared by all OpenAI-compatible providers.

type wireMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []types.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	Message      *wireMessage `json:"message,omitempty"`
	Delta        *wireMessage `json:"delta,omitempty"`
	Text         string       `json:"text,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *types.Usage `json:"usage,omitempty"`
}

type wireResponsesOutput struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Status  string `json:"status"`
	Role    string `json:"role"`
	Content []struct {
		Type      string `json:"type"`
		Text      string `json:"text,omitempty"`
		ID        string `json:"id,omitempty"`
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"content"`
	// Flat function_call output items carry these at the top level.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireResponsesResponse struct {
	ID        string                `json:"id"`
	CreatedAt int64                 `json:"created_at"`
	Model     string                `json:"model"`
	Output    []wireResponsesOutput `json:"output"`
	Usage     *types.Usage          `json:"usage,omitempty"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// TransformResponse implements gateway.Dialect.
func (d *Dialect) TransformResponse(body []byte, status int, header http.Header, strict bool, req *types.Request) (*types.RawResponse, error) {
	if status >= 400 {
		return nil, d.TransformError(body, status)
	}

	switch req.Function {
	case types.FunctionChatComplete, types.FunctionStreamChatComplete:
		return d.chatResponse(body, strict, req)
	case types.FunctionCreateModelResponse:
		if d.cfg.NativeResponses {
			return d.responsesResponse(body, strict, req)
		}
		return d.chatResponse(body, strict, req)
	case types.FunctionComplete, types.FunctionStreamComplete:
		return d.completionResponse(body, strict, req)
	case types.FunctionEmbed:
		return d.taggedPassthrough(body, strict, "embeddings")
	case types.FunctionGenerateImage, types.FunctionModerate,
		types.FunctionUploadFile, types.FunctionProxy:
		return d.taggedPassthrough(body, strict, string(req.Function))
	case types.FunctionCreateSpeech:
		ct := header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}
		return &types.RawResponse{Status: status, ContentType: ct, Bytes: body}, nil
	case types.FunctionCreateTranscription, types.FunctionCreateTranslation:
		return d.taggedPassthrough(body, strict, "audio")
	}
	return d.taggedPassthrough(body, strict, string(req.Function))
}

func (d *Dialect) chatResponse(body []byte, strict bool, req *types.Request) (*types.RawResponse, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil || len(wr.Choices) == 0 {
		return d.unparseable(body, strict, err)
	}

	resp := types.Response{
		ID:       wr.ID,
		Object:   "chat.completion",
		Created:  wr.Created,
		Model:    wr.Model,
		Provider: d.cfg.Tag,
		Usage:    wr.Usage,
	}
	if resp.Model == "" {
		resp.Model = req.Model()
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	for _, c := range wr.Choices {
		choice := types.Choice{Index: c.Index}
		if c.FinishReason != nil {
			choice.FinishReason = *c.FinishReason
		}
		msg := types.Message{Role: types.RoleAssistant}
		if c.Message != nil {
			msg.Content = c.Message.Content
			msg.ToolCalls = c.Message.ToolCalls
		} else {
			msg.Content = c.Text
		}
		choice.Message = &msg
		resp.Choices = append(resp.Choices, choice)
	}
	return types.JSONResponse(http.StatusOK, resp)
}

func (d *Dialect) completionResponse(body []byte, strict bool, req *types.Request) (*types.RawResponse, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil || len(wr.Choices) == 0 {
		return d.unparseable(body, strict, err)
	}
	resp := types.Response{
		ID:       wr.ID,
		Object:   "text_completion",
		Created:  wr.Created,
		Model:    wr.Model,
		Provider: d.cfg.Tag,
		Usage:    wr.Usage,
	}
	if resp.Model == "" {
		resp.Model = req.Model()
	}
	for _, c := range wr.Choices {
		choice := types.Choice{Index: c.Index, Text: c.Text}
		if c.FinishReason != nil {
			choice.FinishReason = *c.FinishReason
		}
		resp.Choices = append(resp.Choices, choice)
	}
	return types.JSONResponse(http.StatusOK, resp)
}

// responsesResponse normalizes a native Responses API reply into the
// canonical chat-shaped response.
func (d *Dialect) responsesResponse(body []byte, strict bool, req *types.Request) (*types.RawResponse, error) {
	var wr wireResponsesResponse
	if err := json.Unmarshal(body, &wr); err != nil || len(wr.Output) == 0 {
		return d.unparseable(body, strict, err)
	}

	msg := types.Message{Role: types.RoleAssistant}
	finish := "stop"
	for _, out := range wr.Output {
		switch out.Type {
		case "message":
			for _, content := range out.Content {
				switch content.Type {
				case "output_text":
					msg.Content += content.Text
				case "tool_call":
					msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
						ID:       content.ID,
						Type:     "function",
						Function: types.ToolFunction{Name: content.Name, Arguments: content.Arguments},
					})
				}
			}
		case "function_call":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:       out.CallID,
				Type:     "function",
				Function: types.ToolFunction{Name: out.Name, Arguments: out.Arguments},
			})
			finish = "tool_calls"
		}
	}

	resp := types.Response{
		ID:       wr.ID,
		Object:   "chat.completion",
		Created:  wr.CreatedAt,
		Model:    wr.Model,
		Provider: d.cfg.Tag,
		Usage:    wr.Usage,
		Choices: []types.Choice{
			{Index: 0, Message: &msg, FinishReason: finish},
		},
	}
	if resp.Model == "" {
		resp.Model = req.Model()
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	return types.JSONResponse(http.StatusOK, resp)
}

// taggedPassthrough injects the provider tag into an already OpenAI-shaped
// JSON body and passes it through otherwise untouched.
func (d *Dialect) taggedPassthrough(body []byte, strict bool, kind string) (*types.RawResponse, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return d.unparseable(body, strict, err)
	}
	m["provider"] = d.cfg.Tag
	return types.JSONResponse(http.StatusOK, m)
}

func (d *Dialect) unparseable(body []byte, strict bool, cause error) (*types.RawResponse, error) {
	if strict {
		e := types.NewError(types.ErrUpstreamError, "provider returned an unparseable response").
			WithProvider(d.cfg.Tag).
			WithRetryable(true)
		e.Details = &types.ErrorDetails{ProviderBody: string(body)}
		if cause != nil {
			e.Cause = cause
		}
		return nil, e
	}
	return &types.RawResponse{Status: http.StatusOK, ContentType: "application/json", Bytes: body}, nil
}

// TransformError implements gateway.Dialect.
func (d *Dialect) TransformError(body []byte, status int) *types.Error {
	var we wireError
	msg := string(body)
	param, typ := "", ""
	if json.Unmarshal(body, &we) == nil && we.Error.Message != "" {
		msg = we.Error.Message
		param = we.Error.Param
		typ = we.Error.Type
	}

	e := mapStatus(status, msg)
	e.Provider = d.cfg.Tag
	e.Param = param
	e.Type = typ
	e.Details = &types.ErrorDetails{
		OriginalError:  msg,
		OriginalStatus: status,
		ProviderBody:   string(body),
	}
	return e
}

// mapStatus maps an upstream HTTP status onto the canonical taxonomy with
// the appropriate retryable flag.
func mapStatus(status int, msg string) *types.Error {
	switch status {
	case http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status)
	case http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status)
	case http.StatusNotFound:
		return types.NewError(types.ErrNotFound, msg).WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return types.NewError(types.ErrTimeout, msg).WithHTTPStatus(status).WithRetryable(true)
	case http.StatusServiceUnavailable, 529:
		return types.NewError(types.ErrUnavailable, msg).WithHTTPStatus(status).WithRetryable(true)
	case http.StatusBadGateway:
		return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		if status >= 500 {
			return types.NewError(types.ErrUpstreamError, msg).WithHTTPStatus(status).WithRetryable(true)
		}
		return types.NewError(types.ErrInvalidRequest, msg).WithHTTPStatus(status)
	}
}

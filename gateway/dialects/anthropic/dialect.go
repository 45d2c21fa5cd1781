// Package anthropic implements the Anthropic Messages API dialect.
package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/types"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

func fp(v float64) *float64 { return &v }

// Dialect translates canonical requests into the Anthropic Messages API.
type Dialect struct{}

// New creates the Anthropic dialect.
func New() *Dialect { return &Dialect{} }

// Tag implements gateway.Dialect.
func (d *Dialect) Tag() string { return "anthropic" }

// APIKeyRequired implements gateway.Dialect.
func (d *Dialect) APIKeyRequired() bool { return true }

// StreamFrameSeparator implements gateway.Dialect.
func (d *Dialect) StreamFrameSeparator() string { return "\n\n" }

// BaseURL implements gateway.Dialect.
func (d *Dialect) BaseURL(target *types.Target) (string, error) {
	raw := defaultBaseURL
	if target != nil && target.CustomHost != "" {
		raw = target.CustomHost
	}
	return gateway.ValidateBaseURL(raw)
}

// Headers implements gateway.Dialect. Anthropic uses x-api-key instead of a
// bearer token and requires a version header.
func (d *Dialect) Headers(target *types.Target, fn types.FunctionName) (map[string]string, error) {
	if target == nil || target.APIKey == "" {
		return nil, types.NewError(types.ErrUnauthorized, "provider anthropic requires an API key")
	}
	return map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         target.APIKey,
		"anthropic-version": apiVersion,
	}, nil
}

// Endpoint implements gateway.Dialect.
func (d *Dialect) Endpoint(req *types.Request, target *types.Target) (string, error) {
	switch req.Function {
	case types.FunctionChatComplete, types.FunctionStreamChatComplete,
		types.FunctionComplete, types.FunctionStreamComplete,
		types.FunctionCreateModelResponse:
		return "/v1/messages", nil
	}
	return "", types.NewError(types.ErrInvalidMethod,
		fmt.Sprintf("provider anthropic does not support %s", req.Function))
}

// ParamTable implements gateway.Dialect. System messages are hoisted into the
// top-level system field; the rest of the conversation becomes messages.
func (d *Dialect) ParamTable(fn types.FunctionName) gateway.ParamTable {
	switch fn {
	case types.FunctionChatComplete, types.FunctionStreamChatComplete,
		types.FunctionComplete, types.FunctionStreamComplete,
		types.FunctionCreateModelResponse:
	default:
		return nil
	}

	return gateway.ParamTable{
		{Canonical: "model", Param: "model", Required: true},
		{Canonical: "messages", Param: "messages", Required: true, Transform: conversationMessages},
		{Canonical: "system", Param: "system", Transform: systemPrompt},
		{Canonical: "max_tokens", Param: "max_tokens", Default: float64(4096)},
		{Canonical: "temperature", Param: "temperature", Min: fp(0), Max: fp(1)},
		{Canonical: "top_p", Param: "top_p", Min: fp(0), Max: fp(1)},
		{Canonical: "stop", Param: "stop_sequences"},
		{Canonical: "stream", Param: "stream"},
		{Canonical: "tools", Param: "tools", Transform: anthropicTools},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicToolUse struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResult struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

// conversationMessages lowers the canonical conversation into Anthropic
// message blocks. System and developer messages are excluded here; they feed
// the system field instead. Tool calls become tool_use blocks and tool
// results become tool_result blocks inside a user turn.
func conversationMessages(req *types.Request) (any, bool) {
	msgs, err := req.ExtractMessages()
	if err != nil || len(msgs) == 0 {
		return nil, false
	}
	out := make([]anthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case types.RoleSystem, types.RoleDeveloper:
			continue
		case types.RoleTool:
			out = append(out, anthropicMessage{
				Role: "user",
				Content: []anthropicToolResult{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case types.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				blocks := make([]any, 0, len(m.ToolCalls)+1)
				if m.Content != "" {
					blocks = append(blocks, map[string]string{"type": "text", "text": m.Content})
				}
				for _, tc := range m.ToolCalls {
					args := tc.Function.Arguments
					if args == "" {
						args = "{}"
					}
					blocks = append(blocks, anthropicToolUse{
						Type: "tool_use", ID: tc.ID, Name: tc.Function.Name,
						Input: json.RawMessage(args),
					})
				}
				out = append(out, anthropicMessage{Role: "assistant", Content: blocks})
			} else {
				out = append(out, anthropicMessage{Role: "assistant", Content: m.Content})
			}
		default:
			out = append(out, anthropicMessage{Role: "user", Content: m.Content})
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// systemPrompt joins system and developer messages into the top-level system
// field.
func systemPrompt(req *types.Request) (any, bool) {
	msgs, err := req.ExtractMessages()
	if err != nil {
		return nil, false
	}
	system := ""
	for _, m := range msgs {
		if m.Role != types.RoleSystem && m.Role != types.RoleDeveloper {
			continue
		}
		if system != "" {
			system += "\n"
		}
		system += m.Content
	}
	if system == "" {
		return nil, false
	}
	return system, true
}

// anthropicTools rewrites OpenAI-shaped tool definitions into Anthropic's
// input_schema form.
func anthropicTools(req *types.Request) (any, bool) {
	if req.Chat == nil || len(req.Chat.Tools) == 0 {
		return nil, false
	}
	type tool struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		InputSchema json.RawMessage `json:"input_schema"`
	}
	out := make([]tool, 0, len(req.Chat.Tools))
	for _, t := range req.Chat.Tools {
		schema := t.Function.Parameters
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}
	return out, true
}

type wireContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type wireResponse struct {
	ID         string        `json:"id"`
	Model      string        `json:"model"`
	Content    []wireContent `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// finishReason maps Anthropic stop reasons onto the canonical set.
func finishReason(stop string) string {
	switch stop {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	}
	return stop
}

// TransformResponse implements gateway.Dialect.
func (d *Dialect) TransformResponse(body []byte, status int, header http.Header, strict bool, req *types.Request) (*types.RawResponse, error) {
	if status >= 400 {
		return nil, d.TransformError(body, status)
	}

	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil || len(wr.Content) == 0 {
		if strict {
			e := types.NewError(types.ErrUpstreamError, "provider returned an unparseable response").
				WithProvider("anthropic").WithRetryable(true)
			e.Details = &types.ErrorDetails{ProviderBody: string(body)}
			return nil, e
		}
		return &types.RawResponse{Status: http.StatusOK, ContentType: "application/json", Bytes: body}, nil
	}

	msg := types.Message{Role: types.RoleAssistant}
	for _, c := range wr.Content {
		switch c.Type {
		case "text":
			msg.Content += c.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:       c.ID,
				Type:     "function",
				Function: types.ToolFunction{Name: c.Name, Arguments: string(c.Input)},
			})
		}
	}

	resp := types.Response{
		ID:       wr.ID,
		Object:   "chat.completion",
		Created:  time.Now().Unix(),
		Model:    wr.Model,
		Provider: "anthropic",
		Choices: []types.Choice{
			{Index: 0, Message: &msg, FinishReason: finishReason(wr.StopReason)},
		},
	}
	if resp.Model == "" {
		resp.Model = req.Model()
	}
	if wr.Usage != nil {
		resp.Usage = &types.Usage{
			PromptTokens:     wr.Usage.InputTokens,
			CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		}
	}
	return types.JSONResponse(http.StatusOK, resp)
}

// TransformError implements gateway.Dialect.
func (d *Dialect) TransformError(body []byte, status int) *types.Error {
	var we struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := string(body)
	typ := ""
	if json.Unmarshal(body, &we) == nil && we.Error.Message != "" {
		msg = we.Error.Message
		typ = we.Error.Type
	}

	code := types.ErrUpstreamError
	retryable := status >= 500
	switch status {
	case http.StatusUnauthorized:
		code = types.ErrUnauthorized
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusNotFound:
		code = types.ErrNotFound
	case http.StatusTooManyRequests:
		code, retryable = types.ErrRateLimited, true
	case 529:
		code, retryable = types.ErrUnavailable, true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	}

	e := types.NewError(code, msg).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithProvider("anthropic")
	e.Type = typ
	e.Details = &types.ErrorDetails{
		OriginalError:  msg,
		OriginalStatus: status,
		ProviderBody:   string(body),
	}
	return e
}

package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestPromptUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantText string
		wantList []string
		wantErr  bool
	}{
		{name: "string form", raw: `"hello"`, wantText: "hello"},
		{name: "list form", raw: `["a","b"]`, wantList: []string{"a", "b"}},
		{name: "invalid form", raw: `{"x":1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Prompt
			err := json.Unmarshal([]byte(tt.raw), &p)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, p.Text)
			assert.Equal(t, tt.wantList, p.List)
		})
	}
}

func TestExtractMessages_Chat(t *testing.T) {
	req := &Request{
		Function: FunctionChatComplete,
		Chat: &ChatBody{
			Model: "gpt-4o-mini",
			Messages: []Message{
				NewSystemMessage("be brief"),
				NewUserMessage("ping"),
			},
		},
	}

	msgs, err := req.ExtractMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "ping", msgs[1].Content)
}

func TestExtractMessages_Completion(t *testing.T) {
	t.Run("string prompt", func(t *testing.T) {
		req := &Request{
			Function:   FunctionComplete,
			Completion: &CompletionBody{Model: "m", Prompt: Prompt{Text: "once upon"}},
		}
		msgs, err := req.ExtractMessages()
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, RoleUser, msgs[0].Role)
		assert.Equal(t, "once upon", msgs[0].Content)
	})

	t.Run("list prompt becomes one user message each", func(t *testing.T) {
		req := &Request{
			Function:   FunctionComplete,
			Completion: &CompletionBody{Model: "m", Prompt: Prompt{List: []string{"a", "b"}}},
		}
		msgs, err := req.ExtractMessages()
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "b", msgs[1].Content)
	})

	t.Run("empty prompt rejected", func(t *testing.T) {
		req := &Request{Function: FunctionComplete, Completion: &CompletionBody{Model: "m"}}
		_, err := req.ExtractMessages()
		require.Error(t, err)
		assert.Equal(t, ErrInvalidRequest, GetErrorCode(err))
	})
}

func TestExtractMessages_Responses(t *testing.T) {
	req := &Request{
		Function: FunctionCreateModelResponse,
		Responses: &ResponsesBody{
			Model:        "gpt-4o",
			Instructions: "answer politely",
			Input: []ResponsesItem{
				{Type: ResponsesItemMessage, Role: RoleUser, Content: "what is the weather"},
				{Type: ResponsesItemFunctionCall, CallID: "call_abc", Name: "get_weather", Arguments: `{"city":"Paris"}`},
				{Type: ResponsesItemFunctionCallOutput, CallID: "call_abc", Output: `{"temp":21}`},
			},
		},
	}

	msgs, err := req.ExtractMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)

	require.Len(t, msgs[2].ToolCalls, 1)
	assert.Equal(t, RoleAssistant, msgs[2].Role)
	assert.Equal(t, "get_weather", msgs[2].ToolCalls[0].Function.Name)

	// function_call_output must pair with the remapped call id.
	assert.Equal(t, RoleTool, msgs[3].Role)
	assert.Equal(t, msgs[2].ToolCalls[0].ID, msgs[3].ToolCallID)
}

func TestExtractMessages_MCPCallDefaultsToSuccess(t *testing.T) {
	req := &Request{
		Function: FunctionCreateModelResponse,
		Responses: &ResponsesBody{
			Model: "gpt-4o",
			Input: []ResponsesItem{
				{Type: ResponsesItemMCPCall, Name: "search", Arguments: `{"q":"go"}`},
			},
		},
	}

	msgs, err := req.ExtractMessages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Len(t, msgs[0].ToolCalls, 1)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, RoleTool, msgs[1].Role)
	assert.Equal(t, "success", msgs[1].Content)
	assert.Equal(t, msgs[0].ToolCalls[0].ID, msgs[1].ToolCallID)
}

func TestExtractMessages_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		item ResponsesItem
	}{
		{name: "function_call without name", item: ResponsesItem{Type: ResponsesItemFunctionCall, CallID: "c"}},
		{name: "function_call_output without call_id", item: ResponsesItem{Type: ResponsesItemFunctionCallOutput, Output: "x"}},
		{name: "unknown item type", item: ResponsesItem{Type: "bogus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{
				Function:  FunctionCreateModelResponse,
				Responses: &ResponsesBody{Model: "m", Input: []ResponsesItem{tt.item}},
			}
			_, err := req.ExtractMessages()
			require.Error(t, err)
			assert.Equal(t, ErrInvalidRequest, GetErrorCode(err))
		})
	}
}

func TestResponsesItem_UnmarshalBareString(t *testing.T) {
	var body ResponsesBody
	raw := `{"model":"m","input":["hello there"]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	require.Len(t, body.Input, 1)
	assert.Equal(t, ResponsesItemMessage, body.Input[0].Type)
	assert.Equal(t, RoleUser, body.Input[0].Role)
	assert.Equal(t, "hello there", body.Input[0].Content)
}

func TestRequestValidate_Ranges(t *testing.T) {
	base := func() *Request {
		return &Request{
			Function: FunctionChatComplete,
			Chat: &ChatBody{
				Model:    "m",
				Messages: []Message{NewUserMessage("hi")},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *Request) {}, wantErr: false},
		{name: "temperature too high", mutate: func(r *Request) { r.Chat.Temperature = f64(2.5) }, wantErr: true},
		{name: "temperature at bound", mutate: func(r *Request) { r.Chat.Temperature = f64(2.0) }, wantErr: false},
		{name: "top_p negative", mutate: func(r *Request) { r.Chat.TopP = f64(-0.1) }, wantErr: true},
		{name: "frequency penalty out of range", mutate: func(r *Request) { r.Chat.FrequencyPenalty = f64(3) }, wantErr: true},
		{name: "bad reasoning effort", mutate: func(r *Request) { r.Chat.ReasoningEffort = "extreme" }, wantErr: true},
		{name: "valid reasoning effort", mutate: func(r *Request) { r.Chat.ReasoningEffort = "medium" }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrInvalidRequest, GetErrorCode(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUserVisibleText(t *testing.T) {
	req := &Request{
		Function: FunctionChatComplete,
		Chat: &ChatBody{
			Model: "m",
			Messages: []Message{
				NewSystemMessage("secret system prompt"),
				NewUserMessage("first"),
				NewAssistantMessage("reply"),
				NewUserMessage("second"),
			},
		},
	}
	assert.Equal(t, "first\nsecond", req.UserVisibleText())
}

func TestRemapCallIDStability(t *testing.T) {
	a := remapCallID("call_1")
	b := remapCallID("call_1")
	c := remapCallID("call_2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "fc_")
}

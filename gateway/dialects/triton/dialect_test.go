package triton

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/types"
)

func chatRequest(model string) *types.Request {
	return &types.Request{
		Function: types.FunctionChatComplete,
		Chat: &types.ChatBody{
			Model: model,
			Messages: []types.Message{
				types.NewSystemMessage("be brief"),
				types.NewUserMessage("hello"),
			},
		},
	}
}

func TestNoAPIKeyRequired(t *testing.T) {
	d := New()
	assert.False(t, d.APIKeyRequired())

	h, err := d.Headers(&types.Target{}, types.FunctionChatComplete)
	require.NoError(t, err)
	_, has := h["Authorization"]
	assert.False(t, has)
}

func TestEndpoint(t *testing.T) {
	d := New()

	got, err := d.Endpoint(chatRequest("llama3"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/v2/models/llama3/infer", got)

	_, err = d.Endpoint(chatRequest(""), nil)
	assert.Error(t, err)

	_, err = d.Endpoint(&types.Request{Function: types.FunctionEmbed}, nil)
	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.ErrInvalidMethod, te.Code)
}

func TestInputsWrapping(t *testing.T) {
	d := New()
	req := chatRequest("llama3")
	temp := 0.3
	req.Chat.Temperature = &temp

	res, err := gateway.BuildUpstreamBody(req, d.ParamTable(req.Function), nil)
	require.NoError(t, err)

	inputs, ok := res.Body["inputs"].([]kserveInput)
	require.True(t, ok)
	require.Len(t, inputs, 1)
	assert.Equal(t, "text_input", inputs[0].Name)
	assert.Equal(t, "BYTES", inputs[0].Datatype)
	assert.Equal(t, []int{1}, inputs[0].Shape)
	require.Len(t, inputs[0].Data, 1)
	assert.Equal(t, "system: be brief\nuser: hello\n", inputs[0].Data[0])

	params, ok := res.Body["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 0.3, params["temperature"])
	assert.Equal(t, float64(256), params["max_tokens"])
}

func TestTransformResponse(t *testing.T) {
	d := New()
	body := []byte(`{
		"model_name": "llama3",
		"outputs": [{"name": "text_output", "datatype": "BYTES", "shape": [1], "data": ["hi ", "there"]}]
	}`)

	raw, err := d.TransformResponse(body, http.StatusOK, http.Header{}, true, chatRequest("llama3"))
	require.NoError(t, err)

	var resp types.Response
	require.NoError(t, json.Unmarshal(raw.Bytes, &resp))
	assert.Equal(t, "triton", resp.Provider)
	assert.Equal(t, "llama3", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestTransformError(t *testing.T) {
	d := New()

	e := d.TransformError([]byte(`{"error":"model not found"}`), 404)
	assert.Equal(t, types.ErrNotFound, e.Code)
	assert.Equal(t, "model not found", e.Message)
	assert.False(t, e.Retryable)

	e = d.TransformError([]byte("busy"), 503)
	assert.Equal(t, types.ErrUnavailable, e.Code)
	assert.True(t, e.Retryable)
}

package anthropic

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/idkhub-com/reactive-agents/gateway/dialects/openaicompat"
	"github.com/idkhub-com/reactive-agents/types"
)

type wireEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
	} `json:"message,omitempty"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block,omitempty"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text,omitempty"`
		PartialJSON string `json:"partial_json,omitempty"`
		StopReason  string `json:"stop_reason,omitempty"`
	} `json:"delta,omitempty"`
	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
}

// TransformChunk implements gateway.Dialect for Anthropic's event stream.
// message_start seeds the ids, content_block deltas become content or tool
// call deltas, message_delta carries the stop reason and message_stop ends
// the stream.
func (d *Dialect) TransformChunk(raw []byte, state *types.StreamState, strict bool, req *types.Request) ([]byte, error) {
	payload, ok := eventPayload(raw)
	if !ok {
		return nil, nil
	}

	var ev wireEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		if strict {
			return nil, types.NewError(types.ErrUpstreamError, "provider sent an unparseable stream event").
				WithProvider("anthropic").WithCause(err)
		}
		return nil, nil
	}

	if state.Created == 0 {
		state.Created = time.Now().Unix()
	}
	if state.Model == "" {
		state.Model = req.Model()
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			if ev.Message.ID != "" {
				state.ID = ev.Message.ID
			}
			if ev.Message.Model != "" {
				state.Model = ev.Message.Model
			}
		}
		return d.encode(state, types.ChunkChoice{
			Index: 0,
			Delta: types.Delta{Role: types.RoleAssistant},
		})

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			state.ToolCalls[ev.Index] = &types.StreamToolCall{
				ID:   ev.ContentBlock.ID,
				Name: ev.ContentBlock.Name,
			}
			return d.encode(state, types.ChunkChoice{
				Index: 0,
				Delta: types.Delta{ToolCalls: []types.ToolCall{{
					ID:       ev.ContentBlock.ID,
					Type:     "function",
					Function: types.ToolFunction{Name: ev.ContentBlock.Name},
				}}},
			})
		}
		return nil, nil

	case "content_block_delta":
		if ev.Delta == nil {
			return nil, nil
		}
		switch ev.Delta.Type {
		case "text_delta":
			return d.encode(state, types.ChunkChoice{
				Index: 0,
				Delta: types.Delta{Content: ev.Delta.Text},
			})
		case "input_json_delta":
			tc := state.ToolCalls[ev.Index]
			if tc == nil {
				return nil, nil
			}
			return d.encode(state, types.ChunkChoice{
				Index: 0,
				Delta: types.Delta{ToolCalls: []types.ToolCall{{
					ID:       tc.ID,
					Type:     "function",
					Function: types.ToolFunction{Arguments: ev.Delta.PartialJSON},
				}}},
			})
		}
		return nil, nil

	case "message_delta":
		if ev.Delta == nil || ev.Delta.StopReason == "" {
			return nil, nil
		}
		reason := finishReason(ev.Delta.StopReason)
		return d.encode(state, types.ChunkChoice{
			Index:        0,
			FinishReason: &reason,
		})

	case "message_stop":
		state.Finished = true
		return []byte("data: [DONE]\n\n"), nil
	}

	// ping and unrecognized events produce no output.
	return nil, nil
}

func (d *Dialect) encode(state *types.StreamState, choice types.ChunkChoice) ([]byte, error) {
	return openaicompat.EncodeChunk(&types.StreamChunk{
		ID:       state.ID,
		Object:   "chat.completion.chunk",
		Created:  state.Created,
		Model:    state.Model,
		Provider: "anthropic",
		Choices:  []types.ChunkChoice{choice},
	})
}

// eventPayload extracts the data line from an Anthropic SSE frame.
func eventPayload(raw []byte) ([]byte, bool) {
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if bytes.HasPrefix(line, []byte("data:")) {
			return bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:"))), true
		}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return trimmed, true
	}
	return nil, false
}

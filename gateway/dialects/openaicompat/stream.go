package openaicompat

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/idkhub-com/reactive-agents/types"
)

// doneFrame is the terminal SSE payload every normalized stream ends with.
var doneFrame = []byte("data: [DONE]\n\n")

// TransformChunk implements gateway.Dialect. raw is one de-framed upstream
// frame; the separator handling happens in the pipeline's stream reader.
// Returns nil for frames that produce no client-visible output.
func (d *Dialect) TransformChunk(raw []byte, state *types.StreamState, strict bool, req *types.Request) ([]byte, error) {
	payload, ok := ssePayload(raw)
	if !ok {
		return nil, nil
	}
	if bytes.Equal(payload, []byte("[DONE]")) {
		state.Finished = true
		return doneFrame, nil
	}

	var wr wireResponse
	if err := json.Unmarshal(payload, &wr); err != nil {
		if strict {
			return nil, types.NewError(types.ErrUpstreamError, "provider sent an unparseable stream chunk").
				WithProvider(d.cfg.Tag).
				WithRetryable(false).
				WithCause(err)
		}
		return nil, nil
	}

	if wr.ID != "" {
		state.ID = wr.ID
	}
	if wr.Model != "" {
		state.Model = wr.Model
	}
	if state.Model == "" {
		state.Model = req.Model()
	}
	if state.Created == 0 {
		if wr.Created != 0 {
			state.Created = wr.Created
		} else {
			state.Created = time.Now().Unix()
		}
	}

	chunk := types.StreamChunk{
		ID:       state.ID,
		Object:   "chat.completion.chunk",
		Created:  state.Created,
		Model:    state.Model,
		Provider: d.cfg.Tag,
		Usage:    wr.Usage,
	}
	for _, c := range wr.Choices {
		cc := types.ChunkChoice{Index: c.Index, FinishReason: c.FinishReason}
		if c.Delta != nil {
			cc.Delta = types.Delta{
				Role:      types.Role(c.Delta.Role),
				Content:   c.Delta.Content,
				ToolCalls: c.Delta.ToolCalls,
			}
		} else if c.Text != "" {
			cc.Delta = types.Delta{Content: c.Text}
		}
		chunk.Choices = append(chunk.Choices, cc)
	}
	if len(chunk.Choices) == 0 && chunk.Usage == nil {
		return nil, nil
	}

	return EncodeChunk(&chunk)
}

// EncodeChunk serializes a canonical chunk as one SSE data frame.
func EncodeChunk(chunk *types.StreamChunk) ([]byte, error) {
	data, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out, nil
}

// ssePayload strips SSE field prefixes from a de-framed chunk, returning the
// concatenated data payload. Frames without a data field yield ok=false.
func ssePayload(raw []byte) ([]byte, bool) {
	var payload []byte
	for _, line := range bytes.Split(raw, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		part := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) > 0 {
			payload = append(payload, '\n')
		}
		payload = append(payload, part...)
	}
	if len(payload) == 0 {
		// A raw JSON frame without SSE framing (some providers emit these).
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && (trimmed[0] == '{' || bytes.Equal(trimmed, []byte("[DONE]"))) {
			return trimmed, true
		}
		return nil, false
	}
	return payload, true
}

package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/idkhub-com/reactive-agents/types"
)

// synthesisChunkSize is how many runes each synthesized delta carries.
const synthesisChunkSize = 4

// synthesizeStream replays a buffered response as a canonical SSE stream:
// the content split into small deltas, tool calls as a name frame followed
// by an arguments frame, one finish frame, then the terminal marker. Cache
// hits on streaming requests go through here without an upstream call.
func (e *execution) synthesizeStream(ctx context.Context, body []byte) (<-chan []byte, error) {
	var resp types.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrInternal, "cached response is not replayable as a stream").WithCause(err)
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}
	if resp.ID == "" {
		resp.ID = newStreamID()
	}

	frames := buildSyntheticFrames(&resp)
	e.builder.MarkFirstToken()

	out := make(chan []byte, streamChannelBuffer)
	go func() {
		defer close(out)
		for _, frame := range frames {
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func buildSyntheticFrames(resp *types.Response) [][]byte {
	base := func() *types.StreamChunk {
		return &types.StreamChunk{
			ID:       resp.ID,
			Object:   "chat.completion.chunk",
			Created:  resp.Created,
			Model:    resp.Model,
			Provider: resp.Provider,
		}
	}

	var frames [][]byte
	emit := func(chunk *types.StreamChunk) {
		if frame := encodeFrame(chunk); frame != nil {
			frames = append(frames, frame)
		}
	}

	var finish string
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		finish = choice.FinishReason

		content := choice.Text
		var calls []types.ToolCall
		if choice.Message != nil {
			content = choice.Message.Content
			calls = choice.Message.ToolCalls
		}

		first := base()
		first.Choices = []types.ChunkChoice{{Delta: types.Delta{Role: types.RoleAssistant}}}
		emit(first)

		// Split on rune boundaries so multi-byte content survives the
		// delta framing intact.
		runes := []rune(content)
		for start := 0; start < len(runes); start += synthesisChunkSize {
			end := start + synthesisChunkSize
			if end > len(runes) {
				end = len(runes)
			}
			chunk := base()
			chunk.Choices = []types.ChunkChoice{{Delta: types.Delta{Content: string(runes[start:end])}}}
			emit(chunk)
		}

		for _, call := range calls {
			named := base()
			named.Choices = []types.ChunkChoice{{Delta: types.Delta{ToolCalls: []types.ToolCall{{
				ID:       call.ID,
				Type:     call.Type,
				Function: types.ToolFunction{Name: call.Function.Name},
			}}}}}
			emit(named)

			args := base()
			args.Choices = []types.ChunkChoice{{Delta: types.Delta{ToolCalls: []types.ToolCall{{
				Function: types.ToolFunction{Arguments: call.Function.Arguments},
			}}}}}
			emit(args)
		}
	}
	if finish == "" {
		finish = "stop"
	}

	last := base()
	last.Usage = resp.Usage
	last.Choices = []types.ChunkChoice{{Delta: types.Delta{}, FinishReason: &finish}}
	emit(last)

	frames = append(frames, doneFrame)
	return frames
}

func encodeFrame(chunk *types.StreamChunk) []byte {
	data, err := json.Marshal(chunk)
	if err != nil {
		return nil
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out
}

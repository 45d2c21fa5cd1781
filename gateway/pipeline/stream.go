package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

var doneFrame = []byte("data: [DONE]\n\n")

// streamChannelBuffer absorbs short bursts between the upstream reader and
// the client writer.
const streamChannelBuffer = 16

// proxyStream serves a streaming function live: the upstream SSE stream is
// de-framed, normalized chunk by chunk and forwarded, while an accumulator
// rebuilds the complete response for the log.
func (e *execution) proxyStream(ctx context.Context, prep *attempt) (*Result, int, error) {
	e.builder.SetCacheStatus(types.CacheNA)

	resp, err := e.send(ctx, prep, prep.body, true)
	if err != nil {
		return nil, statusOf(err), err
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		terr := prep.dialect.TransformError(raw, resp.StatusCode)
		return nil, resp.StatusCode, terr
	}

	out := make(chan []byte, streamChannelBuffer)
	go e.pumpStream(ctx, prep, resp.Body, out)
	return &Result{Stream: out, LogID: e.builder.LogID()}, resp.StatusCode, nil
}

// pumpStream reads upstream frames until EOF, forwarding normalized chunks.
// It owns the response body and the output channel, and finalizes the log
// once the stream is drained.
func (e *execution) pumpStream(ctx context.Context, prep *attempt, upstream io.ReadCloser, out chan<- []byte) {
	defer close(out)
	defer upstream.Close()

	state := types.NewStreamState(newStreamID())
	accum := newStreamAccumulator(prep.target.Provider)
	doneSent := false

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	scanner.Split(frameSplitter(prep.dialect.StreamFrameSeparator()))

	for scanner.Scan() {
		frame := scanner.Bytes()
		payload, err := prep.dialect.TransformChunk(frame, state, e.cfg.StrictCompliance, prep.req)
		if err != nil {
			e.pipeline.logger.Warn("dropping unparseable stream chunk",
				zap.String("provider", prep.target.Provider), zap.Error(err))
			continue
		}
		if len(payload) == 0 {
			continue
		}
		e.builder.MarkFirstToken()
		accum.ingest(payload)
		if bytes.Equal(payload, doneFrame) {
			doneSent = true
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			e.finishStream(ctx, prep, accum, true)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		e.pipeline.logger.Warn("upstream stream ended abnormally",
			zap.String("provider", prep.target.Provider), zap.Error(err))
	}
	if !doneSent {
		// Upstreams that close without a terminal marker still yield a
		// well-formed stream end.
		select {
		case out <- doneFrame:
		case <-ctx.Done():
		}
	}
	e.finishStream(ctx, prep, accum, false)
}

// finishStream runs the recorded-only output hooks over the rebuilt response
// and finalizes the log. Live streams are already on the wire, so a deny
// here is observability, never enforcement.
func (e *execution) finishStream(ctx context.Context, prep *attempt, accum *streamAccumulator, canceled bool) {
	body := accum.completeResponse()
	if len(e.cfg.OutputHooks) > 0 && !canceled {
		reqBody, _ := json.Marshal(prep.req)
		outcome := e.pipeline.hooks.RunOutput(ctx, e.cfg.OutputHooks, reqBody, body, 200, e.cfg.Metadata)
		e.hookResults.OutputHooks = outcome.Results
	}
	if len(e.hookResults.InputHooks) > 0 || len(e.hookResults.OutputHooks) > 0 {
		e.builder.SetHookResults(&e.hookResults)
	}
	e.recordUsage(body)
	status := 200
	if canceled {
		status = 499
	}
	e.builder.Finalize(status, body)
	e.publishCompletion()
}

// frameSplitter adapts an SSE frame separator to bufio.SplitFunc.
func frameSplitter(sep string) bufio.SplitFunc {
	delim := []byte(sep)
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.Index(data, delim); i >= 0 {
			return i + len(delim), data[:i], nil
		}
		if atEOF {
			if len(data) == 0 {
				return 0, nil, nil
			}
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

func newStreamID() string {
	return "chatcmpl-" + time.Now().UTC().Format("20060102150405.000000000")
}

// streamAccumulator rebuilds the buffered equivalent of a streamed response
// from the normalized chunks, for the log and the recorded output hooks.
type streamAccumulator struct {
	provider string

	id      string
	model   string
	created int64
	content bytes.Buffer
	calls   []types.ToolCall
	finish  string
	usage   *types.Usage
}

func newStreamAccumulator(provider string) *streamAccumulator {
	return &streamAccumulator{provider: provider}
}

// ingest folds one normalized SSE frame into the accumulated response.
func (a *streamAccumulator) ingest(frame []byte) {
	payload := bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(frame), []byte("data:")))
	if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
		return
	}
	var chunk types.StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return
	}
	if chunk.ID != "" {
		a.id = chunk.ID
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.Created != 0 {
		a.created = chunk.Created
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
	for _, c := range chunk.Choices {
		if c.Index != 0 {
			continue
		}
		a.content.WriteString(c.Delta.Content)
		for _, tc := range c.Delta.ToolCalls {
			if tc.Function.Name != "" || tc.ID != "" {
				a.calls = append(a.calls, tc)
			} else if len(a.calls) > 0 {
				a.calls[len(a.calls)-1].Function.Arguments += tc.Function.Arguments
			}
		}
		if c.FinishReason != nil && *c.FinishReason != "" {
			a.finish = *c.FinishReason
		}
	}
}

// completeResponse renders the accumulated stream as a buffered chat
// completion body.
func (a *streamAccumulator) completeResponse() []byte {
	msg := &types.Message{Role: types.RoleAssistant, Content: a.content.String()}
	if len(a.calls) > 0 {
		msg.ToolCalls = a.calls
	}
	finish := a.finish
	if finish == "" {
		finish = "stop"
	}
	resp := types.Response{
		ID:       a.id,
		Object:   "chat.completion",
		Created:  a.created,
		Model:    a.model,
		Provider: a.provider,
		Choices:  []types.Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:    a.usage,
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil
	}
	return data
}

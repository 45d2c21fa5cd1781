package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/gateway/cache"
	"github.com/idkhub-com/reactive-agents/types"
)

// maxErrorBody caps how much of an upstream error payload is read.
const maxErrorBody = 1 << 20

// callUpstream performs the buffered upstream call for one target, inside
// the target's retry loop. Retries happen here so a cache miss absorbs
// transient upstream failures before the strategy moves on.
func (e *execution) callUpstream(ctx context.Context, prep *attempt, body map[string]any) (*cache.Entry, error) {
	var entry *cache.Entry
	_, err := e.pipeline.retryer.Do(ctx, prep.target.Retry, func(actx context.Context) (int, time.Duration, error) {
		en, status, retryAfter, err := e.bufferedCall(actx, prep, body)
		if err != nil {
			return status, retryAfter, err
		}
		entry = en
		return status, 0, nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// bufferedCall is one upstream try: send, read, normalize.
func (e *execution) bufferedCall(ctx context.Context, prep *attempt, body map[string]any) (*cache.Entry, int, time.Duration, error) {
	resp, err := e.send(ctx, prep, body, false)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0,
			types.NewError(types.ErrUpstreamError, "failed to read provider response").
				WithProvider(prep.target.Provider).
				WithRetryable(true).
				WithCause(err)
	}
	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, parseRetryAfter(resp.Header),
			prep.dialect.TransformError(raw, resp.StatusCode)
	}

	rr, err := prep.dialect.TransformResponse(raw, resp.StatusCode, resp.Header, e.cfg.StrictCompliance, prep.req)
	if err != nil {
		return nil, resp.StatusCode, 0, err
	}
	return &cache.Entry{
		Status:      rr.Status,
		ContentType: rr.ContentType,
		Body:        rr.Bytes,
		CreatedAt:   time.Now(),
	}, rr.Status, 0, nil
}

// send builds and issues the upstream HTTP request.
func (e *execution) send(ctx context.Context, prep *attempt, body map[string]any, streaming bool) (*http.Response, error) {
	method, contentType, payload, err := encodeUpstreamBody(prep.req, body)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, prep.url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to build upstream request").WithCause(err)
	}
	for k, v := range prep.headers {
		httpReq.Header.Set(k, v)
	}
	// After the dialect headers: multipart bodies must keep their boundary.
	httpReq.Header.Set("Content-Type", contentType)
	if streaming {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := e.pipeline.client.Do(httpReq)
	if err != nil {
		return nil, gateway.Classify(err, prep.target.Provider)
	}
	return resp, nil
}

// encodeUpstreamBody serializes the transformed body for the wire. Audio and
// file uploads go out as multipart forms with the raw payload as the file
// part, proxy requests pass their method and body through untouched, and
// everything else is JSON.
func encodeUpstreamBody(req *types.Request, body map[string]any) (method, contentType string, payload []byte, err error) {
	switch req.Function {
	case types.FunctionCreateTranscription:
		return encodeMultipartBody(req.Transcription.FileName, req.Transcription.Data, body)
	case types.FunctionCreateTranslation:
		return encodeMultipartBody(req.Translation.FileName, req.Translation.Data, body)
	case types.FunctionUploadFile:
		return encodeMultipartBody(req.File.FileName, req.File.Data, body)
	case types.FunctionProxy:
		method = req.Proxy.Method
		if method == "" {
			method = http.MethodPost
		}
		return method, "application/json", req.Proxy.Body, nil
	}
	raw, merr := json.Marshal(body)
	if merr != nil {
		return "", "", nil, types.NewError(types.ErrInternal, "failed to serialize upstream body").WithCause(merr)
	}
	return http.MethodPost, "application/json", raw, nil
}

// encodeMultipartBody renders the scalar body fields as form fields around
// the file part. Field order is fixed so identical requests produce identical
// payloads apart from the boundary.
func encodeMultipartBody(fileName string, data []byte, fields map[string]any) (string, string, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fileName == "" {
		fileName = "file"
	}
	part, err := w.CreateFormFile("file", fileName)
	if err == nil {
		_, err = part.Write(data)
	}
	if err != nil {
		return "", "", nil, types.NewError(types.ErrInternal, "failed to encode multipart body").WithCause(err)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, formFieldValue(fields[k])); err != nil {
			return "", "", nil, types.NewError(types.ErrInternal, "failed to encode multipart body").WithCause(err)
		}
	}
	if err := w.Close(); err != nil {
		return "", "", nil, types.NewError(types.ErrInternal, "failed to encode multipart body").WithCause(err)
	}
	return http.MethodPost, w.FormDataContentType(), buf.Bytes(), nil
}

func formFieldValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

// parseRetryAfter reads the Retry-After header, either delay-seconds or an
// HTTP date. Zero means absent or unparseable.
func parseRetryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/gateway/pipeline"
	"github.com/idkhub-com/reactive-agents/types"
)

// ConfigHeader carries the per-request control envelope. A body-embedded
// "idk_config" field is the equivalent for clients that cannot set headers.
const ConfigHeader = "x-idk-config"

// Executor runs one inference request end to end. The request pipeline
// implements it.
type Executor interface {
	Execute(ctx context.Context, req *types.Request, cfg *types.Config) (*pipeline.Result, error)
}

// InferenceHandler serves the OpenAI-shaped inference routes.
type InferenceHandler struct {
	exec   Executor
	logger *zap.Logger
}

func NewInferenceHandler(exec Executor, logger *zap.Logger) *InferenceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceHandler{exec: exec, logger: logger.With(zap.String("handler", "inference"))}
}

// resolveConfig picks the header envelope over the body-embedded one.
func resolveConfig(r *http.Request, embedded json.RawMessage) (*types.Config, error) {
	if raw := r.Header.Get(ConfigHeader); raw != "" {
		return types.ParseConfig([]byte(raw))
	}
	if len(embedded) > 0 {
		return types.ParseConfig(embedded)
	}
	return nil, types.NewError(types.ErrInvalidRequest,
		"missing "+ConfigHeader+" header or idk_config body field")
}

func (h *InferenceHandler) run(w http.ResponseWriter, r *http.Request, req *types.Request, cfg *types.Config) {
	result, err := h.exec.Execute(r.Context(), req, cfg)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if result.Stream != nil {
		h.writeStream(w, r, result.Stream)
		return
	}
	resp := result.Response
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Bytes)
}

// writeStream forwards normalized SSE frames until the channel closes or the
// client goes away.
func (h *InferenceHandler) writeStream(w http.ResponseWriter, r *http.Request, frames <-chan []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, h.logger, types.NewError(types.ErrInternal, "streaming unsupported by connection"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case frame, open := <-frames:
			if !open {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// ChatCompletions serves POST /v1/chat/completions.
func (h *InferenceHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		types.ChatBody
		IDKConfig json.RawMessage `json:"idk_config,omitempty"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, payload.IDKConfig)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	fn := types.FunctionChatComplete
	if payload.Stream {
		fn = types.FunctionStreamChatComplete
	}
	h.run(w, r, &types.Request{Function: fn, Chat: &payload.ChatBody}, cfg)
}

// Completions serves POST /v1/completions.
func (h *InferenceHandler) Completions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		types.CompletionBody
		IDKConfig json.RawMessage `json:"idk_config,omitempty"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, payload.IDKConfig)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	fn := types.FunctionComplete
	if payload.Stream {
		fn = types.FunctionStreamComplete
	}
	h.run(w, r, &types.Request{Function: fn, Completion: &payload.CompletionBody}, cfg)
}

// Responses serves POST /v1/responses.
func (h *InferenceHandler) Responses(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		types.ResponsesBody
		IDKConfig json.RawMessage `json:"idk_config,omitempty"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, payload.IDKConfig)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.run(w, r, &types.Request{Function: types.FunctionCreateModelResponse, Responses: &payload.ResponsesBody}, cfg)
}

// Embeddings serves POST /v1/embeddings.
func (h *InferenceHandler) Embeddings(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		types.EmbeddingsBody
		IDKConfig json.RawMessage `json:"idk_config,omitempty"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, payload.IDKConfig)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.run(w, r, &types.Request{Function: types.FunctionEmbed, Embeddings: &payload.EmbeddingsBody}, cfg)
}

// Images serves POST /v1/images/generations.
func (h *InferenceHandler) Images(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		types.ImageBody
		IDKConfig json.RawMessage `json:"idk_config,omitempty"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, payload.IDKConfig)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.run(w, r, &types.Request{Function: types.FunctionGenerateImage, Image: &payload.ImageBody}, cfg)
}

// Moderations serves POST /v1/moderations.
func (h *InferenceHandler) Moderations(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		types.ModerationBody
		IDKConfig json.RawMessage `json:"idk_config,omitempty"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, payload.IDKConfig)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.run(w, r, &types.Request{Function: types.FunctionModerate, Moderation: &payload.ModerationBody}, cfg)
}

// Speech serves POST /v1/audio/speech.
func (h *InferenceHandler) Speech(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		types.SpeechBody
		IDKConfig json.RawMessage `json:"idk_config,omitempty"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, payload.IDKConfig)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	h.run(w, r, &types.Request{Function: types.FunctionCreateSpeech, Speech: &payload.SpeechBody}, cfg)
}

// Transcriptions serves POST /v1/audio/transcriptions (multipart).
func (h *InferenceHandler) Transcriptions(w http.ResponseWriter, r *http.Request) {
	h.audio(w, r, types.FunctionCreateTranscription)
}

// Translations serves POST /v1/audio/translations (multipart).
func (h *InferenceHandler) Translations(w http.ResponseWriter, r *http.Request) {
	h.audio(w, r, types.FunctionCreateTranslation)
}

func (h *InferenceHandler) audio(w http.ResponseWriter, r *http.Request, fn types.FunctionName) {
	body, err := readAudioForm(r)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	cfg, err := resolveConfig(r, nil)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	req := &types.Request{Function: fn}
	if fn == types.FunctionCreateTranscription {
		req.Transcription = body
	} else {
		req.Translation = body
	}
	h.run(w, r, req, cfg)
}

func readAudioForm(r *http.Request) (*types.AudioBody, error) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid multipart form").WithCause(err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "missing audio file").WithParam("file")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBodyBytes))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to read audio file").WithCause(err)
	}
	body := &types.AudioBody{
		Model:          r.FormValue("model"),
		FileName:       header.Filename,
		Data:           data,
		Language:       r.FormValue("language"),
		Prompt:         r.FormValue("prompt"),
		ResponseFormat: r.FormValue("response_format"),
	}
	return body, nil
}

// UploadFile serves POST /v1/files (multipart).
func (h *InferenceHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "invalid multipart form").WithCause(err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "missing file").WithParam("file"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBodyBytes))
	if err != nil {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "failed to read file").WithCause(err))
		return
	}
	cfg, err := resolveConfig(r, nil)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	req := &types.Request{
		Function: types.FunctionUploadFile,
		File: &types.FileBody{
			FileName: header.Filename,
			Purpose:  r.FormValue("purpose"),
			Data:     data,
		},
	}
	h.run(w, r, req, cfg)
}

// ListFiles serves GET /v1/files by proxying the call upstream.
func (h *InferenceHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	cfg, err := resolveConfig(r, nil)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	req := &types.Request{
		Function: types.FunctionProxy,
		Proxy:    &types.ProxyBody{Method: http.MethodGet, Path: "/v1/files"},
	}
	h.run(w, r, req, cfg)
}

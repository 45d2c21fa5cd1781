package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// maxBodyBytes bounds inbound JSON bodies. Audio uploads are limited
// separately by the multipart reader.
const maxBodyBytes = 10 << 20

// Envelope is the control-plane response wrapper.
type Envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in the control-plane envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data, Timestamp: time.Now()})
}

// WriteError renders any error as the gateway's error envelope. Unknown
// error values fold into a 500 without leaking their message shape.
func WriteError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var terr *types.Error
	if !errors.As(err, &terr) {
		terr = types.NewError(types.ErrInternal, "internal error").WithCause(err)
	}
	status := terr.Status()
	if logger != nil && status >= 500 {
		logger.Error("request failed",
			zap.String("code", string(terr.Code)),
			zap.Int("status", status),
			zap.Error(err))
	}
	WriteJSON(w, status, terr.Envelope())
}

// DecodeJSON reads a bounded JSON body into v.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "failed to read request body").WithCause(err)
	}
	if len(body) == 0 {
		return types.NewError(types.ErrInvalidRequest, "request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return types.NewError(types.ErrInvalidRequest, "request body is not valid JSON").WithCause(err)
	}
	return nil
}

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

const defaultLogLimit = 100

// LogStore is the storage slice the log handler consumes.
type LogStore interface {
	GetLogs(ctx context.Context, skillID string, limit int) ([]types.Log, error)
	GetLog(ctx context.Context, id string) (*types.Log, error)
	GetLogOutputs(ctx context.Context, logID string) ([]types.LogOutput, error)
}

// LogHandler serves the observability log control plane.
type LogHandler struct {
	store  LogStore
	logger *zap.Logger
}

func NewLogHandler(store LogStore, logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{store: store, logger: logger.With(zap.String("handler", "logs"))}
}

// List serves GET /v1/reactive-agents/logs?skill_id=&limit=.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "limit must be a positive integer").WithParam("limit"))
			return
		}
		limit = n
	}
	logs, err := h.store.GetLogs(r.Context(), r.URL.Query().Get("skill_id"), limit)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, logs)
}

// Get serves GET /v1/reactive-agents/logs/{id}.
func (h *LogHandler) Get(w http.ResponseWriter, r *http.Request) {
	log, err := h.store.GetLog(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, log)
}

// Outputs serves GET /v1/reactive-agents/logs/{id}/outputs.
func (h *LogHandler) Outputs(w http.ResponseWriter, r *http.Request) {
	outputs, err := h.store.GetLogOutputs(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, outputs)
}

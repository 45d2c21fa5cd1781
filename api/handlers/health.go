package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthHandler serves liveness and the OpenAI-shaped model listing.
type HealthHandler struct {
	store   ModelStore
	logger  *zap.Logger
	version string
	started time.Time
}

func NewHealthHandler(store ModelStore, version string, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		store:   store,
		logger:  logger.With(zap.String("handler", "health")),
		version: version,
		started: time.Now(),
	}
}

// Healthz serves GET /healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// openAIModel is one entry of the /v1/models listing.
type openAIModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// Models serves GET /v1/models in the OpenAI list shape, from the control
// plane's enabled model catalog.
func (h *HealthHandler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.store.GetModels(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	data := make([]openAIModel, 0, len(models))
	for _, m := range models {
		if !m.Enabled {
			continue
		}
		data = append(data, openAIModel{ID: m.Name, Object: "model", OwnedBy: m.Provider})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

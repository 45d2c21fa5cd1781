package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/types"
)

// ModelStore is the storage slice the model and provider-key handlers use.
type ModelStore interface {
	GetModels(ctx context.Context) ([]types.Model, error)
	CreateModel(ctx context.Context, model *types.Model) error
	GetAIProviderAPIKeys(ctx context.Context, provider string) ([]types.ProviderAPIKey, error)
	CreateAIProviderAPIKey(ctx context.Context, key *types.ProviderAPIKey) error
}

// ModelHandler serves the models and provider credentials control plane.
type ModelHandler struct {
	store  ModelStore
	logger *zap.Logger
}

func NewModelHandler(store ModelStore, logger *zap.Logger) *ModelHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelHandler{store: store, logger: logger.With(zap.String("handler", "models"))}
}

// List serves GET /v1/reactive-agents/models.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	models, err := h.store.GetModels(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, models)
}

// Create serves POST /v1/reactive-agents/models.
func (h *ModelHandler) Create(w http.ResponseWriter, r *http.Request) {
	var model types.Model
	if err := DecodeJSON(r, &model); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if model.Name == "" || model.Provider == "" {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "model name and provider are required"))
		return
	}
	if _, err := gateway.Resolve(model.Provider); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if err := h.store.CreateModel(r.Context(), &model); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusCreated, model)
}

// ListProviders serves GET /v1/reactive-agents/providers: the registered
// dialect tags.
func (h *ModelHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, http.StatusOK, gateway.Providers())
}

// redactedKey hides the credential value on list responses.
type redactedKey struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
}

// ListKeys serves GET /v1/reactive-agents/providers/keys.
func (h *ModelHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.GetAIProviderAPIKeys(r.Context(), r.URL.Query().Get("provider"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	out := make([]redactedKey, len(keys))
	for i, k := range keys {
		out[i] = redactedKey{ID: k.ID, Provider: k.Provider, Name: k.Name}
	}
	WriteSuccess(w, http.StatusOK, out)
}

// CreateKey serves POST /v1/reactive-agents/providers/keys.
func (h *ModelHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider string `json:"provider"`
		Name     string `json:"name"`
		Value    string `json:"value"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	dialect, err := gateway.Resolve(payload.Provider)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if payload.Value == "" && dialect.APIKeyRequired() {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "credential value is required").WithParam("value"))
		return
	}
	key := types.ProviderAPIKey{Provider: payload.Provider, Name: payload.Name, Value: payload.Value}
	if err := h.store.CreateAIProviderAPIKey(r.Context(), &key); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusCreated, redactedKey{ID: key.ID, Provider: key.Provider, Name: key.Name})
}

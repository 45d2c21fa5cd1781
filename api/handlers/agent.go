package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// AgentStore is the storage slice the agent and skill handlers consume.
type AgentStore interface {
	GetAgents(ctx context.Context) ([]types.Agent, error)
	CreateAgent(ctx context.Context, agent *types.Agent) error
	DeleteAgent(ctx context.Context, id string) error
	GetSkills(ctx context.Context, agentID string) ([]types.Skill, error)
	CreateSkill(ctx context.Context, skill *types.Skill) error
	UpdateSkill(ctx context.Context, skill *types.Skill) error
	DeleteSkill(ctx context.Context, id string) error
}

// AgentHandler serves the agents and skills control plane.
type AgentHandler struct {
	store  AgentStore
	logger *zap.Logger
}

func NewAgentHandler(store AgentStore, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{store: store, logger: logger.With(zap.String("handler", "agents"))}
}

// List serves GET /v1/reactive-agents/agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.store.GetAgents(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, agents)
}

// Create serves POST /v1/reactive-agents/agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var agent types.Agent
	if err := DecodeJSON(r, &agent); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if agent.Name == "" {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "agent name is required").WithParam("name"))
		return
	}
	if err := h.store.CreateAgent(r.Context(), &agent); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusCreated, agent)
}

// Delete serves DELETE /v1/reactive-agents/agents/{id}. Skills, clusters and
// arms cascade in storage.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAgent(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, nil)
}

// ListSkills serves GET /v1/reactive-agents/agents/{id}/skills.
func (h *AgentHandler) ListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := h.store.GetSkills(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, skills)
}

// CreateSkill serves POST /v1/reactive-agents/agents/{id}/skills.
func (h *AgentHandler) CreateSkill(w http.ResponseWriter, r *http.Request) {
	var skill types.Skill
	if err := DecodeJSON(r, &skill); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	skill.AgentID = r.PathValue("id")
	if skill.Name == "" {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "skill name is required").WithParam("name"))
		return
	}
	if skill.ConfigurationCount < 0 {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "configuration_count must not be negative").WithParam("configuration_count"))
		return
	}
	if err := h.store.CreateSkill(r.Context(), &skill); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusCreated, skill)
}

// UpdateSkill serves PUT /v1/reactive-agents/skills/{id}.
func (h *AgentHandler) UpdateSkill(w http.ResponseWriter, r *http.Request) {
	var skill types.Skill
	if err := DecodeJSON(r, &skill); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	skill.ID = r.PathValue("id")
	if err := h.store.UpdateSkill(r.Context(), &skill); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, skill)
}

// DeleteSkill serves DELETE /v1/reactive-agents/skills/{id}.
func (h *AgentHandler) DeleteSkill(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSkill(r.Context(), r.PathValue("id")); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, nil)
}

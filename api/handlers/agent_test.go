package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/testutil"
	"github.com/idkhub-com/reactive-agents/types"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	if out != nil {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
}

func TestAgentCreateAndList(t *testing.T) {
	store := testutil.NewMemoryStore()
	h := NewAgentHandler(store, nil)

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/v1/reactive-agents/agents",
		strings.NewReader(`{"name":"support-bot","description":"handles tickets"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created types.Agent
	decodeEnvelope(t, rec, &created)
	assert.NotEmpty(t, created.ID)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/v1/reactive-agents/agents", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var agents []types.Agent
	decodeEnvelope(t, rec, &agents)
	require.Len(t, agents, 1)
	assert.Equal(t, "support-bot", agents[0].Name)
}

func TestAgentCreateRequiresName(t *testing.T) {
	h := NewAgentHandler(testutil.NewMemoryStore(), nil)
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"description":"x"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAgentCreateDuplicate(t *testing.T) {
	store := testutil.NewMemoryStore()
	h := NewAgentHandler(store, nil)

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"dup"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"dup"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSkillLifecycle(t *testing.T) {
	store := testutil.NewMemoryStore()
	h := NewAgentHandler(store, nil)

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bot"}`)))
	var agent types.Agent
	decodeEnvelope(t, rec, &agent)

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"name":"triage","optimize":true,"configuration_count":3,"clustering_interval":50}`))
	r.SetPathValue("id", agent.ID)
	rec = httptest.NewRecorder()
	h.CreateSkill(rec, r)
	require.Equal(t, http.StatusCreated, rec.Code)

	var skill types.Skill
	decodeEnvelope(t, rec, &skill)
	assert.Equal(t, agent.ID, skill.AgentID)
	assert.True(t, skill.Optimize)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", agent.ID)
	rec = httptest.NewRecorder()
	h.ListSkills(rec, r)
	var skills []types.Skill
	decodeEnvelope(t, rec, &skills)
	require.Len(t, skills, 1)

	r = httptest.NewRequest(http.MethodDelete, "/", nil)
	r.SetPathValue("id", skill.ID)
	rec = httptest.NewRecorder()
	h.DeleteSkill(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	r = httptest.NewRequest(http.MethodDelete, "/", nil)
	r.SetPathValue("id", skill.ID)
	rec = httptest.NewRecorder()
	h.DeleteSkill(rec, r)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAgentDeleteCascadesSkills(t *testing.T) {
	store := testutil.NewMemoryStore()
	h := NewAgentHandler(store, nil)

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bot"}`)))
	var agent types.Agent
	decodeEnvelope(t, rec, &agent)

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"triage"}`))
	r.SetPathValue("id", agent.ID)
	h.CreateSkill(httptest.NewRecorder(), r)

	r = httptest.NewRequest(http.MethodDelete, "/", nil)
	r.SetPathValue("id", agent.ID)
	rec = httptest.NewRecorder()
	h.Delete(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", agent.ID)
	rec = httptest.NewRecorder()
	h.ListSkills(rec, r)
	var skills []types.Skill
	decodeEnvelope(t, rec, &skills)
	assert.Empty(t, skills)
}

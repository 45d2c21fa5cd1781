package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/testutil"
	"github.com/idkhub-com/reactive-agents/types"
)

func TestLogListFiltersBySkill(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.SeedLog(types.Log{ID: "log-a", SkillID: "skill-1", Status: 200})
	store.SeedLog(types.Log{ID: "log-b", SkillID: "skill-2", Status: 200})
	h := NewLogHandler(store, nil)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/?skill_id=skill-1", nil))

	var logs []types.Log
	decodeEnvelope(t, rec, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "log-a", logs[0].ID)
}

func TestLogListRejectsBadLimit(t *testing.T) {
	h := NewLogHandler(testutil.NewMemoryStore(), nil)
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/?limit=zero", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestLogGetAndOutputs(t *testing.T) {
	store := testutil.NewMemoryStore()
	store.SeedLog(types.Log{ID: "log-a", SkillID: "skill-1", Status: 200})
	require.NoError(t, store.CreateLogOutput(context.Background(), &types.LogOutput{
		LogID: "log-a", Kind: "message", Body: []byte(`{"role":"assistant"}`),
	}))
	h := NewLogHandler(store, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", "log-a")
	rec := httptest.NewRecorder()
	h.Get(rec, r)
	var log types.Log
	decodeEnvelope(t, rec, &log)
	assert.Equal(t, "skill-1", log.SkillID)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", "log-a")
	rec = httptest.NewRecorder()
	h.Outputs(rec, r)
	var outputs []types.LogOutput
	decodeEnvelope(t, rec, &outputs)
	require.Len(t, outputs, 1)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.SetPathValue("id", "missing")
	rec = httptest.NewRecorder()
	h.Get(rec, r)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

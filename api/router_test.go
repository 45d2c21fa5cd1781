package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/evals"
	"github.com/idkhub-com/reactive-agents/gateway/dialects"
	"github.com/idkhub-com/reactive-agents/gateway/pipeline"
	"github.com/idkhub-com/reactive-agents/testutil"
	"github.com/idkhub-com/reactive-agents/types"
)

func TestMain(m *testing.M) {
	dialects.RegisterAll()
	m.Run()
}

type staticExecutor struct{}

func (staticExecutor) Execute(ctx context.Context, req *types.Request, cfg *types.Config) (*pipeline.Result, error) {
	return &pipeline.Result{Response: &types.RawResponse{
		Status:      http.StatusOK,
		ContentType: "application/json",
		Bytes:       []byte(`{"ok":true}`),
	}}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *testutil.MemoryStore) {
	t.Helper()
	store := testutil.NewMemoryStore()
	registry := evals.NewDefaultRegistry(nil, nil)
	srv := httptest.NewServer(NewRouter(Deps{
		Store:    store,
		Executor: staticExecutor{},
		Registry: registry,
		Runner:   evals.NewRunner(registry, store, nil),
		Version:  "test",
	}))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestRouterRoutes(t *testing.T) {
	srv, store := newTestServer(t)
	store.SeedLog(types.Log{ID: "log-1", Status: 200})

	for _, path := range []string{
		"/healthz",
		"/v1/models",
		"/v1/reactive-agents/agents",
		"/v1/reactive-agents/models",
		"/v1/reactive-agents/providers",
		"/v1/reactive-agents/providers/keys",
		"/v1/reactive-agents/logs",
		"/v1/reactive-agents/logs/log-1",
		"/v1/reactive-agents/evaluations",
		"/v1/reactive-agents/evaluations/methods",
		"/v1/reactive-agents/datasets",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/chat/completions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRouterUnknownPath(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v2/anything")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/api/handlers"
	"github.com/idkhub-com/reactive-agents/evals"
	"github.com/idkhub-com/reactive-agents/events"
	"github.com/idkhub-com/reactive-agents/storage"
)

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Store    storage.Connector
	Executor handlers.Executor
	Events   *events.Broadcaster
	Registry *evals.Registry
	Runner   *evals.Runner
	Logger   *zap.Logger
	Version  string
}

// NewRouter builds the route table. Middleware (request ids, logging,
// metrics, recovery) wraps the returned handler in the server binary.
func NewRouter(deps Deps) *http.ServeMux {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	inference := handlers.NewInferenceHandler(deps.Executor, logger)
	agents := handlers.NewAgentHandler(deps.Store, logger)
	models := handlers.NewModelHandler(deps.Store, logger)
	logs := handlers.NewLogHandler(deps.Store, logger)
	evaluations := handlers.NewEvaluationHandler(deps.Store, deps.Registry, deps.Runner, logger)
	health := handlers.NewHealthHandler(deps.Store, deps.Version, logger)

	mux := http.NewServeMux()

	// Inference surface.
	mux.HandleFunc("POST /v1/chat/completions", inference.ChatCompletions)
	mux.HandleFunc("POST /v1/completions", inference.Completions)
	mux.HandleFunc("POST /v1/responses", inference.Responses)
	mux.HandleFunc("POST /v1/embeddings", inference.Embeddings)
	mux.HandleFunc("POST /v1/images/generations", inference.Images)
	mux.HandleFunc("POST /v1/moderations", inference.Moderations)
	mux.HandleFunc("POST /v1/audio/speech", inference.Speech)
	mux.HandleFunc("POST /v1/audio/transcriptions", inference.Transcriptions)
	mux.HandleFunc("POST /v1/audio/translations", inference.Translations)
	mux.HandleFunc("POST /v1/files", inference.UploadFile)
	mux.HandleFunc("GET /v1/files", inference.ListFiles)
	mux.HandleFunc("GET /v1/models", health.Models)
	mux.HandleFunc("GET /healthz", health.Healthz)

	// Control plane.
	mux.HandleFunc("GET /v1/reactive-agents/agents", agents.List)
	mux.HandleFunc("POST /v1/reactive-agents/agents", agents.Create)
	mux.HandleFunc("DELETE /v1/reactive-agents/agents/{id}", agents.Delete)
	mux.HandleFunc("GET /v1/reactive-agents/agents/{id}/skills", agents.ListSkills)
	mux.HandleFunc("POST /v1/reactive-agents/agents/{id}/skills", agents.CreateSkill)
	mux.HandleFunc("PUT /v1/reactive-agents/skills/{id}", agents.UpdateSkill)
	mux.HandleFunc("DELETE /v1/reactive-agents/skills/{id}", agents.DeleteSkill)
	mux.HandleFunc("GET /v1/reactive-agents/models", models.List)
	mux.HandleFunc("POST /v1/reactive-agents/models", models.Create)
	mux.HandleFunc("GET /v1/reactive-agents/providers", models.ListProviders)
	mux.HandleFunc("GET /v1/reactive-agents/providers/keys", models.ListKeys)
	mux.HandleFunc("POST /v1/reactive-agents/providers/keys", models.CreateKey)
	mux.HandleFunc("GET /v1/reactive-agents/logs", logs.List)
	mux.HandleFunc("GET /v1/reactive-agents/logs/{id}", logs.Get)
	mux.HandleFunc("GET /v1/reactive-agents/logs/{id}/outputs", logs.Outputs)
	mux.HandleFunc("GET /v1/reactive-agents/evaluations/methods", evaluations.Methods)
	mux.HandleFunc("GET /v1/reactive-agents/evaluations", evaluations.ListRuns)
	mux.HandleFunc("POST /v1/reactive-agents/evaluations", evaluations.CreateRun)
	mux.HandleFunc("GET /v1/reactive-agents/datasets", evaluations.ListDatasets)
	mux.HandleFunc("POST /v1/reactive-agents/datasets", evaluations.CreateDataset)
	mux.HandleFunc("POST /v1/reactive-agents/datasets/{id}/logs", evaluations.AddDatasetLog)
	mux.HandleFunc("GET /v1/reactive-agents/datasets/{id}/logs", evaluations.ListDatasetLogs)

	if deps.Events != nil {
		mux.Handle("GET /v1/reactive-agents/events", deps.Events)
	}

	return mux
}

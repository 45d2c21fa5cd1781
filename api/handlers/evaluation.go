package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/evals"
	"github.com/idkhub-com/reactive-agents/types"
)

// EvaluationStore is the storage slice the evaluation handler consumes.
type EvaluationStore interface {
	GetEvaluationRuns(ctx context.Context) ([]types.EvaluationRun, error)
	CreateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error
	GetDatasets(ctx context.Context) ([]types.Dataset, error)
	CreateDataset(ctx context.Context, dataset *types.Dataset) error
	AddDatasetLog(ctx context.Context, datasetID, logID string) error
	GetDatasetLogs(ctx context.Context, datasetID string) ([]types.Log, error)
}

// EvaluationHandler serves the evaluation and dataset control plane. Dataset
// runs execute asynchronously through the evals runner; runs with a skill and
// no dataset are online attachments that the scorer picks up per request.
type EvaluationHandler struct {
	store    EvaluationStore
	registry *evals.Registry
	runner   *evals.Runner
	logger   *zap.Logger
}

func NewEvaluationHandler(store EvaluationStore, registry *evals.Registry, runner *evals.Runner, logger *zap.Logger) *EvaluationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationHandler{
		store:    store,
		registry: registry,
		runner:   runner,
		logger:   logger.With(zap.String("handler", "evaluations")),
	}
}

// Methods serves GET /v1/reactive-agents/evaluations/methods.
func (h *EvaluationHandler) Methods(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, http.StatusOK, h.registry.List())
}

// ListRuns serves GET /v1/reactive-agents/evaluations.
func (h *EvaluationHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.GetEvaluationRuns(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, runs)
}

// CreateRun serves POST /v1/reactive-agents/evaluations.
func (h *EvaluationHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var run types.EvaluationRun
	if err := DecodeJSON(r, &run); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if _, err := h.registry.Resolve(run.Method); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if run.SkillID == "" && run.DatasetID == "" {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest,
			"an evaluation needs a skill_id (online) or a dataset_id (batch)"))
		return
	}
	run.Status = evals.RunStatusRunning
	if run.DatasetID == "" {
		// Online attachment: no batch work to do.
		run.Status = evals.RunStatusCompleted
	}
	if err := h.store.CreateEvaluationRun(r.Context(), &run); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if run.DatasetID != "" && h.runner != nil {
		batch := run
		go func() {
			if err := h.runner.Run(context.Background(), &batch); err != nil {
				h.logger.Warn("batch evaluation failed",
					zap.String("run_id", batch.ID), zap.Error(err))
			}
		}()
	}
	WriteSuccess(w, http.StatusCreated, run)
}

// ListDatasets serves GET /v1/reactive-agents/datasets.
func (h *EvaluationHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.store.GetDatasets(r.Context())
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, datasets)
}

// CreateDataset serves POST /v1/reactive-agents/datasets.
func (h *EvaluationHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var dataset types.Dataset
	if err := DecodeJSON(r, &dataset); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if dataset.Name == "" {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "dataset name is required").WithParam("name"))
		return
	}
	if err := h.store.CreateDataset(r.Context(), &dataset); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusCreated, dataset)
}

// AddDatasetLog serves POST /v1/reactive-agents/datasets/{id}/logs.
func (h *EvaluationHandler) AddDatasetLog(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		LogID string `json:"log_id"`
	}
	if err := DecodeJSON(r, &payload); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	if payload.LogID == "" {
		WriteError(w, h.logger, types.NewError(types.ErrInvalidRequest, "log_id is required").WithParam("log_id"))
		return
	}
	if err := h.store.AddDatasetLog(r.Context(), r.PathValue("id"), payload.LogID); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, nil)
}

// ListDatasetLogs serves GET /v1/reactive-agents/datasets/{id}/logs.
func (h *EvaluationHandler) ListDatasetLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.store.GetDatasetLogs(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	WriteSuccess(w, http.StatusOK, logs)
}

package evals

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// RunStore is the slice of the storage connector batch evaluation consumes.
type RunStore interface {
	GetDatasetLogs(ctx context.Context, datasetID string) ([]types.Log, error)
	UpdateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error
}

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Runner drives a batch evaluation over a dataset of logs and records the
// aggregate on the run row.
type Runner struct {
	registry *Registry
	store    RunStore
	logger   *zap.Logger
}

func NewRunner(registry *Registry, store RunStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		registry: registry,
		store:    store,
		logger:   logger.With(zap.String("component", "evals-runner")),
	}
}

// Run scores every log in the run's dataset with the run's method and stores
// the average. Per-log failures count as unscored and do not abort the run;
// a run with nothing scored fails.
func (r *Runner) Run(ctx context.Context, run *types.EvaluationRun) error {
	method, err := r.registry.Resolve(run.Method)
	if err != nil {
		return r.fail(ctx, run, err)
	}

	var params Params
	if len(run.Params) > 0 {
		if err := json.Unmarshal(run.Params, &params); err != nil {
			return r.fail(ctx, run, types.NewError(types.ErrInvalidRequest, "evaluation run params are not valid JSON").WithCause(err))
		}
	}
	if err := method.ValidateParams(&params); err != nil {
		return r.fail(ctx, run, err)
	}

	logs, err := r.store.GetDatasetLogs(ctx, run.DatasetID)
	if err != nil {
		return r.fail(ctx, run, err)
	}

	run.Status = RunStatusRunning
	if err := r.store.UpdateEvaluationRun(ctx, run); err != nil {
		return err
	}

	var sum float64
	var scored int
	for i := range logs {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, run, types.NewError(types.ErrTimeout, "evaluation run canceled").WithCause(err))
		}
		result, err := method.EvaluateLog(ctx, &params, &logs[i])
		if err != nil {
			r.logger.Warn("log evaluation failed",
				zap.String("run_id", run.ID),
				zap.String("log_id", logs[i].ID),
				zap.Error(err))
			continue
		}
		sum += result.Score
		scored++
	}

	if scored == 0 {
		return r.fail(ctx, run, types.NewError(types.ErrUnavailable, "no logs in the dataset could be scored"))
	}

	avg := sum / float64(scored)
	run.Status = RunStatusCompleted
	run.AvgScore = &avg
	return r.store.UpdateEvaluationRun(ctx, run)
}

func (r *Runner) fail(ctx context.Context, run *types.EvaluationRun, cause error) error {
	run.Status = RunStatusFailed
	if err := r.store.UpdateEvaluationRun(ctx, run); err != nil {
		r.logger.Warn("failed to mark run as failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	return cause
}

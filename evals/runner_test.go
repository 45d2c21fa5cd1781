package evals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

type fakeRunStore struct {
	logs     []types.Log
	statuses []string
	lastRun  *types.EvaluationRun
}

func (s *fakeRunStore) GetDatasetLogs(ctx context.Context, datasetID string) ([]types.Log, error) {
	return s.logs, nil
}

func (s *fakeRunStore) UpdateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error {
	s.statuses = append(s.statuses, run.Status)
	s.lastRun = run
	return nil
}

func TestRunnerCompletesRun(t *testing.T) {
	log1, log2 := chatLog(), chatLog()
	log1.DurationMS = 300  // scores 1.0 against the default window
	log2.DurationMS = 5250 // midpoint of [500, 10000]

	store := &fakeRunStore{logs: []types.Log{*log1, *log2}}
	runner := NewRunner(NewDefaultRegistry(&fakeJudge{}, zap.NewNop()), store, zap.NewNop())

	run := &types.EvaluationRun{ID: "run-1", DatasetID: "ds-1", Method: "latency"}
	require.NoError(t, runner.Run(context.Background(), run))

	assert.Equal(t, []string{RunStatusRunning, RunStatusCompleted}, store.statuses)
	require.NotNil(t, run.AvgScore)
	assert.InDelta(t, 0.75, *run.AvgScore, 1e-9)
}

func TestRunnerUnknownMethodFails(t *testing.T) {
	store := &fakeRunStore{}
	runner := NewRunner(NewDefaultRegistry(&fakeJudge{}, zap.NewNop()), store, zap.NewNop())

	run := &types.EvaluationRun{ID: "run-1", DatasetID: "ds-1", Method: "vibes"}
	err := runner.Run(context.Background(), run)
	require.Error(t, err)
	assert.Equal(t, RunStatusFailed, run.Status)
}

func TestRunnerSkipsFailingLogs(t *testing.T) {
	// The judge garbles its second verdict; the run averages over the rest.
	judge := &flakyJudge{replies: []string{
		`{"criteria":"x","score":1.0}`,
		"not json",
		`{"criteria":"x","score":0.5}`,
	}}
	store := &fakeRunStore{logs: []types.Log{*chatLog(), *chatLog(), *chatLog()}}
	runner := NewRunner(NewDefaultRegistry(judge, zap.NewNop()), store, zap.NewNop())

	run := &types.EvaluationRun{ID: "run-1", DatasetID: "ds-1", Method: "faithfulness"}
	require.NoError(t, runner.Run(context.Background(), run))
	require.NotNil(t, run.AvgScore)
	assert.InDelta(t, 0.75, *run.AvgScore, 1e-9)
}

type flakyJudge struct {
	replies []string
	call    int
}

func (j *flakyJudge) Complete(ctx context.Context, model string, temperature float64, system, user string) (string, error) {
	reply := j.replies[j.call%len(j.replies)]
	j.call++
	return reply, nil
}

func TestRunnerEmptyDatasetFails(t *testing.T) {
	store := &fakeRunStore{}
	runner := NewRunner(NewDefaultRegistry(&fakeJudge{}, zap.NewNop()), store, zap.NewNop())

	run := &types.EvaluationRun{ID: "run-1", DatasetID: "ds-1", Method: "latency"}
	err := runner.Run(context.Background(), run)
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrUnavailable, terr.Code)
}

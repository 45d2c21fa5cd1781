package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/evals"
	"github.com/idkhub-com/reactive-agents/optimize"
	"github.com/idkhub-com/reactive-agents/types"
)

// The gorm adapter must satisfy the narrow consumer interfaces.
var (
	_ optimize.Store = (*DB)(nil)
	_ evals.RunStore = (*DB)(nil)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(sqlite.Open(":memory:"), zap.NewNop())
	require.NoError(t, err)
	return db
}

func seedAgentSkill(t *testing.T, db *DB) (*types.Agent, *types.Skill) {
	t.Helper()
	ctx := context.Background()

	agent := &types.Agent{Name: "support-bot"}
	require.NoError(t, db.CreateAgent(ctx, agent))

	skill := &types.Skill{
		AgentID:            agent.ID,
		Name:               "answer-tickets",
		Optimize:           true,
		ConfigurationCount: 3,
		ClusteringInterval: 10,
	}
	require.NoError(t, db.CreateSkill(ctx, skill))
	return agent, skill
}

func TestAgentRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	agent := &types.Agent{Name: "support-bot", Description: "answers tickets", Metadata: map[string]string{"team": "cx"}}
	require.NoError(t, db.CreateAgent(ctx, agent))
	assert.NotEmpty(t, agent.ID)

	got, err := db.GetAgentByName(ctx, "support-bot")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.ID)
	assert.Equal(t, map[string]string{"team": "cx"}, got.Metadata)

	all, err := db.GetAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAgentNameConflict(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateAgent(ctx, &types.Agent{Name: "dup"}))
	err := db.CreateAgent(ctx, &types.Agent{Name: "dup"})
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrInvalidRequest, terr.Code)
}

func TestAgentNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetAgentByName(context.Background(), "ghost")
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrNotFound, terr.Code)
}

func TestSkillResolution(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	agent, skill := seedAgentSkill(t, db)

	got, err := db.GetSkillByName(ctx, agent.ID, "answer-tickets")
	require.NoError(t, err)
	assert.Equal(t, skill.ID, got.ID)
	assert.True(t, got.Optimize)
	assert.Equal(t, 3, got.ConfigurationCount)

	// Same skill name under another agent is allowed.
	other := &types.Agent{Name: "other-bot"}
	require.NoError(t, db.CreateAgent(ctx, other))
	require.NoError(t, db.CreateSkill(ctx, &types.Skill{AgentID: other.ID, Name: "answer-tickets"}))

	// Duplicate under the same agent is a conflict.
	err = db.CreateSkill(ctx, &types.Skill{AgentID: agent.ID, Name: "answer-tickets"})
	require.Error(t, err)
}

func TestClusterAndArmPersistence(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, skill := seedAgentSkill(t, db)

	clusters, err := db.CreateSkillOptimizationClusters(ctx, []types.Cluster{
		{SkillID: skill.ID, Name: "cluster-0", Centroid: []float32{1, 0, 0}},
		{SkillID: skill.ID, Name: "cluster-1", Centroid: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	require.Len(t, clusters, 2)

	loaded, err := db.GetSkillOptimizationClusters(ctx, skill.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, []float32{1, 0, 0}, loaded[0].Centroid)

	arms, err := db.CreateSkillOptimizationArms(ctx, []types.Arm{
		{ClusterID: clusters[0].ID, Params: types.ArmParams{ModelID: "m1", TemperatureMin: 0.1, TemperatureMax: 0.6}},
	})
	require.NoError(t, err)
	require.Len(t, arms, 1)

	loadedArms, err := db.GetSkillOptimizationArms(ctx, clusters[0].ID)
	require.NoError(t, err)
	require.Len(t, loadedArms, 1)
	assert.Equal(t, "m1", loadedArms[0].Params.ModelID)
	assert.InDelta(t, 0.6, loadedArms[0].Params.TemperatureMax, 1e-9)
}

func TestUpdateClusterCentroids(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, skill := seedAgentSkill(t, db)

	clusters, err := db.CreateSkillOptimizationClusters(ctx, []types.Cluster{
		{SkillID: skill.ID, Name: "cluster-0", Centroid: []float32{1, 0}},
	})
	require.NoError(t, err)

	clusters[0].Centroid = []float32{0.6, 0.8}
	clusters[0].TotalSteps = 5
	require.NoError(t, db.UpdateSkillOptimizationClusters(ctx, clusters))

	loaded, err := db.GetSkillOptimizationClusters(ctx, skill.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, loaded[0].Centroid)
	assert.Equal(t, int64(5), loaded[0].TotalSteps)
}

func TestArmStatsUpdate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, skill := seedAgentSkill(t, db)

	clusters, err := db.CreateSkillOptimizationClusters(ctx, []types.Cluster{
		{SkillID: skill.ID, Name: "c", Centroid: []float32{1}},
	})
	require.NoError(t, err)
	arms, err := db.CreateSkillOptimizationArms(ctx, []types.Arm{
		{ClusterID: clusters[0].ID, Params: types.ArmParams{ModelID: "m"}},
	})
	require.NoError(t, err)
	armID := arms[0].ID

	require.NoError(t, db.UpdateSkillOptimizationArmStats(ctx, armID, types.ArmStatsDelta{Reward: 1.0}))
	require.NoError(t, db.UpdateSkillOptimizationArmStats(ctx, armID, types.ArmStatsDelta{Reward: 0.5}))

	loaded, err := db.GetSkillOptimizationArms(ctx, clusters[0].ID)
	require.NoError(t, err)
	stats := loaded[0].Stats
	assert.Equal(t, int64(2), stats.N)
	assert.InDelta(t, 1.5, stats.TotalReward, 1e-9)
	assert.InDelta(t, 0.75, stats.Mean, 1e-9)
	assert.InDelta(t, 1.25, stats.N2, 1e-9)

	err = db.UpdateSkillOptimizationArmStats(ctx, "missing", types.ArmStatsDelta{Reward: 1})
	require.Error(t, err)
}

func TestArmStatsConcurrentUpdates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, skill := seedAgentSkill(t, db)

	clusters, err := db.CreateSkillOptimizationClusters(ctx, []types.Cluster{
		{SkillID: skill.ID, Name: "c", Centroid: []float32{1}},
	})
	require.NoError(t, err)
	arms, err := db.CreateSkillOptimizationArms(ctx, []types.Arm{
		{ClusterID: clusters[0].ID, Params: types.ArmParams{ModelID: "m"}},
	})
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = db.UpdateSkillOptimizationArmStats(ctx, arms[0].ID, types.ArmStatsDelta{Reward: 0.5})
		}()
	}
	wg.Wait()

	loaded, err := db.GetSkillOptimizationArms(ctx, clusters[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), loaded[0].Stats.N)
	assert.InDelta(t, float64(workers)*0.5, loaded[0].Stats.TotalReward, 1e-9)
}

func TestDeleteSkillCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, skill := seedAgentSkill(t, db)

	clusters, err := db.CreateSkillOptimizationClusters(ctx, []types.Cluster{
		{SkillID: skill.ID, Name: "c", Centroid: []float32{1}},
	})
	require.NoError(t, err)
	_, err = db.CreateSkillOptimizationArms(ctx, []types.Arm{
		{ClusterID: clusters[0].ID, Params: types.ArmParams{ModelID: "m"}},
	})
	require.NoError(t, err)
	require.NoError(t, db.CreateEvaluationRun(ctx, &types.EvaluationRun{SkillID: skill.ID, Method: "latency", Status: "pending"}))

	require.NoError(t, db.DeleteSkill(ctx, skill.ID))

	remaining, err := db.GetSkillOptimizationClusters(ctx, skill.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	arms, err := db.GetSkillOptimizationArms(ctx, clusters[0].ID)
	require.NoError(t, err)
	assert.Empty(t, arms)
	runs, err := db.GetEvaluationRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLogLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	agent, skill := seedAgentSkill(t, db)

	start := time.Now().Truncate(time.Millisecond)
	log := &types.Log{
		AgentID:      agent.ID,
		SkillID:      skill.ID,
		FunctionName: types.FunctionChatComplete,
		Method:       "POST",
		RequestBody:  json.RawMessage(`{"messages":[{"role":"user","content":"hi"}]}`),
		StartTime:    start,
		CacheStatus:  types.CacheNA,
	}
	require.NoError(t, db.CreateLog(ctx, log))
	require.NotEmpty(t, log.ID)

	avg := 0.9
	log.ResponseBody = json.RawMessage(`{"choices":[]}`)
	log.Status = 200
	log.EndTime = start.Add(750 * time.Millisecond)
	log.DurationMS = 750
	log.CacheStatus = types.CacheMiss
	log.Embedding = []float32{0.1, 0.2}
	log.AvgEvalScore = &avg
	log.Evaluations = []types.EvaluationResult{{Method: "latency", Score: 0.9}}
	log.HookResults = &types.HookResults{InputHooks: []types.HookResult{{Hook: "pii", DurationMS: 3}}}
	require.NoError(t, db.UpdateLog(ctx, log))

	got, err := db.GetLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, got.Status)
	assert.Equal(t, types.CacheMiss, got.CacheStatus)
	assert.Equal(t, []float32{0.1, 0.2}, got.Embedding)
	require.NotNil(t, got.AvgEvalScore)
	assert.InDelta(t, 0.9, *got.AvgEvalScore, 1e-9)
	require.Len(t, got.Evaluations, 1)
	assert.Equal(t, "latency", got.Evaluations[0].Method)
	require.NotNil(t, got.HookResults)
	assert.Equal(t, "pii", got.HookResults.InputHooks[0].Hook)

	logs, err := db.GetLogs(ctx, skill.ID, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestLogOutputs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	log := &types.Log{FunctionName: types.FunctionChatComplete, StartTime: time.Now()}
	require.NoError(t, db.CreateLog(ctx, log))

	require.NoError(t, db.CreateLogOutput(ctx, &types.LogOutput{
		LogID: log.ID,
		Kind:  "judge_exchange",
		Body:  json.RawMessage(`{"verdict":"ok"}`),
	}))

	outputs, err := db.GetLogOutputs(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "judge_exchange", outputs[0].Kind)
}

func TestDatasetLogs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, skill := seedAgentSkill(t, db)

	dataset := &types.Dataset{Name: "golden-set", SkillID: skill.ID}
	require.NoError(t, db.CreateDataset(ctx, dataset))

	var logIDs []string
	for i := 0; i < 3; i++ {
		log := &types.Log{
			SkillID:      skill.ID,
			FunctionName: types.FunctionChatComplete,
			StartTime:    time.Now().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.CreateLog(ctx, log))
		logIDs = append(logIDs, log.ID)
	}
	// Only the first two belong to the dataset.
	require.NoError(t, db.AddDatasetLog(ctx, dataset.ID, logIDs[0]))
	require.NoError(t, db.AddDatasetLog(ctx, dataset.ID, logIDs[1]))

	logs, err := db.GetDatasetLogs(ctx, dataset.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, logIDs[0], logs[0].ID)

	datasets, err := db.GetDatasets(ctx)
	require.NoError(t, err)
	assert.Len(t, datasets, 1)
}

func TestModelAndAPIKeyStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, db.CreateModel(ctx, &types.Model{
			Provider: "openai",
			Name:     fmt.Sprintf("model-%d", i),
			Enabled:  i != 2,
		}))
	}
	models, err := db.GetModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 3)

	key := &types.ProviderAPIKey{Provider: "openai", Name: "primary", Value: "sk-test"}
	require.NoError(t, db.CreateAIProviderAPIKey(ctx, key))

	got, err := db.GetAIProviderAPIKeyByID(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", got.Value)

	keys, err := db.GetAIProviderAPIKeys(ctx, "openai")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
	keys, err = db.GetAIProviderAPIKeys(ctx, "anthropic")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestEvaluationRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	run := &types.EvaluationRun{Method: "latency", Status: "pending"}
	require.NoError(t, db.CreateEvaluationRun(ctx, run))

	avg := 0.8
	run.Status = "completed"
	run.AvgScore = &avg
	require.NoError(t, db.UpdateEvaluationRun(ctx, run))

	runs, err := db.GetEvaluationRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].Status)
	require.NotNil(t, runs[0].AvgScore)
	assert.InDelta(t, 0.8, *runs[0].AvgScore, 1e-9)
}

// Package storage defines the connector contract the gateway, optimizer and
// evaluator framework persist through, plus the gorm-backed implementation.
package storage

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/idkhub-com/reactive-agents/types"
)

// Connector is the persistence contract. Implementations fail with
// NOT_FOUND, a conflict (INVALID_REQUEST with a duplicate note) or
// UNAVAILABLE; callers never see driver errors directly.
type Connector interface {
	GetAgents(ctx context.Context) ([]types.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*types.Agent, error)
	CreateAgent(ctx context.Context, agent *types.Agent) error
	DeleteAgent(ctx context.Context, id string) error

	GetSkills(ctx context.Context, agentID string) ([]types.Skill, error)
	GetSkillByName(ctx context.Context, agentID, name string) (*types.Skill, error)
	CreateSkill(ctx context.Context, skill *types.Skill) error
	UpdateSkill(ctx context.Context, skill *types.Skill) error
	DeleteSkill(ctx context.Context, id string) error

	GetModels(ctx context.Context) ([]types.Model, error)
	CreateModel(ctx context.Context, model *types.Model) error

	GetAIProviderAPIKeys(ctx context.Context, provider string) ([]types.ProviderAPIKey, error)
	GetAIProviderAPIKeyByID(ctx context.Context, id string) (*types.ProviderAPIKey, error)
	CreateAIProviderAPIKey(ctx context.Context, key *types.ProviderAPIKey) error

	GetSkillOptimizationClusters(ctx context.Context, skillID string) ([]types.Cluster, error)
	CreateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) ([]types.Cluster, error)
	UpdateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) error
	GetSkillOptimizationArms(ctx context.Context, clusterID string) ([]types.Arm, error)
	CreateSkillOptimizationArms(ctx context.Context, arms []types.Arm) ([]types.Arm, error)
	UpdateSkillOptimizationArmStats(ctx context.Context, armID string, delta types.ArmStatsDelta) error

	CreateLog(ctx context.Context, log *types.Log) error
	UpdateLog(ctx context.Context, log *types.Log) error
	GetLog(ctx context.Context, id string) (*types.Log, error)
	GetLogs(ctx context.Context, skillID string, limit int) ([]types.Log, error)
	GetLogOutputs(ctx context.Context, logID string) ([]types.LogOutput, error)
	CreateLogOutput(ctx context.Context, output *types.LogOutput) error

	GetEvaluationRuns(ctx context.Context) ([]types.EvaluationRun, error)
	CreateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error
	UpdateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error

	GetDatasets(ctx context.Context) ([]types.Dataset, error)
	CreateDataset(ctx context.Context, dataset *types.Dataset) error
	AddDatasetLog(ctx context.Context, datasetID, logID string) error
	GetDatasetLogs(ctx context.Context, datasetID string) ([]types.Log, error)
}

// mapDBError folds driver errors into the connector's failure surface.
func mapDBError(err error, what string) error {
	if err == nil {
		return nil
	}
	if err == gorm.ErrRecordNotFound {
		return types.NewError(types.ErrNotFound, what+" not found")
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate") {
		return types.NewError(types.ErrInvalidRequest, what+" already exists").WithCause(err)
	}
	return types.NewError(types.ErrUnavailable, "storage operation failed: "+what).WithCause(err)
}

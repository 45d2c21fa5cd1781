package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/idkhub-com/reactive-agents/types"
)

// DB is the gorm-backed Connector. The dialector is injected so the same
// adapter serves postgres in production and sqlite in tests.
type DB struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ Connector = (*DB)(nil)

// Open migrates the schema and returns the connector.
func Open(dialector gorm.Dialector, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "failed to open database").WithCause(err)
	}
	if err := gdb.AutoMigrate(
		&agentRow{}, &skillRow{}, &modelRow{}, &apiKeyRow{},
		&clusterRow{}, &armRow{},
		&logRow{}, &logOutputRow{},
		&evaluationRunRow{}, &datasetRow{}, &datasetLogRow{},
	); err != nil {
		return nil, types.NewError(types.ErrUnavailable, "failed to migrate schema").WithCause(err)
	}
	return &DB{db: gdb, logger: logger.With(zap.String("component", "storage"))}, nil
}

func newID() string { return uuid.NewString() }

// Agents

func (d *DB) GetAgents(ctx context.Context) ([]types.Agent, error) {
	var rows []agentRow
	if err := d.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "agents")
	}
	out := make([]types.Agent, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (d *DB) GetAgentByName(ctx context.Context, name string) (*types.Agent, error) {
	var row agentRow
	if err := d.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return nil, mapDBError(err, "agent")
	}
	agent := row.toDomain()
	return &agent, nil
}

func (d *DB) CreateAgent(ctx context.Context, agent *types.Agent) error {
	if agent.ID == "" {
		agent.ID = newID()
	}
	now := time.Now()
	agent.CreatedAt, agent.UpdatedAt = now, now
	row := agentRow{
		ID:          agent.ID,
		Name:        agent.Name,
		Description: agent.Description,
		Metadata:    toJSON(agent.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "agent")
}

// DeleteAgent cascades through skills, clusters, arms and evaluation runs.
func (d *DB) DeleteAgent(ctx context.Context, id string) error {
	return d.transact(ctx, func(tx *gorm.DB) error {
		var skills []skillRow
		if err := tx.Where("agent_id = ?", id).Find(&skills).Error; err != nil {
			return err
		}
		for i := range skills {
			if err := d.deleteSkillTx(tx, skills[i].ID); err != nil {
				return err
			}
		}
		res := tx.Delete(&agentRow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}, "agent")
}

// Skills

func (d *DB) GetSkills(ctx context.Context, agentID string) ([]types.Skill, error) {
	var rows []skillRow
	q := d.db.WithContext(ctx).Order("created_at")
	if agentID != "" {
		q = q.Where("agent_id = ?", agentID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "skills")
	}
	out := make([]types.Skill, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (d *DB) GetSkillByName(ctx context.Context, agentID, name string) (*types.Skill, error) {
	var row skillRow
	err := d.db.WithContext(ctx).Where("agent_id = ? AND name = ?", agentID, name).First(&row).Error
	if err != nil {
		return nil, mapDBError(err, "skill")
	}
	skill := row.toDomain()
	return &skill, nil
}

func (d *DB) CreateSkill(ctx context.Context, skill *types.Skill) error {
	if skill.ID == "" {
		skill.ID = newID()
	}
	now := time.Now()
	skill.CreatedAt, skill.UpdatedAt = now, now
	row := skillToRow(skill)
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "skill")
}

func (d *DB) UpdateSkill(ctx context.Context, skill *types.Skill) error {
	skill.UpdatedAt = time.Now()
	row := skillToRow(skill)
	res := d.db.WithContext(ctx).Model(&skillRow{}).Where("id = ?", skill.ID).Updates(&row)
	if res.Error != nil {
		return mapDBError(res.Error, "skill")
	}
	if res.RowsAffected == 0 {
		return mapDBError(gorm.ErrRecordNotFound, "skill")
	}
	return nil
}

// DeleteSkill cascades clusters, arms and this skill's evaluation runs.
func (d *DB) DeleteSkill(ctx context.Context, id string) error {
	return d.transact(ctx, func(tx *gorm.DB) error {
		return d.deleteSkillTx(tx, id)
	}, "skill")
}

func (d *DB) deleteSkillTx(tx *gorm.DB, id string) error {
	var clusterIDs []string
	if err := tx.Model(&clusterRow{}).Where("skill_id = ?", id).Pluck("id", &clusterIDs).Error; err != nil {
		return err
	}
	if len(clusterIDs) > 0 {
		if err := tx.Delete(&armRow{}, "cluster_id IN ?", clusterIDs).Error; err != nil {
			return err
		}
	}
	if err := tx.Delete(&clusterRow{}, "skill_id = ?", id).Error; err != nil {
		return err
	}
	if err := tx.Delete(&evaluationRunRow{}, "skill_id = ?", id).Error; err != nil {
		return err
	}
	res := tx.Delete(&skillRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Models and provider keys

func (d *DB) GetModels(ctx context.Context) ([]types.Model, error) {
	var rows []modelRow
	if err := d.db.WithContext(ctx).Order("provider, name").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "models")
	}
	out := make([]types.Model, len(rows))
	for i, r := range rows {
		out[i] = types.Model{ID: r.ID, Provider: r.Provider, Name: r.Name, Enabled: r.Enabled}
	}
	return out, nil
}

func (d *DB) CreateModel(ctx context.Context, model *types.Model) error {
	if model.ID == "" {
		model.ID = newID()
	}
	row := modelRow{ID: model.ID, Provider: model.Provider, Name: model.Name, Enabled: model.Enabled}
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "model")
}

func (d *DB) GetAIProviderAPIKeys(ctx context.Context, provider string) ([]types.ProviderAPIKey, error) {
	var rows []apiKeyRow
	q := d.db.WithContext(ctx)
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "provider api keys")
	}
	out := make([]types.ProviderAPIKey, len(rows))
	for i, r := range rows {
		out[i] = types.ProviderAPIKey{ID: r.ID, Provider: r.Provider, Name: r.Name, Value: r.Value}
	}
	return out, nil
}

func (d *DB) GetAIProviderAPIKeyByID(ctx context.Context, id string) (*types.ProviderAPIKey, error) {
	var row apiKeyRow
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, mapDBError(err, "provider api key")
	}
	return &types.ProviderAPIKey{ID: row.ID, Provider: row.Provider, Name: row.Name, Value: row.Value}, nil
}

func (d *DB) CreateAIProviderAPIKey(ctx context.Context, key *types.ProviderAPIKey) error {
	if key.ID == "" {
		key.ID = newID()
	}
	row := apiKeyRow{ID: key.ID, Provider: key.Provider, Name: key.Name, Value: key.Value}
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "provider api key")
}

// Clusters and arms

func (d *DB) GetSkillOptimizationClusters(ctx context.Context, skillID string) ([]types.Cluster, error) {
	var rows []clusterRow
	if err := d.db.WithContext(ctx).Where("skill_id = ?", skillID).Order("name").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "clusters")
	}
	out := make([]types.Cluster, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (d *DB) CreateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) ([]types.Cluster, error) {
	if len(clusters) == 0 {
		return nil, nil
	}
	now := time.Now()
	rows := make([]clusterRow, len(clusters))
	for i := range clusters {
		if clusters[i].ID == "" {
			clusters[i].ID = newID()
		}
		clusters[i].CreatedAt = now
		rows[i] = clusterRow{
			ID:         clusters[i].ID,
			SkillID:    clusters[i].SkillID,
			Name:       clusters[i].Name,
			Centroid:   toJSON(clusters[i].Centroid),
			TotalSteps: clusters[i].TotalSteps,
			CreatedAt:  now,
		}
	}
	if err := d.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, mapDBError(err, "clusters")
	}
	return clusters, nil
}

func (d *DB) UpdateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) error {
	return d.transact(ctx, func(tx *gorm.DB) error {
		for i := range clusters {
			err := tx.Model(&clusterRow{}).Where("id = ?", clusters[i].ID).Updates(map[string]any{
				"centroid":    toJSON(clusters[i].Centroid),
				"total_steps": clusters[i].TotalSteps,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	}, "clusters")
}

func (d *DB) GetSkillOptimizationArms(ctx context.Context, clusterID string) ([]types.Arm, error) {
	var rows []armRow
	if err := d.db.WithContext(ctx).Where("cluster_id = ?", clusterID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "arms")
	}
	out := make([]types.Arm, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (d *DB) CreateSkillOptimizationArms(ctx context.Context, arms []types.Arm) ([]types.Arm, error) {
	if len(arms) == 0 {
		return nil, nil
	}
	now := time.Now()
	rows := make([]armRow, len(arms))
	for i := range arms {
		if arms[i].ID == "" {
			arms[i].ID = newID()
		}
		arms[i].CreatedAt = now
		rows[i] = armRow{
			ID:          arms[i].ID,
			ClusterID:   arms[i].ClusterID,
			Params:      toJSON(arms[i].Params),
			N:           arms[i].Stats.N,
			Mean:        arms[i].Stats.Mean,
			N2:          arms[i].Stats.N2,
			TotalReward: arms[i].Stats.TotalReward,
			CreatedAt:   now,
		}
	}
	if err := d.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, mapDBError(err, "arms")
	}
	return arms, nil
}

// UpdateSkillOptimizationArmStats applies one reward in a single UPDATE, so
// concurrent observations serialize on the row.
func (d *DB) UpdateSkillOptimizationArmStats(ctx context.Context, armID string, delta types.ArmStatsDelta) error {
	r := delta.Reward
	res := d.db.WithContext(ctx).Model(&armRow{}).Where("id = ?", armID).UpdateColumns(map[string]any{
		"n":            gorm.Expr("n + 1"),
		"total_reward": gorm.Expr("total_reward + ?", r),
		"n2":           gorm.Expr("n2 + ?", r*r),
		"mean":         gorm.Expr("(total_reward + ?) / (n + 1)", r),
	})
	if res.Error != nil {
		return mapDBError(res.Error, "arm stats")
	}
	if res.RowsAffected == 0 {
		return mapDBError(gorm.ErrRecordNotFound, "arm")
	}
	return nil
}

// Logs

func (d *DB) CreateLog(ctx context.Context, log *types.Log) error {
	if log.ID == "" {
		log.ID = newID()
	}
	row := logToRow(log)
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "log")
}

func (d *DB) UpdateLog(ctx context.Context, log *types.Log) error {
	row := logToRow(log)
	res := d.db.WithContext(ctx).Model(&logRow{}).Where("id = ?", log.ID).Updates(map[string]any{
		"response_body":    row.ResponseBody,
		"status":           row.Status,
		"first_token_time": row.FirstTokenTime,
		"end_time":         row.EndTime,
		"duration_ms":      row.DurationMS,
		"cache_status":     row.CacheStatus,
		"embedding":        row.Embedding,
		"hook_results":     row.HookResults,
		"avg_eval_score":   row.AvgEvalScore,
		"evaluations":      row.Evaluations,
		"metadata":         row.Metadata,
		"provider":         row.Provider,
		"model":            row.Model,
		"cluster_id":       row.ClusterID,
		"arm_id":           row.ArmID,
	})
	if res.Error != nil {
		return mapDBError(res.Error, "log")
	}
	if res.RowsAffected == 0 {
		return mapDBError(gorm.ErrRecordNotFound, "log")
	}
	return nil
}

func (d *DB) GetLog(ctx context.Context, id string) (*types.Log, error) {
	var row logRow
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, mapDBError(err, "log")
	}
	log := row.toDomain()
	return &log, nil
}

func (d *DB) GetLogs(ctx context.Context, skillID string, limit int) ([]types.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []logRow
	q := d.db.WithContext(ctx).Order("start_time DESC").Limit(limit)
	if skillID != "" {
		q = q.Where("skill_id = ?", skillID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "logs")
	}
	out := make([]types.Log, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (d *DB) GetLogOutputs(ctx context.Context, logID string) ([]types.LogOutput, error) {
	var rows []logOutputRow
	if err := d.db.WithContext(ctx).Where("log_id = ?", logID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "log outputs")
	}
	out := make([]types.LogOutput, len(rows))
	for i, r := range rows {
		out[i] = types.LogOutput{ID: r.ID, LogID: r.LogID, Kind: r.Kind, Body: r.Body, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (d *DB) CreateLogOutput(ctx context.Context, output *types.LogOutput) error {
	if output.ID == "" {
		output.ID = newID()
	}
	output.CreatedAt = time.Now()
	row := logOutputRow{
		ID:        output.ID,
		LogID:     output.LogID,
		Kind:      output.Kind,
		Body:      output.Body,
		CreatedAt: output.CreatedAt,
	}
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "log output")
}

// Evaluation runs and datasets

func (d *DB) GetEvaluationRuns(ctx context.Context) ([]types.EvaluationRun, error) {
	var rows []evaluationRunRow
	if err := d.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "evaluation runs")
	}
	out := make([]types.EvaluationRun, len(rows))
	for i, r := range rows {
		out[i] = types.EvaluationRun{
			ID: r.ID, SkillID: r.SkillID, DatasetID: r.DatasetID,
			Method: r.Method, Params: r.Params, Status: r.Status,
			AvgScore: r.AvgScore, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		}
	}
	return out, nil
}

func (d *DB) CreateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error {
	if run.ID == "" {
		run.ID = newID()
	}
	now := time.Now()
	run.CreatedAt, run.UpdatedAt = now, now
	row := evaluationRunRow{
		ID: run.ID, SkillID: run.SkillID, DatasetID: run.DatasetID,
		Method: run.Method, Params: run.Params, Status: run.Status,
		AvgScore: run.AvgScore, CreatedAt: now, UpdatedAt: now,
	}
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "evaluation run")
}

func (d *DB) UpdateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error {
	run.UpdatedAt = time.Now()
	res := d.db.WithContext(ctx).Model(&evaluationRunRow{}).Where("id = ?", run.ID).Updates(map[string]any{
		"status":     run.Status,
		"avg_score":  run.AvgScore,
		"updated_at": run.UpdatedAt,
	})
	if res.Error != nil {
		return mapDBError(res.Error, "evaluation run")
	}
	if res.RowsAffected == 0 {
		return mapDBError(gorm.ErrRecordNotFound, "evaluation run")
	}
	return nil
}

func (d *DB) GetDatasets(ctx context.Context) ([]types.Dataset, error) {
	var rows []datasetRow
	if err := d.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, mapDBError(err, "datasets")
	}
	out := make([]types.Dataset, len(rows))
	for i, r := range rows {
		out[i] = types.Dataset{ID: r.ID, Name: r.Name, SkillID: r.SkillID, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (d *DB) CreateDataset(ctx context.Context, dataset *types.Dataset) error {
	if dataset.ID == "" {
		dataset.ID = newID()
	}
	dataset.CreatedAt = time.Now()
	row := datasetRow{ID: dataset.ID, Name: dataset.Name, SkillID: dataset.SkillID, CreatedAt: dataset.CreatedAt}
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "dataset")
}

func (d *DB) AddDatasetLog(ctx context.Context, datasetID, logID string) error {
	row := datasetLogRow{DatasetID: datasetID, LogID: logID}
	return mapDBError(d.db.WithContext(ctx).Create(&row).Error, "dataset log")
}

func (d *DB) GetDatasetLogs(ctx context.Context, datasetID string) ([]types.Log, error) {
	var rows []logRow
	err := d.db.WithContext(ctx).
		Joins("JOIN dataset_logs ON dataset_logs.log_id = logs.id").
		Where("dataset_logs.dataset_id = ?", datasetID).
		Order("logs.start_time").
		Find(&rows).Error
	if err != nil {
		return nil, mapDBError(err, "dataset logs")
	}
	out := make([]types.Log, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (d *DB) transact(ctx context.Context, fn func(tx *gorm.DB) error, what string) error {
	err := d.db.WithContext(ctx).Transaction(fn)
	return mapDBError(err, what)
}

// Gorm exposes the underlying handle for connection pool tuning.
func (d *DB) Gorm() *gorm.DB { return d.db }

package storage

import (
	"encoding/json"
	"time"

	"github.com/idkhub-com/reactive-agents/types"
)

// Row types mirror the domain objects with JSON-encoded columns for the
// nested structures, so the schema ports across postgres and sqlite.

type agentRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"uniqueIndex;size:255;not null"`
	Description string
	Metadata    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (agentRow) TableName() string { return "agents" }

type skillRow struct {
	ID      string `gorm:"primaryKey;size:64"`
	AgentID string `gorm:"size:64;index;uniqueIndex:idx_skill_agent_name;not null"`
	Name    string `gorm:"size:255;uniqueIndex:idx_skill_agent_name;not null"`

	Optimize                    bool
	ConfigurationCount          int
	SystemPromptCount           int
	ClusteringInterval          int
	ExplorationTemperature      float64
	ReflectionMinRequestsPerArm int

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (skillRow) TableName() string { return "skills" }

type modelRow struct {
	ID       string `gorm:"primaryKey;size:64"`
	Provider string `gorm:"size:64;index"`
	Name     string `gorm:"size:255"`
	Enabled  bool
}

func (modelRow) TableName() string { return "models" }

type apiKeyRow struct {
	ID       string `gorm:"primaryKey;size:64"`
	Provider string `gorm:"size:64;index"`
	Name     string `gorm:"size:255"`
	Value    string `gorm:"size:1024"`
}

func (apiKeyRow) TableName() string { return "provider_api_keys" }

type clusterRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	SkillID    string `gorm:"size:64;index;not null"`
	Name       string `gorm:"size:255"`
	Centroid   string
	TotalSteps int64
	CreatedAt  time.Time
}

func (clusterRow) TableName() string { return "skill_clusters" }

type armRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	ClusterID string `gorm:"size:64;index;not null"`
	Params    string

	N           int64
	Mean        float64
	N2          float64
	TotalReward float64

	CreatedAt time.Time
}

func (armRow) TableName() string { return "skill_arms" }

type logRow struct {
	ID      string `gorm:"primaryKey;size:64"`
	TraceID string `gorm:"size:64"`
	SpanID  string `gorm:"size:64"`

	AgentID   string `gorm:"size:64;index"`
	SkillID   string `gorm:"size:64;index"`
	ClusterID string `gorm:"size:64"`
	ArmID     string `gorm:"size:64;index"`

	Provider     string `gorm:"size:64"`
	Model        string `gorm:"size:255"`
	FunctionName string `gorm:"size:64"`
	Method       string `gorm:"size:16"`

	RequestBody  []byte
	ResponseBody []byte
	Status       int

	StartTime      time.Time
	FirstTokenTime *time.Time
	EndTime        time.Time
	DurationMS     int64

	CacheStatus string `gorm:"size:8"`
	Embedding   string
	HookResults string

	AvgEvalScore *float64
	Evaluations  string
	Metadata     string
}

func (logRow) TableName() string { return "logs" }

type logOutputRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	LogID     string `gorm:"size:64;index;not null"`
	Kind      string `gorm:"size:64"`
	Body      []byte
	CreatedAt time.Time
}

func (logOutputRow) TableName() string { return "log_outputs" }

type evaluationRunRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	SkillID   string `gorm:"size:64;index"`
	DatasetID string `gorm:"size:64;index"`
	Method    string `gorm:"size:64"`
	Params    []byte
	Status    string `gorm:"size:16"`
	AvgScore  *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (evaluationRunRow) TableName() string { return "evaluation_runs" }

type datasetRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255;uniqueIndex"`
	SkillID   string `gorm:"size:64;index"`
	CreatedAt time.Time
}

func (datasetRow) TableName() string { return "datasets" }

type datasetLogRow struct {
	DatasetID string `gorm:"primaryKey;size:64"`
	LogID     string `gorm:"primaryKey;size:64"`
}

func (datasetLogRow) TableName() string { return "dataset_logs" }

// JSON column helpers. Encoding failures are impossible for these value
// types; decode failures surface as zero values rather than query errors.

func toJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func fromJSON[T any](s string) T {
	var v T
	if s != "" {
		_ = json.Unmarshal([]byte(s), &v)
	}
	return v
}

func (r *agentRow) toDomain() types.Agent {
	return types.Agent{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Metadata:    fromJSON[map[string]string](r.Metadata),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r *skillRow) toDomain() types.Skill {
	return types.Skill{
		ID:                          r.ID,
		AgentID:                     r.AgentID,
		Name:                        r.Name,
		Optimize:                    r.Optimize,
		ConfigurationCount:          r.ConfigurationCount,
		SystemPromptCount:           r.SystemPromptCount,
		ClusteringInterval:          r.ClusteringInterval,
		ExplorationTemperature:      r.ExplorationTemperature,
		ReflectionMinRequestsPerArm: r.ReflectionMinRequestsPerArm,
		CreatedAt:                   r.CreatedAt,
		UpdatedAt:                   r.UpdatedAt,
	}
}

func skillToRow(s *types.Skill) skillRow {
	return skillRow{
		ID:                          s.ID,
		AgentID:                     s.AgentID,
		Name:                        s.Name,
		Optimize:                    s.Optimize,
		ConfigurationCount:          s.ConfigurationCount,
		SystemPromptCount:           s.SystemPromptCount,
		ClusteringInterval:          s.ClusteringInterval,
		ExplorationTemperature:      s.ExplorationTemperature,
		ReflectionMinRequestsPerArm: s.ReflectionMinRequestsPerArm,
		CreatedAt:                   s.CreatedAt,
		UpdatedAt:                   s.UpdatedAt,
	}
}

func (r *clusterRow) toDomain() types.Cluster {
	return types.Cluster{
		ID:         r.ID,
		SkillID:    r.SkillID,
		Name:       r.Name,
		Centroid:   fromJSON[[]float32](r.Centroid),
		TotalSteps: r.TotalSteps,
		CreatedAt:  r.CreatedAt,
	}
}

func (r *armRow) toDomain() types.Arm {
	return types.Arm{
		ID:        r.ID,
		ClusterID: r.ClusterID,
		Params:    fromJSON[types.ArmParams](r.Params),
		Stats: types.ArmStats{
			N:           r.N,
			Mean:        r.Mean,
			N2:          r.N2,
			TotalReward: r.TotalReward,
		},
		CreatedAt: r.CreatedAt,
	}
}

func (r *logRow) toDomain() types.Log {
	log := types.Log{
		ID:             r.ID,
		TraceID:        r.TraceID,
		SpanID:         r.SpanID,
		AgentID:        r.AgentID,
		SkillID:        r.SkillID,
		ClusterID:      r.ClusterID,
		ArmID:          r.ArmID,
		Provider:       r.Provider,
		Model:          r.Model,
		FunctionName:   types.FunctionName(r.FunctionName),
		Method:         r.Method,
		RequestBody:    r.RequestBody,
		ResponseBody:   r.ResponseBody,
		Status:         r.Status,
		StartTime:      r.StartTime,
		FirstTokenTime: r.FirstTokenTime,
		EndTime:        r.EndTime,
		DurationMS:     r.DurationMS,
		CacheStatus:    types.CacheStatus(r.CacheStatus),
		Embedding:      fromJSON[[]float32](r.Embedding),
		AvgEvalScore:   r.AvgEvalScore,
		Evaluations:    fromJSON[[]types.EvaluationResult](r.Evaluations),
		Metadata:       fromJSON[map[string]any](r.Metadata),
	}
	if r.HookResults != "" {
		hr := fromJSON[types.HookResults](r.HookResults)
		log.HookResults = &hr
	}
	return log
}

func logToRow(l *types.Log) logRow {
	row := logRow{
		ID:             l.ID,
		TraceID:        l.TraceID,
		SpanID:         l.SpanID,
		AgentID:        l.AgentID,
		SkillID:        l.SkillID,
		ClusterID:      l.ClusterID,
		ArmID:          l.ArmID,
		Provider:       l.Provider,
		Model:          l.Model,
		FunctionName:   string(l.FunctionName),
		Method:         l.Method,
		RequestBody:    l.RequestBody,
		ResponseBody:   l.ResponseBody,
		Status:         l.Status,
		StartTime:      l.StartTime,
		FirstTokenTime: l.FirstTokenTime,
		EndTime:        l.EndTime,
		DurationMS:     l.DurationMS,
		CacheStatus:    string(l.CacheStatus),
		AvgEvalScore:   l.AvgEvalScore,
	}
	if len(l.Embedding) > 0 {
		row.Embedding = toJSON(l.Embedding)
	}
	if l.HookResults != nil {
		row.HookResults = toJSON(l.HookResults)
	}
	if len(l.Evaluations) > 0 {
		row.Evaluations = toJSON(l.Evaluations)
	}
	if len(l.Metadata) > 0 {
		row.Metadata = toJSON(l.Metadata)
	}
	return row
}

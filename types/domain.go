package types

import (
	"encoding/json"
	"time"
)

// Agent is a named owner of skills.
type Agent struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Skill is an AI-addressable capability belonging to one agent. It is the
// unit of optimization.
type Skill struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`

	Optimize                 bool    `json:"optimize"`
	ConfigurationCount       int     `json:"configuration_count"`
	SystemPromptCount        int     `json:"system_prompt_count"`
	ClusteringInterval       int     `json:"clustering_interval"`
	ExplorationTemperature   float64 `json:"exploration_temperature"`
	ReflectionMinRequestsPerArm int  `json:"reflection_min_requests_per_arm"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Temperature returns the exploration temperature, defaulting to 1.0.
func (s *Skill) Temperature() float64 {
	if s.ExplorationTemperature <= 0 {
		return 1.0
	}
	return s.ExplorationTemperature
}

// Model is a provider-hosted model known to the control plane.
type Model struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
}

// ProviderAPIKey is a stored upstream credential.
type ProviderAPIKey struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Value    string `json:"-"`
}

// Cluster is a semantic partition of a skill's request population.
type Cluster struct {
	ID         string    `json:"id"`
	SkillID    string    `json:"skill_id"`
	Name       string    `json:"name"`
	Centroid   []float32 `json:"centroid"`
	TotalSteps int64     `json:"total_steps"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArmParams is the range bundle an arm draws concrete parameters from.
type ArmParams struct {
	ModelID      string `json:"model_id"`
	SystemPrompt string `json:"system_prompt"`

	TemperatureMin      float64 `json:"temperature_min"`
	TemperatureMax      float64 `json:"temperature_max"`
	TopPMin             float64 `json:"top_p_min"`
	TopPMax             float64 `json:"top_p_max"`
	TopKMin             int     `json:"top_k_min"`
	TopKMax             int     `json:"top_k_max"`
	FrequencyPenaltyMin float64 `json:"frequency_penalty_min"`
	FrequencyPenaltyMax float64 `json:"frequency_penalty_max"`
	PresencePenaltyMin  float64 `json:"presence_penalty_min"`
	PresencePenaltyMax  float64 `json:"presence_penalty_max"`
	ThinkingMin         float64 `json:"thinking_min"`
	ThinkingMax         float64 `json:"thinking_max"`
}

// ArmStats tracks the running reward statistics of one arm. N2 is the running
// sum of squared rewards for variance computation.
type ArmStats struct {
	N           int64   `json:"n"`
	Mean        float64 `json:"mean"`
	N2          float64 `json:"n2"`
	TotalReward float64 `json:"total_reward"`
}

// Arm is one candidate parameter bundle scored by reward updates.
type Arm struct {
	ID        string    `json:"id"`
	ClusterID string    `json:"cluster_id"`
	Params    ArmParams `json:"params"`
	Stats     ArmStats  `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
}

// ArmStatsDelta is one reward observation applied atomically to an arm.
type ArmStatsDelta struct {
	Reward float64 `json:"reward"`
}

// CacheStatus reports how the cache treated a request.
type CacheStatus string

const (
	CacheHit  CacheStatus = "HIT"
	CacheMiss CacheStatus = "MISS"
	CacheNA   CacheStatus = "N/A"
)

// Log is the observability record of one served request. It is created at
// request entry, finalized after response assembly, then read-only.
type Log struct {
	ID      string `json:"id"`
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`

	AgentID   string `json:"agent_id,omitempty"`
	SkillID   string `json:"skill_id,omitempty"`
	ClusterID string `json:"cluster_id,omitempty"`
	ArmID     string `json:"arm_id,omitempty"`

	Provider     string       `json:"provider,omitempty"`
	Model        string       `json:"model,omitempty"`
	FunctionName FunctionName `json:"function_name"`
	Method       string       `json:"method,omitempty"`

	RequestBody  json.RawMessage `json:"request_body,omitempty"`
	ResponseBody json.RawMessage `json:"response_body,omitempty"`
	Status       int             `json:"status"`

	StartTime      time.Time  `json:"start_time"`
	FirstTokenTime *time.Time `json:"first_token_time,omitempty"`
	EndTime        time.Time  `json:"end_time"`
	DurationMS     int64      `json:"duration_ms"`

	CacheStatus CacheStatus `json:"cache_status"`
	Embedding   []float32   `json:"embedding,omitempty"`

	HookResults  *HookResults       `json:"hook_results,omitempty"`
	AvgEvalScore *float64           `json:"avg_eval_score,omitempty"`
	Evaluations  []EvaluationResult `json:"evaluations,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// TTFT returns the time to first token when known.
func (l *Log) TTFT() (time.Duration, bool) {
	if l.FirstTokenTime == nil {
		return 0, false
	}
	return l.FirstTokenTime.Sub(l.StartTime), true
}

// LogOutput is an auxiliary output row attached to a log (for example the
// serialized judge exchange of an evaluation).
type LogOutput struct {
	ID        string          `json:"id"`
	LogID     string          `json:"log_id"`
	Kind      string          `json:"kind"`
	Body      json.RawMessage `json:"body"`
	CreatedAt time.Time       `json:"created_at"`
}

// EvaluationResult is the scored outcome of one evaluator method on one log.
type EvaluationResult struct {
	Method     string          `json:"method"`
	Score      float64         `json:"score"`
	JudgeModel string          `json:"judge_model,omitempty"`
	Extras     json.RawMessage `json:"extras,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// EvaluationRun tracks a batch evaluation over a dataset of logs.
type EvaluationRun struct {
	ID        string          `json:"id"`
	SkillID   string          `json:"skill_id,omitempty"`
	DatasetID string          `json:"dataset_id,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	Status    string          `json:"status"`
	AvgScore  *float64        `json:"avg_score,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Dataset is a named collection of logs used for batch evaluation.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SkillID   string    `json:"skill_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/idkhub-com/reactive-agents/storage"
	"github.com/idkhub-com/reactive-agents/types"
)

// MemoryStore is an in-memory storage.Connector for tests. All methods are
// safe for concurrent use.
type MemoryStore struct {
	mu sync.Mutex

	agents      map[string]types.Agent
	skills      map[string]types.Skill
	models      []types.Model
	apiKeys     map[string]types.ProviderAPIKey
	clusters    map[string]types.Cluster
	arms        map[string]types.Arm
	logs        map[string]types.Log
	logOutputs  map[string][]types.LogOutput
	evalRuns    map[string]types.EvaluationRun
	datasets    map[string]types.Dataset
	datasetLogs map[string][]string

	nextID int
}

var _ storage.Connector = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:      make(map[string]types.Agent),
		skills:      make(map[string]types.Skill),
		apiKeys:     make(map[string]types.ProviderAPIKey),
		clusters:    make(map[string]types.Cluster),
		arms:        make(map[string]types.Arm),
		logs:        make(map[string]types.Log),
		logOutputs:  make(map[string][]types.LogOutput),
		evalRuns:    make(map[string]types.EvaluationRun),
		datasets:    make(map[string]types.Dataset),
		datasetLogs: make(map[string][]string),
	}
}

func (s *MemoryStore) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%d", prefix, s.nextID)
}

func notFound(what string) error {
	return types.NewError(types.ErrNotFound, what+" not found")
}

// Agents

func (s *MemoryStore) GetAgents(ctx context.Context) ([]types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out, nil
}

func (s *MemoryStore) GetAgentByName(ctx context.Context, name string) (*types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Name == name {
			agent := a
			return &agent, nil
		}
	}
	return nil, notFound("agent")
}

func (s *MemoryStore) CreateAgent(ctx context.Context, agent *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Name == agent.Name {
			return types.NewError(types.ErrInvalidRequest, "agent already exists")
		}
	}
	if agent.ID == "" {
		agent.ID = s.id("agent")
	}
	agent.CreatedAt = time.Now()
	agent.UpdatedAt = agent.CreatedAt
	s.agents[agent.ID] = *agent
	return nil
}

func (s *MemoryStore) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return notFound("agent")
	}
	delete(s.agents, id)
	for sid, sk := range s.skills {
		if sk.AgentID == id {
			delete(s.skills, sid)
		}
	}
	return nil
}

// Skills

func (s *MemoryStore) GetSkills(ctx context.Context, agentID string) ([]types.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Skill
	for _, sk := range s.skills {
		if agentID == "" || sk.AgentID == agentID {
			out = append(out, sk)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetSkillByName(ctx context.Context, agentID, name string) (*types.Skill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sk := range s.skills {
		if sk.AgentID == agentID && sk.Name == name {
			skill := sk
			return &skill, nil
		}
	}
	return nil, notFound("skill")
}

func (s *MemoryStore) CreateSkill(ctx context.Context, skill *types.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if skill.ID == "" {
		skill.ID = s.id("skill")
	}
	skill.CreatedAt = time.Now()
	skill.UpdatedAt = skill.CreatedAt
	s.skills[skill.ID] = *skill
	return nil
}

func (s *MemoryStore) UpdateSkill(ctx context.Context, skill *types.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.skills[skill.ID]; !ok {
		return notFound("skill")
	}
	skill.UpdatedAt = time.Now()
	s.skills[skill.ID] = *skill
	return nil
}

func (s *MemoryStore) DeleteSkill(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.skills[id]; !ok {
		return notFound("skill")
	}
	delete(s.skills, id)
	for cid, c := range s.clusters {
		if c.SkillID == id {
			delete(s.clusters, cid)
			for aid, a := range s.arms {
				if a.ClusterID == cid {
					delete(s.arms, aid)
				}
			}
		}
	}
	return nil
}

// Models

func (s *MemoryStore) GetModels(ctx context.Context) ([]types.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Model(nil), s.models...), nil
}

func (s *MemoryStore) CreateModel(ctx context.Context, model *types.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if model.ID == "" {
		model.ID = s.id("model")
	}
	s.models = append(s.models, *model)
	return nil
}

// Provider API keys

func (s *MemoryStore) GetAIProviderAPIKeys(ctx context.Context, provider string) ([]types.ProviderAPIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ProviderAPIKey
	for _, k := range s.apiKeys {
		if provider == "" || k.Provider == provider {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetAIProviderAPIKeyByID(ctx context.Context, id string) (*types.ProviderAPIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.apiKeys[id]
	if !ok {
		return nil, notFound("api key")
	}
	return &k, nil
}

func (s *MemoryStore) CreateAIProviderAPIKey(ctx context.Context, key *types.ProviderAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.ID == "" {
		key.ID = s.id("key")
	}
	s.apiKeys[key.ID] = *key
	return nil
}

// Clusters and arms

func (s *MemoryStore) GetSkillOptimizationClusters(ctx context.Context, skillID string) ([]types.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Cluster
	for _, c := range s.clusters {
		if c.SkillID == skillID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) ([]types.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range clusters {
		if clusters[i].ID == "" {
			clusters[i].ID = s.id("cluster")
		}
		s.clusters[clusters[i].ID] = clusters[i]
	}
	return clusters, nil
}

func (s *MemoryStore) UpdateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range clusters {
		if _, ok := s.clusters[clusters[i].ID]; !ok {
			return notFound("cluster")
		}
		s.clusters[clusters[i].ID] = clusters[i]
	}
	return nil
}

func (s *MemoryStore) GetSkillOptimizationArms(ctx context.Context, clusterID string) ([]types.Arm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Arm
	for _, a := range s.arms {
		if a.ClusterID == clusterID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateSkillOptimizationArms(ctx context.Context, arms []types.Arm) ([]types.Arm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range arms {
		if arms[i].ID == "" {
			arms[i].ID = s.id("arm")
		}
		s.arms[arms[i].ID] = arms[i]
	}
	return arms, nil
}

func (s *MemoryStore) UpdateSkillOptimizationArmStats(ctx context.Context, armID string, delta types.ArmStatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	arm, ok := s.arms[armID]
	if !ok {
		return notFound("arm")
	}
	arm.Stats.N++
	arm.Stats.TotalReward += delta.Reward
	arm.Stats.N2 += delta.Reward * delta.Reward
	arm.Stats.Mean = arm.Stats.TotalReward / float64(arm.Stats.N)
	s.arms[armID] = arm
	return nil
}

// Logs

func (s *MemoryStore) CreateLog(ctx context.Context, log *types.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = s.id("log")
	}
	s.logs[log.ID] = *log
	return nil
}

func (s *MemoryStore) UpdateLog(ctx context.Context, log *types.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[log.ID]; !ok {
		return notFound("log")
	}
	s.logs[log.ID] = *log
	return nil
}

func (s *MemoryStore) GetLog(ctx context.Context, id string) (*types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	if !ok {
		return nil, notFound("log")
	}
	return &l, nil
}

func (s *MemoryStore) GetLogs(ctx context.Context, skillID string, limit int) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Log
	for _, l := range s.logs {
		if skillID == "" || l.SkillID == skillID {
			out = append(out, l)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetLogOutputs(ctx context.Context, logID string) ([]types.LogOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.LogOutput(nil), s.logOutputs[logID]...), nil
}

func (s *MemoryStore) CreateLogOutput(ctx context.Context, output *types.LogOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if output.ID == "" {
		output.ID = s.id("output")
	}
	output.CreatedAt = time.Now()
	s.logOutputs[output.LogID] = append(s.logOutputs[output.LogID], *output)
	return nil
}

// Evaluation runs

func (s *MemoryStore) GetEvaluationRuns(ctx context.Context) ([]types.EvaluationRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EvaluationRun, 0, len(s.evalRuns))
	for _, r := range s.evalRuns {
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) CreateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == "" {
		run.ID = s.id("run")
	}
	run.CreatedAt = time.Now()
	run.UpdatedAt = run.CreatedAt
	s.evalRuns[run.ID] = *run
	return nil
}

func (s *MemoryStore) UpdateEvaluationRun(ctx context.Context, run *types.EvaluationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evalRuns[run.ID]; !ok {
		return notFound("evaluation run")
	}
	run.UpdatedAt = time.Now()
	s.evalRuns[run.ID] = *run
	return nil
}

// Datasets

func (s *MemoryStore) GetDatasets(ctx context.Context) ([]types.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d)
	}
	return out, nil
}

func (s *MemoryStore) CreateDataset(ctx context.Context, dataset *types.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dataset.ID == "" {
		dataset.ID = s.id("dataset")
	}
	dataset.CreatedAt = time.Now()
	s.datasets[dataset.ID] = *dataset
	return nil
}

func (s *MemoryStore) AddDatasetLog(ctx context.Context, datasetID, logID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[datasetID]; !ok {
		return notFound("dataset")
	}
	if _, ok := s.logs[logID]; !ok {
		return notFound("log")
	}
	s.datasetLogs[datasetID] = append(s.datasetLogs[datasetID], logID)
	return nil
}

func (s *MemoryStore) GetDatasetLogs(ctx context.Context, datasetID string) ([]types.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Log
	for _, id := range s.datasetLogs[datasetID] {
		if l, ok := s.logs[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// SeedLog inserts a log directly, for tests that need prior traffic.
func (s *MemoryStore) SeedLog(log types.Log) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = s.id("log")
	}
	s.logs[log.ID] = log
}

// Arm returns a stored arm by id.
func (s *MemoryStore) Arm(id string) (types.Arm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.arms[id]
	return a, ok
}

package optimize

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/idkhub-com/reactive-agents/types"
)

// Store is the slice of the storage connector the optimizer consumes.
type Store interface {
	GetModels(ctx context.Context) ([]types.Model, error)
	GetSkillOptimizationClusters(ctx context.Context, skillID string) ([]types.Cluster, error)
	CreateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) ([]types.Cluster, error)
	GetSkillOptimizationArms(ctx context.Context, clusterID string) ([]types.Arm, error)
	CreateSkillOptimizationArms(ctx context.Context, arms []types.Arm) ([]types.Arm, error)
	UpdateSkillOptimizationClusters(ctx context.Context, clusters []types.Cluster) error
	UpdateSkillOptimizationArmStats(ctx context.Context, armID string, delta types.ArmStatsDelta) error
}

// Selection is the outcome of one optimizer pull: the cluster and arm that
// were chosen and the concrete configuration drawn from the arm's ranges.
type Selection struct {
	ClusterID string
	ArmID     string
	Config    *types.TargetConfiguration
}

// reasoningBuckets maps a thinking draw to a reasoning effort level: ten
// equal bins over [0,1], empty string meaning "no reasoning requested".
var reasoningBuckets = [10]string{"", "", "minimal", "minimal", "low", "low", "medium", "medium", "high", "high"}

// Optimizer drives cluster selection, Thompson Sampling and reward feedback
// for optimizing skills.
type Optimizer struct {
	store     Store
	generator ArmGenerator
	sampler   *Sampler
	logger    *zap.Logger

	mu     sync.Mutex
	pulls  map[string]int
	recent map[string][][]float32
}

// New creates an optimizer. generator may be nil to use the built-in static
// generator; logger may be nil.
func New(store Store, generator ArmGenerator, logger *zap.Logger) *Optimizer {
	if generator == nil {
		generator = &StaticGenerator{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		store:     store,
		generator: generator,
		sampler:   NewSampler(nil),
		logger:    logger.With(zap.String("component", "optimizer")),
		pulls:     make(map[string]int),
		recent:    make(map[string][][]float32),
	}
}

// Select performs one optimization pull. A nil return with nil error means
// optimization does not apply (disabled skill, unsupported function, or no
// embedding) and the caller-supplied configuration stands.
func (o *Optimizer) Select(ctx context.Context, skill *types.Skill, fn types.FunctionName, embedding []float32, promptVars map[string]string, allowedVars []string) (*Selection, error) {
	if skill == nil || !skill.Optimize || skill.ConfigurationCount <= 0 || !fn.SupportsOptimization() {
		return nil, nil
	}
	if len(embedding) == 0 {
		// Embedding failure falls back to the caller's provider/model.
		return nil, nil
	}

	cluster, err := o.resolveCluster(ctx, skill, embedding)
	if err != nil {
		return nil, err
	}

	arms, err := o.resolveArms(ctx, skill, cluster)
	if err != nil {
		return nil, err
	}
	if len(arms) == 0 {
		return nil, nil
	}

	idx := o.sampler.PickArm(arms, skill.Temperature())
	if idx < 0 {
		return nil, nil
	}
	arm := arms[idx]

	config, err := o.materialize(ctx, &arm.Params, promptVars, allowedVars)
	if err != nil {
		return nil, err
	}

	o.trackPull(ctx, skill, embedding)

	return &Selection{
		ClusterID: cluster.ID,
		ArmID:     arm.ID,
		Config:    config,
	}, nil
}

// ReportReward applies one reward observation to an arm. Rewards clamp into
// [0,1]; the storage layer serializes concurrent updates per arm.
func (o *Optimizer) ReportReward(ctx context.Context, armID string, reward float64) error {
	if armID == "" {
		return nil
	}
	if reward < 0 {
		reward = 0
	} else if reward > 1 {
		reward = 1
	}
	return o.store.UpdateSkillOptimizationArmStats(ctx, armID, types.ArmStatsDelta{Reward: reward})
}

func (o *Optimizer) resolveCluster(ctx context.Context, skill *types.Skill, embedding []float32) (*types.Cluster, error) {
	clusters, err := o.store.GetSkillOptimizationClusters(ctx, skill.ID)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		created := NewClusters(skill.ID, skill.ConfigurationCount, len(embedding))
		clusters, err = o.store.CreateSkillOptimizationClusters(ctx, created)
		if err != nil {
			return nil, err
		}
		o.logger.Info("initialized clusters",
			zap.String("skill_id", skill.ID),
			zap.Int("count", len(clusters)))
	}

	cluster := SelectCluster(clusters, embedding)
	if cluster == nil {
		return nil, types.NewError(types.ErrInternal, "no cluster matched the request embedding")
	}
	return cluster, nil
}

func (o *Optimizer) resolveArms(ctx context.Context, skill *types.Skill, cluster *types.Cluster) ([]types.Arm, error) {
	arms, err := o.store.GetSkillOptimizationArms(ctx, cluster.ID)
	if err != nil {
		return nil, err
	}
	if len(arms) > 0 {
		return arms, nil
	}

	models, err := o.store.GetModels(ctx)
	if err != nil {
		return nil, err
	}
	params, err := o.generator.GenerateArms(ctx, skill, cluster, models)
	if err != nil {
		// Recoverable: the skill stays unoptimized until the next attempt.
		o.logger.Warn("arm generation failed",
			zap.String("skill_id", skill.ID),
			zap.String("cluster_id", cluster.ID),
			zap.Error(err))
		return nil, nil
	}
	if len(params) > skill.ConfigurationCount {
		params = params[:skill.ConfigurationCount]
	}

	generated := make([]types.Arm, 0, len(params))
	for i := range params {
		if err := ValidateArmParams(&params[i]); err != nil {
			return nil, err
		}
		generated = append(generated, types.Arm{ClusterID: cluster.ID, Params: params[i]})
	}
	return o.store.CreateSkillOptimizationArms(ctx, generated)
}

// materialize draws a concrete configuration from the arm's range bundle.
func (o *Optimizer) materialize(ctx context.Context, params *types.ArmParams, promptVars map[string]string, allowedVars []string) (*types.TargetConfiguration, error) {
	models, err := o.store.GetModels(ctx)
	if err != nil {
		return nil, err
	}
	var model *types.Model
	for i := range models {
		if models[i].ID == params.ModelID {
			model = &models[i]
			break
		}
	}
	if model == nil {
		return nil, types.NewError(types.ErrNotFound, "arm references an unknown model").WithParam("model_id")
	}

	temperature := o.uniform(params.TemperatureMin, params.TemperatureMax)
	topP := o.uniform(params.TopPMin, params.TopPMax)
	freqPenalty := o.uniform(params.FrequencyPenaltyMin, params.FrequencyPenaltyMax)
	presPenalty := o.uniform(params.PresencePenaltyMin, params.PresencePenaltyMax)

	config := &types.TargetConfiguration{
		Provider:         model.Provider,
		Model:            model.Name,
		Temperature:      &temperature,
		TopP:             &topP,
		FrequencyPenalty: &freqPenalty,
		PresencePenalty:  &presPenalty,
		ReasoningEffort:  o.reasoningEffort(params.ThinkingMin, params.ThinkingMax),
	}
	if params.SystemPrompt != "" {
		rendered := RenderPrompt(params.SystemPrompt, promptVars, allowedVars)
		config.SystemPrompt = &rendered
	}
	return config, nil
}

func (o *Optimizer) uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + o.sampler.Float64()*(max-min)
}

// reasoningEffort draws uniformly from the arm's thinking window on the
// global [0,1] scale and maps the draw through the ten-bin bucket table.
func (o *Optimizer) reasoningEffort(min, max float64) string {
	draw := o.uniform(min, max)
	if draw < 0 {
		draw = 0
	}
	bin := int(draw * 10)
	if bin > 9 {
		bin = 9
	}
	return reasoningBuckets[bin]
}

// trackPull counts pulls per skill and runs a streaming k-means recluster
// step over the recent embeddings every clustering_interval pulls.
func (o *Optimizer) trackPull(ctx context.Context, skill *types.Skill, embedding []float32) {
	interval := skill.ClusteringInterval
	if interval <= 0 {
		return
	}

	o.mu.Lock()
	o.pulls[skill.ID]++
	o.recent[skill.ID] = append(o.recent[skill.ID], embedding)
	if len(o.recent[skill.ID]) > interval {
		o.recent[skill.ID] = o.recent[skill.ID][len(o.recent[skill.ID])-interval:]
	}
	due := o.pulls[skill.ID]%interval == 0
	var batch [][]float32
	if due {
		batch = o.recent[skill.ID]
		o.recent[skill.ID] = nil
	}
	o.mu.Unlock()

	if !due {
		return
	}

	clusters, err := o.store.GetSkillOptimizationClusters(ctx, skill.ID)
	if err != nil || len(clusters) == 0 {
		return
	}
	clusters = ReclusterStep(clusters, batch)
	if err := o.store.UpdateSkillOptimizationClusters(ctx, clusters); err != nil {
		o.logger.Warn("recluster update failed",
			zap.String("skill_id", skill.ID),
			zap.Error(err))
	}
}

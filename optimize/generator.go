package optimize

import (
	"context"
	"fmt"

	"github.com/idkhub-com/reactive-agents/types"
)

// ArmGenerator proposes candidate arms for a cluster. Implementations may
// call out to an external service; failure is recoverable — the skill simply
// stays unoptimized until the next attempt.
type ArmGenerator interface {
	GenerateArms(ctx context.Context, skill *types.Skill, cluster *types.Cluster, models []types.Model) ([]types.ArmParams, error)
}

// StaticGenerator is the built-in deterministic generator: it spreads
// temperature and thinking ranges across the slate and cycles through the
// enabled models, so a skill optimizes out of the box without an external
// generator.
type StaticGenerator struct {
	// SystemPrompts are the prompt templates to cycle through. When empty a
	// single pass-through prompt is used.
	SystemPrompts []string
}

// GenerateArms implements ArmGenerator.
func (g *StaticGenerator) GenerateArms(ctx context.Context, skill *types.Skill, cluster *types.Cluster, models []types.Model) ([]types.ArmParams, error) {
	count := skill.ConfigurationCount
	if count <= 0 {
		return nil, nil
	}
	enabled := make([]types.Model, 0, len(models))
	for _, m := range models {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	if len(enabled) == 0 {
		return nil, types.NewError(types.ErrUnavailable, "no enabled models to generate arms from")
	}

	prompts := g.SystemPrompts
	if len(prompts) == 0 {
		prompts = []string{"You are a helpful assistant."}
	}
	if skill.SystemPromptCount > 0 && len(prompts) > skill.SystemPromptCount {
		prompts = prompts[:skill.SystemPromptCount]
	}

	arms := make([]types.ArmParams, 0, count)
	for i := 0; i < count; i++ {
		// Slice the global temperature scale into per-arm windows so the
		// slate covers conservative through exploratory behavior.
		lo := float64(i) / float64(count)
		hi := float64(i+1) / float64(count)
		arms = append(arms, types.ArmParams{
			ModelID:      enabled[i%len(enabled)].ID,
			SystemPrompt: prompts[i%len(prompts)],

			TemperatureMin:      lo,
			TemperatureMax:      hi,
			TopPMin:             0.8,
			TopPMax:             1.0,
			FrequencyPenaltyMin: 0,
			FrequencyPenaltyMax: 0,
			PresencePenaltyMin:  0,
			PresencePenaltyMax:  0,
			ThinkingMin:         lo,
			ThinkingMax:         hi,
		})
	}
	return arms, nil
}

// ValidateArmParams checks a generated range bundle against the schema the
// optimizer relies on.
func ValidateArmParams(p *types.ArmParams) error {
	if p.ModelID == "" {
		return types.NewError(types.ErrInvalidRequest, "arm params missing model_id").WithParam("model_id")
	}
	ranges := []struct {
		name     string
		min, max float64
	}{
		{"temperature", p.TemperatureMin, p.TemperatureMax},
		{"top_p", p.TopPMin, p.TopPMax},
		{"frequency_penalty", p.FrequencyPenaltyMin, p.FrequencyPenaltyMax},
		{"presence_penalty", p.PresencePenaltyMin, p.PresencePenaltyMax},
		{"thinking", p.ThinkingMin, p.ThinkingMax},
	}
	for _, r := range ranges {
		if r.min > r.max {
			return types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("arm params %s range is inverted", r.name)).WithParam(r.name)
		}
	}
	if p.ThinkingMin < 0 || p.ThinkingMax > 1 {
		return types.NewError(types.ErrInvalidRequest, "arm params thinking range must stay within [0,1]").WithParam("thinking")
	}
	return nil
}

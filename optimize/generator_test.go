package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/types"
)

func TestStaticGeneratorSpreadsRanges(t *testing.T) {
	g := &StaticGenerator{}
	skill := &types.Skill{ID: "s", ConfigurationCount: 4}
	models := []types.Model{
		{ID: "m1", Provider: "openai", Name: "gpt-4o", Enabled: true},
		{ID: "m2", Provider: "anthropic", Name: "claude-sonnet", Enabled: true},
	}

	arms, err := g.GenerateArms(context.Background(), skill, &types.Cluster{ID: "c"}, models)
	require.NoError(t, err)
	require.Len(t, arms, 4)

	for i, a := range arms {
		assert.InDelta(t, float64(i)/4, a.TemperatureMin, 1e-9)
		assert.InDelta(t, float64(i+1)/4, a.TemperatureMax, 1e-9)
		assert.NotEmpty(t, a.SystemPrompt)
		require.NoError(t, ValidateArmParams(&arms[i]))
	}
	// Models cycle across the slate.
	assert.Equal(t, "m1", arms[0].ModelID)
	assert.Equal(t, "m2", arms[1].ModelID)
	assert.Equal(t, "m1", arms[2].ModelID)
}

func TestStaticGeneratorSkipsDisabledModels(t *testing.T) {
	g := &StaticGenerator{}
	skill := &types.Skill{ID: "s", ConfigurationCount: 2}
	models := []types.Model{
		{ID: "off", Enabled: false},
		{ID: "on", Provider: "openai", Name: "gpt-4o-mini", Enabled: true},
	}

	arms, err := g.GenerateArms(context.Background(), skill, &types.Cluster{}, models)
	require.NoError(t, err)
	for _, a := range arms {
		assert.Equal(t, "on", a.ModelID)
	}
}

func TestStaticGeneratorNoEnabledModels(t *testing.T) {
	g := &StaticGenerator{}
	skill := &types.Skill{ID: "s", ConfigurationCount: 2}

	_, err := g.GenerateArms(context.Background(), skill, &types.Cluster{}, []types.Model{{ID: "off"}})
	require.Error(t, err)
	var terr *types.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, types.ErrUnavailable, terr.Code)
}

func TestStaticGeneratorPromptCap(t *testing.T) {
	g := &StaticGenerator{SystemPrompts: []string{"p1", "p2", "p3"}}
	skill := &types.Skill{ID: "s", ConfigurationCount: 4, SystemPromptCount: 2}
	models := []types.Model{{ID: "m", Enabled: true}}

	arms, err := g.GenerateArms(context.Background(), skill, &types.Cluster{}, models)
	require.NoError(t, err)
	require.Len(t, arms, 4)
	assert.Equal(t, "p1", arms[0].SystemPrompt)
	assert.Equal(t, "p2", arms[1].SystemPrompt)
	assert.Equal(t, "p1", arms[2].SystemPrompt, "only the first system_prompt_count prompts cycle")
}

func TestValidateArmParams(t *testing.T) {
	valid := types.ArmParams{
		ModelID:        "m",
		TemperatureMin: 0.2, TemperatureMax: 0.8,
		TopPMin: 0.8, TopPMax: 1.0,
		ThinkingMin: 0, ThinkingMax: 0.5,
	}
	require.NoError(t, ValidateArmParams(&valid))

	tests := []struct {
		name      string
		mutate    func(p *types.ArmParams)
		wantParam string
	}{
		{"missing model", func(p *types.ArmParams) { p.ModelID = "" }, "model_id"},
		{"inverted temperature", func(p *types.ArmParams) { p.TemperatureMin = 1.5 }, "temperature"},
		{"inverted top_p", func(p *types.ArmParams) { p.TopPMax = 0.5 }, "top_p"},
		{"thinking below zero", func(p *types.ArmParams) { p.ThinkingMin = -0.1 }, "thinking"},
		{"thinking above one", func(p *types.ArmParams) { p.ThinkingMax = 1.2 }, "thinking"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := ValidateArmParams(&p)
			require.Error(t, err)
			var terr *types.Error
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.wantParam, terr.Param)
		})
	}
}

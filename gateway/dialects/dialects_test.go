package dialects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/gateway/dialects/openaicompat"
	"github.com/idkhub-com/reactive-agents/types"
)

func TestRegisterAll(t *testing.T) {
	RegisterAll()

	for _, tag := range []string{"openai", "deepseek", "qwen", "groq", "mistral", "gemini", "anthropic", "triton"} {
		d, err := gateway.Resolve(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, tag, d.Tag(), "resolved dialect reports the tag it was registered under")
	}

	_, err := gateway.Resolve("nonexistent")
	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.ErrInvalidProvider, te.Code)
}

func TestEveryDialectSupportsChat(t *testing.T) {
	for _, d := range All() {
		fn := types.FunctionChatComplete
		table := d.ParamTable(fn)
		assert.NotNil(t, table, "dialect %s has no chat table", d.Tag())
		assert.NotEmpty(t, d.StreamFrameSeparator(), d.Tag())
	}
}

func TestOpenAICompatibleFamilySupportsFullSurface(t *testing.T) {
	fns := []types.FunctionName{
		types.FunctionCreateTranscription,
		types.FunctionCreateTranslation,
		types.FunctionUploadFile,
		types.FunctionProxy,
	}
	for _, d := range All() {
		if _, ok := d.(*openaicompat.Dialect); !ok {
			continue
		}
		for _, fn := range fns {
			assert.NotNil(t, d.ParamTable(fn), "dialect %s has no table for %s", d.Tag(), fn)
		}
	}
}

func TestOpenAIReasoningModelCapabilities(t *testing.T) {
	RegisterAll()
	d, err := gateway.Resolve("openai")
	require.NoError(t, err)

	cp, ok := d.(gateway.CapabilityProvider)
	require.True(t, ok)
	caps := cp.Capabilities(types.FunctionChatComplete)
	require.NotNil(t, caps)

	drop, _ := caps.Lookup("o1-mini", "temperature")
	assert.True(t, drop)
	drop, rename := caps.Lookup("o1-mini", "max_tokens")
	assert.False(t, drop)
	assert.Equal(t, "max_completion_tokens", rename)
	drop, rename = caps.Lookup("gpt-4o", "temperature")
	assert.False(t, drop)
	assert.Empty(t, rename)
}

func TestGeminiPathHasNoV1Prefix(t *testing.T) {
	d, err := func() (gateway.Dialect, error) {
		RegisterAll()
		return gateway.Resolve("gemini")
	}()
	require.NoError(t, err)

	req := &types.Request{
		Function: types.FunctionChatComplete,
		Chat:     &types.ChatBody{Model: "gemini-2.0-flash", Messages: []types.Message{types.NewUserMessage("hi")}},
	}
	path, err := d.Endpoint(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "/chat/completions", path)

	base, err := d.BaseURL(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/openai", base)
}

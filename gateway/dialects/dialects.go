// Package dialects wires the concrete provider dialects into the gateway
// registry. Most providers are OpenAI-compatible and differ only in tag and
// base URL; Anthropic and Triton carry their own translations.
package dialects

import (
	"github.com/idkhub-com/reactive-agents/gateway"
	"github.com/idkhub-com/reactive-agents/gateway/dialects/anthropic"
	"github.com/idkhub-com/reactive-agents/gateway/dialects/openaicompat"
	"github.com/idkhub-com/reactive-agents/gateway/dialects/triton"
	"github.com/idkhub-com/reactive-agents/types"
)

func sp(s string) *string { return &s }

// RegisterAll populates the gateway registry with every built-in dialect.
// Call once at startup.
func RegisterAll() {
	for _, d := range All() {
		gateway.Register(d)
	}
}

// All returns fresh instances of every built-in dialect.
func All() []gateway.Dialect {
	return []gateway.Dialect{
		openaicompat.New(openaicompat.Config{
			Tag:             "openai",
			DefaultBaseURL:  "https://api.openai.com",
			NativeResponses: true,
			// Reasoning models fix their sampling and renamed the token cap.
			Capabilities: &gateway.Capabilities{
				Unsupported: map[string]bool{
					"o1:temperature":         true,
					"o1:top_p":               true,
					"o1-mini:temperature":    true,
					"o1-mini:top_p":          true,
					"o1-preview:temperature": true,
					"o1-preview:top_p":       true,
					"o3-mini:temperature":    true,
					"o3-mini:top_p":          true,
				},
				Renames: map[string]string{
					"o1:max_tokens":         "max_completion_tokens",
					"o1-mini:max_tokens":    "max_completion_tokens",
					"o1-preview:max_tokens": "max_completion_tokens",
					"o3-mini:max_tokens":    "max_completion_tokens",
				},
			},
		}),
		openaicompat.New(openaicompat.Config{
			Tag:            "deepseek",
			DefaultBaseURL: "https://api.deepseek.com",
		}),
		openaicompat.New(openaicompat.Config{
			Tag:            "qwen",
			DefaultBaseURL: "https://dashscope.aliyuncs.com/compatible-mode",
		}),
		openaicompat.New(openaicompat.Config{
			Tag:            "groq",
			DefaultBaseURL: "https://api.groq.com/openai",
		}),
		openaicompat.New(openaicompat.Config{
			Tag:            "mistral",
			DefaultBaseURL: "https://api.mistral.ai",
			// Mistral rejects the developer role.
			RoleRewrites: map[types.Role]types.Role{
				types.RoleDeveloper: types.RoleSystem,
			},
		}),
		openaicompat.New(openaicompat.Config{
			Tag:            "gemini",
			DefaultBaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
			EndpointPrefix: sp(""),
		}),
		anthropic.New(),
		triton.New(),
	}
}

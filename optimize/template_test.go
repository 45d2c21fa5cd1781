package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPrompt(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		allowed  []string
		want     string
	}{
		{
			name:     "basic substitution",
			template: "You help {{ company }} customers.",
			vars:     map[string]string{"company": "Acme"},
			want:     "You help Acme customers.",
		},
		{
			name:     "tight braces",
			template: "Hello {{name}}!",
			vars:     map[string]string{"name": "Ada"},
			want:     "Hello Ada!",
		},
		{
			name:     "values are escaped",
			template: "Tone: {{ tone }}",
			vars:     map[string]string{"tone": "<script>alert(1)</script>"},
			want:     "Tone: &lt;script&gt;alert(1)&lt;/script&gt;",
		},
		{
			name:     "unknown variable stays literal",
			template: "Use {{ missing }} here.",
			vars:     map[string]string{"other": "x"},
			want:     "Use {{ missing }} here.",
		},
		{
			name:     "allow list blocks unlisted variables",
			template: "{{ a }} {{ b }}",
			vars:     map[string]string{"a": "1", "b": "2"},
			allowed:  []string{"a"},
			want:     "1 {{ b }}",
		},
		{
			name:     "no variables returns template unchanged",
			template: "Plain {{ a }} prompt.",
			vars:     nil,
			want:     "Plain {{ a }} prompt.",
		},
		{
			name:     "repeated variable substitutes everywhere",
			template: "{{ who }} and {{ who }}",
			vars:     map[string]string{"who": "me"},
			want:     "me and me",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderPrompt(tt.template, tt.vars, tt.allowed))
		})
	}
}

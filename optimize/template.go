package optimize

import (
	"html"
	"regexp"
	"strings"
)

var templateVarPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderPrompt substitutes {{ var }} placeholders in a system prompt
// template. Values are HTML-escaped; unknown variables stay literal. A
// non-empty allow-list restricts which variables may substitute.
func RenderPrompt(template string, vars map[string]string, allowed []string) string {
	if len(vars) == 0 {
		return template
	}
	var allowSet map[string]bool
	if len(allowed) > 0 {
		allowSet = make(map[string]bool, len(allowed))
		for _, name := range allowed {
			allowSet[name] = true
		}
	}

	return templateVarPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		if allowSet != nil && !allowSet[name] {
			return match
		}
		value, ok := vars[name]
		if !ok {
			return match
		}
		return html.EscapeString(value)
	})
}

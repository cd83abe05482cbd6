package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/samber/lo"
)

// Directives that let a prompt template reach beyond its data
var forbiddenDirectives = []string{"{{call", "{{define", "{{template", "{{block"}

var templateCache sync.Map // template text -> *template.Template

// RenderTemplate renders a prompt template with data. Templates are parsed
// once and cached; a key missing from data is an error.
func RenderTemplate(tmpl string, data map[string]any) (string, error) {
	compact := strings.ReplaceAll(tmpl, " ", "")
	for _, directive := range forbiddenDirectives {
		if strings.Contains(compact, directive) || strings.Contains(compact, strings.Replace(directive, "{{", "{{-", 1)) {
			return "", fmt.Errorf("template contains forbidden directive: %s", strings.TrimPrefix(directive, "{{"))
		}
	}

	t, err := parseCached(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func parseCached(tmpl string) (*template.Template, error) {
	if cached, ok := templateCache.Load(tmpl); ok {
		return cached.(*template.Template), nil
	}

	t, err := template.New("prompt").
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	actual, _ := templateCache.LoadOrStore(tmpl, t)
	return actual.(*template.Template), nil
}

// ClearTemplateCache drops every cached template
func ClearTemplateCache() {
	templateCache.Range(func(key, _ any) bool {
		templateCache.Delete(key)
		return true
	})
}

// ParseVars turns KEY=VALUE pairs into template data. Later pairs win.
func ParseVars(pairs []string) (map[string]any, error) {
	invalid := lo.Filter(pairs, func(p string, _ int) bool {
		key, _, ok := strings.Cut(p, "=")
		return !ok || strings.TrimSpace(key) == ""
	})
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid template variable %q: expected KEY=VALUE", invalid[0])
	}

	return lo.SliceToMap(pairs, func(p string) (string, any) {
		key, value, _ := strings.Cut(p, "=")
		return strings.TrimSpace(key), value
	}), nil
}

// TruncateString truncates a string to maxLen runes (Unicode-safe)
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

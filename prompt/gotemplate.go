package prompt

import (
	"strings"
	"text/template"
)

var goTemplateFuncs = template.FuncMap{
	"default": func(def, val any) any {
		if val == nil || val == "" {
			return def
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
}

// renderGoTemplate executes text with text/template. Referencing a variable
// missing from vars is an error so typos in placeholders surface at build
// time.
func renderGoTemplate(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Funcs(goTemplateFuncs).Parse(text)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", err
	}
	return b.String(), nil
}

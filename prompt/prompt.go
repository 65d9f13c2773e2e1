// Package prompt renders system prompt templates for supervisors and workers.
//
// Three template dialects are supported:
//
//   - FString (default) python style "{name}" placeholders via pyfmt
//   - GoTemplate "{{.name}}" via text/template (missing keys are errors)
//   - Jinja2 "{{ name }}" via gonja with include/extends/import/from disabled
//
// Supervisor prompts must reference VarTeamMembers; References lets callers
// check that at build time.
package prompt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/nodes"
	"github.com/nikolalohinski/gonja/parser"
	"github.com/slongfield/pyfmt"
)

// Variables substituted into team prompts.
const (
	// VarTeamMembers is replaced by the comma separated roster.
	VarTeamMembers = "team_members"
	// VarInstructions is replaced by the supervisor's instructions for the
	// current worker turn. Only worker prompts receive it.
	VarInstructions = "instructions"
	// VarName is replaced by the name of the unit owning the prompt.
	VarName = "name"
)

// FormatType selects the template dialect.
type FormatType uint8

const (
	// FString is supported by pyfmt, an implementation of PEP 3101.
	FString FormatType = iota
	// GoTemplate is https://pkg.go.dev/text/template.
	GoTemplate
	// Jinja2 is supported by gonja.
	Jinja2
)

// String returns the configuration name of the format.
func (f FormatType) String() string {
	switch f {
	case FString:
		return "fstring"
	case GoTemplate:
		return "gotemplate"
	case Jinja2:
		return "jinja2"
	default:
		return fmt.Sprintf("FormatType(%d)", uint8(f))
	}
}

// ParseFormat converts a configuration name into a FormatType. The empty
// string selects FString.
func ParseFormat(s string) (FormatType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fstring", "f-string":
		return FString, nil
	case "gotemplate", "go", "go-template":
		return GoTemplate, nil
	case "jinja2", "jinja":
		return Jinja2, nil
	default:
		return FString, fmt.Errorf("unknown prompt format %q", s)
	}
}

// Render substitutes vars into text using the given dialect.
func Render(text string, vars map[string]any, format FormatType) (string, error) {
	switch format {
	case FString:
		return pyfmt.Fmt(text, vars)
	case GoTemplate:
		return renderGoTemplate(text, vars)
	case Jinja2:
		env, err := getJinjaEnv()
		if err != nil {
			return "", err
		}
		tpl, err := env.FromString(text)
		if err != nil {
			return "", err
		}
		return tpl.Execute(vars)
	default:
		return "", fmt.Errorf("unknown format type: %v", format)
	}
}

// References reports whether text substitutes the variable key. It renders
// the template once with a marker value for key, so vars must contain every
// other variable the template uses.
func References(text, key string, vars map[string]any, format FormatType) (bool, error) {
	marker := "\x00" + key + "\x00"

	probe := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		probe[k] = v
	}
	probe[key] = marker

	out, err := Render(text, probe, format)
	if err != nil {
		return false, err
	}
	return strings.Contains(out, marker), nil
}

// JoinRoster renders a roster the way it is substituted for VarTeamMembers.
func JoinRoster(names []string) string {
	return strings.Join(names, ", ")
}

var (
	jinjaEnvOnce sync.Once
	jinjaEnv     *gonja.Environment
	envInitErr   error
)

var disabledJinjaStatements = []string{"include", "extends", "import", "from"}

func getJinjaEnv() (*gonja.Environment, error) {
	jinjaEnvOnce.Do(func() {
		jinjaEnv = gonja.NewEnvironment(config.DefaultConfig, gonja.DefaultLoader)
		for _, stmt := range disabledJinjaStatements {
			if !jinjaEnv.Statements.Exists(stmt) {
				continue
			}
			keyword := stmt
			err := jinjaEnv.Statements.Replace(keyword, func(_ *parser.Parser, _ *parser.Parser) (nodes.Statement, error) {
				return nil, fmt.Errorf("keyword[%s] has been disabled", keyword)
			})
			if err != nil {
				envInitErr = fmt.Errorf("init jinja env fail: %w", err)
				return
			}
		}
	})
	return jinjaEnv, envInitErr
}

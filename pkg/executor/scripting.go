package executor

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/jsengine"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
)

// envVarPattern matches ALL_CAPS identifiers that look like env variables
var envVarPattern = regexp.MustCompile(`\b([A-Z][A-Z0-9_]{2,})\b`)

// ScriptEngine handles variable storage and expansion for one scenario.
type ScriptEngine struct {
	js        *jsengine.Engine
	variables map[string]string
}

// NewScriptEngine creates a new script engine.
func NewScriptEngine() *ScriptEngine {
	return &ScriptEngine{
		js:        jsengine.New(),
		variables: make(map[string]string),
	}
}

// Close cleans up the script engine.
func (se *ScriptEngine) Close() {
	if se.js != nil {
		se.js.Close()
	}
}

// SetVariable sets a variable in both Go map and JS engine.
func (se *ScriptEngine) SetVariable(name, value string) {
	se.variables[name] = value
	se.js.SetVariable(name, value)
}

// SetVariables sets multiple variables.
func (se *ScriptEngine) SetVariables(vars map[string]string) {
	for k, v := range vars {
		se.SetVariable(k, v)
	}
}

// SetRunInfo exposes run metadata to expressions as `run`.
func (se *ScriptEngine) SetRunInfo(info jsengine.RunInfo) {
	se.js.SetRunInfo(info)
}

// ImportSystemEnv imports system environment variables into the script engine.
// Only imports variables matching the pattern (uppercase with underscores).
func (se *ScriptEngine) ImportSystemEnv() {
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if ok && envVarPattern.MatchString(name) {
			se.SetVariable(name, value)
		}
	}
}

// GetVariable returns a variable value.
func (se *ScriptEngine) GetVariable(name string) string {
	return se.variables[name]
}

// ExpandVariables expands ${expr} and $VAR syntax in text.
func (se *ScriptEngine) ExpandVariables(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}

	// First pass: JS engine for ${expression} syntax
	for _, name := range envVarPattern.FindAllString(text, -1) {
		se.js.DefineUndefinedIfMissing(name)
	}
	if result, err := se.js.ExpandVariables(text); err == nil {
		text = result
	}

	// Second pass: $VAR, longest names first to avoid partial matches
	names := make([]string, 0, len(se.variables))
	for name := range se.variables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})

	for _, name := range names {
		text = expandDollarVar(text, name, se.variables[name])
	}

	return text
}

// expandDollarVar replaces $VAR with value, checking word boundaries.
func expandDollarVar(text, name, value string) string {
	pattern := "$" + name
	idx := 0
	for {
		pos := strings.Index(text[idx:], pattern)
		if pos == -1 {
			break
		}
		pos += idx

		// Followed by an identifier character: a different variable
		endPos := pos + len(pattern)
		if endPos < len(text) {
			next := text[endPos]
			if (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z') ||
				(next >= '0' && next <= '9') || next == '_' {
				idx = endPos
				continue
			}
		}

		text = text[:pos] + value + text[endPos:]
		idx = pos + len(value)
	}
	return text
}

// ExpandStep returns a copy of step with variables expanded in its text
// fields. The original is left untouched so scenarios can be run again.
// Script bodies are passed to the browser verbatim.
func (se *ScriptEngine) ExpandStep(step scenario.Step) scenario.Step {
	switch s := step.(type) {
	case *scenario.NavigateStep:
		c := *s
		c.URL = se.ExpandVariables(c.URL)
		return &c
	case *scenario.FillStep:
		c := *s
		c.Text = se.ExpandVariables(c.Text)
		c.Locator = se.expandLocator(c.Locator)
		return &c
	case *scenario.ClickStep:
		c := *s
		c.Locator = se.expandLocator(c.Locator)
		return &c
	case *scenario.WaitForStep:
		c := *s
		c.AnyOf = make([]scenario.Condition, len(s.AnyOf))
		for i, cond := range s.AnyOf {
			cond.URLContains = se.ExpandVariables(cond.URLContains)
			cond.Element = se.expandLocator(cond.Element)
			c.AnyOf[i] = cond
		}
		return &c
	case *scenario.AssertCountStep:
		c := *s
		c.Locator = se.expandLocator(c.Locator)
		return &c
	case *scenario.ManualCheckpointStep:
		c := *s
		c.Prompt = se.ExpandVariables(c.Prompt)
		return &c
	case *scenario.AlertStep:
		c := *s
		c.Contains = se.ExpandVariables(c.Contains)
		return &c
	}
	return step
}

func (se *ScriptEngine) expandLocator(loc core.Locator) core.Locator {
	if loc.IsZero() {
		return loc
	}
	loc.Selector = se.ExpandVariables(loc.Selector)
	return loc
}

package executor

import (
	"testing"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/jsengine"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
)

func TestNewScriptEngine(t *testing.T) {
	se := NewScriptEngine()
	defer se.Close()

	if se.js == nil {
		t.Error("js engine not initialized")
	}
	if se.variables == nil {
		t.Error("variables map not initialized")
	}
}

func TestScriptEngine_SetVariables(t *testing.T) {
	se := NewScriptEngine()
	defer se.Close()

	se.SetVariable("USERNAME", "test_user")
	se.SetVariables(map[string]string{
		"A": "1",
		"B": "2",
	})

	if got := se.GetVariable("USERNAME"); got != "test_user" {
		t.Errorf("GetVariable(USERNAME) = %q, want %q", got, "test_user")
	}
	if got := se.GetVariable("A"); got != "1" {
		t.Errorf("GetVariable(A) = %q, want %q", got, "1")
	}
	if got := se.GetVariable("B"); got != "2" {
		t.Errorf("GetVariable(B) = %q, want %q", got, "2")
	}
}

func TestScriptEngine_ImportSystemEnv(t *testing.T) {
	t.Setenv("SHOPSMOKE_TEST_VAR", "from-env")
	t.Setenv("lowercase_var", "ignored")

	se := NewScriptEngine()
	defer se.Close()
	se.ImportSystemEnv()

	if got := se.GetVariable("SHOPSMOKE_TEST_VAR"); got != "from-env" {
		t.Errorf("GetVariable(SHOPSMOKE_TEST_VAR) = %q, want %q", got, "from-env")
	}
	if got := se.GetVariable("lowercase_var"); got != "" {
		t.Errorf("lowercase variable should not be imported, got %q", got)
	}
}

func TestScriptEngine_ExpandVariables_JSExpression(t *testing.T) {
	se := NewScriptEngine()
	defer se.Close()

	se.SetVariable("name", "John")
	se.SetVariable("age", "30")
	se.SetRunInfo(jsengine.RunInfo{Scenario: "login"})

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple var", "Hello ${name}", "Hello John"},
		{"expression", "Age: ${age}", "Age: 30"},
		{"math", "Result: ${1 + 2}", "Result: 3"},
		{"no vars", "plain text", "plain text"},
		{"multiple", "${name} is ${age}", "John is 30"},
		{"run info", "scenario ${run.scenario}", "scenario login"},
		{"unset env var", "[${MISSING_VALUE || 'none'}]", "[none]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := se.ExpandVariables(tt.input)
			if got != tt.expected {
				t.Errorf("ExpandVariables(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestScriptEngine_ExpandVariables_DollarVar(t *testing.T) {
	se := NewScriptEngine()
	defer se.Close()

	se.SetVariable("USER", "admin")
	se.SetVariable("USERNAME", "john")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "Hello $USER", "Hello admin"},
		{"longer first", "Hello $USERNAME", "Hello john"},
		{"end of string", "User: $USER", "User: admin"},
		{"multiple", "$USER and $USERNAME", "admin and john"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := se.ExpandVariables(tt.input)
			if got != tt.expected {
				t.Errorf("ExpandVariables(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExpandDollarVar(t *testing.T) {
	tests := []struct {
		text     string
		name     string
		value    string
		expected string
	}{
		{"Hello $USER", "USER", "admin", "Hello admin"},
		{"$USER_ID", "USER", "admin", "$USER_ID"},
		{"$USER$USER", "USER", "a", "aa"},
		{"no match", "USER", "admin", "no match"},
		{"/users/$ID/cart", "ID", "7", "/users/7/cart"},
	}

	for _, tt := range tests {
		got := expandDollarVar(tt.text, tt.name, tt.value)
		if got != tt.expected {
			t.Errorf("expandDollarVar(%q, %q, %q) = %q, want %q", tt.text, tt.name, tt.value, got, tt.expected)
		}
	}
}

func TestScriptEngine_ExpandStep_CopiesStep(t *testing.T) {
	se := NewScriptEngine()
	defer se.Close()
	se.SetVariable("USERNAME", "test_user")
	se.SetVariable("SUCCESS_PATH", "/dashboard")

	fill := &scenario.FillStep{
		BaseStep: scenario.BaseStep{StepType: scenario.StepFill},
		Locator:  core.XPath("//input[@placeholder='Username']"),
		Text:     "${USERNAME}",
	}
	got := se.ExpandStep(fill).(*scenario.FillStep)
	if got.Text != "test_user" {
		t.Errorf("expanded Text = %q, want test_user", got.Text)
	}
	if fill.Text != "${USERNAME}" {
		t.Errorf("original step was modified: %q", fill.Text)
	}

	wf := &scenario.WaitForStep{
		BaseStep: scenario.BaseStep{StepType: scenario.StepWaitFor},
		AnyOf:    []scenario.Condition{scenario.URLContains("$SUCCESS_PATH")},
	}
	gotWF := se.ExpandStep(wf).(*scenario.WaitForStep)
	if gotWF.AnyOf[0].URLContains != "/dashboard" {
		t.Errorf("expanded URLContains = %q", gotWF.AnyOf[0].URLContains)
	}
	if wf.AnyOf[0].URLContains != "$SUCCESS_PATH" {
		t.Errorf("original condition was modified: %q", wf.AnyOf[0].URLContains)
	}
}

func TestScriptEngine_ExpandStep_ScriptUntouched(t *testing.T) {
	se := NewScriptEngine()
	defer se.Close()
	se.SetVariable("X", "1")

	step := &scenario.ScriptStep{Script: "return `${document.title}` + $X"}
	got := se.ExpandStep(step).(*scenario.ScriptStep)
	if got != step {
		t.Error("script steps should be passed through unchanged")
	}
}

package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/driver/mock"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
	"github.com/devicelab-dev/shopsmoke/pkg/session"
)

var (
	nameInput   = core.CSS("#name")
	goButton    = core.CSS("#go")
	alertButton = core.CSS("#alert")
	popupButton = core.CSS("#popup")
	boomButton  = core.CSS("#boom")
	items       = core.CSS(".item")
	missing     = core.CSS("#missing")
)

// testSite is a two-page app: "/" with a form and a few triggers, "/done"
// reached by clicking #go.
func testSite() *mock.Site {
	return &mock.Site{
		Pages: map[string]*mock.Page{
			"/": {Elements: []*mock.Element{
				{Locator: nameInput, Count: 1},
				{Locator: goButton, Count: 1, OnClick: func(b *mock.Browser, _ int) {
					b.State["clicks"] = clicks(b) + 1
					b.Route("/done")
				}},
				{Locator: alertButton, Count: 1, OnClick: func(b *mock.Browser, _ int) {
					b.ShowAlert("hello world")
				}},
				{Locator: popupButton, Count: 1, OnClick: func(b *mock.Browser, _ int) {
					b.OpenWindow("/popup")
				}},
				{Locator: boomButton, Count: 1, OnClick: func(*mock.Browser, int) {
					panic("handler exploded")
				}},
				{Locator: items, Count: 3},
			}},
			"/done":  {},
			"/popup": {},
		},
	}
}

func clicks(b *mock.Browser) int {
	n, _ := b.State["clicks"].(int)
	return n
}

func newTestRunner(t *testing.T, cfg mock.Config, rc RunnerConfig) (*Runner, *mock.Browser) {
	t.Helper()
	b := mock.New(testSite(), cfg)
	s, err := session.New(b, session.Config{
		BaseURL:        "http://localhost:5173/",
		DefaultTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	return New(s, rc), b
}

func base(t scenario.StepType, fatal bool) scenario.BaseStep {
	return scenario.BaseStep{StepType: t, Fatal: fatal, TimeoutMs: 100}
}

func navigate(url string) scenario.Step {
	return &scenario.NavigateStep{BaseStep: base(scenario.StepNavigate, true), URL: url}
}

func click(loc core.Locator, fatal bool) scenario.Step {
	return &scenario.ClickStep{BaseStep: base(scenario.StepClick, fatal), Locator: loc}
}

func fill(loc core.Locator, text string) scenario.Step {
	return &scenario.FillStep{BaseStep: base(scenario.StepFill, true), Locator: loc, Text: text}
}

func atLeast(loc core.Locator, n int, fatal bool) scenario.Step {
	return &scenario.AssertCountStep{BaseStep: base(scenario.StepAssertCount, fatal), Locator: loc, AtLeast: n}
}

func sc(name string, steps ...scenario.Step) *scenario.Scenario {
	return &scenario.Scenario{Config: scenario.Config{Name: name}, Steps: steps}
}

func TestRunner_Run_AllPassed(t *testing.T) {
	runner, b := newTestRunner(t, mock.Config{RenderDelay: 10 * time.Millisecond}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("form",
			navigate("/"),
			fill(nameInput, "alice"),
			click(goButton, true),
			&scenario.WaitForStep{
				BaseStep: base(scenario.StepWaitFor, false),
				AnyOf:    []scenario.Condition{scenario.URLContains("/done")},
			},
		),
		sc("count", navigate("/"), atLeast(items, 3, false)),
	})

	if !result.Success() {
		t.Fatalf("Success() = false, scenarios: %+v", result.Scenarios)
	}
	if result.TotalScenarios != 2 || result.PassedScenarios != 2 {
		t.Errorf("Total/Passed = %d/%d, want 2/2", result.TotalScenarios, result.PassedScenarios)
	}
	if result.RunID == "" || result.RunID != runner.RunID() {
		t.Errorf("RunID = %q, want runner id %q", result.RunID, runner.RunID())
	}
	if got := result.Scenarios[0].PassedSteps; got != 4 {
		t.Errorf("PassedSteps = %d, want 4", got)
	}
	if clicks(b) != 1 {
		t.Errorf("clicks = %d, want 1", clicks(b))
	}
}

func TestRunner_Run_NonFatalFailureContinues(t *testing.T) {
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("partial", navigate("/"), atLeast(items, 5, false), click(goButton, true)),
	})

	res := result.Scenarios[0]
	if res.Status != core.ScenarioFailed {
		t.Fatalf("Status = %v, want failed", res.Status)
	}
	step := res.Steps[1]
	if step.Status != core.StatusFailed || step.Code != "count_mismatch" {
		t.Errorf("step 2 = %v/%s, want failed/count_mismatch", step.Status, step.Code)
	}
	if step.Category != core.ErrCategoryAssertion {
		t.Errorf("Category = %v, want assertion", step.Category)
	}
	if res.Steps[2].Status != core.StatusPassed {
		t.Errorf("step after a non-fatal failure should run, got %v", res.Steps[2].Status)
	}
	if !strings.HasPrefix(res.Error, "step 2") {
		t.Errorf("Error = %q, want first failure named", res.Error)
	}
}

func TestRunner_Run_FatalFailureAbortsScenarioOnly(t *testing.T) {
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("broken", navigate("/"), click(missing, true), click(goButton, true)),
		sc("next", navigate("/")),
	})

	first := result.Scenarios[0]
	if first.Status != core.ScenarioAborted {
		t.Errorf("Status = %v, want aborted", first.Status)
	}
	if first.Steps[1].Code != "element_not_found" {
		t.Errorf("Code = %q, want element_not_found", first.Steps[1].Code)
	}
	if first.Steps[2].Status != core.StatusSkipped {
		t.Errorf("step after fatal failure = %v, want skipped", first.Steps[2].Status)
	}
	if result.Scenarios[1].Status != core.ScenarioPassed {
		t.Errorf("next scenario = %v, want passed", result.Scenarios[1].Status)
	}
	if result.Error != "" {
		t.Errorf("run Error = %q, want empty", result.Error)
	}
}

func TestRunner_Run_DriverFaultStopsRun(t *testing.T) {
	failClick := func(method string) error {
		if method == "Click" {
			return core.ErrDriverFault.WithMessage("connection reset")
		}
		return nil
	}
	runner, _ := newTestRunner(t, mock.Config{FailOn: failClick}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("faulty", navigate("/"), click(goButton, false), navigate("/")),
		sc("never", navigate("/"), navigate("/done")),
	})

	first := result.Scenarios[0]
	if first.Steps[1].Status != core.StatusErrored {
		t.Errorf("faulted step = %v, want errored", first.Steps[1].Status)
	}
	if first.Steps[2].Status != core.StatusSkipped {
		t.Errorf("step after fault = %v, want skipped", first.Steps[2].Status)
	}
	if first.Status != core.ScenarioAborted {
		t.Errorf("Status = %v, want aborted", first.Status)
	}

	second := result.Scenarios[1]
	if second.Status != core.ScenarioAborted || !strings.HasPrefix(second.Error, "not run") {
		t.Errorf("second = %v %q, want aborted not run", second.Status, second.Error)
	}
	if second.SkippedSteps != 2 {
		t.Errorf("SkippedSteps = %d, want 2", second.SkippedSteps)
	}
	if !strings.Contains(result.Error, "driver fault") {
		t.Errorf("run Error = %q", result.Error)
	}
	if result.AbortedScenarios != 2 {
		t.Errorf("AbortedScenarios = %d, want 2", result.AbortedScenarios)
	}
}

func TestRunner_Run_PanicIsIsolatedToStep(t *testing.T) {
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("panics", navigate("/"), click(boomButton, false)),
	})

	step := result.Scenarios[0].Steps[1]
	if step.Status != core.StatusErrored {
		t.Errorf("Status = %v, want errored", step.Status)
	}
	if !strings.Contains(step.Message, "handler exploded") {
		t.Errorf("Message = %q", step.Message)
	}
	if step.StartTime.IsZero() {
		t.Error("timing not recorded for panicking step")
	}
}

func TestRunner_Run_StaleHandleRetriedOnce(t *testing.T) {
	stale := 0
	failOnce := func(method string) error {
		if method == "Click" && stale == 0 {
			stale++
			return core.ErrStaleReference.WithMessage("detached")
		}
		return nil
	}
	runner, b := newTestRunner(t, mock.Config{FailOn: failOnce}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("stale", navigate("/"), click(goButton, true)),
	})

	if result.Scenarios[0].Status != core.ScenarioPassed {
		t.Fatalf("Status = %v, steps: %+v", result.Scenarios[0].Status, result.Scenarios[0].Steps)
	}
	if clicks(b) != 1 {
		t.Errorf("clicks = %d, want 1", clicks(b))
	}
}

func TestRunner_Run_StaleTwiceFails(t *testing.T) {
	alwaysStale := func(method string) error {
		if method == "Click" {
			return core.ErrStaleReference.WithMessage("detached")
		}
		return nil
	}
	runner, _ := newTestRunner(t, mock.Config{FailOn: alwaysStale}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("stale", navigate("/"), click(goButton, false)),
	})

	step := result.Scenarios[0].Steps[1]
	if step.Status != core.StatusFailed || step.Code != "stale_reference" {
		t.Errorf("step = %v/%s, want failed/stale_reference", step.Status, step.Code)
	}
}

func TestRunner_Run_WaitForExpectMismatch(t *testing.T) {
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("race",
			navigate("/"),
			click(alertButton, true),
			&scenario.WaitForStep{
				BaseStep: base(scenario.StepWaitFor, false),
				AnyOf: []scenario.Condition{
					scenario.URLContains("/done").Named("done"),
					scenario.AlertPresent().Named("alert"),
				},
				Expect: "done",
			},
		),
	})

	step := result.Scenarios[0].Steps[2]
	if step.Code != "condition_not_met" {
		t.Fatalf("Code = %q, want condition_not_met (%s)", step.Code, step.Message)
	}
	data, _ := step.Data.(map[string]interface{})
	if data["observed"] != "alert" || data["alertText"] != "hello world" {
		t.Errorf("Data = %v", step.Data)
	}
	if result.Scenarios[0].Status != core.ScenarioFailed {
		t.Errorf("Status = %v, want failed", result.Scenarios[0].Status)
	}
}

func TestRunner_Run_WaitForTimeout(t *testing.T) {
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("slow",
			navigate("/"),
			&scenario.WaitForStep{
				BaseStep: base(scenario.StepWaitFor, false),
				AnyOf:    []scenario.Condition{scenario.URLContains("/never"), scenario.ElementPresent(missing)},
			},
		),
	})

	step := result.Scenarios[0].Steps[1]
	if step.Code != "timeout" || step.Category != core.ErrCategoryTimeout {
		t.Errorf("step = %s/%v, want timeout", step.Code, step.Category)
	}
	if !strings.Contains(step.Message, "none of") {
		t.Errorf("Message = %q", step.Message)
	}
}

func TestRunner_Run_AlertTextMismatchStillCloses(t *testing.T) {
	runner, b := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("alert",
			navigate("/"),
			click(alertButton, true),
			&scenario.AlertStep{BaseStep: base(scenario.StepAlert, false), Contains: "goodbye"},
			click(goButton, false),
		),
	})

	steps := result.Scenarios[0].Steps
	if steps[2].Code != "text_mismatch" {
		t.Errorf("Code = %q, want text_mismatch", steps[2].Code)
	}
	if steps[3].Status != core.StatusPassed {
		t.Errorf("click after closed alert = %v (%s)", steps[3].Status, steps[3].Message)
	}
	if open, _ := b.IsAlertPresent(); open {
		t.Error("alert should have been closed")
	}
}

func TestRunner_Run_CheckpointWithoutOperatorAborts(t *testing.T) {
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("manual",
			navigate("/"),
			&scenario.ManualCheckpointStep{BaseStep: base(scenario.StepManualCheckpoint, false), Prompt: "solve the captcha"},
			navigate("/done"),
		),
	})

	res := result.Scenarios[0]
	if res.Steps[1].Code != "manual_step_abandoned" {
		t.Errorf("Code = %q", res.Steps[1].Code)
	}
	if res.Steps[1].Category != core.ErrCategoryOperator {
		t.Errorf("Category = %v, want operator", res.Steps[1].Category)
	}
	if res.Status != core.ScenarioAborted {
		t.Errorf("checkpoints are always fatal, Status = %v", res.Status)
	}
}

func TestRunner_Run_CheckpointAcknowledged(t *testing.T) {
	var got string
	op := OperatorFunc(func(_ context.Context, prompt string) error {
		got = prompt
		return nil
	})
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{
		Operator: op,
		Env:      map[string]string{"WHO": "operator"},
	})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("manual", &scenario.ManualCheckpointStep{
			BaseStep: base(scenario.StepManualCheckpoint, true),
			Prompt:   "hello $WHO",
		}),
	})

	if result.Scenarios[0].Status != core.ScenarioPassed {
		t.Errorf("Status = %v", result.Scenarios[0].Status)
	}
	if got != "hello operator" {
		t.Errorf("prompt = %q, want expanded", got)
	}
}

func TestRunner_Run_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{
		OnStepComplete: func(core.StepResult) { cancel() },
	})

	result := runner.Run(ctx, []*scenario.Scenario{
		sc("first", navigate("/"), navigate("/done")),
		sc("second", navigate("/")),
	})

	first := result.Scenarios[0]
	if first.Steps[0].Status != core.StatusPassed || first.Steps[1].Status != core.StatusSkipped {
		t.Errorf("steps = %v, %v", first.Steps[0].Status, first.Steps[1].Status)
	}
	if first.Steps[1].Message != "run interrupted" {
		t.Errorf("Message = %q", first.Steps[1].Message)
	}
	if !strings.Contains(result.Scenarios[1].Error, "run interrupted") {
		t.Errorf("second Error = %q", result.Scenarios[1].Error)
	}
	if result.Success() {
		t.Error("interrupted run must not succeed")
	}
}

func TestRunner_Run_ResetsBetweenScenarios(t *testing.T) {
	runner, b := newTestRunner(t, mock.Config{}, RunnerConfig{})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("leaves popup",
			navigate("/"),
			click(popupButton, true),
			&scenario.SwitchContextStep{BaseStep: base(scenario.StepSwitchContext, true), Await: scenario.ContextOpened},
		),
		sc("leaves alert", navigate("/"), click(alertButton, true)),
		sc("clean", navigate("/done")),
	})

	for _, res := range result.Scenarios {
		if res.Status != core.ScenarioPassed {
			t.Errorf("%s: %v (%s)", res.Name, res.Status, res.Error)
		}
	}
	if b.ActiveHandle() != "window-1" {
		t.Errorf("ActiveHandle = %q, want primary", b.ActiveHandle())
	}
	if open, _ := b.IsAlertPresent(); open {
		t.Error("leftover alert should be dismissed")
	}
}

func TestRunner_Run_ClosedPopupDoesNotStopRun(t *testing.T) {
	var b *mock.Browser
	op := OperatorFunc(func(context.Context, string) error {
		// The popup closes itself while the operator walks away.
		b.CloseWindow(b.ActiveHandle())
		return errors.New("walked away")
	})
	runner, b := newTestRunner(t, mock.Config{}, RunnerConfig{Operator: op})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("abandoned in popup",
			navigate("/"),
			click(popupButton, true),
			&scenario.SwitchContextStep{BaseStep: base(scenario.StepSwitchContext, true), Await: scenario.ContextOpened},
			&scenario.ManualCheckpointStep{BaseStep: base(scenario.StepManualCheckpoint, true), Prompt: "finish sign-in"},
		),
		sc("next", navigate("/done")),
	})

	if got := result.Scenarios[0].Status; got != core.ScenarioAborted {
		t.Errorf("first = %v, want aborted", got)
	}
	if next := result.Scenarios[1]; next.Status != core.ScenarioPassed {
		t.Errorf("next = %v (%s), want passed", next.Status, next.Error)
	}
	if result.Error != "" {
		t.Errorf("run Error = %q, want none", result.Error)
	}
	if b.ActiveHandle() != "window-1" {
		t.Errorf("ActiveHandle = %q, want primary", b.ActiveHandle())
	}
}

func TestRunner_Run_RestoresBeforeDismissingAlert(t *testing.T) {
	var b *mock.Browser
	op := OperatorFunc(func(context.Context, string) error {
		b.ShowAlert("left behind")
		return nil
	})
	runner, b := newTestRunner(t, mock.Config{}, RunnerConfig{Operator: op})

	result := runner.Run(context.Background(), []*scenario.Scenario{
		sc("popup then alert",
			navigate("/"),
			click(popupButton, true),
			&scenario.SwitchContextStep{BaseStep: base(scenario.StepSwitchContext, true), Await: scenario.ContextOpened},
			&scenario.ManualCheckpointStep{BaseStep: base(scenario.StepManualCheckpoint, true), Prompt: "look around"},
		),
		sc("clean", navigate("/done")),
	})

	for _, res := range result.Scenarios {
		if res.Status != core.ScenarioPassed {
			t.Errorf("%s: %v (%s)", res.Name, res.Status, res.Error)
		}
	}
	if b.ActiveHandle() != "window-1" {
		t.Errorf("ActiveHandle = %q, want primary", b.ActiveHandle())
	}
	if open, _ := b.IsAlertPresent(); open {
		t.Error("leftover alert should be dismissed")
	}
}

func TestRunner_Run_Callbacks(t *testing.T) {
	var starts []string
	var steps, ends int
	runner, _ := newTestRunner(t, mock.Config{}, RunnerConfig{
		OnScenarioStart: func(idx, total int, name, file string) {
			if total != 2 {
				t.Errorf("total = %d, want 2", total)
			}
			starts = append(starts, name)
		},
		OnStepComplete: func(core.StepResult) { steps++ },
		OnScenarioEnd:  func(core.ScenarioResult) { ends++ },
	})

	runner.Run(context.Background(), []*scenario.Scenario{
		sc("a", navigate("/"), navigate("/done")),
		sc("b", navigate("/")),
	})

	if strings.Join(starts, ",") != "a,b" {
		t.Errorf("starts = %v", starts)
	}
	if steps != 3 || ends != 2 {
		t.Errorf("steps/ends = %d/%d, want 3/2", steps, ends)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   core.StepStatus
		category core.ErrorCategory
	}{
		{"nil", nil, core.StatusPassed, core.ErrCategoryNone},
		{"assertion", core.ErrCountMismatch, core.StatusFailed, core.ErrCategoryAssertion},
		{"wrapped lookup", errors.Join(core.ErrElementNotFound), core.StatusFailed, core.ErrCategoryLookup},
		{"driver fault", core.ErrDriverFault, core.StatusErrored, core.ErrCategoryConnection},
		{"unknown", errors.New("socket closed"), core.StatusErrored, core.ErrCategoryConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res core.StepResult
			classify(&res, outcome{}, tt.err)
			if res.Status != tt.status {
				t.Errorf("Status = %v, want %v", res.Status, tt.status)
			}
			if res.Category != tt.category {
				t.Errorf("Category = %v, want %v", res.Category, tt.category)
			}
		})
	}
}

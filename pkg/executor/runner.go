// Package executor runs scenarios against a browser session, isolating
// failures per step and aggregating results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/locator"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
	"github.com/devicelab-dev/shopsmoke/pkg/session"
)

// RunnerConfig configures the scenario runner.
type RunnerConfig struct {
	// Operator acknowledges manual checkpoints. Nil abandons every checkpoint.
	Operator Operator

	// Env holds variables available to every scenario. Scenario env wins.
	Env map[string]string

	// Live progress callbacks
	OnScenarioStart func(idx, total int, name, file string)
	OnStepComplete  func(result core.StepResult)
	OnScenarioEnd   func(result core.ScenarioResult)
}

// Runner executes scenarios sequentially against one session.
type Runner struct {
	config   RunnerConfig
	session  *session.Session
	locator  *locator.Resolver
	switcher *session.Switcher
	runID    string
}

// New creates a new Runner. The runner is the session's only user until
// Run returns.
func New(s *session.Session, cfg RunnerConfig) *Runner {
	return &Runner{
		config:   cfg,
		session:  s,
		locator:  locator.New(s),
		switcher: session.NewSwitcher(s),
		runID:    uuid.NewString(),
	}
}

// RunID identifies this runner's results.
func (r *Runner) RunID() string { return r.runID }

// Run executes scenarios in order. A driver fault stops the run: the
// remaining scenarios are reported aborted without being started. Context
// cancellation is honoured between steps.
func (r *Runner) Run(ctx context.Context, scenarios []*scenario.Scenario) *core.RunResult {
	result := &core.RunResult{
		RunID:     r.runID,
		StartTime: time.Now(),
		Scenarios: make([]core.ScenarioResult, 0, len(scenarios)),
	}
	logger.Info("run %s: %d scenario(s)", r.runID, len(scenarios))

	stopReason := ""
	for i, sc := range scenarios {
		if stopReason == "" && ctx.Err() != nil {
			stopReason = "run interrupted"
		}
		if stopReason == "" && i > 0 {
			if err := r.reset(); err != nil {
				stopReason = fmt.Sprintf("session could not be reset: %v", err)
				result.Error = stopReason
			}
		}
		if stopReason != "" {
			res := notRun(sc, stopReason)
			r.scenarioEnd(res)
			result.Scenarios = append(result.Scenarios, res)
			continue
		}

		if r.config.OnScenarioStart != nil {
			r.config.OnScenarioStart(i, len(scenarios), sc.Name(), sc.SourcePath)
		}
		res, fault := r.runScenario(ctx, sc)
		r.scenarioEnd(res)
		result.Scenarios = append(result.Scenarios, res)

		if fault != nil {
			stopReason = fmt.Sprintf("driver fault in %q: %v", sc.Name(), fault)
			result.Error = stopReason
			logger.Error("stopping run: %s", stopReason)
		}
	}

	result.Duration = time.Since(result.StartTime)
	result.ComputeSummary()
	logger.Info("run %s finished: %d passed, %d failed, %d aborted",
		r.runID, result.PassedScenarios, result.FailedScenarios, result.AbortedScenarios)
	return result
}

// RunScenario executes a single scenario.
func (r *Runner) RunScenario(ctx context.Context, sc *scenario.Scenario) core.ScenarioResult {
	res, _ := r.runScenario(ctx, sc)
	return res
}

// runScenario returns the error that made a step errored, if any.
func (r *Runner) runScenario(ctx context.Context, sc *scenario.Scenario) (core.ScenarioResult, error) {
	sr := &scenarioRunner{
		ctx:      ctx,
		scenario: sc,
		runner:   r,
	}
	return sr.run()
}

func (r *Runner) scenarioEnd(res core.ScenarioResult) {
	if r.config.OnScenarioEnd != nil {
		r.config.OnScenarioEnd(res)
	}
}

// reset returns the browser to a neutral state between scenarios: primary
// context active, no open alert. The primary context is restored first since
// prompt commands fail outright when the active context has closed.
func (r *Runner) reset() error {
	if err := r.switcher.Restore(); err != nil {
		return err
	}
	b := r.session.Browser()
	open, err := b.IsAlertPresent()
	if err != nil {
		return err
	}
	if !open {
		return nil
	}
	if text, err := b.AlertText(); err != nil {
		logger.Warn("dismissing leftover alert (text unavailable: %v)", err)
	} else {
		logger.Warn("dismissing leftover alert: %s", text)
	}
	if err := b.DismissAlert(); err != nil && !errors.Is(err, core.ErrAlertNotPresent) {
		return err
	}
	return nil
}

// notRun reports a scenario that was never started.
func notRun(sc *scenario.Scenario, reason string) core.ScenarioResult {
	res := core.ScenarioResult{
		Name:      sc.Name(),
		FilePath:  sc.SourcePath,
		Tags:      sc.Config.Tags,
		Status:    core.ScenarioAborted,
		StartTime: time.Now(),
		Error:     "not run: " + reason,
		Steps:     make([]core.StepResult, len(sc.Steps)),
	}
	for i, step := range sc.Steps {
		res.Steps[i] = skipped(i, step, "not run")
	}
	res.ComputeSummary()
	return res
}

func skipped(idx int, step scenario.Step, reason string) core.StepResult {
	return core.StepResult{
		Index:   idx,
		Command: string(step.Type()),
		Label:   scenario.Title(step),
		Fatal:   step.IsFatal(),
		Status:  core.StatusSkipped,
		Message: reason,
	}
}

package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/devicelab-dev/shopsmoke/pkg/core"
	"github.com/devicelab-dev/shopsmoke/pkg/jsengine"
	"github.com/devicelab-dev/shopsmoke/pkg/logger"
	"github.com/devicelab-dev/shopsmoke/pkg/scenario"
)

// scenarioRunner executes a single scenario.
type scenarioRunner struct {
	ctx      context.Context
	scenario *scenario.Scenario
	runner   *Runner
	script   *ScriptEngine
	steps    []core.StepResult
}

// run executes every step, stopping early on a fatal failure, an errored
// step or cancellation. The returned error is the cause of an errored step.
func (sr *scenarioRunner) run() (core.ScenarioResult, error) {
	sc := sr.scenario
	r := sr.runner
	result := core.ScenarioResult{
		Name:      sc.Name(),
		FilePath:  sc.SourcePath,
		Tags:      sc.Config.Tags,
		StartTime: time.Now(),
	}
	logger.Info("scenario %q: %d step(s)", result.Name, len(sc.Steps))

	sr.script = NewScriptEngine()
	defer sr.script.Close()
	sr.script.ImportSystemEnv()
	sr.script.SetVariables(r.config.Env)
	sr.script.SetVariables(sc.Config.Env)
	sr.script.SetRunInfo(jsengine.RunInfo{
		ID:       r.runID,
		Scenario: result.Name,
		BaseURL:  r.session.Config().BaseURL,
	})

	var fault error
	for i, step := range sc.Steps {
		if sr.ctx.Err() != nil {
			sr.skipRemaining(i, "run interrupted")
			result.Error = "run interrupted"
			break
		}

		res, err := sr.executeStep(i, step)
		sr.steps = append(sr.steps, res)
		if r.config.OnStepComplete != nil {
			r.config.OnStepComplete(res)
		}

		if res.Status == core.StatusErrored {
			fault = err
			sr.skipRemaining(i+1, "scenario aborted")
			break
		}
		if res.Status == core.StatusFailed && res.Fatal {
			sr.skipRemaining(i+1, "scenario aborted")
			break
		}
	}

	result.Steps = sr.steps
	result.Status = result.AggregateStatus()
	if f := result.FirstFailure(); f != nil {
		result.Error = fmt.Sprintf("step %d (%s): %s", f.Index+1, f.Label, f.Message)
	}
	result.Duration = time.Since(result.StartTime)
	result.ComputeSummary()
	logger.Fields(map[string]interface{}{
		"passed":  result.PassedSteps,
		"failed":  result.FailedSteps,
		"skipped": result.SkippedSteps,
	}, "scenario %q %s in %s", result.Name, result.Status, result.Duration)
	return result, fault
}

func (sr *scenarioRunner) skipRemaining(from int, reason string) {
	for j := from; j < len(sr.scenario.Steps); j++ {
		sr.steps = append(sr.steps, skipped(j, sr.scenario.Steps[j], reason))
	}
}

// executeStep runs one step inside its own failure boundary: errors and
// panics raised by the step end up in its result and nowhere else.
func (sr *scenarioRunner) executeStep(idx int, step scenario.Step) (res core.StepResult, err error) {
	res = core.StepResult{
		Index:     idx,
		Command:   string(step.Type()),
		Label:     scenario.Title(step),
		Fatal:     step.IsFatal(),
		Status:    core.StatusRunning,
		StartTime: time.Now(),
	}
	logger.Info("step %d: %s", idx+1, res.Label)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			logger.Error("step %d panicked: %v\n%s", idx+1, p, debug.Stack())
			res.Status = core.StatusErrored
			res.Category = core.ErrCategoryConnection
			res.Message = err.Error()
			res.Error = err.Error()
		}
		res.Duration = time.Since(res.StartTime)
	}()

	expanded := sr.script.ExpandStep(step)
	out, err := sr.dispatch(expanded)
	classify(&res, out, err)
	if err != nil {
		logger.Warn("step %d %s: %v", idx+1, res.Status, err)
	}
	return res, err
}

// outcome is what a successful step reports.
type outcome struct {
	message string
	data    interface{}
}

// classify maps a step error onto a status. Errors from the engine's own
// taxonomy are step failures; driver faults and unknown errors are errored.
func classify(res *core.StepResult, out outcome, err error) {
	res.Message = out.message
	res.Data = out.data
	if err == nil {
		res.Status = core.StatusPassed
		return
	}

	res.Error = err.Error()
	res.Message = err.Error()
	res.Category = core.CategoryOf(err)
	if ee, ok := core.AsExecutionError(err); ok {
		res.Code = ee.Code
		if res.Data == nil && len(ee.Details) > 0 {
			res.Data = ee.Details
		}
	}
	if core.IsDriverFault(err) {
		res.Status = core.StatusErrored
		return
	}
	res.Status = core.StatusFailed
}

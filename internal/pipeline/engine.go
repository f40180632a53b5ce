package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dbsunset/dbsunset/internal/mcpclient"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

// Engine defaults. A step with no declared timeout runs under
// defaultStepTimeout; retry backoff mirrors the MCP client's curve.
const (
	DefaultMaxParallel = 4

	defaultStepTimeout = 5 * time.Minute
	defaultGracePeriod = 5 * time.Second

	stepRetryBaseDelay = 1 * time.Second
	stepRetryCapDelay  = 30 * time.Second
	stepRetryJitter    = 50 * time.Millisecond
)

// Status is the terminal state of a whole workflow run.
type Status string

const (
	// StatusCompleted means every declared step completed.
	StatusCompleted Status = "completed"

	// StatusPartialSuccess means some steps completed before a failure or
	// cancellation ended the run.
	StatusPartialSuccess Status = "partial_success"

	// StatusFailed means the run ended with no completed steps, or with a
	// failure and nothing salvaged.
	StatusFailed Status = "failed"

	// StatusCancelled means external cancellation ended the run.
	StatusCancelled Status = "cancelled"
)

// Result aggregates a run: terminal status, wall-clock duration, the
// completed share of declared steps as a percentage, and every step's
// individual outcome keyed by step id.
type Result struct {
	Status      Status                 `json:"status"`
	Duration    time.Duration          `json:"duration"`
	SuccessRate float64                `json:"success_rate"`
	StepResults map[string]*StepResult `json:"step_results"`
	Completed   int                    `json:"steps_completed"`
	Failed      int                    `json:"steps_failed"`
	Skipped     int                    `json:"steps_skipped"`
}

// Options tune the engine. The zero value is usable: 4 parallel steps,
// five-minute step timeout, failures skip dependents but independent steps
// continue.
type Options struct {
	// MaxParallel bounds concurrently running steps. Zero means the default.
	MaxParallel int

	// StopOnError cancels every pending step after the first failure instead
	// of only skipping the failed step's dependents.
	StopOnError bool

	// StepTimeout replaces the default deadline for steps that declare none.
	StepTimeout time.Duration

	// GracePeriod bounds the wait for in-flight steps after cancellation.
	GracePeriod time.Duration

	// Log receives step lifecycle entries when set.
	Log *worklog.Log
}

// Engine runs a Plan. Safe for reuse across plans; each Execute owns its
// scheduling state.
type Engine struct {
	opts Options
}

// NewEngine creates an engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}

	if opts.StepTimeout <= 0 {
		opts.StepTimeout = defaultStepTimeout
	}

	if opts.GracePeriod <= 0 {
		opts.GracePeriod = defaultGracePeriod
	}

	return &Engine{opts: opts}
}

// stepState tracks one step through the scheduler.
type stepState int

const (
	statePending stepState = iota
	stateRunning
	stateDone
)

// completion is a running step's report back to the scheduler.
type completion struct {
	id       string
	output   any
	err      error
	attempts int
	duration time.Duration
}

// Execute runs every step of the plan, publishing each completed step's
// output into wctx before its dependents become ready. On return every MCP
// client the run touched has been closed exactly once, whatever the error
// path. Execute never returns a nil result.
func (e *Engine) Execute(ctx context.Context, plan *Plan, wctx *Context) *Result {
	start := time.Now()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	states := make(map[string]stepState, plan.Len())
	for _, step := range plan.Steps() {
		states[step.ID] = statePending
	}

	results := make(map[string]*StepResult, plan.Len())
	done := make(chan completion, plan.Len())

	running := 0
	stopping := false

	for {
		if !stopping && ctx.Err() != nil {
			stopping = true

			cancelRun()
		}

		if !stopping {
			running += e.scheduleReady(runCtx, plan, wctx, states, results, done)
		}

		e.skipBlocked(plan, states, results, stopping)

		if e.allDone(states) {
			break
		}

		if running == 0 {
			// Nothing running and nothing schedulable: the remainder is
			// unreachable, mark it skipped.
			e.skipPending(plan, states, results, "workflow stopped")

			break
		}

		comp, ok := e.awaitCompletion(ctx, done, stopping)
		if !ok {
			// Grace period expired; abandon in-flight steps as failed.
			e.failRunning(plan, states, results)

			break
		}

		running--

		e.recordCompletion(plan, wctx, states, results, comp)

		if results[comp.id].Status == StepFailed && e.opts.StopOnError && !stopping {
			stopping = true

			cancelRun()
		}
	}

	closeErr := wctx.CloseClients()
	if closeErr != nil {
		e.logf("client shutdown: %v", closeErr)
	}

	return e.buildResult(ctx, plan, results, time.Since(start))
}

// scheduleReady starts every pending step whose dependencies all completed,
// bounded by MaxParallel, and returns how many it started.
func (e *Engine) scheduleReady(ctx context.Context, plan *Plan, wctx *Context, states map[string]stepState, results map[string]*StepResult, done chan<- completion) int {
	started := 0

	for _, step := range plan.Steps() {
		if states[step.ID] != statePending {
			continue
		}

		if e.runningCount(states) >= e.opts.MaxParallel {
			break
		}

		if !e.depsCompleted(step, states, results) {
			continue
		}

		states[step.ID] = stateRunning
		started++

		e.logf("step %s (%s) started", step.ID, step.Name)

		go e.runStep(ctx, step, wctx, done)
	}

	return started
}

// depsCompleted reports whether every dependency of step completed.
func (e *Engine) depsCompleted(step *Step, states map[string]stepState, results map[string]*StepResult) bool {
	for _, dep := range step.DependsOn {
		if states[dep] != stateDone {
			return false
		}

		if results[dep].Status != StepCompleted {
			return false
		}
	}

	return true
}

// skipBlocked marks pending steps whose dependencies terminally failed or
// were skipped. When stopping, every pending step is skipped.
func (e *Engine) skipBlocked(plan *Plan, states map[string]stepState, results map[string]*StepResult, stopping bool) {
	if stopping {
		e.skipPending(plan, states, results, "workflow stopped")

		return
	}

	for _, step := range plan.Steps() {
		if states[step.ID] != statePending {
			continue
		}

		for _, dep := range step.DependsOn {
			if states[dep] != stateDone {
				continue
			}

			if results[dep].Status == StepCompleted {
				continue
			}

			states[step.ID] = stateDone
			results[step.ID] = &StepResult{
				StepID: step.ID,
				Status: StepSkipped,
				Error:  "dependency " + dep + " did not complete",
			}

			e.logf("step %s skipped: dependency %s did not complete", step.ID, dep)

			break
		}
	}
}

// skipPending marks every still-pending step skipped with the given reason.
func (e *Engine) skipPending(plan *Plan, states map[string]stepState, results map[string]*StepResult, reason string) {
	for _, step := range plan.Steps() {
		if states[step.ID] != statePending {
			continue
		}

		states[step.ID] = stateDone
		results[step.ID] = &StepResult{StepID: step.ID, Status: StepSkipped, Error: reason}
	}
}

// failRunning marks abandoned in-flight steps failed after the grace period.
func (e *Engine) failRunning(plan *Plan, states map[string]stepState, results map[string]*StepResult) {
	for _, step := range plan.Steps() {
		if states[step.ID] != stateRunning {
			continue
		}

		states[step.ID] = stateDone
		results[step.ID] = &StepResult{
			StepID: step.ID,
			Status: StepFailed,
			Error:  "abandoned after cancellation grace period",
		}
	}

	e.skipPending(plan, states, results, "workflow cancelled")
}

// awaitCompletion blocks for the next finished step. Once stopping, the wait
// is bounded by the grace period; false means the period expired.
func (e *Engine) awaitCompletion(ctx context.Context, done <-chan completion, stopping bool) (completion, bool) {
	if !stopping && ctx.Err() == nil {
		select {
		case comp := <-done:
			return comp, true
		case <-ctx.Done():
		}
	}

	select {
	case comp := <-done:
		return comp, true
	case <-time.After(e.opts.GracePeriod):
		return completion{}, false
	}
}

// recordCompletion finalizes one step and publishes its output for
// dependents. Publication happens before the step is marked done, so a
// dependent never runs ahead of its inputs.
func (e *Engine) recordCompletion(plan *Plan, wctx *Context, states map[string]stepState, results map[string]*StepResult, comp completion) {
	result := &StepResult{
		StepID:   comp.id,
		Attempts: comp.attempts,
		Duration: comp.duration,
	}

	if comp.err != nil {
		result.Status = StepFailed
		result.Error = comp.err.Error()

		e.logf("step %s failed after %d attempt(s): %v", comp.id, comp.attempts, comp.err)
	} else {
		result.Status = StepCompleted
		result.Output = comp.output

		if err := wctx.SetResult(comp.id, comp.output); err != nil {
			// Double publication is a defect in the plan, not the step.
			result.Status = StepFailed
			result.Error = err.Error()
		}

		e.logf("step %s completed in %s", comp.id, comp.duration.Round(time.Millisecond))
	}

	states[comp.id] = stateDone
	results[comp.id] = result
}

// runStep executes one step with its timeout and retry budget. Deadline and
// transport errors are the retryable categories; everything else fails the
// attempt terminally.
func (e *Engine) runStep(ctx context.Context, step *Step, wctx *Context, done chan<- completion) {
	started := time.Now()
	timeout := step.Timeout

	if timeout <= 0 {
		timeout = e.opts.StepTimeout
	}

	attempts := 0

	var output any

	attempt := func(ctx context.Context) error {
		attempts++

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := step.Run(attemptCtx, step, wctx)
		if err == nil {
			output = out

			return nil
		}

		if ctx.Err() != nil {
			// External cancellation: stop retrying regardless of category.
			return err
		}

		if errors.Is(err, context.DeadlineExceeded) || mcpclient.IsTransportError(err) {
			return retry.RetryableError(err)
		}

		return err
	}

	var err error

	if step.Retries > 0 {
		exponential := retry.NewExponential(stepRetryBaseDelay)
		exponential = retry.WithCappedDuration(stepRetryCapDelay, exponential)
		backoff := retry.WithMaxRetries(uint64(step.Retries), retry.WithJitter(stepRetryJitter, exponential))

		err = retry.Do(ctx, backoff, attempt)
	} else {
		err = attempt(ctx)
	}

	done <- completion{
		id:       step.ID,
		output:   output,
		err:      err,
		attempts: attempts,
		duration: time.Since(started),
	}
}

// runningCount counts steps currently in flight.
func (e *Engine) runningCount(states map[string]stepState) int {
	count := 0

	for _, state := range states {
		if state == stateRunning {
			count++
		}
	}

	return count
}

// allDone reports whether every step reached a terminal state.
func (e *Engine) allDone(states map[string]stepState) bool {
	for _, state := range states {
		if state != stateDone {
			return false
		}
	}

	return true
}

// buildResult derives the aggregate outcome from per-step results.
func (e *Engine) buildResult(ctx context.Context, plan *Plan, results map[string]*StepResult, duration time.Duration) *Result {
	result := &Result{
		Duration:    duration,
		StepResults: results,
	}

	for _, stepResult := range results {
		switch stepResult.Status {
		case StepCompleted:
			result.Completed++
		case StepFailed:
			result.Failed++
		case StepSkipped:
			result.Skipped++
		}
	}

	if plan.Len() > 0 {
		result.SuccessRate = float64(result.Completed) / float64(plan.Len()) * 100
	}

	switch {
	case ctx.Err() != nil:
		result.Status = StatusCancelled
	case result.Failed == 0 && result.Skipped == 0:
		result.Status = StatusCompleted
	case result.Completed > 0:
		result.Status = StatusPartialSuccess
	default:
		result.Status = StatusFailed
	}

	return result
}

func (e *Engine) logf(format string, args ...any) {
	if e.opts.Log == nil {
		return
	}

	e.opts.Log.Appendf(format, args...)
}

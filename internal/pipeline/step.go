// Package pipeline executes a typed DAG of workflow steps. A fluent builder
// validates the graph at construction, the engine schedules ready steps with
// bounded parallelism, wraps each one in a timeout and a retry budget, and
// publishes results into a shared per-run context before dependents start.
package pipeline

import (
	"context"
	"time"

	"github.com/dbsunset/dbsunset/internal/mcpclient"
)

// StepFunc is a step's executable. The step carries its own parameters; the
// context gives access to upstream results, the shared key-value area and the
// MCP client registry.
type StepFunc func(ctx context.Context, step *Step, wctx *Context) (any, error)

// Step declares one node of the workflow DAG. DependsOn may only name steps
// declared before this one, which keeps the graph acyclic by construction.
// Zero Timeout falls back to the engine default; Retries counts additional
// attempts after the first.
type Step struct {
	ID        string
	Name      string
	Kind      string
	Params    map[string]any
	DependsOn []string
	Timeout   time.Duration
	Retries   int
	Run       StepFunc
}

// StepStatus is the terminal state of one step.
type StepStatus string

const (
	// StepCompleted marks a step whose executable returned without error.
	StepCompleted StepStatus = "completed"

	// StepFailed marks a step that exhausted its attempts or hit a
	// non-retryable error.
	StepFailed StepStatus = "failed"

	// StepSkipped marks a step that never ran because a dependency failed
	// or the workflow stopped early.
	StepSkipped StepStatus = "skipped"
)

// StepResult records one step's outcome. Output is the executable's return
// value, also published to the workflow context under the step id.
type StepResult struct {
	StepID   string        `json:"step_id"`
	Status   StepStatus    `json:"status"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// BindTool adapts one MCP tool call into a step executable: the step's
// parameters become the tool arguments and the decoded result map becomes
// the step output.
func BindTool(client *mcpclient.Client, tool string) StepFunc {
	return func(ctx context.Context, step *Step, _ *Context) (any, error) {
		return client.Invoke(ctx, tool, step.Params)
	}
}

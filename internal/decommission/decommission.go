// Package decommission assembles the concrete database-decommissioning
// workflow: validate the environment, discover references across the target
// repositories, refactor the matched files through the agentic processor,
// open pull requests with the edits, score the run and summarize it. The
// steps form a linear chain executed by the pipeline engine; every external
// effect goes through an MCP capability.
package decommission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/mcpclient"
	"github.com/dbsunset/dbsunset/internal/pipeline"
	"github.com/dbsunset/dbsunset/internal/rules"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

// Step ids, also the context keys their outputs are published under.
const (
	StepValidate    = "validate_environment"
	StepProcess     = "process_repositories"
	StepRefactor    = "apply_refactoring"
	StepPullRequest = "create_github_pr"
	StepQuality     = "quality_assurance"
	StepSummary     = "workflow_summary"
)

// Shared context keys written by steps for their dependents, in addition to
// the per-step result the engine publishes.
const (
	keyDiscovery   = "discovery"
	keyRefactoring = "refactoring"
)

var (
	// ErrMissingDiscovery is returned when a step needs discovery results
	// that were never published.
	ErrMissingDiscovery = errors.New("decommission: discovery results not in context")

	// ErrMissingRefactoring is returned when a step needs refactoring
	// results that were never published.
	ErrMissingRefactoring = errors.New("decommission: refactoring results not in context")
)

// ValidationError reports a missing parameter or dependency. Validation
// failures surface before any external call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("decommission: invalid %s: %s", e.Field, e.Reason)
}

// Deps carries the external collaborators a workflow run needs. Clients is
// the registry the engine closes at the end of the run; the capability
// wrappers must be built over clients from that registry.
type Deps struct {
	Clients       *mcpclient.Registry
	SourceControl *mcpclient.SourceControl
	PackGrep      *mcpclient.PackGrep
	Chat          *mcpclient.Chat
	Model         llms.Model
	Log           *worklog.Log
}

// Options tunes one workflow run.
type Options struct {
	Database     string
	Repos        []string
	SlackChannel string

	IncludePatterns []string
	ExcludePatterns []string

	// RepoWorkers bounds the per-repo fan-out in process_repositories.
	RepoWorkers int

	// BatchSize and AgenticWorkers tune the agentic processor.
	BatchSize      int
	AgenticWorkers int

	// Verify re-runs discovery after refactoring and emits a verification
	// table during quality assurance.
	Verify bool
}

// DefaultRepoWorkers bounds the per-repo fan-out when Options leaves it zero.
const DefaultRepoWorkers = 3

// Workflow is one configured decommissioning run. Build the plan with Plan
// and hand it to a pipeline engine together with a context created over
// Deps.Clients.
type Workflow struct {
	deps Deps
	opts Options

	classifier *classify.Classifier
	rules      *rules.Engine

	now func() time.Time
}

// New validates options and dependencies and builds a workflow.
func New(deps Deps, opts Options) (*Workflow, error) {
	if opts.Database == "" {
		return nil, &ValidationError{Field: "database", Reason: "must not be empty"}
	}

	if len(opts.Repos) == 0 {
		return nil, &ValidationError{Field: "repos", Reason: "at least one repository required"}
	}

	if deps.SourceControl == nil {
		return nil, &ValidationError{Field: "source control client", Reason: "required"}
	}

	if deps.PackGrep == nil {
		return nil, &ValidationError{Field: "pack/grep client", Reason: "required"}
	}

	if deps.Model == nil {
		return nil, &ValidationError{Field: "model", Reason: "required"}
	}

	if opts.RepoWorkers <= 0 {
		opts.RepoWorkers = DefaultRepoWorkers
	}

	return &Workflow{
		deps: deps,
		opts: opts,
		now:  time.Now,
	}, nil
}

// Plan builds the six-step linear chain.
func (w *Workflow) Plan() (*pipeline.Plan, error) {
	return pipeline.NewBuilder().
		Add(pipeline.Step{
			ID:   StepValidate,
			Name: "Validate environment",
			Kind: "validation",
			Run:  w.validateEnvironment,
		}).
		Add(pipeline.Step{
			ID:        StepProcess,
			Name:      "Process repositories",
			Kind:      "discovery",
			DependsOn: []string{StepValidate},
			Run:       w.processRepositories,
		}).
		Add(pipeline.Step{
			ID:        StepRefactor,
			Name:      "Apply refactoring",
			Kind:      "refactoring",
			DependsOn: []string{StepProcess},
			Run:       w.applyRefactoring,
		}).
		Add(pipeline.Step{
			ID:        StepPullRequest,
			Name:      "Create pull requests",
			Kind:      "integration",
			DependsOn: []string{StepRefactor},
			Run:       w.createPullRequests,
		}).
		Add(pipeline.Step{
			ID:        StepQuality,
			Name:      "Quality assurance",
			Kind:      "qa",
			DependsOn: []string{StepPullRequest},
			Run:       w.qualityAssurance,
		}).
		Add(pipeline.Step{
			ID:        StepSummary,
			Name:      "Workflow summary",
			Kind:      "summary",
			DependsOn: []string{StepQuality},
			Run:       w.workflowSummary,
		}).
		Build()
}

func (w *Workflow) logf(format string, args ...any) {
	if w.deps.Log != nil {
		w.deps.Log.Appendf(format, args...)
	}
}

func (w *Workflow) warn(body string) {
	if w.deps.Log != nil {
		w.deps.Log.AppendText(body, worklog.LevelWarning, nil)
	}
}

// notify posts to the configured Slack channel. Posting is best-effort; a
// failure becomes a warning entry, never an error.
func (w *Workflow) notify(ctx context.Context, text string) {
	if w.deps.Chat == nil || w.opts.SlackChannel == "" {
		return
	}

	err := w.deps.Chat.PostMessage(ctx, w.opts.SlackChannel, text)
	if err != nil {
		w.warn(fmt.Sprintf("slack post failed: %v", err))
	}
}

// Package commands implements CLI command handlers for dbsunset.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel/metric"

	"github.com/dbsunset/dbsunset/internal/agentic"
	"github.com/dbsunset/dbsunset/internal/config"
	"github.com/dbsunset/dbsunset/internal/decommission"
	"github.com/dbsunset/dbsunset/internal/mcpclient"
	"github.com/dbsunset/dbsunset/internal/observability"
	"github.com/dbsunset/dbsunset/internal/pipeline"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

// Workflow run modes.
const (
	ModeWorkflow  = "workflow"
	ModeE2E       = "e2e"
	modeStreamlit = "streamlit"
)

var (
	// ErrUnknownMode is returned for a --mode outside workflow|e2e.
	ErrUnknownMode = errors.New("unknown mode (want workflow or e2e)")

	// ErrWorkflowFailed is returned when the run ends in a failed status.
	ErrWorkflowFailed = errors.New("workflow failed")
)

// DecommissionCommand holds configuration for the decommission command.
type DecommissionCommand struct {
	database     string
	repos        []string
	slackChannel string
	configPath   string
	manifestPath string
	mode         string
	planOnly     bool
	snapshotDir  string
	diagAddr     string

	out io.Writer
}

// NewDecommissionCommand creates the decommission subcommand.
func NewDecommissionCommand() *cobra.Command {
	dc := &DecommissionCommand{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "decommission",
		Short: "Run the decommissioning workflow against target repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dc.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&dc.database, "database", "", "database identifier to decommission")
	flags.StringSliceVar(&dc.repos, "repos", nil, "target repository URLs (comma-separated)")
	flags.StringVar(&dc.slackChannel, "slack-channel", "", "Slack channel id for progress notifications")
	flags.StringVar(&dc.configPath, "config", "", "path to a .dbsunset config file")
	flags.StringVar(&dc.manifestPath, "manifest", "", "path to the MCP server manifest")
	flags.StringVar(&dc.mode, "mode", ModeWorkflow, "run mode: workflow or e2e")
	flags.BoolVar(&dc.planOnly, "plan", false, "print the execution plan and exit")
	flags.StringVar(&dc.snapshotDir, "snapshot-dir", "", "directory for workflow log snapshots")
	flags.StringVar(&dc.diagAddr, "diagnostics-addr", "", "serve /healthz,/readyz,/metrics at this address for the duration of the run")

	_ = cmd.MarkFlagRequired("database")
	_ = cmd.MarkFlagRequired("repos")

	return cmd
}

// Run executes the decommissioning workflow.
func (dc *DecommissionCommand) Run(ctx context.Context) error {
	if dc.mode == modeStreamlit {
		fmt.Fprintln(dc.out, "The streamlit dashboard was replaced: run `dbsunset serve` and open /workflows in a browser.")

		return nil
	}

	if dc.mode != ModeWorkflow && dc.mode != ModeE2E {
		return fmt.Errorf("%w: %q", ErrUnknownMode, dc.mode)
	}

	cfg, err := config.LoadConfig(dc.configPath)
	if err != nil {
		return err
	}

	dc.applyFlagOverrides(cfg)

	providers, err := observability.Init(observability.DefaultConfig())
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = providers.Shutdown(shutdownCtx)
	}()

	slog.SetDefault(providers.Logger)

	diag, err := dc.startDiagnostics(providers.Meter)
	if err != nil {
		return err
	}

	if diag != nil {
		defer func() {
			_ = diag.Close()
		}()
	}

	workflowID := "wf-" + uuid.NewString()[:8]
	log := worklog.NewLog(workflowID)

	if dc.planOnly {
		return dc.printPlan(cfg)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workflow, wctx, err := dc.buildWorkflow(cfg, log)
	if err != nil {
		return err
	}

	plan, err := workflow.Plan()
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "workflow starting",
		"workflow_id", workflowID, "database", dc.database, "repos", len(dc.repos), "mode", dc.mode)

	engine := pipeline.NewEngine(pipeline.Options{
		MaxParallel: cfg.Pipeline.MaxParallelSteps,
		StopOnError: cfg.Pipeline.StopOnError,
		StepTimeout: cfg.StepTimeoutDuration(),
		Log:         log,
	})

	result := engine.Execute(ctx, plan, wctx)

	dc.recordMetrics(ctx, providers, result)
	dc.saveSnapshot(cfg, log)
	dc.printResult(result)

	switch result.Status {
	case pipeline.StatusCancelled:
		return fmt.Errorf("workflow interrupted: %w", context.Canceled)
	case pipeline.StatusFailed, pipeline.StatusPartialSuccess:
		return fmt.Errorf("%w: %d of %d steps completed",
			ErrWorkflowFailed, result.Completed, len(result.StepResults))
	default:
		return nil
	}
}

// startDiagnostics serves health and metrics endpoints for the duration of
// the run when --diagnostics-addr is set. Returns nil without error when the
// flag is empty.
func (dc *DecommissionCommand) startDiagnostics(meter metric.Meter) (*observability.DiagnosticsServer, error) {
	if dc.diagAddr == "" {
		return nil, nil
	}

	diag, err := observability.NewDiagnosticsServer(dc.diagAddr, meter)
	if err != nil {
		return nil, err
	}

	slog.Info("diagnostics listening", "addr", diag.Addr())

	return diag, nil
}

func (dc *DecommissionCommand) applyFlagOverrides(cfg *config.Config) {
	if dc.manifestPath != "" {
		cfg.Manifest = dc.manifestPath
	}

	if dc.snapshotDir != "" {
		cfg.Snapshot.Dir = dc.snapshotDir
	}

	if dc.slackChannel == "" {
		dc.slackChannel = cfg.Slack.Channel
	}
}

// buildWorkflow loads the manifest, connects the capability clients and
// assembles the workflow. The chat client is optional: a missing server
// entry downgrades notifications, it does not fail the run.
func (dc *DecommissionCommand) buildWorkflow(cfg *config.Config, log *worklog.Log) (*decommission.Workflow, *pipeline.Context, error) {
	manifest, err := mcpclient.LoadManifest(cfg.Manifest)
	if err != nil {
		return nil, nil, err
	}

	registry := mcpclient.NewRegistry(manifest)

	sourceControl, err := registry.Get(cfg.Servers.SourceControl)
	if err != nil {
		return nil, nil, err
	}

	packGrep, err := registry.Get(cfg.Servers.PackGrep)
	if err != nil {
		return nil, nil, err
	}

	deps := decommission.Deps{
		Clients:       registry,
		SourceControl: mcpclient.NewSourceControl(sourceControl, cfg.Pipeline.RetryCount),
		PackGrep:      mcpclient.NewPackGrep(packGrep, cfg.Pipeline.RetryCount),
		Log:           log,
	}

	if dc.slackChannel != "" {
		chat, chatErr := registry.Get(cfg.Servers.Chat)
		if chatErr != nil {
			slog.Warn("chat server unavailable, notifications disabled", "error", chatErr)
		} else {
			deps.Chat = mcpclient.NewChat(chat, cfg.Pipeline.RetryCount)
		}
	}

	deps.Model, err = agentic.NewModel(agentic.ModelConfig{
		Model:   cfg.Agentic.Model,
		BaseURL: cfg.Agentic.BaseURL,
	})
	if err != nil {
		return nil, nil, err
	}

	workflow, err := decommission.New(deps, decommission.Options{
		Database:        dc.database,
		Repos:           dc.repos,
		SlackChannel:    dc.slackChannel,
		IncludePatterns: cfg.Discovery.IncludePatterns,
		ExcludePatterns: cfg.Discovery.ExcludePatterns,
		RepoWorkers:     cfg.Discovery.RepoWorkers,
		BatchSize:       cfg.Agentic.BatchSize,
		AgenticWorkers:  cfg.Agentic.Workers,
		Verify:          dc.mode == ModeE2E,
	})
	if err != nil {
		return nil, nil, err
	}

	return workflow, pipeline.NewContext(registry), nil
}

// printPlan renders the execution waves without touching any server.
func (dc *DecommissionCommand) printPlan(cfg *config.Config) error {
	workflow, err := decommission.New(decommission.Deps{
		SourceControl: mcpclient.NewSourceControl(nil, 0),
		PackGrep:      mcpclient.NewPackGrep(nil, 0),
		Model:         planModel{},
	}, decommission.Options{
		Database: dc.database,
		Repos:    dc.repos,
		Verify:   dc.mode == ModeE2E,
	})
	if err != nil {
		return err
	}

	plan, err := workflow.Plan()
	if err != nil {
		return err
	}

	title := color.New(color.Bold)
	title.Fprintf(dc.out, "Execution plan for %s (%d repositories, max %d parallel steps)\n",
		dc.database, len(dc.repos), cfg.Pipeline.MaxParallelSteps)

	for w, wave := range plan.Levels() {
		fmt.Fprintf(dc.out, "  wave %d: %s\n", w+1, strings.Join(wave, ", "))
	}

	return nil
}

func (dc *DecommissionCommand) recordMetrics(ctx context.Context, providers observability.Providers, result *pipeline.Result) {
	metrics, err := observability.NewWorkflowMetrics(providers.Meter)
	if err != nil {
		slog.Warn("workflow metrics unavailable", "error", err)

		return
	}

	stats := observability.WorkflowStats{}

	for id, step := range result.StepResults {
		stats.Steps = append(stats.Steps, observability.StepStat{
			ID:       id,
			Status:   string(step.Status),
			Duration: step.Duration,
		})
	}

	if scans, ok := result.StepResults[decommission.StepProcess]; ok {
		if record, typed := scans.Output.(decommission.DiscoveryRecord); typed {
			stats.FilesDiscovered = int64(record.TotalFiles())
		}
	}

	if refactor, ok := result.StepResults[decommission.StepRefactor]; ok {
		if record, typed := refactor.Output.(decommission.RefactoringRecord); typed {
			stats.FilesModified = int64(record.FilesModified)
		}
	}

	metrics.RecordRun(ctx, stats)
}

func (dc *DecommissionCommand) saveSnapshot(cfg *config.Config, log *worklog.Log) {
	if cfg.Snapshot.Dir == "" {
		return
	}

	store := worklog.NewStore(cfg.Snapshot.Dir, cfg.Snapshot.Compress)

	path, err := store.Save(log)
	if err != nil {
		slog.Warn("snapshot not saved", "error", err)

		return
	}

	fmt.Fprintf(dc.out, "Workflow log saved to %s\n", path)
}

func (dc *DecommissionCommand) printResult(result *pipeline.Result) {
	statusColor := color.New(color.FgGreen, color.Bold)

	switch result.Status {
	case pipeline.StatusFailed, pipeline.StatusCancelled:
		statusColor = color.New(color.FgRed, color.Bold)
	case pipeline.StatusPartialSuccess:
		statusColor = color.New(color.FgYellow, color.Bold)
	}

	statusColor.Fprintf(dc.out, "\nWorkflow %s", result.Status)
	fmt.Fprintf(dc.out, " in %s (%.0f%% of steps completed)\n",
		result.Duration.Round(time.Millisecond), result.SuccessRate)

	if summaryStep, ok := result.StepResults[decommission.StepSummary]; ok {
		if summary, typed := summaryStep.Output.(decommission.SummaryRecord); typed {
			fmt.Fprintf(dc.out, "  %s files matched, %s modified, %s pull request(s)\n",
				humanize.Comma(int64(summary.FilesMatched)),
				humanize.Comma(int64(summary.FilesModified)),
				humanize.Comma(int64(summary.PullRequests)))
		}
	}
}

// planModel satisfies the workflow's model requirement for --plan runs that
// never execute a step.
type planModel struct{}

func (planModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, errors.New("plan-only model")
}

func (planModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("plan-only model")
}

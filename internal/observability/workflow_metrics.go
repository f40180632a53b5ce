package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricStepsTotal      = "dbsunset.workflow.steps.total"
	metricStepDuration    = "dbsunset.workflow.step.duration.seconds"
	metricFilesDiscovered = "dbsunset.workflow.files.discovered.total"
	metricFilesModified   = "dbsunset.workflow.files.modified.total"
	metricLLMBatchesTotal = "dbsunset.workflow.llm.batches.total"

	attrStep = "step"
)

// WorkflowMetrics holds OTel instruments for decommissioning run metrics.
type WorkflowMetrics struct {
	stepsTotal      metric.Int64Counter
	stepDuration    metric.Float64Histogram
	filesDiscovered metric.Int64Counter
	filesModified   metric.Int64Counter
	llmBatches      metric.Int64Counter
}

// StepStat is one step's outcome for metric recording, decoupled from
// pipeline types.
type StepStat struct {
	ID       string
	Status   string
	Duration time.Duration
}

// WorkflowStats holds the statistics of a single decommissioning run.
type WorkflowStats struct {
	Steps           []StepStat
	FilesDiscovered int64
	FilesModified   int64
	LLMBatchesOK    int64
	LLMBatchesErr   int64
}

// NewWorkflowMetrics creates workflow metric instruments from the given meter.
func NewWorkflowMetrics(mt metric.Meter) (*WorkflowMetrics, error) {
	b := newMetricBuilder(mt)

	wm := &WorkflowMetrics{
		stepsTotal:      b.counter(metricStepsTotal, "Workflow steps by terminal status", "{step}"),
		stepDuration:    b.histogram(metricStepDuration, "Per-step execution duration in seconds", "s", durationBucketBoundaries...),
		filesDiscovered: b.counter(metricFilesDiscovered, "Files matched during discovery", "{file}"),
		filesModified:   b.counter(metricFilesModified, "Files rewritten during refactoring", "{file}"),
		llmBatches:      b.counter(metricLLMBatchesTotal, "LLM batches by outcome", "{batch}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return wm, nil
}

// RecordRun records the statistics of a completed decommissioning run.
// Safe to call on a nil receiver (no-op).
func (wm *WorkflowMetrics) RecordRun(ctx context.Context, stats WorkflowStats) {
	if wm == nil {
		return
	}

	for _, step := range stats.Steps {
		attrs := metric.WithAttributes(
			attribute.String(attrStep, step.ID),
			attribute.String(attrStatus, step.Status),
		)

		wm.stepsTotal.Add(ctx, 1, attrs)
		wm.stepDuration.Record(ctx, step.Duration.Seconds(), metric.WithAttributes(
			attribute.String(attrStep, step.ID),
		))
	}

	wm.filesDiscovered.Add(ctx, stats.FilesDiscovered)
	wm.filesModified.Add(ctx, stats.FilesModified)

	wm.llmBatches.Add(ctx, stats.LLMBatchesOK, metric.WithAttributes(
		attribute.String(attrStatus, "ok"),
	))
	wm.llmBatches.Add(ctx, stats.LLMBatchesErr, metric.WithAttributes(
		attribute.String(attrStatus, statusError),
	))
}

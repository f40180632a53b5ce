package decommission

import (
	"context"
	"fmt"

	"github.com/dbsunset/dbsunset/internal/pipeline"
)

// workflowSummary assembles the final counts from every published step
// result, emits the summary table and returns the record as the workflow's
// outcome. Success rate is the fraction of quality checks that passed.
func (w *Workflow) workflowSummary(ctx context.Context, _ *pipeline.Step, wctx *pipeline.Context) (any, error) {
	scans, err := discoveryFromContext(wctx)
	if err != nil {
		return nil, err
	}

	refactoring, err := refactoringFromContext(wctx)
	if err != nil {
		return nil, err
	}

	prs, err := pullRequestsFromContext(wctx)
	if err != nil {
		return nil, err
	}

	qa, err := qaFromContext(wctx)
	if err != nil {
		return nil, err
	}

	record := SummaryRecord{
		Database:       w.opts.Database,
		ReposRequested: len(w.opts.Repos),
		ReposScanned:   len(scans.Repos),
		ReposSkipped:   len(scans.Skipped),
		FilesMatched:   scans.TotalFiles(),
		FilesProcessed: refactoring.FilesProcessed,
		FilesModified:  refactoring.FilesModified,
		PullRequests:   len(prs),
		ChecksTotal:    len(qa.Checks),
	}

	for _, check := range qa.Checks {
		if check.Status != CheckFail {
			record.ChecksPassed++
		}
	}

	if record.ChecksTotal > 0 {
		record.SuccessRate = float64(record.ChecksPassed) / float64(record.ChecksTotal) * 100
	}

	if w.deps.Log != nil {
		rows := [][]any{
			{"Repositories requested", record.ReposRequested},
			{"Repositories scanned", record.ReposScanned},
			{"Repositories skipped", record.ReposSkipped},
			{"Files matched", record.FilesMatched},
			{"Files processed", record.FilesProcessed},
			{"Files modified", record.FilesModified},
			{"Pull requests opened", record.PullRequests},
			{"Quality checks passed", fmt.Sprintf("%d/%d", record.ChecksPassed, record.ChecksTotal)},
			{"Success rate", fmt.Sprintf("%.0f%%", record.SuccessRate)},
		}

		_, err = w.deps.Log.AppendTable([]string{"Metric", "Value"}, rows,
			fmt.Sprintf("Decommission summary: %s", w.opts.Database),
			map[string]any{"database": w.opts.Database})
		if err != nil {
			return nil, err
		}
	}

	w.notify(ctx, fmt.Sprintf(
		"Decommission workflow for `%s` finished: %d repos scanned, %d files modified, %d pull request(s), %d/%d checks passed",
		record.Database, record.ReposScanned, record.FilesModified,
		record.PullRequests, record.ChecksPassed, record.ChecksTotal))

	return record, nil
}

func pullRequestsFromContext(wctx *pipeline.Context) ([]PullRequestRecord, error) {
	value, err := wctx.RequireResult(StepPullRequest)
	if err != nil {
		return nil, err
	}

	records, ok := value.([]PullRequestRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected %s result type %T", StepPullRequest, value)
	}

	return records, nil
}

func qaFromContext(wctx *pipeline.Context) (QARecord, error) {
	value, err := wctx.RequireResult(StepQuality)
	if err != nil {
		return QARecord{}, err
	}

	record, ok := value.(QARecord)
	if !ok {
		return QARecord{}, fmt.Errorf("unexpected %s result type %T", StepQuality, value)
	}

	return record, nil
}

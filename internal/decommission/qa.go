package decommission

import (
	"context"
	"fmt"

	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/discovery"
	"github.com/dbsunset/dbsunset/internal/pipeline"
)

// serviceIntegrityThreshold is the combined Python and Shell match count
// above which the run is flagged for manual review: heavy executable-code
// coupling suggests the database is load-bearing, not vestigial.
const serviceIntegrityThreshold = 5

// qualityAssurance scores the run: reference removal coverage, rule
// compliance across source types and a service-integrity risk flag. In
// verify mode it re-runs discovery and emits a before/after table.
func (w *Workflow) qualityAssurance(ctx context.Context, _ *pipeline.Step, wctx *pipeline.Context) (any, error) {
	scans, err := discoveryFromContext(wctx)
	if err != nil {
		return nil, err
	}

	record := ScoreQuality(w.opts.Database, scans)

	if w.opts.Verify {
		err = w.verifyRediscovery(ctx, scans)
		if err != nil {
			return nil, err
		}
	}

	if w.deps.Log != nil {
		rows := make([][]any, 0, len(record.Checks))
		for _, check := range record.Checks {
			rows = append(rows, []any{check.Name, check.Status, check.Detail})
		}

		_, err = w.deps.Log.AppendTable([]string{"Check", "Status", "Detail"}, rows,
			"Quality assurance", map[string]any{"database": w.opts.Database})
		if err != nil {
			return nil, err
		}

		for _, recommendation := range record.Recommendations {
			w.logf("recommendation: %s", recommendation)
		}
	}

	return record, nil
}

// ScoreQuality scores the three quality gates over the discovery results.
func ScoreQuality(database string, scans DiscoveryRecord) QARecord {
	record := QARecord{}

	record.add(checkReferenceRemoval(database, scans))
	record.add(checkRuleCompliance(scans))
	record.add(checkServiceIntegrity(scans))

	return record
}

func (r *QARecord) add(check QACheck, recommendations []string) {
	r.Checks = append(r.Checks, check)
	r.Recommendations = append(r.Recommendations, recommendations...)
}

// checkReferenceRemoval passes when discovery matched something and at least
// 80% of the matched files sit in the high-confidence band.
func checkReferenceRemoval(database string, scans DiscoveryRecord) (QACheck, []string) {
	total := scans.TotalFiles()
	if total == 0 {
		return QACheck{
			Name:   "reference removal",
			Status: CheckFail,
			Detail: "discovery matched no files",
		}, []string{fmt.Sprintf("verify that %q is the right database identifier for the target repositories", database)}
	}

	high := 0
	for _, scan := range scans.Repos {
		high += scan.Result.ConfidenceDistribution.High
	}

	fraction := float64(high) / float64(total)
	if fraction < 0.8 {
		return QACheck{
			Name:   "reference removal",
			Status: CheckFail,
			Detail: fmt.Sprintf("only %.0f%% of %d matched files are high confidence", fraction*100, total),
		}, []string{"review the low-confidence matches by hand before merging"}
	}

	return QACheck{
		Name:   "reference removal",
		Status: CheckPass,
		Detail: fmt.Sprintf("%d files matched, %.0f%% high confidence", total, fraction*100),
	}, nil
}

// checkRuleCompliance passes when the matches span at least two distinct
// source types, evidence that classification actually discriminated.
func checkRuleCompliance(scans DiscoveryRecord) (QACheck, []string) {
	types := map[classify.SourceType]bool{}

	for _, scan := range scans.Repos {
		for _, file := range scan.Result.Files {
			types[file.SourceType] = true
		}
	}

	if len(types) < 2 {
		return QACheck{
			Name:   "rule compliance",
			Status: CheckFail,
			Detail: fmt.Sprintf("matches span %d source type(s), expected at least 2", len(types)),
		}, []string{"widen the include patterns: single-type coverage usually means config or code files were excluded"}
	}

	return QACheck{
		Name:   "rule compliance",
		Status: CheckPass,
		Detail: fmt.Sprintf("matches span %d source types", len(types)),
	}, nil
}

// checkServiceIntegrity warns on heavy Python and Shell coupling.
func checkServiceIntegrity(scans DiscoveryRecord) (QACheck, []string) {
	matches := 0

	for _, scan := range scans.Repos {
		for _, file := range scan.Result.Files {
			if file.SourceType == classify.TypePython || file.SourceType == classify.TypeShell {
				matches += file.MatchCount
			}
		}
	}

	if matches > serviceIntegrityThreshold {
		return QACheck{
			Name:   "service integrity",
			Status: CheckWarn,
			Detail: fmt.Sprintf("%d matches in Python/Shell code, threshold %d", matches, serviceIntegrityThreshold),
		}, []string{"run the affected services in a staging environment before decommissioning the database"}
	}

	return QACheck{
		Name:   "service integrity",
		Status: CheckPass,
		Detail: fmt.Sprintf("%d matches in Python/Shell code", matches),
	}, nil
}

// verifyRediscovery rescans every repository and emits a before/after match
// table. The rescan hits the upstream repositories, so remaining matches are
// expected until the pull requests merge; the table is evidence, not a gate.
func (w *Workflow) verifyRediscovery(ctx context.Context, scans DiscoveryRecord) error {
	engine, err := discovery.NewEngine(w.deps.PackGrep, w.classifier, nil, discovery.Options{
		IncludePatterns: w.opts.IncludePatterns,
		ExcludePatterns: w.opts.ExcludePatterns,
	})
	if err != nil {
		return err
	}

	rows := make([][]any, 0, len(scans.Repos))

	for _, scan := range scans.Repos {
		after, err := engine.Discover(ctx, w.opts.Database, scan.Repo.URL)
		if err != nil {
			return fmt.Errorf("verify %s: %w", scan.Repo, err)
		}

		rows = append(rows, []any{scan.Repo.String(), scan.Result.TotalMatches(), after.TotalMatches()})
	}

	if w.deps.Log == nil {
		return nil
	}

	_, err = w.deps.Log.AppendTable([]string{"Repository", "Matches before", "Matches after"}, rows,
		"Verification rescan", map[string]any{"database": w.opts.Database})

	return err
}

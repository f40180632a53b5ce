package decommission

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/pipeline"
	"github.com/dbsunset/dbsunset/internal/rules"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

// BranchName is the feature branch for one run: decommission-<db>-<unix_ts>.
func BranchName(database string, unixTS int64) string {
	return fmt.Sprintf("decommission-%s-%d", database, unixTS)
}

// CommitMessage names the source type and change count of one file commit.
func CommitMessage(sourceType classify.SourceType, database, path string, changes int) string {
	return fmt.Sprintf("refactor(%s): remove %s references from %s (%d changes)",
		sourceType, database, path, changes)
}

// PRTitle is the pull request title for one repository.
func PRTitle(database string) string {
	return fmt.Sprintf("Decommission %s database references", database)
}

// PRBody renders the Markdown pull request body: Summary, Changes by File
// Type, Modified Files and a generated-by footer.
func PRBody(database string, results []rules.FileProcessingResult) string {
	type typeStat struct {
		files   int
		changes int
	}

	stats := map[classify.SourceType]*typeStat{}
	totalChanges := 0

	for _, result := range results {
		stat, ok := stats[result.SourceType]
		if !ok {
			stat = &typeStat{}
			stats[result.SourceType] = stat
		}

		stat.files++
		stat.changes += result.TotalChanges
		totalChanges += result.TotalChanges
	}

	types := make([]classify.SourceType, 0, len(stats))
	for sourceType := range stats {
		types = append(types, sourceType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var sb strings.Builder

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "This pull request removes references to the `%s` database: %d file(s) modified, %d change(s) in total.\n\n",
		database, len(results), totalChanges)

	sb.WriteString("## Changes by File Type\n\n")

	for _, sourceType := range types {
		stat := stats[sourceType]
		fmt.Fprintf(&sb, "- **%s**: %d file(s), %d change(s)\n", sourceType, stat.files, stat.changes)
	}

	sb.WriteString("\n## Modified Files\n\n")

	for _, result := range results {
		fmt.Fprintf(&sb, "- `%s` (%d changes)\n", result.FilePath, result.TotalChanges)
	}

	sb.WriteString("\n---\n*Generated by dbsunset*\n")

	return sb.String()
}

// createPullRequests commits each repository's modified files on a fresh
// fork branch and opens a pull request against the upstream default branch.
// Repositories without changes are passed over; when no repository changed
// at all a "No changes to commit" entry is logged and the record is empty.
func (w *Workflow) createPullRequests(ctx context.Context, _ *pipeline.Step, wctx *pipeline.Context) (any, error) {
	refactoring, err := refactoringFromContext(wctx)
	if err != nil {
		return nil, err
	}

	var records []PullRequestRecord

	for _, repo := range refactoring.Repos {
		modified := modifiedFiles(repo.Results)
		if len(modified) == 0 {
			continue
		}

		record, err := w.openPullRequest(ctx, repo.Repo, modified)
		if err != nil {
			return nil, fmt.Errorf("pull request for %s: %w", repo.Repo, err)
		}

		records = append(records, record)

		w.notify(ctx, fmt.Sprintf("Opened %s for `%s` decommission in %s (%d files)",
			record.PRURL, w.opts.Database, repo.Repo, record.FilesCommitted))
	}

	if len(records) == 0 {
		if w.deps.Log != nil {
			w.deps.Log.AppendText("No changes to commit", worklog.LevelInfo, nil)
		}

		return []PullRequestRecord{}, nil
	}

	return records, nil
}

// modifiedFiles keeps the results that carry an actual rewrite.
func modifiedFiles(results []rules.FileProcessingResult) []rules.FileProcessingResult {
	var modified []rules.FileProcessingResult

	for _, result := range results {
		if result.Success && result.TotalChanges > 0 && result.ModifiedContent != "" {
			modified = append(modified, result)
		}
	}

	return modified
}

func (w *Workflow) openPullRequest(ctx context.Context, repo RepoRef, modified []rules.FileProcessingResult) (PullRequestRecord, error) {
	fork, err := w.deps.SourceControl.ForkRepository(ctx, repo.Owner, repo.Name)
	if err != nil {
		return PullRequestRecord{}, fmt.Errorf("fork: %w", err)
	}

	branch := BranchName(w.opts.Database, w.now().Unix())

	err = w.deps.SourceControl.CreateBranch(ctx, fork.Owner, fork.Name, branch, fork.DefaultBranch)
	if err != nil {
		return PullRequestRecord{}, fmt.Errorf("branch %s: %w", branch, err)
	}

	for _, file := range modified {
		message := CommitMessage(file.SourceType, w.opts.Database, file.FilePath, file.TotalChanges)

		err = w.deps.SourceControl.CreateOrUpdateFile(ctx, fork.Owner, fork.Name,
			file.FilePath, file.ModifiedContent, message, branch)
		if err != nil {
			return PullRequestRecord{}, fmt.Errorf("commit %s: %w", file.FilePath, err)
		}
	}

	upstream, err := w.deps.SourceControl.GetRepository(ctx, repo.Owner, repo.Name)
	if err != nil {
		return PullRequestRecord{}, fmt.Errorf("upstream: %w", err)
	}

	pr, err := w.deps.SourceControl.CreatePullRequest(ctx, repo.Owner, repo.Name,
		PRTitle(w.opts.Database), fork.Owner+":"+branch, upstream.DefaultBranch,
		PRBody(w.opts.Database, modified))
	if err != nil {
		return PullRequestRecord{}, fmt.Errorf("open: %w", err)
	}

	w.logf("opened pull request #%d for %s: %s", pr.Number, repo, pr.HTMLURL)

	return PullRequestRecord{
		Repo:           repo,
		PRNumber:       pr.Number,
		PRURL:          pr.HTMLURL,
		Branch:         branch,
		FilesCommitted: len(modified),
	}, nil
}

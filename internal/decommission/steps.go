package decommission

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dbsunset/dbsunset/internal/agentic"
	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/discovery"
	"github.com/dbsunset/dbsunset/internal/pipeline"
	"github.com/dbsunset/dbsunset/internal/rules"
)

// validateEnvironment builds the classifier and the rules engine and emits a
// readiness table. It fails before any repository is touched when a
// component cannot be constructed.
func (w *Workflow) validateEnvironment(_ context.Context, _ *pipeline.Step, _ *pipeline.Context) (any, error) {
	w.classifier = classify.NewClassifier()

	engine, err := rules.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("build rules engine: %w", err)
	}

	w.rules = engine

	record := ReadinessRecord{
		Database:   w.opts.Database,
		Components: []string{"classifier", "rules engine", "source control", "pack/grep", "model"},
		RuleCount:  engine.RuleCount(),
	}

	if w.deps.Log != nil {
		rows := make([][]any, 0, len(record.Components))
		for _, component := range record.Components {
			rows = append(rows, []any{component, "ready"})
		}

		_, err = w.deps.Log.AppendTable([]string{"Component", "Status"}, rows,
			"Environment readiness", map[string]any{"database": w.opts.Database})
		if err != nil {
			return nil, err
		}
	}

	return record, nil
}

// processRepositories fans discovery over the target repositories with
// bounded workers. Unparseable URLs are skipped with a warning; scan
// failures fail the step.
func (w *Workflow) processRepositories(ctx context.Context, _ *pipeline.Step, wctx *pipeline.Context) (any, error) {
	record := DiscoveryRecord{}

	refs := make([]RepoRef, 0, len(w.opts.Repos))

	for _, raw := range w.opts.Repos {
		ref, err := ParseRepoURL(raw)
		if err != nil {
			w.warn(fmt.Sprintf("skipping repository: %v", err))
			record.Skipped = append(record.Skipped, SkippedRepo{URL: raw, Reason: err.Error()})

			continue
		}

		refs = append(refs, ref)
	}

	scans := make([]RepoDiscovery, len(refs))
	errs := make([]error, len(refs))

	w.forEachRepo(ctx, len(refs), func(ctx context.Context, i int) {
		scans[i], errs[i] = w.scanRepo(ctx, refs[i])
	})

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", refs[i], err)
		}
	}

	record.Repos = scans
	wctx.Set(keyDiscovery, record)

	return record, nil
}

// forEachRepo runs fn for every index with at most RepoWorkers in flight.
// Result slots are disjoint per index, so no lock is needed.
func (w *Workflow) forEachRepo(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	workers := w.opts.RepoWorkers
	if workers > n {
		workers = n
	}

	if workers <= 0 {
		return
	}

	jobs := make(chan int)

	wg := sync.WaitGroup{}
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()

			for i := range jobs {
				fn(ctx, i)
			}
		}()
	}

	for i := range n {
		jobs <- i
	}

	close(jobs)
	wg.Wait()
}

func (w *Workflow) scanRepo(ctx context.Context, ref RepoRef) (RepoDiscovery, error) {
	w.notify(ctx, fmt.Sprintf("Starting decommission scan of %s for database `%s`", ref, w.opts.Database))

	engine, err := discovery.NewEngine(w.deps.PackGrep, w.classifier, w.deps.Log, discovery.Options{
		IncludePatterns: w.opts.IncludePatterns,
		ExcludePatterns: w.opts.ExcludePatterns,
	})
	if err != nil {
		return RepoDiscovery{}, err
	}

	result, err := engine.Discover(ctx, w.opts.Database, ref.URL)
	if err != nil {
		return RepoDiscovery{}, err
	}

	w.appendRepoSummary(ref, result)

	return RepoDiscovery{Repo: ref, Result: result}, nil
}

// appendRepoSummary emits the per-repo hit table and the files-by-type
// sunburst.
func (w *Workflow) appendRepoSummary(ref RepoRef, result *discovery.Result) {
	if w.deps.Log == nil {
		return
	}

	if result.Empty() {
		w.logf("%s: no references to %s found", ref, w.opts.Database)

		return
	}

	rows := make([][]any, 0, len(result.Files))
	for _, file := range result.Files {
		rows = append(rows, []any{file.Path, string(file.SourceType), file.MatchCount, fmt.Sprintf("%.2f", file.Confidence)})
	}

	_, err := w.deps.Log.AppendTable([]string{"File", "Type", "Matches", "Confidence"}, rows,
		fmt.Sprintf("References in %s", ref), map[string]any{"repo": ref.String()})
	if err != nil {
		w.warn(fmt.Sprintf("log table for %s: %v", ref, err))
	}

	labels, parents, values := sunburstData(ref.String(), result)

	_, err = w.deps.Log.AppendSunburst(labels, parents, values,
		fmt.Sprintf("Files by type in %s", ref), map[string]any{"repo": ref.String()})
	if err != nil {
		w.warn(fmt.Sprintf("log sunburst for %s: %v", ref, err))
	}
}

// sunburstData flattens files-by-type into the parallel arrays the log's
// sunburst entry expects: repo -> source type -> file, valued by match count.
func sunburstData(root string, result *discovery.Result) (labels, parents []string, values []float64) {
	labels = append(labels, root)
	parents = append(parents, "")
	values = append(values, 0)

	types := make([]classify.SourceType, 0, len(result.FilesByType))
	for sourceType := range result.FilesByType {
		types = append(types, sourceType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, sourceType := range types {
		labels = append(labels, string(sourceType))
		parents = append(parents, root)
		values = append(values, 0)

		for _, file := range result.FilesByType[sourceType] {
			labels = append(labels, file.Path)
			parents = append(parents, string(sourceType))
			values = append(values, float64(file.MatchCount))
		}
	}

	return labels, parents, values
}

// applyRefactoring feeds every matched file through the agentic processor.
// Files whose content cannot be fetched are skipped with a warning; the
// processor's per-file failures are carried in the results, not fatal.
func (w *Workflow) applyRefactoring(ctx context.Context, _ *pipeline.Step, wctx *pipeline.Context) (any, error) {
	scans, err := discoveryFromContext(wctx)
	if err != nil {
		return nil, err
	}

	processor, err := agentic.NewProcessor(w.deps.Model, w.rules, w.deps.Log, agentic.Options{
		BatchSize: w.opts.BatchSize,
		Workers:   w.opts.AgenticWorkers,
	})
	if err != nil {
		return nil, err
	}

	record := RefactoringRecord{}

	for _, scan := range scans.Repos {
		files := w.fetchFiles(ctx, scan)
		if len(files) == 0 {
			record.Repos = append(record.Repos, RepoRefactoring{Repo: scan.Repo})

			continue
		}

		results, err := processor.Process(ctx, w.opts.Database, files)
		if err != nil {
			return nil, fmt.Errorf("refactor %s: %w", scan.Repo, err)
		}

		record.FilesProcessed += len(results)

		for _, result := range results {
			if result.Success && result.TotalChanges > 0 {
				record.FilesModified++
			}
		}

		record.Repos = append(record.Repos, RepoRefactoring{Repo: scan.Repo, Results: results})
	}

	w.logf("refactoring pass: %d file(s) processed, %d modified", record.FilesProcessed, record.FilesModified)

	wctx.Set(keyRefactoring, record)

	return record, nil
}

// fetchFiles pulls full contents for a repo's matched files and re-classifies
// them with the body available, which refines extension-only guesses.
func (w *Workflow) fetchFiles(ctx context.Context, scan RepoDiscovery) []agentic.File {
	files := make([]agentic.File, 0, len(scan.Result.Files))

	for _, match := range scan.Result.Files {
		contents, err := w.deps.SourceControl.GetFileContents(ctx, scan.Repo.Owner, scan.Repo.Name, match.Path)
		if err != nil {
			w.warn(fmt.Sprintf("fetch %s from %s: %v", match.Path, scan.Repo, err))

			continue
		}

		files = append(files, agentic.File{
			Path:           match.Path,
			Content:        contents.Content,
			Classification: w.classifier.Classify(match.Path, contents.Content),
			MatchCount:     match.MatchCount,
		})
	}

	return files
}

func discoveryFromContext(wctx *pipeline.Context) (DiscoveryRecord, error) {
	value, ok := wctx.Value(keyDiscovery)
	if !ok {
		return DiscoveryRecord{}, ErrMissingDiscovery
	}

	record, ok := value.(DiscoveryRecord)
	if !ok {
		return DiscoveryRecord{}, fmt.Errorf("%w: unexpected type %T", ErrMissingDiscovery, value)
	}

	return record, nil
}

func refactoringFromContext(wctx *pipeline.Context) (RefactoringRecord, error) {
	value, ok := wctx.Value(keyRefactoring)
	if !ok {
		return RefactoringRecord{}, ErrMissingRefactoring
	}

	record, ok := value.(RefactoringRecord)
	if !ok {
		return RefactoringRecord{}, fmt.Errorf("%w: unexpected type %T", ErrMissingRefactoring, value)
	}

	return record, nil
}

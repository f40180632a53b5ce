// Package agentic rewrites files whose decommissioning edits need semantic
// judgment beyond regex rules. Every matched file flows through the
// Processor: simple files are handled by the deterministic rules engine,
// while Python and Shell files with repeated hits, and files tagged with a
// framework no deterministic rule covers, are batched into model calls that
// return full rewritten contents.
package agentic

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/rules"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

//go:embed response_schema.json
var responseSchemaJSON string

const (
	// DefaultBatchSize bounds how many files share one model call.
	DefaultBatchSize = 3

	// DefaultWorkers bounds how many batches are in flight at once.
	DefaultWorkers = 3

	// agenticRuleID labels model rewrites in per-file results so they render
	// alongside deterministic rule outcomes.
	agenticRuleID = "agentic_rewrite"
)

var (
	// ErrEmptyResponse is returned when the model produced no choices.
	ErrEmptyResponse = errors.New("agentic: empty model response")

	// ErrMalformedResponse is returned when the model reply is not the
	// required path-to-rewrite JSON object.
	ErrMalformedResponse = errors.New("agentic: malformed model response")
)

// File is one discovery hit handed to the processor, with its full content
// already fetched.
type File struct {
	Path           string
	Content        string
	Classification classify.Result
	MatchCount     int
}

// Options tune batching and concurrency. Zero values fall back to defaults.
type Options struct {
	BatchSize int
	Workers   int
}

// Processor dispatches files between the deterministic rules engine and
// batched model rewrites. One processor is shared per workflow; the model
// client is stateless per call.
type Processor struct {
	model     llms.Model
	engine    *rules.Engine
	log       *worklog.Log
	schema    *gojsonschema.Schema
	batchSize int
	workers   int
}

// NewProcessor wires a rewrite model to the rules engine. The log may be nil
// when progress reporting is not wanted.
func NewProcessor(model llms.Model, engine *rules.Engine, log *worklog.Log, opts Options) (*Processor, error) {
	if model == nil {
		return nil, errors.New("agentic: nil model")
	}

	if engine == nil {
		return nil, errors.New("agentic: nil rules engine")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	return &Processor{
		model:     model,
		engine:    engine,
		log:       log,
		schema:    schema,
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
	}, nil
}

// Process refactors every file and returns one result per input, in input
// order. Deterministic candidates run through the rules engine inline; the
// rest are grouped by source type, split into batches and rewritten by the
// model with bounded parallelism. A failed batch marks each of its files
// unsuccessful and carries no content, so nothing from it can be committed.
// The returned error is non-nil only when the context ended before all
// batches ran.
func (p *Processor) Process(ctx context.Context, database string, files []File) ([]rules.FileProcessingResult, error) {
	results := make([]rules.FileProcessingResult, len(files))
	perType := make(map[classify.SourceType][]int)
	candidates := 0

	for i, file := range files {
		if p.needsModel(file) {
			perType[file.Classification.SourceType] = append(perType[file.Classification.SourceType], i)
			candidates++

			continue
		}

		results[i] = p.engine.Apply(file.Path, file.Content, file.Classification, database)
	}

	batches := splitBatches(perType, p.batchSize)
	if len(batches) == 0 {
		return results, nil
	}

	p.logf("agentic pass: %d file(s) in %d batch(es), %d worker(s)",
		candidates, len(batches), p.workers)

	p.runBatches(ctx, database, files, batches, results)

	return results, ctx.Err()
}

// needsModel implements the candidate heuristic: Python or Shell files with
// at least two hits, or files whose detected frameworks select no
// deterministic rule at all.
func (p *Processor) needsModel(file File) bool {
	sourceType := file.Classification.SourceType
	if (sourceType == classify.TypePython || sourceType == classify.TypeShell) && file.MatchCount >= 2 {
		return true
	}

	frameworks := file.Classification.DetectedFrameworks
	if len(frameworks) == 0 {
		return false
	}

	return len(p.engine.Select(sourceType, frameworks)) == 0
}

func (p *Processor) runBatches(ctx context.Context, database string, files []File, batches []batch, results []rules.FileProcessingResult) {
	jobs := make(chan batch)

	workers := p.workers
	if workers > len(batches) {
		workers = len(batches)
	}

	wg := sync.WaitGroup{}
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()

			for b := range jobs {
				p.runBatch(ctx, database, files, b, results)
			}
		}()
	}

	for _, b := range batches {
		jobs <- b
	}

	close(jobs)
	wg.Wait()
}

// runBatch issues one model call for a batch and fills the result slots its
// indexes own. Slots are disjoint across batches, so no lock is needed.
func (p *Processor) runBatch(ctx context.Context, database string, files []File, b batch, results []rules.FileProcessingResult) {
	if err := ctx.Err(); err != nil {
		p.failBatch(files, b, results, err)

		return
	}

	prompt := p.buildPrompt(database, b.sourceType, pick(files, b.indexes))

	rewrites, err := p.generate(ctx, prompt)
	if err != nil {
		p.logf("agentic batch failed (%s, %d files): %v", b.sourceType, len(b.indexes), err)
		p.failBatch(files, b, results, err)

		return
	}

	changed := 0

	for _, i := range b.indexes {
		results[i] = rewriteResult(files[i], rewrites)
		if results[i].TotalChanges > 0 {
			changed++
		}
	}

	p.logf("agentic batch done (%s): %d of %d file(s) rewritten", b.sourceType, changed, len(b.indexes))
}

func (p *Processor) failBatch(files []File, b batch, results []rules.FileProcessingResult, err error) {
	for _, i := range b.indexes {
		results[i] = rules.FileProcessingResult{
			FilePath:   files[i].Path,
			SourceType: files[i].Classification.SourceType,
			Error:      err.Error(),
		}
	}
}

// generate performs the single model call for a batch in JSON mode and
// parses the path-to-rewrite object out of the first choice.
func (p *Processor) generate(ctx context.Context, prompt string) (map[string]rewrite, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := p.model.GenerateContent(ctx, messages, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("generate rewrites: %w", err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return p.parseRewrites(resp.Choices[0].Content)
}

// rewriteResult turns one model answer into a per-file result. A missing or
// identical rewrite means zero changes and no content to commit; a differing
// rewrite always reports at least one change.
func rewriteResult(file File, rewrites map[string]rewrite) rules.FileProcessingResult {
	result := rules.FileProcessingResult{
		FilePath:   file.Path,
		SourceType: file.Classification.SourceType,
		Success:    true,
	}

	rw, ok := rewrites[file.Path]
	if !ok || rw.ModifiedContent == file.Content {
		return result
	}

	stat := rules.Diff(file.Content, rw.ModifiedContent)

	changes := stat.Added + stat.Removed
	if changes == 0 {
		changes = 1
	}

	result.TotalChanges = changes
	result.ModifiedContent = rw.ModifiedContent
	result.RulesApplied = []rules.RuleResult{{
		RuleID:      agenticRuleID,
		Applied:     true,
		ChangesMade: changes,
	}}

	return result
}

func pick(files []File, indexes []int) []File {
	out := make([]File, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, files[i])
	}

	return out
}

func (p *Processor) logf(format string, args ...any) {
	if p.log == nil {
		return
	}

	p.log.Appendf(format, args...)
}

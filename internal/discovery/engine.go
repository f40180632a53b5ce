package discovery

import (
	"context"
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/mcpclient"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

// defaultExcludePatterns keeps dependency trees and build output out of the
// packed archive. Vendor paths that slip through are still filtered per hit.
var defaultExcludePatterns = []string{
	".git/**",
	"node_modules/**",
	"vendor/**",
	"dist/**",
	"build/**",
	"*.min.js",
}

// Options tunes a discovery run. The zero value packs everything except the
// default excludes.
type Options struct {
	IncludePatterns []string
	ExcludePatterns []string
}

func (o Options) validate() error {
	for _, pattern := range o.IncludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern %q", pattern)
		}
	}

	for _, pattern := range o.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	return nil
}

// Engine runs discovery scans over one pack/grep capability. Engines are
// cheap; the workflow builds one per repository with that run's log.
type Engine struct {
	packer     *mcpclient.PackGrep
	classifier *classify.Classifier
	log        *worklog.Log

	include []string
	exclude []string
}

// NewEngine builds a discovery engine. log may be nil for silent scans.
func NewEngine(packer *mcpclient.PackGrep, classifier *classify.Classifier, log *worklog.Log, opts Options) (*Engine, error) {
	err := opts.validate()
	if err != nil {
		return nil, err
	}

	exclude := opts.ExcludePatterns
	if len(exclude) == 0 {
		exclude = defaultExcludePatterns
	}

	return &Engine{
		packer:     packer,
		classifier: classifier,
		log:        log,
		include:    opts.IncludePatterns,
		exclude:    exclude,
	}, nil
}

// Discover packs the repository, runs the search families and merges the
// hits. An empty repository yields an empty result, not an error.
func (e *Engine) Discover(ctx context.Context, databaseName, repoURL string) (*Result, error) {
	pack, err := e.packer.PackRemoteRepository(ctx, repoURL, e.include, e.exclude)
	if err != nil {
		return nil, fmt.Errorf("pack repository %s: %w", repoURL, err)
	}

	result := &Result{
		DatabaseName: databaseName,
		Repo:         repoURL,
		FilesByType:  map[classify.SourceType][]FileMatch{},
	}

	if pack.TotalSize == 0 {
		e.logf("packed %s: empty repository, nothing to scan", repoURL)

		return result, nil
	}

	e.logf("packed %s (%s) as %s", repoURL, humanize.Bytes(uint64(pack.TotalSize)), pack.OutputID)

	hits, scanned, err := e.collect(ctx, pack.OutputID, databaseName)
	if err != nil {
		return nil, err
	}

	result.TotalFilesScanned = scanned
	result.Files = mergeHits(hits, e.classifier, databaseName)
	result.FilesByType = groupByType(result.Files)
	result.ConfidenceDistribution = buildDistribution(result.Files)

	e.logf("discovery for %s in %s: %d hits across %d files (%d scanned)",
		databaseName, repoURL, len(hits), len(result.Files), scanned)

	return result, nil
}

// collect issues the literal and semantic greps, then derives the
// path-filtered family from the raw-token hits. It returns every hit plus
// the count of distinct files the searches touched.
func (e *Engine) collect(ctx context.Context, outputID, databaseName string) ([]hit, int, error) {
	var hits []hit

	touched := map[string]struct{}{}

	record := func(f family, pattern string, matches []mcpclient.GrepMatch) {
		for _, match := range matches {
			touched[match.File] = struct{}{}

			hits = append(hits, hit{
				family:  f,
				pattern: pattern,
				path:    match.File,
				line:    match.LineNumber,
				content: match.Context,
			})
		}
	}

	literals := classify.LiteralPatterns(databaseName)

	for _, pattern := range literals {
		grep, err := e.packer.GrepPacked(ctx, outputID, pattern, 0, true)
		if err != nil {
			return nil, 0, fmt.Errorf("literal search %q: %w", pattern, err)
		}

		record(familyLiteral, pattern, grep.Matches)
	}

	// The path-filtered family reuses the raw-token hits (the first literal
	// pattern) instead of grepping again; only the family tag differs.
	token := literals[0]
	hits = append(hits, typedHits(hits, token)...)

	for _, sourceType := range classify.TypePriority {
		for _, pattern := range classify.SearchPatterns(sourceType, databaseName) {
			grep, err := e.packer.GrepPacked(ctx, outputID, pattern, 0, true)
			if err != nil {
				return nil, 0, fmt.Errorf("%s semantic search %q: %w", sourceType, pattern, err)
			}

			record(familySemantic, pattern, grep.Matches)
		}
	}

	return hits, len(touched), nil
}

// typedHits re-tags raw-token hits whose path matches a source type's path
// filter as the path-filtered search family.
func typedHits(hits []hit, token string) []hit {
	compiled := make(map[classify.SourceType]*regexp.Regexp, len(classify.TypePriority))

	for _, sourceType := range classify.TypePriority {
		raw := classify.PathPattern(sourceType)
		if raw == "" {
			continue
		}

		pattern, err := regexp.Compile(raw)
		if err != nil {
			continue
		}

		compiled[sourceType] = pattern
	}

	var typed []hit

	for _, h := range hits {
		if h.family != familyLiteral || h.pattern != token {
			continue
		}

		for _, pattern := range compiled {
			if pattern.MatchString(h.path) {
				retagged := h
				retagged.family = familyTyped
				typed = append(typed, retagged)

				break
			}
		}
	}

	return typed
}

func (e *Engine) logf(format string, args ...any) {
	if e.log == nil {
		return
	}

	e.log.Appendf(format, args...)
}

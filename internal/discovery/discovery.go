// Package discovery finds database references across a repository. It packs
// the repository through the pack/grep capability, runs three complementary
// search families over the archive (literal references, path-filtered token
// hits, per-type semantic templates), classifies every candidate file and
// merges the hits into a deduplicated, confidence-scored result.
package discovery

import (
	"github.com/dbsunset/dbsunset/internal/classify"
)

// Confidence thresholds and assignments. Literal hits floor at the high
// band because an exact token in a file is strong evidence on its own.
const (
	HighConfidence   = 0.8
	MediumConfidence = 0.5

	literalFloor       = 0.8
	semanticConfidence = 0.7
)

// PatternMatch is one grep hit inside a file.
type PatternMatch struct {
	Pattern     string `json:"pattern"`
	LineNumber  int    `json:"line_number"`
	LineContent string `json:"line_content"`
}

// FileMatch aggregates every hit for one file. PatternMatches is deduplicated
// by (pattern, line number) and never empty.
type FileMatch struct {
	Path           string              `json:"path"`
	SourceType     classify.SourceType `json:"source_type"`
	Confidence     float64             `json:"confidence"`
	MatchCount     int                 `json:"match_count"`
	PatternMatches []PatternMatch      `json:"pattern_matches"`
}

// Distribution buckets file confidences: high >= 0.8, medium >= 0.5, low
// below that. Average is the mean over all matched files, zero when empty.
type Distribution struct {
	High    int     `json:"high"`
	Medium  int     `json:"medium"`
	Low     int     `json:"low"`
	Average float64 `json:"average"`
}

// Result is the outcome of one repository scan. Files is deduplicated by
// path and sorted; FilesByType groups the same matches by source type.
type Result struct {
	DatabaseName           string                              `json:"database_name"`
	Repo                   string                              `json:"repo"`
	TotalFilesScanned      int                                 `json:"total_files_scanned"`
	Files                  []FileMatch                         `json:"files"`
	FilesByType            map[classify.SourceType][]FileMatch `json:"files_by_type"`
	ConfidenceDistribution Distribution                        `json:"confidence_distribution"`
}

// Empty reports whether the scan matched nothing.
func (r *Result) Empty() bool {
	return len(r.Files) == 0
}

// TotalMatches sums match counts across all files.
func (r *Result) TotalMatches() int {
	total := 0
	for _, file := range r.Files {
		total += file.MatchCount
	}

	return total
}

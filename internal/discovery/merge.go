package discovery

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/dbsunset/dbsunset/internal/classify"
)

// family tags which search produced a hit; it decides the confidence
// assignment during the merge.
type family int

const (
	familyLiteral family = iota
	familyTyped
	familySemantic
)

// hit is one raw grep result before merging.
type hit struct {
	family  family
	pattern string
	path    string
	line    int
	content string
}

// mergeHits folds raw hits into per-file matches: vendor paths are dropped,
// hits dedupe by (pattern, line number), every surviving file is classified,
// and files whose token references live only in comment lines are rejected.
func mergeHits(hits []hit, classifier *classify.Classifier, databaseName string) []FileMatch {
	tokenPattern := regexp.MustCompile(`(?i)` + classify.TokenPattern(databaseName))

	byPath := make(map[string][]hit)

	for _, h := range hits {
		if classify.IsVendorPath(h.path) {
			continue
		}

		byPath[h.path] = append(byPath[h.path], h)
	}

	files := make([]FileMatch, 0, len(byPath))

	for path, pathHits := range byPath {
		file, ok := mergeFile(path, pathHits, classifier, tokenPattern)
		if ok {
			files = append(files, file)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return files
}

type matchKey struct {
	pattern string
	line    int
}

func mergeFile(path string, hits []hit, classifier *classify.Classifier, tokenPattern *regexp.Regexp) (FileMatch, bool) {
	seen := make(map[matchKey]struct{}, len(hits))

	var (
		matches     []PatternMatch
		sampleLines []string
		sampleSeen  = map[string]struct{}{}
	)

	qualified := false

	for _, h := range hits {
		key := matchKey{pattern: h.pattern, line: h.line}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}

			matches = append(matches, PatternMatch{
				Pattern:     h.pattern,
				LineNumber:  h.line,
				LineContent: h.content,
			})
		}

		if _, dup := sampleSeen[h.content]; !dup {
			sampleSeen[h.content] = struct{}{}

			sampleLines = append(sampleLines, h.content)
		}

		// A file qualifies only when the token appears outside comments.
		if !qualified && tokenPattern.MatchString(h.content) && !classify.IsCommentLine(h.content) {
			qualified = true
		}
	}

	if !qualified {
		return FileMatch{}, false
	}

	classification := classifier.Classify(path, strings.Join(sampleLines, "\n"))

	confidence := 0.0
	for _, h := range hits {
		confidence = math.Max(confidence, hitConfidence(h.family, classification.Confidence))
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].LineNumber != matches[j].LineNumber {
			return matches[i].LineNumber < matches[j].LineNumber
		}

		return matches[i].Pattern < matches[j].Pattern
	})

	return FileMatch{
		Path:           path,
		SourceType:     classification.SourceType,
		Confidence:     confidence,
		MatchCount:     len(matches),
		PatternMatches: matches,
	}, true
}

// hitConfidence assigns the per-hit confidence: literal and path-filtered
// hits floor at the high band, semantic template hits sit just below it.
func hitConfidence(f family, classificationConfidence float64) float64 {
	switch f {
	case familyLiteral, familyTyped:
		return math.Max(classificationConfidence, literalFloor)
	case familySemantic:
		return semanticConfidence
	default:
		return classificationConfidence
	}
}

// buildDistribution buckets the merged files and computes the mean.
func buildDistribution(files []FileMatch) Distribution {
	var dist Distribution

	if len(files) == 0 {
		return dist
	}

	total := 0.0

	for _, file := range files {
		total += file.Confidence

		switch {
		case file.Confidence >= HighConfidence:
			dist.High++
		case file.Confidence >= MediumConfidence:
			dist.Medium++
		default:
			dist.Low++
		}
	}

	dist.Average = total / float64(len(files))

	return dist
}

// groupByType indexes merged files by their source type, preserving order.
func groupByType(files []FileMatch) map[classify.SourceType][]FileMatch {
	grouped := make(map[classify.SourceType][]FileMatch)

	for _, file := range files {
		grouped[file.SourceType] = append(grouped[file.SourceType], file)
	}

	return grouped
}

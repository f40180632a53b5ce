package classify

import (
	"path"
	"sort"
	"strings"
)

// Classifier scores files against the per-type signature tables. It is
// immutable after construction and safe for concurrent use.
type Classifier struct {
	signatures map[SourceType]*signature
}

// NewClassifier compiles the signature tables.
func NewClassifier() *Classifier {
	return &Classifier{signatures: compileSignatures()}
}

// Classify scores filePath (and content, when supplied) against every source
// type and returns the winning type with its confidence and detected
// frameworks. The score is additive: +0.4 extension, +0.3 basename, +0.2 per
// directory fragment, +0.1 per distinct content pattern; ties resolve by
// TypePriority; a winner below 0.1 degrades to Unknown.
func (c *Classifier) Classify(filePath, content string) Result {
	base := strings.ToLower(path.Base(filePath))
	ext := strings.ToLower(path.Ext(filePath))
	lowerPath := strings.ToLower(filePath)

	scores := make(map[SourceType]float64, len(c.signatures))
	matched := make(map[SourceType][]string, len(c.signatures))
	frameworks := map[string]bool{}

	for sourceType, sig := range c.signatures {
		var score float64

		if sig.extensions[ext] {
			score += extensionWeight

			matched[sourceType] = append(matched[sourceType], "extension:"+ext)
		}

		if sig.basenames[base] {
			score += basenameWeight

			matched[sourceType] = append(matched[sourceType], "basename:"+base)
		}

		for _, dir := range sig.directories {
			if strings.Contains(lowerPath, dir) {
				score += directoryWeight

				matched[sourceType] = append(matched[sourceType], "directory:"+dir)
			}
		}

		if content != "" {
			for _, re := range sig.content {
				if re.MatchString(content) {
					score += contentWeight

					matched[sourceType] = append(matched[sourceType], "content:"+re.String())
				}
			}

			for name, re := range sig.frameworks {
				if re.MatchString(content) {
					frameworks[name] = true
				}
			}
		}

		scores[sourceType] = score
	}

	winner, best := pickWinner(scores)
	if best < scoreFloor {
		return Result{SourceType: TypeUnknown, Confidence: 0}
	}

	if best > 1 {
		best = 1
	}

	patterns := matched[winner]
	sort.Strings(patterns)

	return Result{
		SourceType:         winner,
		Confidence:         best,
		MatchedPatterns:    patterns,
		DetectedFrameworks: sortedKeys(frameworks),
		RuleFiles:          append([]string(nil), c.signatures[winner].ruleFiles...),
	}
}

// pickWinner returns the highest-scoring type, resolving equal scores in
// TypePriority order.
func pickWinner(scores map[SourceType]float64) (SourceType, float64) {
	winner := TypeUnknown

	var best float64

	for _, sourceType := range TypePriority {
		if scores[sourceType] > best {
			winner = sourceType
			best = scores[sourceType]
		}
	}

	return winner, best
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}

	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

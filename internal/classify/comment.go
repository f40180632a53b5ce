package classify

import "strings"

// commentTokens covers the comment openers of the source families the
// pipeline touches: shell/config/python (#), C-family (//, /*, *) and SQL (--).
var commentTokens = []string{"#", "//", "/*", "*", "--"}

// IsCommentLine reports whether a line is a comment under line-prefix
// detection. Leading whitespace is ignored.
func IsCommentLine(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return false
	}

	for _, token := range commentTokens {
		if strings.HasPrefix(trimmed, token) {
			return true
		}
	}

	return false
}

// CommentPrefix returns the line-comment opener for a language family name.
// SQL dialects comment with double dashes; everything else the pipeline
// rewrites uses the hash.
func CommentPrefix(language string) string {
	if strings.Contains(strings.ToUpper(language), "SQL") {
		return "--"
	}

	return "#"
}

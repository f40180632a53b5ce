package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/pkg/textutil"
)

// noticeToken marks a line as a deprecation notice. Insertion is idempotent
// per contiguous match region keyed on this token plus the database name.
const noticeToken = "DEPRECATED:"

// sqlContentPattern recognizes SQL-looking content for comment-prefix
// sniffing when neither the rule nor enry names a language.
var sqlContentPattern = regexp.MustCompile(`(?im)^\s*(CREATE|ALTER|DROP|SELECT|INSERT|UPDATE|DELETE|GRANT|REVOKE)\s`)

// commentPrefixFor resolves the comment opener for one rule application.
// The rule's declared language wins, then enry's detection, then a content
// scan for SQL keywords, then the hash default.
func commentPrefixFor(rule Rule, path, content string) string {
	if rule.Language != "" {
		return classify.CommentPrefix(rule.Language)
	}

	if hint := classify.LanguageHint(path, []byte(content)); hint != "" {
		return classify.CommentPrefix(hint)
	}

	if sqlContentPattern.MatchString(content) {
		return "--"
	}

	return "#"
}

func matchesAny(patterns []*regexp.Regexp, line string) bool {
	for _, pattern := range patterns {
		if pattern.MatchString(line) {
			return true
		}
	}

	return false
}

// commentOut prefixes matching non-comment lines with the comment opener.
// Already commented lines are left alone, which makes the action idempotent.
func commentOut(content string, patterns []*regexp.Regexp, prefix string) (string, int, []string) {
	lines, trailing := textutil.SplitLines(content)

	changes := 0
	skipped := 0

	for i, line := range lines {
		if !matchesAny(patterns, line) {
			continue
		}

		if classify.IsCommentLine(line) {
			skipped++

			continue
		}

		lines[i] = prefix + " " + line
		changes++
	}

	var warnings []string
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d matching lines already commented", skipped))
	}

	if changes == 0 {
		return content, 0, warnings
	}

	return textutil.JoinLines(lines, trailing), changes, warnings
}

// addDeprecationNotice inserts one notice line before each contiguous region
// of matching lines. Regions already preceded by a notice for the same
// database are skipped, so a second pass adds nothing.
func addDeprecationNotice(content string, patterns []*regexp.Regexp, prefix, database string) (string, int, []string) {
	lines, trailing := textutil.SplitLines(content)
	notice := fmt.Sprintf("%s %s %s database has been decommissioned", prefix, noticeToken, database)

	out := make([]string, 0, len(lines)+4)

	changes := 0
	skipped := 0
	inRegion := false

	for _, line := range lines {
		if isNoticeLine(line, database) {
			out = append(out, line)
			inRegion = false

			continue
		}

		matched := matchesAny(patterns, line)

		if matched && !inRegion {
			if len(out) > 0 && isNoticeLine(out[len(out)-1], database) {
				skipped++
			} else {
				out = append(out, notice)
				changes++
			}
		}

		inRegion = matched

		out = append(out, line)
	}

	var warnings []string
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d regions already carry a deprecation notice", skipped))
	}

	if changes == 0 {
		return content, 0, warnings
	}

	return textutil.JoinLines(out, trailing), changes, warnings
}

// removeMatchingLines drops every matching line.
func removeMatchingLines(content string, patterns []*regexp.Regexp) (string, int, []string) {
	lines, trailing := textutil.SplitLines(content)

	kept := make([]string, 0, len(lines))
	removed := 0

	for _, line := range lines {
		if matchesAny(patterns, line) {
			removed++

			continue
		}

		kept = append(kept, line)
	}

	if removed == 0 {
		return content, 0, nil
	}

	return textutil.JoinLines(kept, trailing), removed, nil
}

func isNoticeLine(line, database string) bool {
	return strings.Contains(line, noticeToken) && strings.Contains(line, database)
}

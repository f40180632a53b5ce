package rules

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffStat summarizes a rewrite as whole-line additions and removals.
type DiffStat struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Diff computes the line-level stat between two text revisions. Lines are
// mapped to runes first, so the diff is O(lines) rather than O(bytes).
func Diff(before, after string) DiffStat {
	dmp := diffmatchpatch.New()

	src, dst, _ := dmp.DiffLinesToRunes(before, after)
	diffs := dmp.DiffMainRunes(src, dst, false)

	var stat DiffStat

	for _, edit := range diffs {
		lines := utf8.RuneCountInString(edit.Text)

		switch edit.Type {
		case diffmatchpatch.DiffInsert:
			stat.Added += lines
		case diffmatchpatch.DiffDelete:
			stat.Removed += lines
		case diffmatchpatch.DiffEqual:
		}
	}

	return stat
}

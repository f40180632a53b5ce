// Package rules implements the contextual refactoring engine: deterministic,
// regex-driven edits keyed on (source type, framework) tuples. Rule packs are
// embedded YAML, one per source type; patterns carry a {{TARGET_DB}} template
// token substituted with a separator-widened, regex-escaped database name at
// apply time.
package rules

import (
	"errors"
	"fmt"

	"github.com/dbsunset/dbsunset/internal/classify"
)

// Action is the closed set of deterministic edits a rule can perform.
type Action string

const (
	// ActionCommentOut prefixes matching non-comment lines with the
	// language's comment opener.
	ActionCommentOut Action = "comment_out"
	// ActionAddDeprecationNotice inserts one notice line before each
	// contiguous region of matching lines.
	ActionAddDeprecationNotice Action = "add_deprecation_notice"
	// ActionRemoveMatchingLines drops matching lines entirely.
	ActionRemoveMatchingLines Action = "remove_matching_lines"
)

var (
	// ErrUnknownAction is returned when a rule pack declares an action
	// outside the closed set.
	ErrUnknownAction = errors.New("rules: unknown action")

	// ErrDuplicateRuleID is returned when two rules in one pack share an id.
	ErrDuplicateRuleID = errors.New("rules: duplicate rule id")

	// ErrMissingRuleID is returned when a pack carries a rule without an id.
	ErrMissingRuleID = errors.New("rules: missing rule id")

	// ErrEmptyPattern is returned when a rule declares an empty pattern.
	ErrEmptyPattern = errors.New("rules: empty pattern")
)

// ParseAction validates an action string from a rule pack.
func ParseAction(raw string) (Action, error) {
	switch Action(raw) {
	case ActionCommentOut, ActionAddDeprecationNotice, ActionRemoveMatchingLines:
		return Action(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, raw)
	}
}

// Rule is one deterministic refactoring recipe. Patterns are matched
// case-insensitively, one line at a time.
type Rule struct {
	ID                 string   `json:"id"                  yaml:"id"`
	Description        string   `json:"description"         yaml:"description"`
	Patterns           []string `json:"patterns"            yaml:"patterns"`
	Action             Action   `json:"action"              yaml:"action"`
	RequiredFrameworks []string `json:"required_frameworks" yaml:"required_frameworks"`

	// Language optionally names the family whose comment opener the rule
	// uses. Empty means sniff from the file.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// AppliesTo reports whether the rule is selected for a file with the given
// framework tags. Rules with no framework requirement always apply.
func (r Rule) AppliesTo(frameworks []string) bool {
	if len(r.RequiredFrameworks) == 0 {
		return true
	}

	for _, required := range r.RequiredFrameworks {
		for _, detected := range frameworks {
			if required == detected {
				return true
			}
		}
	}

	return false
}

// RuleResult records one rule's execution against one file. Applied reports
// that the rule ran to completion; ChangesMade counts the edits it produced.
type RuleResult struct {
	RuleID      string   `json:"rule_id"`
	Applied     bool     `json:"applied"`
	ChangesMade int      `json:"changes_made"`
	Warnings    []string `json:"warnings,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// FileProcessingResult aggregates every rule outcome for one file. A result
// with TotalChanges zero carries no ModifiedContent and must not be committed.
type FileProcessingResult struct {
	FilePath        string              `json:"file_path"`
	SourceType      classify.SourceType `json:"source_type"`
	RulesApplied    []RuleResult        `json:"rules_applied"`
	TotalChanges    int                 `json:"total_changes"`
	Success         bool                `json:"success"`
	Error           string              `json:"error,omitempty"`
	ModifiedContent string              `json:"modified_content,omitempty"`
}

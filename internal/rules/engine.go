package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dbsunset/dbsunset/internal/classify"
)

// targetToken is the template placeholder substituted with the escaped
// database name before a pattern compiles.
const targetToken = "{{TARGET_DB}}"

type patternKey struct {
	ruleID   string
	database string
}

// Engine dispatches deterministic refactoring rules keyed on source type and
// framework. Compiled patterns are cached by (rule id, database name), so a
// fleet-wide run compiles each rule once. Safe for concurrent use.
type Engine struct {
	packs map[classify.SourceType][]Rule

	mu    sync.Mutex
	cache map[patternKey][]*regexp.Regexp
}

// NewEngine loads the embedded rule packs.
func NewEngine() (*Engine, error) {
	packs, err := LoadPacks()
	if err != nil {
		return nil, err
	}

	return NewEngineWithPacks(packs), nil
}

// NewEngineWithPacks builds an engine over caller-supplied packs.
func NewEngineWithPacks(packs map[classify.SourceType][]Rule) *Engine {
	return &Engine{
		packs: packs,
		cache: map[patternKey][]*regexp.Regexp{},
	}
}

// RuleCount is the number of rules across all packs.
func (e *Engine) RuleCount() int {
	total := 0
	for _, pack := range e.packs {
		total += len(pack)
	}

	return total
}

// SourceTypes lists the source types that have at least one rule, sorted.
func (e *Engine) SourceTypes() []classify.SourceType {
	types := make([]classify.SourceType, 0, len(e.packs))
	for sourceType := range e.packs {
		types = append(types, sourceType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// RulesFor returns the full rule list for a source type in pack order.
func (e *Engine) RulesFor(sourceType classify.SourceType) []Rule {
	return append([]Rule(nil), e.packs[sourceType]...)
}

// Select returns the rules applicable to a file of the given type with the
// given framework tags, in pack order. Rules demanding a framework are
// selected only when one of theirs was detected.
func (e *Engine) Select(sourceType classify.SourceType, frameworks []string) []Rule {
	var selected []Rule

	for _, rule := range e.packs[sourceType] {
		if rule.AppliesTo(frameworks) {
			selected = append(selected, rule)
		}
	}

	return selected
}

// Apply runs every selected rule against the file content in pack order.
// Each rule sees the output of the previous one. A failing rule records its
// error and the remaining rules still run.
func (e *Engine) Apply(path, content string, classification classify.Result, database string) FileProcessingResult {
	result := FileProcessingResult{
		FilePath:   path,
		SourceType: classification.SourceType,
		Success:    true,
	}

	selected := e.Select(classification.SourceType, classification.DetectedFrameworks)

	text := content

	for _, rule := range selected {
		ruleResult, rewritten := e.applyRule(rule, path, text, database)
		result.RulesApplied = append(result.RulesApplied, ruleResult)
		result.TotalChanges += ruleResult.ChangesMade

		text = rewritten
	}

	if result.TotalChanges > 0 {
		result.ModifiedContent = text
	}

	return result
}

// applyRule executes one rule and returns its result plus the (possibly
// unchanged) content.
func (e *Engine) applyRule(rule Rule, path, content, database string) (RuleResult, string) {
	result := RuleResult{RuleID: rule.ID}

	patterns, err := e.compile(rule, database)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())

		return result, content
	}

	var (
		rewritten string
		changes   int
		warnings  []string
	)

	switch rule.Action {
	case ActionCommentOut:
		prefix := commentPrefixFor(rule, path, content)
		rewritten, changes, warnings = commentOut(content, patterns, prefix)
	case ActionAddDeprecationNotice:
		prefix := commentPrefixFor(rule, path, content)
		rewritten, changes, warnings = addDeprecationNotice(content, patterns, prefix, database)
	case ActionRemoveMatchingLines:
		rewritten, changes, warnings = removeMatchingLines(content, patterns)
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("unknown action %q", rule.Action))

		return result, content
	}

	result.Applied = true
	result.ChangesMade = changes
	result.Warnings = warnings

	return result, rewritten
}

// PreviewPatterns returns a rule's patterns with the database token
// substituted the same way the engine compiles them.
func PreviewPatterns(rule Rule, database string) []string {
	escaped := classify.TokenPattern(database)

	previews := make([]string, 0, len(rule.Patterns))
	for _, raw := range rule.Patterns {
		previews = append(previews, strings.ReplaceAll(raw, targetToken, escaped))
	}

	return previews
}

// compile substitutes the template token and compiles the rule's patterns,
// caching by (rule id, database name). Matching is case-insensitive.
func (e *Engine) compile(rule Rule, database string) ([]*regexp.Regexp, error) {
	key := patternKey{ruleID: rule.ID, database: database}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.cache[key]; ok {
		return cached, nil
	}

	escaped := classify.TokenPattern(database)
	compiled := make([]*regexp.Regexp, 0, len(rule.Patterns))

	for _, raw := range rule.Patterns {
		substituted := strings.ReplaceAll(raw, targetToken, escaped)

		pattern, err := regexp.Compile("(?i)" + substituted)
		if err != nil {
			return nil, fmt.Errorf("rule %s: compile %q: %w", rule.ID, raw, err)
		}

		compiled = append(compiled, pattern)
	}

	e.cache[key] = compiled

	return compiled, nil
}

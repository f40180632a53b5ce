package agentic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dbsunset/dbsunset/internal/classify"
)

// systemPrompt fixes the model's role across every batch. The per-batch
// objective, rules and file contents arrive in the user message.
const systemPrompt = `You are a careful refactoring assistant for database
decommissioning. You rewrite source files so that nothing depends on a
database that is being shut down, while keeping every file syntactically
valid. You never invent files, never rename files, and never touch lines
unrelated to the target database. You answer with JSON only.`

const (
	fileOpenFormat = "=== FILE: %s ==="
	fileClose      = "=== END FILE ==="
)

// rewrite is one file's answer inside the model's JSON object.
type rewrite struct {
	ModifiedContent string `json:"modified_content"`
}

// buildPrompt assembles the user message for one batch: the objective, the
// deterministic rules for the batch's source type as background context, and
// each file delimited with its path.
func (p *Processor) buildPrompt(database string, sourceType classify.SourceType, files []File) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "The database %q is being decommissioned. Rewrite the %s files below so no code path references or depends on it.\n", database, sourceType)
	sb.WriteString("Comment out statements that touch the database, add deprecation notices where removal would break the file, and drop lines that only exist for this database.\n\n")

	if pack := p.engine.RulesFor(sourceType); len(pack) > 0 {
		fmt.Fprintf(&sb, "Deterministic rules for %s files, as background context:\n", sourceType)

		for _, rule := range pack {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", rule.ID, rule.Action, rule.Description)
		}

		sb.WriteString("\n")
	}

	sb.WriteString("Files:\n\n")

	for _, file := range files {
		fmt.Fprintf(&sb, fileOpenFormat+"\n", file.Path)
		sb.WriteString(file.Content)

		if !strings.HasSuffix(file.Content, "\n") {
			sb.WriteString("\n")
		}

		sb.WriteString(fileClose + "\n\n")
	}

	sb.WriteString(`Respond with a single JSON object mapping each file path to {"modified_content": "<full rewritten file>"}. Return the original content unchanged for files that need no edit.`)

	return sb.String()
}

// parseRewrites validates the model reply against the embedded response
// schema and decodes it. Any violation poisons the whole batch.
func (p *Processor) parseRewrites(raw string) (map[string]rewrite, error) {
	result, err := p.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if !result.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, schemaErrors(result))
	}

	var rewrites map[string]rewrite
	if err := json.Unmarshal([]byte(raw), &rewrites); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return rewrites, nil
}

func schemaErrors(result *gojsonschema.Result) string {
	parts := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		parts = append(parts, desc.String())
	}

	return strings.Join(parts, "; ")
}

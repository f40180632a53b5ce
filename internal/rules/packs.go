package rules

import (
	"embed"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/dbsunset/dbsunset/internal/classify"
)

//go:embed packs/*.yaml
var packFS embed.FS

// packFiles maps each source type to its embedded rule pack. The file names
// match the rule_files the classifier reports.
var packFiles = map[classify.SourceType]string{
	classify.TypeInfrastructure: "packs/infrastructure.yaml",
	classify.TypeConfig:         "packs/config.yaml",
	classify.TypeSQL:            "packs/sql.yaml",
	classify.TypePython:         "packs/python.yaml",
	classify.TypeShell:          "packs/shell.yaml",
	classify.TypeDocumentation:  "packs/documentation.yaml",
}

type packDocument struct {
	Rules []Rule `yaml:"rules"`
}

// LoadPacks parses and validates every embedded rule pack, keyed by source
// type. Rule order within a pack is the pack's declaration order.
func LoadPacks() (map[classify.SourceType][]Rule, error) {
	packs := make(map[classify.SourceType][]Rule, len(packFiles))

	for sourceType, name := range packFiles {
		pack, err := loadPack(packFS, name)
		if err != nil {
			return nil, fmt.Errorf("rule pack %s: %w", name, err)
		}

		packs[sourceType] = pack
	}

	return packs, nil
}

func loadPack(fsys fs.FS, name string) ([]Rule, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var doc packDocument

	err = yaml.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	err = validatePack(doc.Rules)
	if err != nil {
		return nil, err
	}

	return doc.Rules, nil
}

func validatePack(pack []Rule) error {
	seen := make(map[string]struct{}, len(pack))

	for _, rule := range pack {
		if rule.ID == "" {
			return ErrMissingRuleID
		}

		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRuleID, rule.ID)
		}

		seen[rule.ID] = struct{}{}

		_, err := ParseAction(string(rule.Action))
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.ID, err)
		}

		if len(rule.Patterns) == 0 {
			return fmt.Errorf("%w: rule %s has no patterns", ErrEmptyPattern, rule.ID)
		}

		for _, pattern := range rule.Patterns {
			if pattern == "" {
				return fmt.Errorf("%w: rule %s", ErrEmptyPattern, rule.ID)
			}
		}
	}

	return nil
}

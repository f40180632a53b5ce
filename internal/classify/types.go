// Package classify maps repository files to a source type, a confidence score
// and a set of detected frameworks. Classification drives which refactoring
// rules apply to a file and how its matches are weighted during discovery.
package classify

import (
	"errors"
	"fmt"
)

// SourceType is the closed set of file categories the decommissioning
// pipeline distinguishes. Exactly one is assigned per file.
type SourceType string

const (
	// TypeInfrastructure covers IaC: Terraform, Kubernetes manifests, Helm
	// charts, Dockerfiles.
	TypeInfrastructure SourceType = "infrastructure"

	// TypeConfig covers application configuration files.
	TypeConfig SourceType = "config"

	// TypeSQL covers SQL schema and migration scripts.
	TypeSQL SourceType = "sql"

	// TypePython covers Python application code.
	TypePython SourceType = "python"

	// TypeShell covers shell scripts.
	TypeShell SourceType = "shell"

	// TypeDocumentation covers Markdown and plain-text docs.
	TypeDocumentation SourceType = "documentation"

	// TypeUnknown is assigned when no signal clears the score floor.
	TypeUnknown SourceType = "unknown"
)

// TypePriority lists classifiable types in decommissioning-risk order.
// Equal scores resolve to the earliest entry. TypeUnknown never competes.
var TypePriority = []SourceType{
	TypeInfrastructure,
	TypeConfig,
	TypeSQL,
	TypePython,
	TypeShell,
	TypeDocumentation,
}

// ErrUnknownSourceType is returned when parsing an unrecognized type name.
var ErrUnknownSourceType = errors.New("classify: unknown source type")

// ParseSourceType converts a serialized type name back into a SourceType.
func ParseSourceType(name string) (SourceType, error) {
	switch SourceType(name) {
	case TypeInfrastructure, TypeConfig, TypeSQL, TypePython, TypeShell,
		TypeDocumentation, TypeUnknown:
		return SourceType(name), nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownSourceType, name)
	}
}

// Display returns the upper-cased form used in PR bodies and tables.
func (t SourceType) Display() string {
	switch t {
	case TypeSQL:
		return "SQL"
	case TypeInfrastructure:
		return "INFRASTRUCTURE"
	case TypeConfig:
		return "CONFIG"
	case TypePython:
		return "PYTHON"
	case TypeShell:
		return "SHELL"
	case TypeDocumentation:
		return "DOCUMENTATION"
	case TypeUnknown:
		return "UNKNOWN"
	}

	return "UNKNOWN"
}

// Framework tags recognized by the classifier. Zero or more per file.
const (
	FrameworkTerraform  = "terraform"
	FrameworkKubernetes = "kubernetes"
	FrameworkHelm       = "helm"
	FrameworkDocker     = "docker"
	FrameworkDjango     = "django"
	FrameworkFlask      = "flask"
	FrameworkFastAPI    = "fastapi"
	FrameworkSQLAlchemy = "sqlalchemy"
	FrameworkAlembic    = "alembic"
)

// Result is the immutable outcome of classifying a single file.
type Result struct {
	SourceType         SourceType `json:"source_type"`
	Confidence         float64    `json:"confidence"`
	MatchedPatterns    []string   `json:"matched_patterns,omitempty"`
	DetectedFrameworks []string   `json:"detected_frameworks,omitempty"`
	RuleFiles          []string   `json:"rule_files,omitempty"`
}

package mcpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// manifestSchema constrains the server manifest shape before any transport
// is spawned.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["mcpServers"],
  "properties": {
    "mcpServers": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["command"],
        "properties": {
          "command": {"type": "string", "minLength": 1},
          "args": {"type": "array", "items": {"type": "string"}},
          "env": {"type": "object", "additionalProperties": {"type": "string"}}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// ServerSpec describes how to spawn one MCP server process.
type ServerSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Manifest enumerates the MCP servers available to a run, keyed by name.
type Manifest struct {
	MCPServers map[string]ServerSpec `json:"mcpServers"`
}

// LoadManifest reads, validates and environment-expands a server manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return ParseManifest(raw)
}

// ParseManifest validates raw manifest JSON against the schema and resolves
// $NAME values from the process environment. A referenced variable that is
// unset fails with ErrUnresolvedEnv.
func ParseManifest(raw []byte) (*Manifest, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}

	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			issues = append(issues, issue.String())
		}

		return nil, fmt.Errorf("invalid manifest: %s", strings.Join(issues, "; "))
	}

	var manifest Manifest

	err = json.Unmarshal(raw, &manifest)
	if err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	err = manifest.expandEnv()
	if err != nil {
		return nil, err
	}

	return &manifest, nil
}

// expandEnv substitutes $NAME values in command, args and env entries.
func (m *Manifest) expandEnv() error {
	for name, spec := range m.MCPServers {
		command, err := expandValue(spec.Command)
		if err != nil {
			return fmt.Errorf("server %s command: %w", name, err)
		}

		spec.Command = command

		for i, arg := range spec.Args {
			expanded, err := expandValue(arg)
			if err != nil {
				return fmt.Errorf("server %s args[%d]: %w", name, i, err)
			}

			spec.Args[i] = expanded
		}

		for key, value := range spec.Env {
			expanded, err := expandValue(value)
			if err != nil {
				return fmt.Errorf("server %s env %s: %w", name, key, err)
			}

			spec.Env[key] = expanded
		}

		m.MCPServers[name] = spec
	}

	return nil
}

// expandValue resolves a whole-value $NAME reference. Values without the
// leading dollar pass through untouched.
func expandValue(value string) (string, error) {
	if !strings.HasPrefix(value, "$") || len(value) < 2 {
		return value, nil
	}

	name := value[1:]

	resolved, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("%w: $%s", ErrUnresolvedEnv, name)
	}

	return resolved, nil
}

// ServerNames returns the configured server names, unsorted.
func (m *Manifest) ServerNames() []string {
	names := make([]string, 0, len(m.MCPServers))
	for name := range m.MCPServers {
		names = append(names, name)
	}

	return names
}

package classify

import (
	"regexp"
)

// Signal weights. Scores are additive and clamped to [0,1].
const (
	extensionWeight = 0.4
	basenameWeight  = 0.3
	directoryWeight = 0.2
	contentWeight   = 0.1

	// scoreFloor is the minimum winning score; below it the file is Unknown.
	scoreFloor = 0.1
)

// signature holds the per-type classification signals. Regexes are compiled
// once when the classifier is constructed.
type signature struct {
	extensions  map[string]bool
	basenames   map[string]bool
	directories []string
	content     []*regexp.Regexp
	frameworks  map[string]*regexp.Regexp
	ruleFiles   []string
}

// signatureSpec is the declarative form compiled into a signature.
type signatureSpec struct {
	extensions  []string
	basenames   []string
	directories []string
	content     []string
	frameworks  map[string]string
	ruleFiles   []string
}

// signatureSpecs declares the classification signals per source type.
// Content and framework patterns are matched case-insensitively.
var signatureSpecs = map[SourceType]signatureSpec{
	TypeInfrastructure: {
		extensions: []string{".tf", ".tfvars", ".hcl", ".dockerfile"},
		basenames: []string{
			"dockerfile", "docker-compose.yml", "docker-compose.yaml",
			"terragrunt.hcl", "chart.yaml", "values.yaml",
		},
		directories: []string{
			"terraform/", "infra/", "infrastructure/", "k8s/", "kubernetes/",
			"helm/", "charts/", "deploy/", "deployments/",
		},
		content: []string{
			`resource\s+"[a-z0-9_]+"`,
			`provider\s+"[a-z0-9_]+"`,
			`apiVersion:`,
			`kind:\s*(Deployment|Service|StatefulSet|ConfigMap|Secret|CronJob)`,
			`^FROM\s+\S+`,
			`services:\s*$`,
		},
		frameworks: map[string]string{
			FrameworkTerraform:  `resource\s+"|provider\s+"|terraform\s*{|variable\s+"`,
			FrameworkKubernetes: `apiVersion:|kind:\s*(Deployment|Service|StatefulSet|ConfigMap|Secret|CronJob)`,
			FrameworkHelm:       `\{\{\s*\.Values|\{\{\s*include\s|helm\.sh/`,
			FrameworkDocker:     `^FROM\s+\S+|docker-compose|^\s*image:\s`,
		},
		ruleFiles: []string{"infrastructure.yaml"},
	},
	TypeConfig: {
		extensions: []string{
			".yml", ".yaml", ".json", ".ini", ".toml", ".cfg", ".conf",
			".env", ".properties",
		},
		basenames: []string{
			".env", "database.yml", "database.yaml", "config.yml",
			"config.yaml", "settings.yml", "settings.yaml", "app.config",
		},
		directories: []string{
			"config/", "configs/", "conf/", "settings/", "environments/",
		},
		content: []string{
			`(?m)^\s*database\s*:`,
			`(?m)^\s*(host|port|username|password)\s*:`,
			`[A-Z_]+_(URL|HOST|NAME)\s*[:=]`,
			`connection[_-]?string`,
			`(postgres(ql)?|mysql|jdbc:[a-z]+)://`,
		},
		frameworks: map[string]string{
			FrameworkDocker:     `docker-compose|^\s*image:\s`,
			FrameworkKubernetes: `apiVersion:|kind:\s*(ConfigMap|Secret)`,
		},
		ruleFiles: []string{"config.yaml"},
	},
	TypeSQL: {
		extensions: []string{".sql", ".ddl", ".dml", ".psql"},
		basenames:  []string{"schema.sql", "seed.sql", "init.sql"},
		directories: []string{
			"migrations/", "migration/", "sql/", "db/", "database/", "schemas/",
		},
		content: []string{
			`CREATE\s+(TABLE|DATABASE|INDEX|VIEW|SCHEMA)`,
			`SELECT\s+.+\s+FROM\s+`,
			`INSERT\s+INTO\s+`,
			`ALTER\s+TABLE\s+`,
			`DROP\s+(TABLE|DATABASE|INDEX)`,
			`GRANT\s+[A-Z, ]+\s+ON\s+`,
		},
		frameworks: map[string]string{},
		ruleFiles:  []string{"sql.yaml"},
	},
	TypePython: {
		extensions: []string{".py", ".pyi"},
		basenames: []string{
			"settings.py", "manage.py", "wsgi.py", "asgi.py", "models.py",
			"conftest.py",
		},
		directories: []string{"migrations/", "management/", "alembic/"},
		content: []string{
			`(?m)^import\s+\w+`,
			`(?m)^from\s+[\w.]+\s+import\s`,
			`(?m)^\s*def\s+\w+\(`,
			`(?m)^\s*class\s+\w+[(:]`,
			`if\s+__name__\s*==`,
			`psycopg2|pymysql|cursor\(\)`,
		},
		frameworks: map[string]string{
			FrameworkDjango:     `from\s+django|DATABASES\s*=|django\.db|INSTALLED_APPS`,
			FrameworkFlask:      `from\s+flask\s+import|Flask\(__name__\)`,
			FrameworkFastAPI:    `from\s+fastapi\s+import|FastAPI\(`,
			FrameworkSQLAlchemy: `from\s+sqlalchemy|create_engine\(|declarative_base\(`,
			FrameworkAlembic:    `from\s+alembic|op\.(create_|drop_|alter_)|alembic\.`,
		},
		ruleFiles: []string{"python.yaml"},
	},
	TypeShell: {
		extensions: []string{".sh", ".bash", ".zsh", ".ksh"},
		basenames:  []string{".bashrc", ".bash_profile", ".zshrc", "entrypoint.sh"},
		directories: []string{
			"scripts/", "script/", "bin/", "hooks/", "ci/",
		},
		content: []string{
			`(?m)^#!/(usr/)?bin/(env\s+)?(ba|z|k)?sh`,
			`(?m)^\s*export\s+[A-Z_]+=`,
			`\bset\s+-[euxo]+`,
			`\b(psql|mysql|pg_dump|createdb|dropdb)\b`,
			`\becho\s+`,
		},
		frameworks: map[string]string{
			FrameworkDocker: `docker\s+(build|run|compose)`,
		},
		ruleFiles: []string{"shell.yaml"},
	},
	TypeDocumentation: {
		extensions: []string{".md", ".markdown", ".rst", ".txt", ".adoc"},
		basenames: []string{
			"readme", "readme.md", "changelog.md", "contributing.md", "license",
		},
		directories: []string{"docs/", "doc/", "documentation/", "wiki/"},
		content: []string{
			`(?m)^#{1,6}\s+\S`,
			"```",
			`\[[^\]]+\]\([^)]+\)`,
			`(?m)^={3,}\s*$`,
		},
		frameworks: map[string]string{},
		ruleFiles:  []string{"documentation.yaml"},
	},
}

// pathPatterns maps each type to the path regex used by the type-filtered
// discovery search.
var pathPatterns = map[SourceType]string{
	TypeInfrastructure: `(\.(tf|tfvars|hcl)$|(^|/)Dockerfile$|docker-compose\.ya?ml$)`,
	TypeConfig:         `\.(ya?ml|json|ini|toml|cfg|conf|env|properties)$`,
	TypeSQL:            `\.(sql|ddl|dml|psql)$`,
	TypePython:         `\.pyi?$`,
	TypeShell:          `\.(sh|bash|zsh|ksh)$`,
	TypeDocumentation:  `\.(md|markdown|rst|txt|adoc)$`,
}

// PathPattern returns the path-filter regex for the type-filtered search,
// or "" for types without one (Unknown).
func PathPattern(t SourceType) string {
	return pathPatterns[t]
}

func compileSignatures() map[SourceType]*signature {
	compiled := make(map[SourceType]*signature, len(signatureSpecs))

	for sourceType, spec := range signatureSpecs {
		sig := &signature{
			extensions:  make(map[string]bool, len(spec.extensions)),
			basenames:   make(map[string]bool, len(spec.basenames)),
			directories: spec.directories,
			frameworks:  make(map[string]*regexp.Regexp, len(spec.frameworks)),
			ruleFiles:   spec.ruleFiles,
		}

		for _, ext := range spec.extensions {
			sig.extensions[ext] = true
		}

		for _, base := range spec.basenames {
			sig.basenames[base] = true
		}

		for _, pattern := range spec.content {
			sig.content = append(sig.content, regexp.MustCompile(`(?i)`+pattern))
		}

		for name, pattern := range spec.frameworks {
			sig.frameworks[name] = regexp.MustCompile(`(?i)` + pattern)
		}

		compiled[sourceType] = sig
	}

	return compiled
}

package classify

import (
	"regexp"
	"strings"
)

// separatorRun matches runs of the word separators widened by TokenPattern.
var separatorRun = regexp.MustCompile(`[-_]+`)

// TokenPattern converts a database name into a regex fragment that matches
// the name under any separator convention: each hyphen or underscore run
// widens to the class [-_], every other character is escaped literally.
// Callers compile with (?i) so case variants match too.
func TokenPattern(databaseName string) string {
	parts := separatorRun.Split(databaseName, -1)

	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		escaped = append(escaped, regexp.QuoteMeta(part))
	}

	return strings.Join(escaped, "[-_]")
}

// LiteralPatterns returns the raw and delimited reference patterns used by
// the discovery engine's literal search.
func LiteralPatterns(databaseName string) []string {
	token := TokenPattern(databaseName)

	return []string{
		token,
		`"` + token + `"`,
		`'` + token + `'`,
		`:` + token,
		`=` + token,
	}
}

// SearchPatterns returns per-type semantic search templates with the database
// token already substituted. Patterns are raw regex strings; callers compile
// them case-insensitively.
func SearchPatterns(sourceType SourceType, databaseName string) []string {
	token := TokenPattern(databaseName)

	switch sourceType {
	case TypeSQL:
		return []string{
			`CREATE\s+DATABASE\s+(IF\s+NOT\s+EXISTS\s+)?` + token,
			`DROP\s+DATABASE\s+(IF\s+EXISTS\s+)?` + token,
			`USE\s+` + token,
			`\\c\s+` + token,
			`GRANT\s+[A-Z, ]+\s+ON\s+(DATABASE\s+)?` + token,
			`dbname\s*=\s*['"]?` + token,
		}
	case TypeConfig:
		return []string{
			token + `_(DB|DATABASE)_?(URL|HOST|NAME)?`,
			`database\s*[:=]\s*['"]?` + token,
			`dbname\s*[:=]\s*['"]?` + token,
			`DB_NAME\s*[:=]\s*['"]?` + token,
			`(postgres(ql)?|mysql|jdbc:[a-z]+)://[^\s'"]*` + token,
		}
	case TypeInfrastructure:
		return []string{
			`database_name\s*=\s*['"]?` + token,
			`db_name\s*[:=]\s*['"]?` + token,
			`identifier\s*=\s*['"]` + token,
			`POSTGRES_DB['":\s=]+` + token,
			`MYSQL_DATABASE['":\s=]+` + token,
		}
	case TypePython:
		return []string{
			`DATABASES\s*=[\s\S]{0,200}?` + token,
			`['"]NAME['"]\s*:\s*['"]` + token + `['"]`,
			`connect\([^)]*` + token,
			`database\s*=\s*['"]` + token + `['"]`,
			`create_engine\([^)]*` + token,
		}
	case TypeShell:
		return []string{
			`(psql|mysql|pg_dump|pg_restore)\s[^\n]*` + token,
			`(createdb|dropdb)\s[^\n]*` + token,
			`DB_NAME=['"]?` + token,
			`export\s+[A-Z_]*DB[A-Z_]*=['"]?` + token,
		}
	case TypeDocumentation:
		return []string{
			token + `\s+database`,
			`database\s+` + token,
			"`" + token + "`",
		}
	case TypeUnknown:
		return []string{token}
	}

	return []string{token}
}

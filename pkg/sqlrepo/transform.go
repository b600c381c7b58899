package sqlrepo

import "regexp"

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type rewrite struct {
	re   *regexp.Regexp
	repl string
}

// Migrations are written for SQLite. SQLite INTEGER is 64-bit, Postgres
// INTEGER is not.
var postgresRewrites = []rewrite{
	{regexp.MustCompile(`(?mi)^\s*PRAGMA\s+[^;]*;\s*$`), ""},
	{regexp.MustCompile(`\)\s*STRICT\s*;`), ");"},
	{regexp.MustCompile(`\bINTEGER\b`), "BIGINT"},
}

// TransformSQL adapts SQLite-dialect SQL to dialect.
func TransformSQL(sql string, dialect Dialect) string {
	if dialect != DialectPostgres {
		return sql
	}
	for _, r := range postgresRewrites {
		sql = r.re.ReplaceAllString(sql, r.repl)
	}
	return sql
}

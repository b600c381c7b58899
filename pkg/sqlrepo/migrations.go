package sqlrepo

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrationVersionRe = regexp.MustCompile(`^(\d+)_`)

// GooseMigrations reads the embedded .sql migration files, transforms them for
// the given dialect, and returns them as goose migrations.
func GooseMigrations(dialect Dialect) ([]*goose.Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	// ReadDir returns entries sorted by name, so versions come out in order.
	var migrations []*goose.Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		match := migrationVersionRe.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("migration file %q does not have a version prefix", entry.Name())
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration file %q has invalid version: %w", entry.Name(), err)
		}

		raw, err := migrationsFS.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration file %q: %w", entry.Name(), err)
		}

		upSQL, downSQL := parseGooseSQL(string(raw))
		migrations = append(migrations, goose.NewGoMigration(version,
			execFunc(TransformSQL(upSQL, dialect)),
			execFunc(TransformSQL(downSQL, dialect)),
		))
	}
	return migrations, nil
}

func execFunc(stmt string) *goose.GoFunc {
	if stmt == "" {
		return nil
	}
	return &goose.GoFunc{RunTx: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt)
		return err
	}}
}

// parseGooseSQL splits a goose-annotated SQL file into its up and down
// sections. Statement markers are dropped; each section runs as one Exec.
func parseGooseSQL(content string) (upSQL, downSQL string) {
	sections := map[string]*strings.Builder{"Up": {}, "Down": {}}
	var current *strings.Builder
	for line := range strings.Lines(content) {
		if directive, ok := strings.CutPrefix(strings.TrimSpace(line), "-- +goose "); ok {
			if sb, ok := sections[directive]; ok {
				current = sb
			}
			continue
		}
		if current != nil {
			current.WriteString(line)
		}
	}
	return strings.TrimSpace(sections["Up"].String()), strings.TrimSpace(sections["Down"].String())
}

// Migrate applies every pending migration to db.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	migrations, err := GooseMigrations(dialect)
	if err != nil {
		return err
	}
	gooseDialect := goose.DialectSQLite3
	if dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}
	provider, err := goose.NewProvider(gooseDialect, db, nil, goose.WithGoMigrations(migrations...))
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	for _, r := range results {
		log.Debugw("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

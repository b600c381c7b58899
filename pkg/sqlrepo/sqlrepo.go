// Package sqlrepo persists settings, folder access grants, and scan history
// in SQLite (or PostgreSQL).
package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/rxscan/rxscan/pkg/config"
)

var log = logging.Logger("rxscan/sqlrepo")

const (
	defaultJournalMode = "WAL"
	defaultBusyTimeout = 10 * time.Second
	defaultSynchronous = "NORMAL"
)

const DefaultPreparedStmtCacheSize = 64

type Repo struct {
	db            *sqlx.DB
	dialect       Dialect
	preparedStmts *lru.Cache[string, *sqlx.Stmt]
}

// New wraps an already migrated database.
func New(db *sqlx.DB, dialect Dialect) (*Repo, error) {
	cache, err := lru.NewWithEvict(DefaultPreparedStmtCacheSize, func(key string, stmt *sqlx.Stmt) {
		stmt.Close()
	})
	if err != nil {
		return nil, err
	}
	return &Repo{db: db, dialect: dialect, preparedStmts: cache}, nil
}

// Open connects to the database described by cfg, applies migrations, and
// returns a ready Repo.
func Open(ctx context.Context, cfg config.RepoConfig) (*Repo, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	if cfg.IsPostgres() {
		dialect = DialectPostgres
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening PostgreSQL database: %w", err)
		}
	} else {
		dialect = DialectSQLite
		db, err = openSQLite(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	driver := "sqlite"
	if dialect == DialectPostgres {
		driver = "postgres"
	}
	return New(sqlx.NewDb(db, driver), dialect)
}

func openSQLite(dbPath string) (*sql.DB, error) {
	pragmas := []string{
		fmt.Sprintf("_pragma=journal_mode(%s)", defaultJournalMode),
		fmt.Sprintf("_pragma=busy_timeout(%d)", defaultBusyTimeout.Milliseconds()),
		fmt.Sprintf("_pragma=synchronous(%s)", defaultSynchronous),
	}
	connStr := fmt.Sprintf("file:%s?%s", dbPath, strings.Join(pragmas, "&"))
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database at %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// prepare returns a cached prepared statement for query, rebinding `?`
// placeholders for the active dialect.
func (r *Repo) prepare(ctx context.Context, query string) (*sqlx.Stmt, error) {
	query = r.db.Rebind(query)
	if stmt, ok := r.preparedStmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := r.db.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	_ = r.preparedStmts.Add(query, stmt)
	return stmt, nil
}

func (r *Repo) Dialect() Dialect {
	return r.dialect
}

func (r *Repo) Close() error {
	r.preparedStmts.Purge()
	return r.db.Close()
}

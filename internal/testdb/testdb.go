package testdb

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/rxscan/rxscan/pkg/sqlrepo"
)

// CreateTestDB creates a migrated SQLite database under the test's temp dir.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	d := t.TempDir()
	dsn := fmt.Sprintf("file:%s/testdb_%d.db", d, time.Now().UnixNano())

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err, "failed to open SQLite database")
	// modernc SQLite deadlocks on its internal locks with more than one
	// connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	t.Cleanup(func() {
		db.Close()
	})

	require.NoError(t, sqlrepo.Migrate(t.Context(), db, sqlrepo.DialectSQLite), "failed to apply migrations")
	return db
}

// CreateTestRepo returns a Repo backed by a fresh test database.
func CreateTestRepo(t *testing.T) *sqlrepo.Repo {
	t.Helper()
	repo, err := sqlrepo.New(sqlx.NewDb(CreateTestDB(t), "sqlite"), sqlrepo.DialectSQLite)
	require.NoError(t, err)
	return repo
}

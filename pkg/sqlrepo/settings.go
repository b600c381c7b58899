package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rxscan/rxscan/pkg/folders"
)

var _ folders.Settings = (*Repo)(nil)

// Setting returns the value stored under key, and whether it was present.
func (r *Repo) Setting(ctx context.Context, key string) (string, bool, error) {
	stmt, err := r.prepare(ctx, `SELECT value FROM settings WHERE key = ?`)
	if err != nil {
		return "", false, err
	}
	var value string
	if err := stmt.GetContext(ctx, &value, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading setting %q: %w", key, err)
	}
	return value, true, nil
}

const upsertSetting = `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (r *Repo) SetSetting(ctx context.Context, key, value string) error {
	stmt, err := r.prepare(ctx, upsertSetting)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("writing setting %q: %w", key, err)
	}
	return nil
}

// SetSettings writes all values in one transaction.
func (r *Repo) SetSettings(ctx context.Context, values map[string]string) (err error) {
	stmt, err := r.prepare(ctx, upsertSetting)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting settings transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Warnw("Rolling back settings transaction", "err", rbErr)
			}
		}
	}()

	txStmt := tx.StmtxContext(ctx, stmt)
	now := time.Now().Unix()
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if _, err := txStmt.ExecContext(ctx, key, values[key], now); err != nil {
			return fmt.Errorf("writing setting %q: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}

func (r *Repo) DeleteSetting(ctx context.Context, key string) error {
	stmt, err := r.prepare(ctx, `DELETE FROM settings WHERE key = ?`)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, key); err != nil {
		return fmt.Errorf("deleting setting %q: %w", key, err)
	}
	return nil
}

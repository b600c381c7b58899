package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rxscan/rxscan/pkg/folders"
)

var _ folders.AccessList = (*Repo)(nil)

// AddAccess records that token grants access to path, replacing any previous
// grant under the same token.
func (r *Repo) AddAccess(ctx context.Context, token, path string) error {
	stmt, err := r.prepare(ctx,
		`INSERT INTO access_list (token, path, granted_at) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET path = excluded.path, granted_at = excluded.granted_at`)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, token, path, time.Now().Unix()); err != nil {
		return fmt.Errorf("adding access grant: %w", err)
	}
	return nil
}

func (r *Repo) LookupAccess(ctx context.Context, token string) (string, bool, error) {
	stmt, err := r.prepare(ctx, `SELECT path FROM access_list WHERE token = ?`)
	if err != nil {
		return "", false, err
	}
	var path string
	if err := stmt.GetContext(ctx, &path, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("looking up access grant: %w", err)
	}
	return path, true, nil
}

func (r *Repo) RemoveAccess(ctx context.Context, token string) error {
	stmt, err := r.prepare(ctx, `DELETE FROM access_list WHERE token = ?`)
	if err != nil {
		return err
	}
	if _, err := stmt.ExecContext(ctx, token); err != nil {
		return fmt.Errorf("removing access grant: %w", err)
	}
	return nil
}

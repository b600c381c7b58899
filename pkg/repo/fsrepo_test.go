package repo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rxscan/rxscan/pkg/config"
	"github.com/rxscan/rxscan/pkg/repo"
)

func TestOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	r, err := repo.Open(config.RepoConfig{Dir: dir})
	require.NoError(t, err)
	require.DirExists(t, dir)
	require.Equal(t, filepath.Join(dir, "Scans"), r.PrivateFolder())
	require.Equal(t, filepath.Join(dir, "TempFiles"), r.TempRoot())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = repo.Open(config.RepoConfig{Dir: file})
	require.ErrorContains(t, err, "not a directory")
}

func TestCleanTemp(t *testing.T) {
	r, err := repo.Open(config.RepoConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, r.CleanTemp())

	stale := filepath.Join(r.TempRoot(), "scan-123")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "scan.tif"), []byte("x"), 0o644))

	require.NoError(t, r.CleanTemp())
	require.NoDirExists(t, stale)
	require.DirExists(t, r.TempRoot())
}

func TestOpenSQLRepo(t *testing.T) {
	r, err := repo.Open(config.RepoConfig{Dir: t.TempDir()})
	require.NoError(t, err)

	db, err := r.OpenSQLRepo(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.FileExists(t, filepath.Join(r.Path(), "rxscan.db"))
}

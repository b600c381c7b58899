package sqlrepo_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rxscan/rxscan/internal/testdb"
	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/config"
	"github.com/rxscan/rxscan/pkg/pipeline/model"
	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/sqlrepo"
)

func TestSettings(t *testing.T) {
	repo := testdb.CreateTestRepo(t)

	_, ok, err := repo.Setting(t.Context(), "DefaultToken")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.SetSetting(t.Context(), "DefaultToken", "abc"))
	value, ok, err := repo.Setting(t.Context(), "DefaultToken")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", value)

	require.NoError(t, repo.SetSetting(t.Context(), "DefaultToken", "def"))
	value, _, err = repo.Setting(t.Context(), "DefaultToken")
	require.NoError(t, err)
	require.Equal(t, "def", value)

	require.NoError(t, repo.DeleteSetting(t.Context(), "DefaultToken"))
	_, ok, err = repo.Setting(t.Context(), "DefaultToken")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetSettings(t *testing.T) {
	repo := testdb.CreateTestRepo(t)
	require.NoError(t, repo.SetSetting(t.Context(), "DefaultPath", "/old"))

	require.NoError(t, repo.SetSettings(t.Context(), map[string]string{
		"DefaultToken": "tok",
		"DefaultPath":  "/scans",
	}))
	for key, want := range map[string]string{"DefaultToken": "tok", "DefaultPath": "/scans"} {
		value, ok, err := repo.Setting(t.Context(), key)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, value)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.Error(t, repo.SetSettings(ctx, map[string]string{"DefaultPath": "/elsewhere"}))
	value, _, err := repo.Setting(t.Context(), "DefaultPath")
	require.NoError(t, err)
	require.Equal(t, "/scans", value)
}

func TestAccessList(t *testing.T) {
	repo := testdb.CreateTestRepo(t)

	require.NoError(t, repo.AddAccess(t.Context(), "tok", "/scans"))
	path, ok, err := repo.LookupAccess(t.Context(), "tok")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/scans", path)

	require.NoError(t, repo.AddAccess(t.Context(), "tok", "/other"))
	path, _, err = repo.LookupAccess(t.Context(), "tok")
	require.NoError(t, err)
	require.Equal(t, "/other", path)

	require.NoError(t, repo.RemoveAccess(t.Context(), "tok"))
	_, ok, err = repo.LookupAccess(t.Context(), "tok")
	require.NoError(t, err)
	require.False(t, ok)

	// Removing a missing grant is not an error.
	require.NoError(t, repo.RemoveAccess(t.Context(), "tok"))
}

func TestScanHistory(t *testing.T) {
	repo := testdb.CreateTestRepo(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		require.NoError(t, repo.RecordScan(t.Context(), model.ScanRecord{
			ID:         uuid.New(),
			DeviceID:   "virtual:Flatbed",
			Mode:       scanner.Color,
			Status:     events.Done,
			OutputPath: filepath.Join("scans", "Untitled Scan.jpeg"),
			OutputSize: int64(1000 + i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	failed := model.ScanRecord{
		ID:        uuid.New(),
		DeviceID:  "virtual:Flatbed",
		Mode:      scanner.Grayscale,
		Status:    events.Failed,
		Error:     "paper jam",
		CreatedAt: base.Add(time.Hour),
	}
	require.NoError(t, repo.RecordScan(t.Context(), failed))

	records, err := repo.ListScans(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, failed, records[0])
	require.Equal(t, int64(1002), records[1].OutputSize)
	require.Equal(t, scanner.Color, records[1].Mode)
}

func TestOpenSQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.RepoConfig{Dir: dir}

	repo, err := sqlrepo.Open(t.Context(), cfg)
	require.NoError(t, err)
	require.Equal(t, sqlrepo.DialectSQLite, repo.Dialect())
	require.NoError(t, repo.SetSetting(t.Context(), "k", "v"))
	require.NoError(t, repo.Close())

	// Reopening runs migrations again without error and keeps data.
	repo, err = sqlrepo.Open(t.Context(), cfg)
	require.NoError(t, err)
	defer repo.Close()
	value, ok, err := repo.Setting(t.Context(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)
}

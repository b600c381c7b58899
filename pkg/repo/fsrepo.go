package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	logging "github.com/ipfs/go-log/v2"

	"github.com/rxscan/rxscan/pkg/config"
	"github.com/rxscan/rxscan/pkg/sqlrepo"
)

var log = logging.Logger("rxscan/repo")

const (
	privateFolderName = "Scans"
	tempFolderName    = "TempFiles"
)

// Open returns the data directory described by cfg, creating it if needed.
func Open(cfg config.RepoConfig) (*FsRepo, error) {
	stat, err := os.Stat(cfg.Dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		// initialize path if DNE
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
	} else if !stat.IsDir() {
		return nil, fmt.Errorf("data dir '%s' is not a directory", cfg.Dir)
	}

	return &FsRepo{path: cfg.Dir, cfg: cfg}, nil
}

// FsRepo is the application's private data directory.
type FsRepo struct {
	path string
	cfg  config.RepoConfig
}

func (r *FsRepo) Path() string {
	return r.path
}

// PrivateFolder is where scans go when no default folder is usable.
func (r *FsRepo) PrivateFolder() string {
	return r.join(privateFolderName)
}

// TempRoot holds one short-lived folder per scan.
func (r *FsRepo) TempRoot() string {
	return r.join(tempFolderName)
}

// CleanTemp removes scan folders left behind by a process that exited
// mid-scan.
func (r *FsRepo) CleanTemp() error {
	entries, err := os.ReadDir(r.TempRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		p := r.join(tempFolderName, e.Name())
		log.Debugw("Removing stale temp folder", "path", p)
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
}

// OpenSQLRepo opens the settings and history database, migrating it if
// needed.
func (r *FsRepo) OpenSQLRepo(ctx context.Context) (*sqlrepo.Repo, error) {
	return sqlrepo.Open(ctx, r.cfg)
}

func (r *FsRepo) join(paths ...string) string {
	return filepath.Join(append([]string{r.path}, paths...)...)
}

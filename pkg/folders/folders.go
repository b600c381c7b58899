// Package folders manages the default scan output folder and the access
// grants that let the application reopen it later.
package folders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"

	"github.com/rxscan/rxscan/pkg/types"
)

var log = logging.Logger("rxscan/folders")

const (
	KeyDefaultToken = "DefaultToken"
	KeyDefaultPath  = "DefaultPath"
)

// Settings is a persistent string key-value store.
type Settings interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	// SetSettings writes every value or none of them.
	SetSettings(ctx context.Context, values map[string]string) error
}

// Folder is a writable directory together with the token that grants access
// to it.
type Folder struct {
	Token string
	Path  string
}

type Manager struct {
	settings Settings
	grants   Grants
	fs       afero.Fs
	private  string

	mu sync.Mutex
}

type Option func(*Manager)

// WithFs sets the filesystem used to check and create folders.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) {
		m.fs = fs
	}
}

// NewManager returns a Manager that falls back to privateDir whenever no
// usable default folder is configured.
func NewManager(settings Settings, grants Grants, privateDir string, opts ...Option) *Manager {
	m := &Manager{
		settings: settings,
		grants:   grants,
		fs:       afero.NewOsFs(),
		private:  privateDir,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultFolder returns the persisted default folder when its token still
// resolves, and otherwise the private folder, which then becomes the new
// default.
func (m *Manager) DefaultFolder(ctx context.Context) (Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok, err := m.settings.Setting(ctx, KeyDefaultToken)
	if err != nil {
		return Folder{}, err
	}
	if ok && token != "" {
		path, err := m.grants.Resolve(ctx, token)
		if err == nil {
			if err := m.refreshPath(ctx, path); err != nil {
				return Folder{}, err
			}
			return Folder{Token: token, Path: path}, nil
		}
		var denied types.StorageAccessDeniedError
		if !errors.As(err, &denied) {
			return Folder{}, err
		}
		log.Warnw("Default folder is no longer accessible, falling back to private folder", "token", token, "err", err)
		if err := m.grants.Revoke(ctx, token); err != nil {
			log.Warnw("Revoking stale folder grant", "token", token, "err", err)
		}
	}
	return m.usePrivate(ctx)
}

// SetDefaultFolder grants access to path and makes it the default folder,
// revoking the grant it replaces.
func (m *Manager) SetDefaultFolder(ctx context.Context, path string) (Folder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Folder{}, err
	}
	info, err := m.fs.Stat(abs)
	if err != nil {
		return Folder{}, fmt.Errorf("checking folder %s: %w", abs, err)
	}
	if !info.IsDir() {
		return Folder{}, fmt.Errorf("%s is not a directory", abs)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replace(ctx, abs)
}

// Reset forgets the configured default folder and falls back to the private
// folder.
func (m *Manager) Reset(ctx context.Context) (Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usePrivate(ctx)
}

func (m *Manager) usePrivate(ctx context.Context) (Folder, error) {
	if err := m.fs.MkdirAll(m.private, 0o755); err != nil {
		return Folder{}, fmt.Errorf("creating private folder %s: %w", m.private, err)
	}
	return m.replace(ctx, m.private)
}

func (m *Manager) replace(ctx context.Context, path string) (Folder, error) {
	previous, hadPrevious, err := m.settings.Setting(ctx, KeyDefaultToken)
	if err != nil {
		return Folder{}, err
	}

	token, err := m.grants.Grant(ctx, path)
	if err != nil {
		return Folder{}, fmt.Errorf("granting access to %s: %w", path, err)
	}
	err = m.settings.SetSettings(ctx, map[string]string{
		KeyDefaultToken: token,
		KeyDefaultPath:  path,
	})
	if err != nil {
		if revokeErr := m.grants.Revoke(ctx, token); revokeErr != nil {
			log.Warnw("Revoking unused folder grant", "token", token, "err", revokeErr)
		}
		return Folder{}, fmt.Errorf("saving default folder: %w", err)
	}

	if hadPrevious && previous != "" && previous != token {
		if err := m.grants.Revoke(ctx, previous); err != nil {
			log.Warnw("Revoking previous folder grant", "token", previous, "err", err)
		}
	}
	log.Infow("Default folder set", "path", path)
	return Folder{Token: token, Path: path}, nil
}

func (m *Manager) refreshPath(ctx context.Context, path string) error {
	stored, ok, err := m.settings.Setting(ctx, KeyDefaultPath)
	if err != nil {
		return err
	}
	if ok && stored == path {
		return nil
	}
	log.Debugw("Refreshing stored default path", "from", stored, "to", path)
	return m.settings.SetSetting(ctx, KeyDefaultPath, path)
}

func isDir(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

package config

import (
	"errors"
	"net/url"
	"path/filepath"
)

// DatabaseFile is the SQLite file kept in the data dir.
const DatabaseFile = "rxscan.db"

// RepoConfig locates the data dir and, optionally, a PostgreSQL database
// used instead of the SQLite file in it.
type RepoConfig struct {
	Dir         string `mapstructure:"data_dir" yaml:"data_dir"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url" validate:"omitempty,url"`
}

func (r RepoConfig) Validate() error {
	if r.Dir == "" {
		return errors.New("repo data dir is required for the private scan folder")
	}
	if r.DatabaseURL != "" && !r.IsPostgres() {
		return errors.New("repo database URL must use the postgres:// scheme")
	}
	return nil
}

func (r RepoConfig) DatabasePath() string {
	return filepath.Join(r.Dir, DatabaseFile)
}

// IsPostgres reports whether DatabaseURL names a PostgreSQL server.
func (r RepoConfig) IsPostgres() bool {
	u, err := url.Parse(r.DatabaseURL)
	if err != nil {
		return false
	}
	return u.Scheme == "postgres" || u.Scheme == "postgresql"
}

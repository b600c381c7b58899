package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/rxscan/rxscan/pkg/acquire"
	"github.com/rxscan/rxscan/pkg/bus"
	"github.com/rxscan/rxscan/pkg/config"
	"github.com/rxscan/rxscan/pkg/convert"
	"github.com/rxscan/rxscan/pkg/discovery"
	"github.com/rxscan/rxscan/pkg/folders"
	"github.com/rxscan/rxscan/pkg/pipeline"
	"github.com/rxscan/rxscan/pkg/repo"
	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/scanner/sane"
	"github.com/rxscan/rxscan/pkg/scanner/virtual"
	"github.com/rxscan/rxscan/pkg/sqlrepo"
)

// app is the set of long-lived components a command works with.
type app struct {
	cfg      config.Config
	repo     *repo.FsRepo
	db       *sqlrepo.Repo
	bus      bus.Bus
	backend  scanner.Backend
	watcher  *discovery.Watcher
	folders  *folders.Manager
	pipeline *pipeline.Pipeline
}

// loadApp loads the config and wires every component. Discovery is not
// started; commands that need devices call watcher.Refresh or Start.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load[config.Config]()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	r, err := repo.Open(cfg.Repo)
	if err != nil {
		return nil, fmt.Errorf("opening data dir: %w", err)
	}
	if err := r.CleanTemp(); err != nil {
		log.Warnw("Cleaning stale temp folders", "err", err)
	}

	db, err := r.OpenSQLRepo(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	backend, err := newBackend(cfg.Scan)
	if err != nil {
		db.Close()
		return nil, err
	}

	fs := afero.NewOsFs()
	var grants folders.Grants
	switch cfg.Folders.AccessModel {
	case "path":
		grants = folders.NewPathGrants(fs)
	default:
		grants = folders.NewTokenGrants(db, fs)
	}

	a := &app{
		cfg:     cfg,
		repo:    r,
		db:      db,
		bus:     bus.New(),
		backend: backend,
	}
	a.watcher = discovery.New(backend,
		discovery.WithPollInterval(cfg.Discovery.PollInterval),
		discovery.WithPreferred(cfg.Scan.Device),
		discovery.WithPublisher(a.bus),
	)
	a.folders = folders.NewManager(db, grants, r.PrivateFolder(), folders.WithFs(fs))
	a.pipeline = pipeline.New(a.watcher, a.folders, acquire.New(backend, acquire.WithFs(fs)), r.TempRoot(),
		pipeline.WithFs(fs),
		pipeline.WithRecorder(db),
		pipeline.WithPublisher(a.bus),
		pipeline.WithBaseName(cfg.Output.BaseName),
		pipeline.WithConvertOptions(convert.Options{Quality: cfg.Convert.Quality}),
		pipeline.WithResolution(scanner.Resolution{DpiX: cfg.Scan.Resolution, DpiY: cfg.Scan.Resolution}),
		pipeline.WithFormat(scanner.Format(cfg.Scan.Format)),
	)
	return a, nil
}

func newBackend(cfg config.ScanConfig) (scanner.Backend, error) {
	switch cfg.Backend {
	case "virtual":
		return virtual.New(
			virtual.WithDevices(cfg.Virtual.Devices...),
			virtual.WithScanDuration(cfg.Virtual.ScanDuration),
		), nil
	case "sane":
		b := sane.New(sane.WithCommand(cfg.Sane.Command), sane.WithExtraArgs(cfg.Sane.ExtraArgs...))
		if !b.IsAvailable() {
			log.Warnw("Scanner command not found, no devices will be discovered", "command", cfg.Sane.Command)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown scanner backend %q", cfg.Backend)
	}
}

func (a *app) Close() error {
	a.watcher.Stop()
	a.bus.WaitAsync()
	return errors.Join(a.db.Close(), a.repo.CleanTemp())
}

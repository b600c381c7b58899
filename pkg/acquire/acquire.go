// Package acquire runs a single flatbed scan job against a scanner backend.
package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/types"
)

var (
	log    = logging.Logger("rxscan/acquire")
	tracer = otel.Tracer("rxscan/acquire")
)

// Job describes one scan.
type Job struct {
	DeviceID   string
	Folder     string
	ColorMode  scanner.ColorMode
	Resolution scanner.Resolution
	Format     scanner.Format
}

// ScannedImage is the raw file a job produced.
type ScannedImage struct {
	Path      string
	Size      int64
	DeviceID  string
	ColorMode scanner.ColorMode
}

type Option func(*Orchestrator)

func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) {
		o.fs = fs
	}
}

// Orchestrator runs at most one scan at a time.
type Orchestrator struct {
	backend scanner.Backend
	fs      afero.Fs
	busy    atomic.Bool
}

func New(backend scanner.Backend, opts ...Option) *Orchestrator {
	o := &Orchestrator{backend: backend, fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a scan is in flight.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Scan acquires one page into a new file in job.Folder. It returns
// types.ErrBusy without waiting if another scan is running, and
// types.ErrCancelled if the scan was cancelled. Any other failure is a
// types.ScanFailedError, and no file is left behind.
func (o *Orchestrator) Scan(ctx context.Context, job Job) (ScannedImage, error) {
	if job.DeviceID == "" {
		return ScannedImage{}, types.ErrInvalidDevice
	}
	if job.Folder == "" {
		return ScannedImage{}, types.ErrEmpty{Field: "folder"}
	}
	if !o.busy.CompareAndSwap(false, true) {
		return ScannedImage{}, types.ErrBusy
	}
	defer o.busy.Store(false)

	ctx, span := tracer.Start(ctx, "scan", trace.WithAttributes(
		attribute.String("device.id", job.DeviceID),
		attribute.String("scan.color_mode", job.ColorMode.String()),
	))
	defer span.End()

	img, err := o.scan(ctx, job)
	if err != nil {
		err = classify(ctx, job.DeviceID, err)
		if errors.Is(err, types.ErrCancelled) {
			span.SetAttributes(attribute.Bool("scan.cancelled", true))
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return ScannedImage{}, err
	}
	return img, nil
}

func (o *Orchestrator) scan(ctx context.Context, job Job) (ScannedImage, error) {
	start := time.Now()
	device, err := o.backend.Open(ctx, job.DeviceID)
	if err != nil {
		return ScannedImage{}, fmt.Errorf("opening scanner: %w", err)
	}
	defer device.Close()

	cfg := scanner.FlatbedConfig{
		ColorMode:  job.ColorMode,
		Resolution: job.Resolution,
		Format:     job.Format,
	}
	if cfg.Resolution == (scanner.Resolution{}) {
		cfg.Resolution = scanner.DefaultResolution
	}
	if cfg.Format == "" {
		cfg.Format = scanner.FormatTIFF
	}

	path := filepath.Join(job.Folder, fmt.Sprintf("scan-%s.%s", uuid.NewString(), cfg.Format.Ext()))
	f, err := o.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return ScannedImage{}, fmt.Errorf("creating scan file: %w", err)
	}

	log.Infow("Scanning", "device", job.DeviceID, "mode", cfg.ColorMode, "dpi", cfg.Resolution.DpiX)
	w := bufio.NewWriter(f)
	err = device.Scan(ctx, cfg, w)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing scan file: %w", closeErr)
	}

	var size int64
	if err == nil {
		info, statErr := o.fs.Stat(path)
		switch {
		case statErr != nil:
			err = statErr
		case info.Size() == 0:
			err = errors.New("scanner produced no data")
		default:
			size = info.Size()
		}
	}
	if err != nil {
		if rmErr := o.fs.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			log.Warnw("Removing partial scan", "path", path, "err", rmErr)
		}
		return ScannedImage{}, err
	}

	log.Infow("Scan complete", "path", path, "bytes", size, "elapsed", time.Since(start))
	return ScannedImage{
		Path:      path,
		Size:      size,
		DeviceID:  job.DeviceID,
		ColorMode: job.ColorMode,
	}, nil
}

func classify(ctx context.Context, deviceID string, err error) error {
	if errors.Is(err, types.ErrCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		log.Infow("Scan cancelled", "device", deviceID)
		return types.ErrCancelled
	}
	log.Errorw("Scan failed", "device", deviceID, "err", err)
	return types.NewScanFailedError(deviceID, err)
}

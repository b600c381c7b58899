// Package pipeline ties a scan, its JPEG conversion, and the default folder
// together into one user-visible operation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rxscan/rxscan/pkg/acquire"
	"github.com/rxscan/rxscan/pkg/bus"
	"github.com/rxscan/rxscan/pkg/bus/events"
	"github.com/rxscan/rxscan/pkg/convert"
	"github.com/rxscan/rxscan/pkg/folders"
	"github.com/rxscan/rxscan/pkg/pipeline/model"
	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/types"
)

var (
	log    = logging.Logger("rxscan/pipeline")
	tracer = otel.Tracer("rxscan/pipeline")
)

const (
	DefaultBaseName = "Untitled Scan"
	// maxNameAttempts bounds the "<base> (N).jpeg" search.
	maxNameAttempts = 10000
)

// DeviceSource reports the currently selected scanner.
type DeviceSource interface {
	Current() (scanner.Device, error)
}

type FolderSource interface {
	DefaultFolder(ctx context.Context) (folders.Folder, error)
}

type Scanner interface {
	Scan(ctx context.Context, job acquire.Job) (acquire.ScannedImage, error)
}

// Recorder stores the history entry of each run.
type Recorder interface {
	RecordScan(ctx context.Context, rec model.ScanRecord) error
}

type ConvertFunc func(ctx context.Context, fs afero.Fs, src, dst string, opts convert.Options) (convert.Result, error)

// Outcome is the result of one Run.
type Outcome struct {
	ID       uuid.UUID
	Status   events.Status
	DeviceID string
	Mode     scanner.ColorMode
	Output   string
	Size     int64
}

type Option func(*Pipeline)

func WithFs(fs afero.Fs) Option {
	return func(p *Pipeline) { p.fs = fs }
}

func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

func WithPublisher(pub bus.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithBaseName(name string) Option {
	return func(p *Pipeline) { p.baseName = name }
}

func WithConvertOptions(opts convert.Options) Option {
	return func(p *Pipeline) { p.convertOpts = opts }
}

func WithConverter(fn ConvertFunc) Option {
	return func(p *Pipeline) { p.convert = fn }
}

func WithResolution(res scanner.Resolution) Option {
	return func(p *Pipeline) { p.resolution = res }
}

func WithFormat(f scanner.Format) Option {
	return func(p *Pipeline) { p.format = f }
}

type Pipeline struct {
	devices   DeviceSource
	folders   FolderSource
	scanner   Scanner
	recorder  Recorder
	publisher bus.Publisher
	fs        afero.Fs
	tempRoot  string

	baseName    string
	resolution  scanner.Resolution
	format      scanner.Format
	convertOpts convert.Options
	convert     ConvertFunc

	running atomic.Bool
	mu      sync.RWMutex
	last    events.PipelineEvent
}

// New returns a Pipeline that stages raw scans in per-run folders under
// tempRoot.
func New(devices DeviceSource, folderSource FolderSource, sc Scanner, tempRoot string, opts ...Option) *Pipeline {
	p := &Pipeline{
		devices:     devices,
		folders:     folderSource,
		scanner:     sc,
		publisher:   &bus.NoopBus{},
		fs:          afero.NewOsFs(),
		tempRoot:    tempRoot,
		baseName:    DefaultBaseName,
		convertOpts: convert.DefaultOptions(),
		convert:     convert.ToJPEG,
		last:        events.PipelineEvent{Status: events.Ready},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status returns the most recent pipeline event.
func (p *Pipeline) Status() events.PipelineEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Busy reports whether a run is in progress.
func (p *Pipeline) Busy() bool {
	return p.running.Load()
}

// Run scans one page from the selected device in the given mode and stores
// it as a JPEG in the default folder. A cancelled scan is not an error: the
// outcome status is events.Cancelled.
func (p *Pipeline) Run(ctx context.Context, mode scanner.ColorMode) (Outcome, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Outcome{}, types.ErrBusy
	}
	defer p.running.Store(false)

	out := Outcome{ID: uuid.New(), Mode: mode}
	ctx, span := tracer.Start(ctx, "pipeline", trace.WithAttributes(
		attribute.String("scan.id", out.ID.String()),
		attribute.String("scan.color_mode", mode.String()),
	))
	defer span.End()

	device, err := p.devices.Current()
	if err != nil {
		p.publish(out, events.Failed, err)
		return out, err
	}
	out.DeviceID = device.ID
	span.SetAttributes(attribute.String("device.id", device.ID))

	err = p.run(ctx, &out)
	switch {
	case err == nil:
		out.Status = events.Done
	case errors.Is(err, types.ErrCancelled), errors.Is(err, context.Canceled):
		out.Status = events.Cancelled
		err = nil
	default:
		out.Status = events.Failed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	p.record(ctx, out, err)
	p.publish(out, out.Status, err)
	return out, err
}

func (p *Pipeline) run(ctx context.Context, out *Outcome) error {
	folder, err := p.folders.DefaultFolder(ctx)
	if err != nil {
		return fmt.Errorf("resolving default folder: %w", err)
	}

	if err := p.fs.MkdirAll(p.tempRoot, 0o755); err != nil {
		return fmt.Errorf("creating temp root: %w", err)
	}
	tempDir, err := afero.TempDir(p.fs, p.tempRoot, "scan-")
	if err != nil {
		return fmt.Errorf("creating temp folder: %w", err)
	}
	defer func() {
		if err := p.fs.RemoveAll(tempDir); err != nil {
			log.Warnw("Removing temp folder", "path", tempDir, "err", err)
		}
	}()

	p.publish(*out, events.Scanning, nil)
	img, err := p.scanner.Scan(ctx, acquire.Job{
		DeviceID:   out.DeviceID,
		Folder:     tempDir,
		ColorMode:  out.Mode,
		Resolution: p.resolution,
		Format:     p.format,
	})
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}

	p.publish(*out, events.Converting, nil)
	res, err := p.convertUnique(ctx, img.Path, folder.Path)
	if err != nil {
		return err
	}
	out.Output = res.Path
	out.Size = res.OutputSize
	log.Infow("Scan saved", "path", res.Path, "width", res.Width, "height", res.Height)
	return nil
}

// convertUnique converts src into dir under the first free
// "<base>.jpeg" / "<base> (N).jpeg" name.
func (p *Pipeline) convertUnique(ctx context.Context, src, dir string) (convert.Result, error) {
	ctx, span := tracer.Start(ctx, "store")
	defer span.End()

	for n := range maxNameAttempts {
		dst := filepath.Join(dir, candidateName(p.baseName, n))
		if _, err := p.fs.Stat(dst); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return convert.Result{}, fmt.Errorf("checking %s: %w", dst, err)
		}

		res, err := p.convert(ctx, p.fs, src, dst, p.convertOpts)
		if errors.Is(err, os.ErrExist) {
			// created by someone else since the Stat
			continue
		}
		return res, err
	}
	return convert.Result{}, fmt.Errorf("no free file name for %q in %s", p.baseName, dir)
}

func candidateName(base string, n int) string {
	if n == 0 {
		return base + ".jpeg"
	}
	return fmt.Sprintf("%s (%d).jpeg", base, n)
}

func (p *Pipeline) record(ctx context.Context, out Outcome, runErr error) {
	if p.recorder == nil {
		return
	}
	rec := model.ScanRecord{
		ID:         out.ID,
		DeviceID:   out.DeviceID,
		Mode:       out.Mode,
		Status:     out.Status,
		OutputPath: out.Output,
		OutputSize: out.Size,
		CreatedAt:  time.Now().UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if err := p.recorder.RecordScan(context.WithoutCancel(ctx), rec); err != nil {
		log.Errorw("Recording scan history", "scan", out.ID, "err", err)
	}
}

func (p *Pipeline) publish(out Outcome, status events.Status, err error) {
	evt := events.PipelineEvent{
		ScanID:   out.ID,
		Status:   status,
		DeviceID: out.DeviceID,
		Mode:     out.Mode,
		Output:   out.Output,
		Error:    err,
		At:       time.Now(),
	}
	p.mu.Lock()
	p.last = evt
	p.mu.Unlock()
	log.Debugw("Pipeline status", "scan", out.ID, "status", status)
	p.publisher.Publish(events.TopicPipeline, evt)
}

// Package convert re-encodes scanned images as JPEG, honoring the source's
// orientation and resolution metadata.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"github.com/rxscan/rxscan/pkg/types"
)

var (
	log    = logging.Logger("rxscan/convert")
	tracer = otel.Tracer("rxscan/convert")
)

const (
	DefaultQuality = 0.80
	// FallbackDPI is written when the source carries no resolution.
	FallbackDPI = 96
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

type Options struct {
	// Quality is the JPEG quality in (0, 1].
	Quality float64
}

func DefaultOptions() Options {
	return Options{Quality: DefaultQuality}
}

func (o Options) Validate() error {
	if !(o.Quality > 0 && o.Quality <= 1) {
		return fmt.Errorf("%w: got %v", types.ErrInvalidQuality, o.Quality)
	}
	return nil
}

// Result describes a written JPEG.
type Result struct {
	Path string
	// Width and Height are the oriented output dimensions.
	Width  int
	Height int
	// DpiX and DpiY follow the oriented axes.
	DpiX        int
	DpiY        int
	Orientation Orientation
	Gray        bool
	SourceSize  int64
	OutputSize  int64
	Elapsed     time.Duration
}

// ToJPEG decodes src and writes it to dst as a JPEG. dst must not exist.
// Decode failures are types.DecodeError, write failures types.EncodeError.
// A cancelled ctx yields types.ErrCancelled.
func ToJPEG(ctx context.Context, fs afero.Fs, src, dst string, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}
	ctx, span := tracer.Start(ctx, "convert", trace.WithAttributes(
		attribute.String("convert.source", src),
		attribute.Float64("convert.quality", opts.Quality),
	))
	defer span.End()

	res, err := toJPEG(ctx, fs, src, dst, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("convert.width", res.Width),
		attribute.Int("convert.height", res.Height),
		attribute.Int64("convert.output_size", res.OutputSize),
	)
	return res, nil
}

func toJPEG(ctx context.Context, fs afero.Fs, src, dst string, opts Options) (Result, error) {
	start := time.Now()
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return Result{}, types.NewDecodeError(src, err)
	}

	img, meta, err := decode(data)
	if err != nil {
		return Result{}, types.NewDecodeError(src, err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}

	oriented := meta.Orientation.Apply(img)
	dpiX, dpiY := meta.DpiX, meta.DpiY
	if meta.Orientation.SwapsAxes() {
		dpiX, dpiY = dpiY, dpiX
	}
	gray := isGray(img)
	if gray {
		oriented = toGray(oriented)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, oriented, &jpeg.Options{Quality: jpegQuality(opts.Quality)}); err != nil {
		return Result{}, types.NewEncodeError(dst, err)
	}
	out, err := withJFIF(buf.Bytes(), dpiX, dpiY)
	if err != nil {
		return Result{}, types.NewEncodeError(dst, err)
	}
	if err := writeExclusive(fs, dst, out); err != nil {
		return Result{}, types.NewEncodeError(dst, err)
	}

	b := oriented.Bounds()
	res := Result{
		Path:        dst,
		Width:       b.Dx(),
		Height:      b.Dy(),
		DpiX:        dpiX,
		DpiY:        dpiY,
		Orientation: meta.Orientation,
		Gray:        gray,
		SourceSize:  int64(len(data)),
		OutputSize:  int64(len(out)),
		Elapsed:     time.Since(start),
	}
	log.Infow("Converted to JPEG",
		"source", src,
		"source_size", humanize.IBytes(uint64(res.SourceSize)),
		"output", dst,
		"output_size", humanize.IBytes(uint64(res.OutputSize)),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func decode(data []byte) (image.Image, Metadata, error) {
	mime := mimetype.Detect(data)
	var (
		img image.Image
		err error
	)
	r := bytes.NewReader(data)
	switch {
	case mime.Is("image/jpeg"):
		img, err = jpeg.Decode(r)
	case mime.Is("image/png"):
		img, err = png.Decode(r)
	case mime.Is("image/gif"):
		img, err = gif.Decode(r)
	case mime.Is("image/tiff"):
		img, err = tiff.Decode(r)
	case mime.Is("image/bmp"):
		img, err = bmp.Decode(r)
	default:
		return nil, Metadata{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime.String())
	}
	if err != nil {
		return nil, Metadata{}, err
	}
	return img, readMetadata(mime.String(), data), nil
}

func jpegQuality(q float64) int {
	return max(1, min(100, int(q*100+0.5)))
}

func isGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}

func toGray(img image.Image) image.Image {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	g := image.NewGray(img.Bounds())
	xdraw.Draw(g, g.Bounds(), img, img.Bounds().Min, xdraw.Src)
	return g
}

func writeExclusive(fs afero.Fs, path string, data []byte) (err error) {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			if rmErr := fs.Remove(path); rmErr != nil {
				log.Warnw("Removing partial JPEG", "path", path, "err", rmErr)
			}
		}
	}()
	_, err = f.Write(data)
	return err
}

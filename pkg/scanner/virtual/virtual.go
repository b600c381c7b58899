// Package virtual provides a scanner backend that renders deterministic,
// pseudo-random document pages instead of talking to hardware. It is useful
// for demos and for exercising the scan pipeline without a device attached.
package virtual

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/types"
)

// ErrDisconnected is returned by a scan whose device was unplugged mid-scan.
var ErrDisconnected = errors.New("device disconnected")

// Page size in inches. Kept small so demo scans stay quick.
const (
	DefaultPageWidth  = 2.0
	DefaultPageHeight = 3.0
)

type Option func(*Backend)

// WithDevices plugs in the named devices at construction.
func WithDevices(names ...string) Option {
	return func(b *Backend) {
		for _, n := range names {
			b.plug(n)
		}
	}
}

// WithScanDuration makes each scan take at least d, honoring cancellation.
func WithScanDuration(d time.Duration) Option {
	return func(b *Backend) {
		b.scanDuration = d
	}
}

// WithPageSize sets the rendered page size in inches.
func WithPageSize(width, height float64) Option {
	return func(b *Backend) {
		b.pageWidth, b.pageHeight = width, height
	}
}

type Backend struct {
	mu           sync.Mutex
	devices      []scanner.Device
	unplugged    map[string]chan struct{}
	scanDuration time.Duration
	pageWidth    float64
	pageHeight   float64
}

var _ scanner.Backend = (*Backend)(nil)

func New(opts ...Option) *Backend {
	b := &Backend{
		unplugged:  make(map[string]chan struct{}),
		pageWidth:  DefaultPageWidth,
		pageHeight: DefaultPageHeight,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func deviceID(name string) string {
	return "virtual:" + name
}

// Plug attaches a device and returns its identifier.
func (b *Backend) Plug(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.plug(name)
}

func (b *Backend) plug(name string) string {
	id := deviceID(name)
	if slices.ContainsFunc(b.devices, func(d scanner.Device) bool { return d.ID == id }) {
		return id
	}
	b.devices = append(b.devices, scanner.Device{
		ID:        id,
		Name:      name,
		Vendor:    "rxscan",
		Model:     "Virtual Flatbed",
		Kind:      "flatbed scanner",
		Available: true,
	})
	b.unplugged[id] = make(chan struct{})
	return id
}

// Unplug detaches a device. Scans in flight on it fail with ErrDisconnected.
func (b *Backend) Unplug(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = slices.DeleteFunc(b.devices, func(d scanner.Device) bool { return d.ID == id })
	if ch, ok := b.unplugged[id]; ok {
		close(ch)
		delete(b.unplugged, id)
	}
}

func (b *Backend) Devices(ctx context.Context) ([]scanner.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.devices), nil
}

func (b *Backend) Open(ctx context.Context, id string) (scanner.Scanner, error) {
	if id == "" {
		return nil, types.ErrInvalidDevice
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	gone, ok := b.unplugged[id]
	if !ok {
		return nil, fmt.Errorf("opening %s: %w", id, ErrDisconnected)
	}
	return &handle{backend: b, id: id, gone: gone}, nil
}

type handle struct {
	backend *Backend
	id      string
	gone    <-chan struct{}
}

func (h *handle) Scan(ctx context.Context, cfg scanner.FlatbedConfig, w io.Writer) error {
	if h.backend.scanDuration > 0 {
		timer := time.NewTimer(h.backend.scanDuration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err())
		case <-h.gone:
			return ErrDisconnected
		case <-timer.C:
		}
	}
	select {
	case <-h.gone:
		return ErrDisconnected
	default:
	}

	res := cfg.Resolution
	if res.DpiX == 0 || res.DpiY == 0 {
		res = scanner.DefaultResolution
	}
	width := int(h.backend.pageWidth * float64(res.DpiX))
	height := int(h.backend.pageHeight * float64(res.DpiY))
	page := renderPage(h.id, cfg.ColorMode, width, height)

	switch cfg.Format {
	case scanner.FormatTIFF, "":
		var buf bytes.Buffer
		if err := tiff.Encode(&buf, page, &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return err
		}
		if err := setTIFFResolution(buf.Bytes(), res); err != nil {
			return err
		}
		_, err := w.Write(buf.Bytes())
		return err
	case scanner.FormatPNG:
		return png.Encode(w, page)
	case scanner.FormatBMP:
		return bmp.Encode(w, page)
	default:
		return fmt.Errorf("virtual scanner cannot write %q", cfg.Format)
	}
}

func (h *handle) Close() error {
	return nil
}

// renderPage draws a white page with pseudo-random "text lines". The same
// device always renders the same page.
func renderPage(id string, mode scanner.ColorMode, width, height int) image.Image {
	hash := fnv.New64a()
	hash.Write([]byte(id))
	rng := rand.New(rand.NewPCG(hash.Sum64(), uint64(width)<<32|uint64(height)))

	var page draw.Image
	if mode == scanner.Grayscale {
		page = image.NewGray(image.Rect(0, 0, width, height))
	} else {
		page = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	draw.Draw(page, page.Bounds(), image.White, image.Point{}, draw.Src)

	ink := color.RGBA{R: 20, G: 30, B: 90, A: 255}
	margin := width / 10
	lineHeight := max(height/40, 2)
	for y := margin; y+lineHeight < height-margin; y += lineHeight * 2 {
		lineWidth := margin + rng.IntN(max(width-3*margin, 1))
		draw.Draw(page, image.Rect(margin, y, margin+lineWidth, y+lineHeight), image.NewUniform(ink), image.Point{}, draw.Src)
	}
	if mode == scanner.Color {
		stamp := color.RGBA{R: 200, G: 30, B: 30, A: 255}
		size := width / 6
		draw.Draw(page, image.Rect(width-margin-size, margin, width-margin, margin+size), image.NewUniform(stamp), image.Point{}, draw.Src)
	}
	return page
}

const (
	tagXResolution = 0x011A
	tagYResolution = 0x011B
	typeRational   = 5
)

// setTIFFResolution rewrites the X/YResolution rationals of a little-endian
// TIFF in place. The x/image encoder always records 72 DPI.
func setTIFFResolution(b []byte, res scanner.Resolution) error {
	if len(b) < 8 || string(b[:4]) != "II*\x00" {
		return errors.New("not a little-endian TIFF")
	}
	le := binary.LittleEndian
	ifd := int(le.Uint32(b[4:8]))
	if ifd+2 > len(b) {
		return errors.New("truncated TIFF directory")
	}
	count := int(le.Uint16(b[ifd:]))
	for i := range count {
		entry := ifd + 2 + i*12
		if entry+12 > len(b) {
			return errors.New("truncated TIFF directory")
		}
		tag := le.Uint16(b[entry:])
		if le.Uint16(b[entry+2:]) != typeRational {
			continue
		}
		var dpi uint32
		switch tag {
		case tagXResolution:
			dpi = uint32(res.DpiX)
		case tagYResolution:
			dpi = uint32(res.DpiY)
		default:
			continue
		}
		off := int(le.Uint32(b[entry+8:]))
		if off+8 > len(b) {
			return errors.New("truncated TIFF resolution")
		}
		le.PutUint32(b[off:], dpi)
		le.PutUint32(b[off+4:], 1)
	}
	return nil
}

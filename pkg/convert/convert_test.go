package convert_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/rxscan/rxscan/pkg/convert"
	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/scanner/virtual"
	"github.com/rxscan/rxscan/pkg/types"
)

// exifSegment builds an APP1 segment with orientation and resolution tags.
func exifSegment(orientation uint16, dpiX, dpiY uint32) []byte {
	le := binary.LittleEndian
	tiffData := make([]byte, 78)
	copy(tiffData, "II*\x00")
	le.PutUint32(tiffData[4:], 8)
	le.PutUint16(tiffData[8:], 4)
	entries := []struct {
		tag, typ uint16
		value    uint32
	}{
		{0x0112, 3, uint32(orientation)},
		{0x011A, 5, 62},
		{0x011B, 5, 70},
		{0x0128, 3, 2},
	}
	for i, e := range entries {
		off := 10 + i*12
		le.PutUint16(tiffData[off:], e.tag)
		le.PutUint16(tiffData[off+2:], e.typ)
		le.PutUint32(tiffData[off+4:], 1)
		le.PutUint32(tiffData[off+8:], e.value)
	}
	// next IFD offset at 58 stays zero
	le.PutUint32(tiffData[62:], dpiX)
	le.PutUint32(tiffData[66:], 1)
	le.PutUint32(tiffData[70:], dpiY)
	le.PutUint32(tiffData[74:], 1)

	payload := append([]byte("Exif\x00\x00"), tiffData...)
	seg := []byte{0xFF, 0xE1, 0, 0}
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...)
}

func orientedJPEG(t *testing.T, w, h int, orientation uint16, dpi uint32) []byte {
	t.Helper()
	return orientedJPEGWithDPI(t, w, h, orientation, dpi, dpi)
}

func orientedJPEGWithDPI(t *testing.T, w, h int, orientation uint16, dpiX, dpiY uint32) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	raw := buf.Bytes()

	out := append([]byte{}, raw[:2]...)
	out = append(out, exifSegment(orientation, dpiX, dpiY)...)
	return append(out, raw[2:]...)
}

func jfifDensity(t *testing.T, data []byte) (int, int) {
	t.Helper()
	require.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data[:4])
	require.Equal(t, "JFIF\x00", string(data[6:11]))
	require.Equal(t, byte(1), data[13])
	return int(binary.BigEndian.Uint16(data[14:])), int(binary.BigEndian.Uint16(data[16:]))
}

func convertFile(t *testing.T, fs afero.Fs, src []byte) (convert.Result, []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, "/src", src, 0o644))
	res, err := convert.ToJPEG(t.Context(), fs, "/src", "/out.jpeg", convert.DefaultOptions())
	require.NoError(t, err)
	out, err := afero.ReadFile(fs, "/out.jpeg")
	require.NoError(t, err)
	return res, out
}

func TestToJPEGHonorsOrientation(t *testing.T) {
	for _, tc := range []struct {
		orientation   uint16
		width, height int
	}{
		{1, 40, 24},
		{3, 40, 24},
		{5, 24, 40},
		{6, 24, 40},
		{8, 24, 40},
	} {
		fs := afero.NewMemMapFs()
		res, out := convertFile(t, fs, orientedJPEG(t, 40, 24, tc.orientation, 200))

		require.Equal(t, convert.Orientation(tc.orientation), res.Orientation)
		require.Equal(t, tc.width, res.Width)
		require.Equal(t, tc.height, res.Height)

		cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
		require.NoError(t, err)
		require.Equal(t, tc.width, cfg.Width, "orientation %d", tc.orientation)
		require.Equal(t, tc.height, cfg.Height, "orientation %d", tc.orientation)

		dpiX, dpiY := jfifDensity(t, out)
		require.Equal(t, 200, dpiX)
		require.Equal(t, 200, dpiY)
	}
}

func TestToJPEGOrientsResolution(t *testing.T) {
	for _, tc := range []struct {
		orientation uint16
		dpiX, dpiY  int
	}{
		{1, 300, 150},
		{3, 300, 150},
		{5, 150, 300},
		{6, 150, 300},
		{7, 150, 300},
		{8, 150, 300},
	} {
		res, out := convertFile(t, afero.NewMemMapFs(), orientedJPEGWithDPI(t, 40, 24, tc.orientation, 300, 150))
		require.Equal(t, tc.dpiX, res.DpiX, "orientation %d", tc.orientation)
		require.Equal(t, tc.dpiY, res.DpiY, "orientation %d", tc.orientation)

		dpiX, dpiY := jfifDensity(t, out)
		require.Equal(t, tc.dpiX, dpiX, "orientation %d", tc.orientation)
		require.Equal(t, tc.dpiY, dpiY, "orientation %d", tc.orientation)
	}
}

func TestToJPEGIsStable(t *testing.T) {
	src := orientedJPEG(t, 30, 10, 6, 300)
	first, _ := convertFile(t, afero.NewMemMapFs(), src)
	second, _ := convertFile(t, afero.NewMemMapFs(), src)
	require.Equal(t, first.Width, second.Width)
	require.Equal(t, first.Height, second.Height)
}

func TestToJPEGFromScan(t *testing.T) {
	backend := virtual.New(virtual.WithDevices("desk"), virtual.WithPageSize(0.5, 1))
	s, err := backend.Open(t.Context(), "virtual:desk")
	require.NoError(t, err)
	defer s.Close()

	t.Run("grayscale tiff stays grayscale and keeps its dpi", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, s.Scan(t.Context(), scanner.FlatbedConfig{ColorMode: scanner.Grayscale}, &buf))

		res, out := convertFile(t, afero.NewMemMapFs(), buf.Bytes())
		require.True(t, res.Gray)
		require.Equal(t, 150, res.Width)
		require.Equal(t, 300, res.Height)

		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		require.IsType(t, &image.Gray{}, img)

		dpiX, dpiY := jfifDensity(t, out)
		require.Equal(t, 300, dpiX)
		require.Equal(t, 300, dpiY)
	})

	t.Run("color png falls back to the default dpi", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := scanner.FlatbedConfig{ColorMode: scanner.Color, Format: scanner.FormatPNG, Resolution: scanner.Resolution{DpiX: 100, DpiY: 100}}
		require.NoError(t, s.Scan(t.Context(), cfg, &buf))

		res, out := convertFile(t, afero.NewMemMapFs(), buf.Bytes())
		require.False(t, res.Gray)
		require.Equal(t, 50, res.Width)

		img, err := jpeg.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		require.IsType(t, &image.YCbCr{}, img)

		dpiX, _ := jfifDensity(t, out)
		require.Equal(t, convert.FallbackDPI, dpiX)
	})
}

func TestToJPEGNeverOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src", orientedJPEG(t, 8, 8, 1, 72), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/out.jpeg", []byte("keep me"), 0o644))

	_, err := convert.ToJPEG(t.Context(), fs, "/src", "/out.jpeg", convert.DefaultOptions())
	var encErr types.EncodeError
	require.True(t, errors.As(err, &encErr))
	require.ErrorIs(t, err, os.ErrExist)

	existing, err := afero.ReadFile(fs, "/out.jpeg")
	require.NoError(t, err)
	require.Equal(t, "keep me", string(existing))
}

func TestToJPEGDecodeError(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src", []byte("definitely not an image"), 0o644))

	_, err := convert.ToJPEG(t.Context(), fs, "/src", "/out.jpeg", convert.DefaultOptions())
	var decErr types.DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, "/src", decErr.Path())
	require.ErrorIs(t, err, convert.ErrUnsupportedFormat)

	exists, err := afero.Exists(fs, "/out.jpeg")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = convert.ToJPEG(t.Context(), fs, "/missing", "/out.jpeg", convert.DefaultOptions())
	require.True(t, errors.As(err, &decErr))
}

func TestToJPEGCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src", orientedJPEG(t, 8, 8, 1, 72), 0o644))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := convert.ToJPEG(ctx, fs, "/src", "/out.jpeg", convert.DefaultOptions())
	require.ErrorIs(t, err, types.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)

	exists, err := afero.Exists(fs, "/out.jpeg")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestToJPEGQuality(t *testing.T) {
	fs := afero.NewMemMapFs()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	require.NoError(t, afero.WriteFile(fs, "/src", buf.Bytes(), 0o644))

	for _, q := range []float64{0, -0.5, 1.01} {
		_, err := convert.ToJPEG(t.Context(), fs, "/src", "/out.jpeg", convert.Options{Quality: q})
		require.ErrorIs(t, err, types.ErrInvalidQuality)
	}
	_, err := convert.ToJPEG(t.Context(), fs, "/src", "/out.jpeg", convert.Options{Quality: 1})
	require.NoError(t, err)
}

func TestOrientationApply(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	marker := color.NRGBA{R: 255, A: 255}
	src.SetNRGBA(0, 0, marker)

	for _, tc := range []struct {
		o    convert.Orientation
		x, y int
	}{
		{convert.OrientationNormal, 0, 0},
		{convert.OrientationFlipH, 2, 0},
		{convert.OrientationRotate180, 2, 1},
		{convert.OrientationFlipV, 0, 1},
		{convert.OrientationTranspose, 0, 0},
		{convert.OrientationRotate90, 1, 0},
		{convert.OrientationTransverse, 1, 2},
		{convert.OrientationRotate270, 0, 2},
	} {
		out := tc.o.Apply(src)
		b := out.Bounds()
		if tc.o.SwapsAxes() {
			require.Equal(t, 2, b.Dx())
			require.Equal(t, 3, b.Dy())
		} else {
			require.Equal(t, 3, b.Dx())
			require.Equal(t, 2, b.Dy())
		}
		r, g, bl, a := out.At(b.Min.X+tc.x, b.Min.Y+tc.y).RGBA()
		require.Equal(t, []uint32{0xffff, 0, 0, 0xffff}, []uint32{r, g, bl, a}, "orientation %d", tc.o)
	}
}

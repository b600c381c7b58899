package virtual_test

import (
	"bytes"
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/scanner/virtual"
	"github.com/rxscan/rxscan/pkg/types"
)

func TestDevices(t *testing.T) {
	b := virtual.New(virtual.WithDevices("desk", "lobby"))

	devices, err := b.Devices(t.Context())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	require.Equal(t, "virtual:desk", devices[0].ID)
	require.True(t, devices[0].Available)

	b.Unplug("virtual:desk")
	devices, err = b.Devices(t.Context())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "virtual:lobby", devices[0].ID)

	require.Equal(t, "virtual:attic", b.Plug("attic"))
	require.Equal(t, "virtual:attic", b.Plug("attic"), "plugging twice is a no-op")
	devices, err = b.Devices(t.Context())
	require.NoError(t, err)
	require.Len(t, devices, 2)
}

func TestScan(t *testing.T) {
	b := virtual.New(virtual.WithDevices("desk"), virtual.WithPageSize(0.5, 1))

	t.Run("grayscale tiff at 300 dpi", func(t *testing.T) {
		s, err := b.Open(t.Context(), "virtual:desk")
		require.NoError(t, err)
		defer s.Close()

		var buf bytes.Buffer
		require.NoError(t, s.Scan(t.Context(), scanner.FlatbedConfig{ColorMode: scanner.Grayscale}, &buf))

		img, err := tiff.Decode(&buf)
		require.NoError(t, err)
		require.Equal(t, image.Rect(0, 0, 150, 300), img.Bounds())
		_, isGray := img.(*image.Gray)
		require.True(t, isGray)
	})

	t.Run("same device renders the same page", func(t *testing.T) {
		s, err := b.Open(t.Context(), "virtual:desk")
		require.NoError(t, err)

		var a, c bytes.Buffer
		cfg := scanner.FlatbedConfig{ColorMode: scanner.Color, Format: scanner.FormatPNG}
		require.NoError(t, s.Scan(t.Context(), cfg, &a))
		require.NoError(t, s.Scan(t.Context(), cfg, &c))
		require.Equal(t, a.Bytes(), c.Bytes())
	})

	t.Run("unknown device", func(t *testing.T) {
		_, err := b.Open(t.Context(), "virtual:nope")
		require.ErrorIs(t, err, virtual.ErrDisconnected)
	})
}

func TestScanCancelAndDisconnect(t *testing.T) {
	t.Run("cancelled context", func(t *testing.T) {
		b := virtual.New(virtual.WithDevices("desk"), virtual.WithScanDuration(time.Minute))
		s, err := b.Open(t.Context(), "virtual:desk")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		err = s.Scan(ctx, scanner.FlatbedConfig{}, &bytes.Buffer{})
		require.ErrorIs(t, err, types.ErrCancelled)
	})

	t.Run("unplugged mid-scan", func(t *testing.T) {
		b := virtual.New(virtual.WithDevices("desk"), virtual.WithScanDuration(time.Minute))
		s, err := b.Open(t.Context(), "virtual:desk")
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			done <- s.Scan(t.Context(), scanner.FlatbedConfig{}, &bytes.Buffer{})
		}()
		b.Unplug("virtual:desk")

		select {
		case err := <-done:
			require.ErrorIs(t, err, virtual.ErrDisconnected)
		case <-time.After(5 * time.Second):
			t.Fatal("scan did not notice the unplug")
		}
	})
}

package acquire_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/rxscan/rxscan/pkg/acquire"
	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/scanner/virtual"
	"github.com/rxscan/rxscan/pkg/types"
)

func folderEntries(t *testing.T, fs afero.Fs, dir string) int {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	return len(entries)
}

func TestScan(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp/job", 0o755))
	backend := virtual.New(virtual.WithDevices("Flatbed"))
	o := acquire.New(backend, acquire.WithFs(fs))

	img, err := o.Scan(t.Context(), acquire.Job{
		DeviceID:  "virtual:Flatbed",
		Folder:    "/tmp/job",
		ColorMode: scanner.Grayscale,
	})
	require.NoError(t, err)
	require.Equal(t, "virtual:Flatbed", img.DeviceID)
	require.Equal(t, scanner.Grayscale, img.ColorMode)
	require.Regexp(t, `^/tmp/job/scan-[0-9a-f-]{36}\.tif$`, img.Path)
	require.Positive(t, img.Size)

	f, err := fs.Open(img.Path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := tiff.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, int(virtual.DefaultPageWidth*300), cfg.Width)
	require.Equal(t, int(virtual.DefaultPageHeight*300), cfg.Height)
}

func TestScanRejectsEmptyDevice(t *testing.T) {
	o := acquire.New(virtual.New(), acquire.WithFs(afero.NewMemMapFs()))
	_, err := o.Scan(t.Context(), acquire.Job{Folder: "/tmp"})
	require.ErrorIs(t, err, types.ErrInvalidDevice)
}

func TestScanBusy(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp/job", 0o755))
	backend := virtual.New(virtual.WithDevices("Flatbed"), virtual.WithScanDuration(200*time.Millisecond))
	o := acquire.New(backend, acquire.WithFs(fs))
	job := acquire.Job{DeviceID: "virtual:Flatbed", Folder: "/tmp/job"}

	done := make(chan error, 1)
	go func() {
		_, err := o.Scan(t.Context(), job)
		done <- err
	}()
	require.Eventually(t, o.Busy, time.Second, time.Millisecond)

	start := time.Now()
	_, err := o.Scan(t.Context(), job)
	require.ErrorIs(t, err, types.ErrBusy)
	require.Less(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, <-done)
	require.False(t, o.Busy())
	require.Equal(t, 1, folderEntries(t, fs, "/tmp/job"))
}

func TestScanCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp/job", 0o755))
	backend := virtual.New(virtual.WithDevices("Flatbed"), virtual.WithScanDuration(time.Minute))
	o := acquire.New(backend, acquire.WithFs(fs))

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := o.Scan(ctx, acquire.Job{DeviceID: "virtual:Flatbed", Folder: "/tmp/job"})
	require.ErrorIs(t, err, types.ErrCancelled)
	require.Zero(t, folderEntries(t, fs, "/tmp/job"))
	require.False(t, o.Busy())
}

func TestScanDeviceRemovedMidScan(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp/job", 0o755))
	backend := virtual.New(virtual.WithDevices("Flatbed"), virtual.WithScanDuration(time.Minute))
	o := acquire.New(backend, acquire.WithFs(fs))

	go func() {
		time.Sleep(20 * time.Millisecond)
		backend.Unplug("virtual:Flatbed")
	}()
	_, err := o.Scan(t.Context(), acquire.Job{DeviceID: "virtual:Flatbed", Folder: "/tmp/job"})

	var failed types.ScanFailedError
	require.True(t, errors.As(err, &failed))
	require.Equal(t, "virtual:Flatbed", failed.DeviceID())
	require.ErrorIs(t, err, virtual.ErrDisconnected)
	require.Zero(t, folderEntries(t, fs, "/tmp/job"))
}

type partialBackend struct{}

func (partialBackend) Devices(context.Context) ([]scanner.Device, error) { return nil, nil }

func (partialBackend) Open(context.Context, string) (scanner.Scanner, error) {
	return partialScanner{}, nil
}

type partialScanner struct{}

func (partialScanner) Scan(_ context.Context, _ scanner.FlatbedConfig, w io.Writer) error {
	if _, err := w.Write(make([]byte, 8192)); err != nil {
		return err
	}
	return errors.New("paper jam")
}

func (partialScanner) Close() error { return nil }

func TestScanFailureLeavesNoFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/tmp/job", 0o755))
	o := acquire.New(partialBackend{}, acquire.WithFs(fs))

	_, err := o.Scan(t.Context(), acquire.Job{DeviceID: "dev", Folder: "/tmp/job"})
	require.ErrorContains(t, err, "paper jam")
	var failed types.ScanFailedError
	require.True(t, errors.As(err, &failed))
	require.Zero(t, folderEntries(t, fs, "/tmp/job"))
}

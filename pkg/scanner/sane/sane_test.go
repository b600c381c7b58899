package sane

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/types"
)

func TestParseDeviceList(t *testing.T) {
	t.Run("keeps scanners and drops other devices", func(t *testing.T) {
		in := strings.Join([]string{
			"epson2:libusb:001:004\tEpson\tGT-S50\tflatbed scanner",
			"v4l:/dev/video0\tNoname\tWebcam\tvirtual device",
			"hpaio:/usb/OfficeJet\tHP\tOfficeJet 4650\tmulti-function peripheral",
			"",
		}, "\n")

		devices, err := parseDeviceList(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, devices, 2)

		require.Equal(t, scanner.Device{
			ID:        "epson2:libusb:001:004",
			Name:      "Epson GT-S50",
			Vendor:    "Epson",
			Model:     "GT-S50",
			Kind:      "flatbed scanner",
			Available: true,
		}, devices[0])
		require.Equal(t, "hpaio:/usb/OfficeJet", devices[1].ID)
	})

	t.Run("empty output means no devices", func(t *testing.T) {
		devices, err := parseDeviceList(strings.NewReader("\n"))
		require.NoError(t, err)
		require.Empty(t, devices)
	})

	t.Run("rejects malformed lines", func(t *testing.T) {
		_, err := parseDeviceList(strings.NewReader("just-an-id\n"))
		require.ErrorContains(t, err, "malformed device line")
	})
}

func TestScanArgs(t *testing.T) {
	t.Run("grayscale at default resolution", func(t *testing.T) {
		args, err := scanArgs("dev0", scanner.FlatbedConfig{ColorMode: scanner.Grayscale})
		require.NoError(t, err)
		require.Equal(t, []string{
			"--device-name=dev0",
			"--mode=Gray",
			"--resolution=300",
			"--format=tiff",
		}, args)
	})

	t.Run("color png", func(t *testing.T) {
		args, err := scanArgs("dev0", scanner.FlatbedConfig{
			ColorMode:  scanner.Color,
			Resolution: scanner.Resolution{DpiX: 600, DpiY: 600},
			Format:     scanner.FormatPNG,
		})
		require.NoError(t, err)
		require.Contains(t, args, "--mode=Color")
		require.Contains(t, args, "--resolution=600")
		require.Contains(t, args, "--format=png")
	})

	t.Run("bmp is not supported", func(t *testing.T) {
		_, err := scanArgs("dev0", scanner.FlatbedConfig{Format: scanner.FormatBMP})
		require.Error(t, err)
	})
}

func TestOpenRejectsEmptyDevice(t *testing.T) {
	_, err := New().Open(t.Context(), "")
	require.ErrorIs(t, err, types.ErrInvalidDevice)
}

func TestIsCancelMessage(t *testing.T) {
	require.True(t, isCancelMessage("scanimage: sane_read: Operation was cancelled"))
	require.True(t, isCancelMessage("Operation was canceled"))
	require.False(t, isCancelMessage("scanimage: open of device foo failed: Invalid argument"))
}

// Package scanner defines the device model and the backend interface that
// platform scanner APIs are adapted to.
package scanner

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// DefaultResolution is the resolution every scan is configured with unless a
// job asks otherwise.
var DefaultResolution = Resolution{DpiX: 300, DpiY: 300}

type ColorMode int

const (
	Grayscale ColorMode = iota
	Color
)

func (m ColorMode) String() string {
	switch m {
	case Grayscale:
		return "grayscale"
	case Color:
		return "color"
	default:
		return fmt.Sprintf("ColorMode(%d)", int(m))
	}
}

// ParseColorMode accepts "color"/"colour" and "grayscale"/"greyscale"/"gray"/"grey".
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "color", "colour":
		return Color, nil
	case "grayscale", "greyscale", "gray", "grey":
		return Grayscale, nil
	default:
		return 0, fmt.Errorf("unknown color mode %q", s)
	}
}

func (m ColorMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ColorMode) UnmarshalText(b []byte) error {
	parsed, err := ParseColorMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type Resolution struct {
	DpiX int `json:"dpiX"`
	DpiY int `json:"dpiY"`
}

// Format is the file format a backend writes scans in.
type Format string

const (
	FormatTIFF Format = "tiff"
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
)

func (f Format) Ext() string {
	if f == FormatTIFF {
		return "tif"
	}
	return string(f)
}

// Device is a scanner reported by a backend.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Vendor    string `json:"vendor,omitempty"`
	Model     string `json:"model,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Available bool   `json:"available"`
}

func (d Device) String() string {
	if d.Name == "" {
		return d.ID
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.ID)
}

// FlatbedConfig holds the hardware settings applied before a scan begins.
type FlatbedConfig struct {
	ColorMode  ColorMode
	Resolution Resolution
	Format     Format
}

// Backend is a platform scanner API.
type Backend interface {
	// Devices enumerates the image scanners currently attached.
	Devices(ctx context.Context) ([]Device, error)
	// Open resolves a scanner handle for a device identifier.
	Open(ctx context.Context, deviceID string) (Scanner, error)
}

// Scanner is an open handle on one device.
type Scanner interface {
	// Scan acquires one page from the default source using cfg and writes the
	// encoded image to w. Implementations return an error wrapping
	// [types.ErrCancelled] when the platform cancels the scan.
	Scan(ctx context.Context, cfg FlatbedConfig, w io.Writer) error
	Close() error
}

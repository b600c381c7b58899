// Package sane drives scanners through the SANE `scanimage` frontend.
package sane

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/rxscan/rxscan/pkg/scanner"
	"github.com/rxscan/rxscan/pkg/types"
)

var log = logging.Logger("rxscan/scanner/sane")

const DefaultCommand = "scanimage"

// deviceListFormat makes scanimage print one tab-separated line per device:
// id, vendor, model, type.
const deviceListFormat = "%d\t%v\t%m\t%t%n"

type Option func(*Backend)

// WithCommand overrides the scanimage executable.
func WithCommand(cmd string) Option {
	return func(b *Backend) {
		b.command = cmd
	}
}

// WithExtraArgs appends arguments to every scan invocation, e.g. a
// `--source` override for sheet feeders.
func WithExtraArgs(args ...string) Option {
	return func(b *Backend) {
		b.extraArgs = append(b.extraArgs, args...)
	}
}

type Backend struct {
	command   string
	extraArgs []string
}

var _ scanner.Backend = (*Backend)(nil)

func New(opts ...Option) *Backend {
	b := &Backend{command: DefaultCommand}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Devices(ctx context.Context) ([]scanner.Device, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.command, "--formatted-device-list="+deviceListFormat)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("listing devices with %s: %w: %s", b.command, err, strings.TrimSpace(stderr.String()))
	}
	return parseDeviceList(&stdout)
}

func parseDeviceList(r io.Reader) ([]scanner.Device, error) {
	var devices []scanner.Device
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed device line %q", line)
		}
		kind := fields[3]
		if !isImageScanner(kind) {
			log.Debugw("skipping non-scanner device", "id", fields[0], "kind", kind)
			continue
		}
		devices = append(devices, scanner.Device{
			ID:        fields[0],
			Name:      strings.TrimSpace(fields[1] + " " + fields[2]),
			Vendor:    fields[1],
			Model:     fields[2],
			Kind:      kind,
			Available: true,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading device list: %w", err)
	}
	return devices, nil
}

func isImageScanner(kind string) bool {
	kind = strings.ToLower(kind)
	return strings.Contains(kind, "scanner") || strings.Contains(kind, "multi-function")
}

func (b *Backend) Open(ctx context.Context, deviceID string) (scanner.Scanner, error) {
	if deviceID == "" {
		return nil, types.ErrInvalidDevice
	}
	return &handle{backend: b, deviceID: deviceID}, nil
}

type handle struct {
	backend  *Backend
	deviceID string
}

func (h *handle) Scan(ctx context.Context, cfg scanner.FlatbedConfig, w io.Writer) error {
	args, err := scanArgs(h.deviceID, cfg)
	if err != nil {
		return err
	}
	args = append(args, h.backend.extraArgs...)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.backend.command, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	log.Debugw("running scan", "command", h.backend.command, "args", args)

	err = cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", types.ErrCancelled, ctx.Err())
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if isCancelMessage(msg) {
			return fmt.Errorf("%w: %s", types.ErrCancelled, msg)
		}
		return fmt.Errorf("%s: %w: %s", h.backend.command, err, msg)
	}
	return nil
}

func (h *handle) Close() error {
	return nil
}

func scanArgs(deviceID string, cfg scanner.FlatbedConfig) ([]string, error) {
	var mode string
	switch cfg.ColorMode {
	case scanner.Grayscale:
		mode = "Gray"
	case scanner.Color:
		mode = "Color"
	default:
		return nil, fmt.Errorf("unsupported color mode %s", cfg.ColorMode)
	}

	var format string
	switch cfg.Format {
	case scanner.FormatTIFF, "":
		format = "tiff"
	case scanner.FormatPNG:
		format = "png"
	default:
		return nil, fmt.Errorf("scanimage cannot write %q", cfg.Format)
	}

	res := cfg.Resolution
	if res.DpiX == 0 {
		res = scanner.DefaultResolution
	}

	return []string{
		"--device-name=" + deviceID,
		"--mode=" + mode,
		"--resolution=" + strconv.Itoa(res.DpiX),
		"--format=" + format,
	}, nil
}

// SANE reports SANE_STATUS_CANCELLED as "Operation was cancelled" (or
// "canceled" depending on the backend).
func isCancelMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "cancelled") || strings.Contains(msg, "canceled")
}

// IsAvailable reports whether the scanimage executable can be found.
func (b *Backend) IsAvailable() bool {
	_, err := exec.LookPath(b.command)
	return err == nil
}

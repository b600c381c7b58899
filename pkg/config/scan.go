package config

import (
	"fmt"
	"slices"
	"time"
)

type ScanConfig struct {
	// Backend selects the scanner API: "sane" drives scanimage, "virtual"
	// renders test pages.
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=sane virtual"`
	// Device is the preferred device ID; discovery selects it when it appears.
	Device     string        `mapstructure:"device" yaml:"device"`
	Resolution int           `mapstructure:"resolution" yaml:"resolution" validate:"gte=50,lte=4800"`
	Format     string        `mapstructure:"format" yaml:"format" validate:"oneof=tiff png bmp"`
	Sane       SaneConfig    `mapstructure:"sane" yaml:"sane"`
	Virtual    VirtualConfig `mapstructure:"virtual" yaml:"virtual"`
}

// saneFormats are the formats scanimage can write.
var saneFormats = []string{"tiff", "png"}

// Validate rejects a format the selected backend cannot produce.
func (s ScanConfig) Validate() error {
	if s.Backend == "sane" && !slices.Contains(saneFormats, s.Format) {
		return fmt.Errorf("scan format %q is not supported by the sane backend, use one of %v", s.Format, saneFormats)
	}
	return nil
}

type SaneConfig struct {
	Command   string   `mapstructure:"command" yaml:"command" validate:"required"`
	ExtraArgs []string `mapstructure:"extra_args" yaml:"extra_args"`
}

type VirtualConfig struct {
	Devices      []string      `mapstructure:"devices" yaml:"devices"`
	ScanDuration time.Duration `mapstructure:"scan_duration" yaml:"scan_duration" validate:"gte=0"`
}

type ConvertConfig struct {
	Quality float64 `mapstructure:"quality" yaml:"quality" validate:"gt=0,lte=1"`
}

type DiscoveryConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gte=100ms"`
}

type FoldersConfig struct {
	// AccessModel is "token" for revocable opaque grants kept in the access
	// list, or "path" to store the absolute folder path directly.
	AccessModel string `mapstructure:"access_model" yaml:"access_model" validate:"oneof=token path"`
}

type OutputConfig struct {
	BaseName string `mapstructure:"base_name" yaml:"base_name" validate:"required,excludesall=/\\"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host" validate:"required"`
	Port int    `mapstructure:"port" yaml:"port" validate:"gt=0,lt=65536"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
	// SampleRatio is the fraction of root traces kept.
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

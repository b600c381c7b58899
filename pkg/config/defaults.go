package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBackend      = "sane"
	DefaultResolution   = 300
	DefaultFormat       = "tiff"
	DefaultQuality      = 0.80
	DefaultPollInterval = 2 * time.Second
	DefaultAccessModel  = "token"
	DefaultBaseName     = "Untitled Scan"
	DefaultServerHost   = "127.0.0.1"
	DefaultServerPort   = 7890
	DefaultSampleRatio  = 1.0
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("scan.backend", DefaultBackend)
	v.SetDefault("scan.resolution", DefaultResolution)
	v.SetDefault("scan.format", DefaultFormat)
	v.SetDefault("scan.sane.command", "scanimage")
	v.SetDefault("scan.virtual.devices", []string{"Virtual Flatbed"})
	v.SetDefault("scan.virtual.scan_duration", time.Second)
	v.SetDefault("convert.quality", DefaultQuality)
	v.SetDefault("discovery.poll_interval", DefaultPollInterval)
	v.SetDefault("folders.access_model", DefaultAccessModel)
	v.SetDefault("output.base_name", DefaultBaseName)
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
}

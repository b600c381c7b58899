package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type setting struct {
	key    string
	envVar string
}

func envName(key string) string {
	return "RXSCAN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

var settingKeys = []string{
	"repo.data_dir",
	"repo.database_url",
	"scan.backend",
	"scan.device",
	"scan.resolution",
	"scan.format",
	"scan.sane.command",
	"scan.virtual.devices",
	"convert.quality",
	"discovery.poll_interval",
	"folders.access_model",
	"output.base_name",
	"server.host",
	"server.port",
	"telemetry.enabled",
	"telemetry.endpoint",
	"telemetry.sample_ratio",
}

// flagKeys maps the root flags bound to viper onto their keys.
var flagKeys = map[string]string{
	"data-dir":     "repo.data_dir",
	"database-url": "repo.database_url",
	"backend":      "scan.backend",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Long:  "Display the fully resolved configuration showing all settings and their sources.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := make([]setting, 0, len(settingKeys))
		for _, k := range settingKeys {
			settings = append(settings, setting{key: k, envVar: envName(k)})
		}

		cmd.Println("Configuration")
		if f := viper.ConfigFileUsed(); f != "" {
			cmd.Println("File: " + f)
		}
		cmd.Println(strings.Repeat("-", 72))
		for _, s := range settings {
			val := viper.Get(s.key)
			src := configSource(cmd, s.key, s.envVar)
			cmd.Println(fmt.Sprintf("  %-25s = %-30v (%s)", s.key, val, src))
		}
		return nil
	},
}

// configSource determines where a viper key's value came from.
// Priority: flag > env > config file > default.
func configSource(cmd *cobra.Command, key, envVar string) string {
	var changed bool
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if flagKeys[f.Name] == key {
			changed = true
		}
	})
	if changed {
		return "flag"
	}
	if os.Getenv(envVar) != "" {
		return "env"
	}
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		// Read the config file independently to check if this key is set there.
		fileCfg := viper.New()
		fileCfg.SetConfigFile(cfgFile)
		if err := fileCfg.ReadInConfig(); err == nil && fileCfg.IsSet(key) {
			return "config file"
		}
	}
	return "default"
}

func init() {
	rootCmd.AddCommand(configCmd)
}

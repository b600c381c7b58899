package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rxscan/rxscan/pkg/config"
)

var (
	log    = logging.Logger("rxscan/cmd")
	tracer = otel.Tracer("rxscan/cmd")
)

var rootCmd = &cobra.Command{
	Use:   "rxscan",
	Short: "Scan documents to JPEG from a flatbed scanner",
	Long: wordwrap.WrapString(
		"rxscan drives a flatbed scanner: it discovers attached scanners, "+
			"acquires a page in color or grayscale, and saves it as a JPEG in "+
			"your default scan folder with its orientation and resolution intact.",
		80),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		span := trace.SpanFromContext(cmd.Context())
		setSpanAttributes(cmd, span)

		lvl, _ := cmd.Flags().GetString("log-level")
		if lvl != "" {
			if err := logging.SetLogLevelRegex("rxscan/.*", lvl); err != nil {
				return fmt.Errorf("setting log level: %w", err)
			}
		}
		return nil
	},
	// We handle errors ourselves when they're returned from ExecuteContext.
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	cobra.EnableTraverseRunHooks = true
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)

	initRootFlags()
	cobra.OnInitialize(initConfig)
}

var cfgFilePath string

// defaultDataDir is $XDG_CONFIG_HOME/rxscan, falling back to ~/.rxscan.
func defaultDataDir() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "rxscan")
	}
	homedir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("failed to get user home directory: %w", err))
	}
	return filepath.Join(homedir, ".rxscan")
}

func initRootFlags() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFilePath,
		"config",
		"",
		"Path to the config file",
	)

	rootCmd.PersistentFlags().String(
		"data-dir",
		defaultDataDir(),
		"Directory containing the settings database, private scan folder and temp files",
	)
	cobra.CheckErr(viper.BindPFlag("repo.data_dir", rootCmd.PersistentFlags().Lookup("data-dir")))

	rootCmd.PersistentFlags().String(
		"database-url",
		"",
		"PostgreSQL URL to keep settings and history in instead of the local SQLite file",
	)
	cobra.CheckErr(viper.BindPFlag("repo.database_url", rootCmd.PersistentFlags().Lookup("database-url")))

	rootCmd.PersistentFlags().String(
		"backend",
		config.DefaultBackend,
		"Scanner backend to use (sane, virtual)",
	)
	cobra.CheckErr(viper.BindPFlag("scan.backend", rootCmd.PersistentFlags().Lookup("backend")))

	rootCmd.PersistentFlags().String("log-level", "", "Logging level (debug, info, warn, error)")
}

// initConfig layers flags over RXSCAN_* env vars over rxscan-config.yaml
// over defaults. A key such as repo.data_dir is read from
// RXSCAN_REPO_DATA_DIR.
func initConfig() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("RXSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFilePath != "" {
		viper.SetConfigFile(cfgFilePath)
	} else {
		viper.SetConfigName("rxscan-config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if configDir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(filepath.Join(configDir, "rxscan"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine unless one was named explicitly.
		var notFound viper.ConfigFileNotFoundError
		if cfgFilePath != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("reading config file: %w", err))
		}
	}
}

// ExecuteContext runs the command line under a "cli" span.
func ExecuteContext(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "cli")
	defer span.End()

	return rootCmd.ExecuteContext(ctx)
}

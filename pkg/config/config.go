package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Validatable interface {
	Validate() error
}

type Config struct {
	Repo      RepoConfig      `mapstructure:"repo" yaml:"repo"`
	Scan      ScanConfig      `mapstructure:"scan" yaml:"scan"`
	Convert   ConvertConfig   `mapstructure:"convert" yaml:"convert"`
	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Folders   FoldersConfig   `mapstructure:"folders" yaml:"folders"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

func (c Config) Validate() error {
	if err := validateConfig(c); err != nil {
		return err
	}
	if err := c.Scan.Validate(); err != nil {
		return err
	}
	return c.Repo.Validate()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(c any) error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed %q constraint (value %v)", verrs[0].Namespace(), verrs[0].Tag(), verrs[0].Value())
		}
		return err
	}
	return nil
}

// Load decodes the viper state into T and validates it.
func Load[T Validatable]() (T, error) {
	var out T
	if err := viper.Unmarshal(&out); err != nil {
		return out, fmt.Errorf("unable to decode config, %w", err)
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("invalid config, %w", err)
	}
	return out, nil
}

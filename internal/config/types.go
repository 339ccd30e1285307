// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"

	"github.com/nccbuild/ncc/pkg/constants"
	"github.com/nccbuild/ncc/pkg/ncc"
)

// Log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level the CLI logs at.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError collects every field error of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config is the ncc user configuration.
	Config struct {
		// LogLevel sets the CLI log level.
		LogLevel LogLevel `mapstructure:"log_level" yaml:"log_level"`
		// DefaultCompression applies when neither the build command nor the
		// build configuration picks a level: none, low, medium or high.
		DefaultCompression string `mapstructure:"default_compression" yaml:"default_compression"`
		// Build holds build command defaults.
		Build BuildConfig `mapstructure:"build" yaml:"build"`
		// Install configures where packages are installed.
		Install InstallConfig `mapstructure:"install" yaml:"install"`
	}

	// BuildConfig holds build command defaults.
	BuildConfig struct {
		// DefaultConfiguration is built when no configuration is named and
		// the project declares no default.
		DefaultConfiguration string `mapstructure:"default_configuration" yaml:"default_configuration"`
		// ComponentEncoding is the component data type: b64enc, plain or binary.
		ComponentEncoding string `mapstructure:"component_encoding" yaml:"component_encoding"`
	}

	// InstallConfig configures where packages are installed.
	InstallConfig struct {
		// Root is the install root; bin, src and data live below it.
		Root string `mapstructure:"root" yaml:"root"`
	}
)

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:           LogLevelInfo,
		DefaultCompression: "none",
		Build: BuildConfig{
			DefaultConfiguration: "default",
			ComponentEncoding:    ncc.DataTypeEncodedText.String(),
		},
		Install: InstallConfig{Root: "/usr/local/ncc"},
	}
}

// IsValid reports whether the level is recognized.
func (l LogLevel) IsValid() (bool, []error) {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true, nil
	default:
		return false, []error{&InvalidLogLevelError{Value: l}}
	}
}

// Error implements the error interface for InvalidLogLevelError.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Validate checks every field and reports all failures.
func (c *Config) Validate() error {
	var errs []error
	if valid, fieldErrs := c.LogLevel.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if _, err := ncc.ParseCompression(c.DefaultCompression); err != nil {
		errs = append(errs, fmt.Errorf("default_compression: %w", err))
	}
	if err := validateEncoding(c.Build.ComponentEncoding); err != nil {
		errs = append(errs, err)
	}
	if c.Install.Root == "" {
		errs = append(errs, errors.New("install.root must not be empty"))
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// InstallPaths returns the install path constant group for the configured
// root.
func (c *Config) InstallPaths() *constants.InstallPaths {
	return constants.NewInstallPaths(c.Install.Root)
}

func validateEncoding(s string) error {
	dt, err := ncc.ParseDataType(s)
	if err != nil {
		return fmt.Errorf("build.component_encoding: %w", err)
	}
	if dt == ncc.DataTypeStructuredAst {
		return fmt.Errorf("build.component_encoding: %w: %s is produced by compiler extensions only", ncc.ErrInvalidDataType, dt)
	}
	return nil
}

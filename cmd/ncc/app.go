// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/internal/clock"
	"github.com/nccbuild/ncc/internal/config"
	"github.com/nccbuild/ncc/internal/runner"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every Cobra handler receives an App and reaches
	// the filesystem, configuration and runners through it.
	App struct {
		Config  ConfigProvider
		Fs      afero.Fs
		Runners *runner.Registry
		Clock   clock.Clock
		stdin   io.Reader
		stdout  io.Writer
		stderr  io.Writer

		opts rootOptions
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config  ConfigProvider
		Fs      afero.Fs
		Runners *runner.Registry
		Clock   clock.Clock
		Stdin   io.Reader
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// rootOptions holds the persistent flags.
	rootOptions struct {
		verbose    bool
		configFile string
		logLevel   string
	}
)

// NewApp creates an App, filling unset dependencies with defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:  deps.Config,
		Fs:      deps.Fs,
		Runners: deps.Runners,
		Clock:   deps.Clock,
		stdin:   deps.Stdin,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Fs == nil {
		app.Fs = afero.NewOsFs()
	}
	if app.Runners == nil {
		app.Runners = runner.Default()
	}
	if app.Clock == nil {
		app.Clock = clock.Real{}
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// loadConfig reads the user configuration named by --config, or the default
// file when none is given.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: a.opts.configFile,
		Fs:             a.Fs,
	})
}

// logger builds the slog logger used by library packages. --log-level wins
// over --verbose, which wins over the configured level.
func (a *App) logger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level := string(cfg.LogLevel)
	if a.opts.verbose {
		level = string(config.LogLevelDebug)
	}
	if a.opts.logLevel != "" {
		level = a.opts.logLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handler := log.NewWithOptions(w, log.Options{
		Level:  lvl,
		Prefix: "ncc",
	})
	return slog.New(handler), nil
}

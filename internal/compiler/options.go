// SPDX-License-Identifier: MPL-2.0

package compiler

import (
	"io"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/internal/clock"
	"github.com/nccbuild/ncc/pkg/constants"
	"github.com/nccbuild/ncc/pkg/ncc"
)

// Build phases reported through Progress.
const (
	PhaseExecutionUnits Phase = "execution_units"
	PhaseComponents     Phase = "components"
	PhaseResources      Phase = "resources"
)

type (
	// Phase names the section a progress step belongs to.
	Phase string

	// Progress is reported after each execution policy, component and
	// resource. Step runs from 1 to Total.
	Progress struct {
		Step  int
		Total int
		Phase Phase
		// Item is the policy name or the slash-separated file path.
		Item string
	}

	// ProgressFunc receives build progress on the building goroutine. A
	// non-nil return aborts the build.
	ProgressFunc func(Progress) error

	// Option configures a Compiler.
	Option func(*Compiler)
)

// WithFs sets the filesystem sources are read from and the package is
// written to. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(c *Compiler) {
		if fs != nil {
			c.fs = fs
		}
	}
}

// WithLogger sets the compiler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Compiler) { c.progress = fn }
}

// WithClock sets the clock used for the build timestamp and date constants.
func WithClock(clk clock.Clock) Option {
	return func(c *Compiler) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithDefaultCompression sets the level used when neither the call nor the
// build configuration selects one.
func WithDefaultCompression(level ncc.Compression) Option {
	return func(c *Compiler) { c.compression = level }
}

// WithComponentEncoding sets the default component data type.
func WithComponentEncoding(dt ncc.DataType) Option {
	return func(c *Compiler) { c.encoding = dt }
}

// WithInstallPaths sets the install directories substituted for the
// ${INSTALL.*} constants.
func WithInstallPaths(p *constants.InstallPaths) Option {
	return func(c *Compiler) { c.install = p }
}

// WithBuildInfo describes the toolchain. Its timestamp is replaced by the
// clock at build time.
func WithBuildInfo(b constants.Build) Option {
	return func(c *Compiler) { c.buildInfo = b }
}

// WithFallbackConfiguration names the configuration built when the call
// names none and the project declares no default.
func WithFallbackConfiguration(name string) Option {
	return func(c *Compiler) { c.fallback = name }
}

// WithRuntime sets the ${RUNTIME.*} constant group. Defaults to the running
// process.
func WithRuntime(r *constants.Runtime) Option {
	return func(c *Compiler) { c.runtime = r }
}

// WithHookOutput sets where pre and post build hooks write. Defaults to
// discarding their output.
func WithHookOutput(stdout, stderr io.Writer) Option {
	return func(c *Compiler) {
		c.hookStdout, c.hookStderr = stdout, stderr
	}
}

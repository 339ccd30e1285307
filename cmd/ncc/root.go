// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for ncc.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ncc",
		Short: "Compile projects into self-contained packages",
		Long: TitleStyle.Render("ncc") + SubtitleStyle.Render(" - package compiler") + `

ncc compiles a project (sources, resources, execution policies and
dependency declarations) into a single binary package file, and reads,
verifies, extracts and runs the packages it produced.

` + SubtitleStyle.Render("Examples:") + `
  ncc init --package com.example.app   Create a project file
  ncc build                            Build the default configuration
  ncc build -c debug -o out/app.ncc    Build a named configuration
  ncc inspect --checksum app.ncc       Show what a package holds
  ncc extract app.ncc ./out            Unpack components and resources
  ncc exec app.ncc setup -- --force    Run an execution policy`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.opts.verbose, "verbose", "v", false, "enable verbose output")
	flags.StringVar(&app.opts.configFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ncc/config.yaml)")
	flags.StringVar(&app.opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		newInitCommand(app),
		newBuildCommand(app),
		newInspectCommand(app),
		newExtractCommand(app),
		newExecCommand(app),
		newConfigCommand(app),
		newVersionCommand(),
	)
	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI with the process arguments and exits with its code.
// This is called by main.main().
func Execute() {
	os.Exit(Run())
}

// Run runs the CLI with the process arguments and returns the exit code.
func Run() int {
	return run(context.Background(), NewApp(Dependencies{}), os.Args[1:])
}

func run(ctx context.Context, app *App, args []string) int {
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// handleError prints errors the commands did not render themselves.
func handleError(w io.Writer, styles fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.rendered {
		return
	}
	fang.DefaultErrorHandler(w, styles, err)
}

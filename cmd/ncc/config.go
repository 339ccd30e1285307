// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nccbuild/ncc/internal/config"
	"github.com/nccbuild/ncc/internal/issue"
	"github.com/nccbuild/ncc/pkg/project"
)

// newConfigCommand creates the `ncc config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ncc configuration",
		Long: `Manage ncc configuration.

Configuration is stored in:
  - Linux: ~/.config/ncc/config.yaml
  - macOS: ~/Library/Application Support/ncc/config.yaml
  - Windows: %APPDATA%\ncc\config.yaml

Every key can be overridden from the environment with the NCC_ prefix,
for example NCC_DEFAULT_COMPRESSION=high or NCC_BUILD_COMPONENT_ENCODING=plain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var projectDir string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long: `Show the effective configuration. With --project, also list the
build configurations the project declares.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd, app, projectDir)
		},
	}
	show.Flags().StringVarP(&projectDir, "project", "p", "", "also list the build configurations of this project")
	cfgCmd.AddCommand(show)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.FilePath(config.LoadOptions{ConfigFilePath: app.opts.configFile, Fs: app.Fs})
			if err != nil {
				return app.fail(cmd.ErrOrStderr(), err)
			}
			if path == "" {
				dir, err := config.Dir()
				if err != nil {
					return app.fail(cmd.ErrOrStderr(), err)
				}
				path = filepath.Join(dir, config.ConfigFileName+".yaml")
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, app)
		},
	})

	return cfgCmd
}

func showConfig(cmd *cobra.Command, app *App, projectDir string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := app.loadConfig(cmd.Context())
	if err != nil {
		return app.fail(stderr, err)
	}
	path, err := config.FilePath(config.LoadOptions{ConfigFilePath: app.opts.configFile, Fs: app.Fs})
	if err != nil {
		return app.fail(stderr, err)
	}

	fmt.Fprintln(stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(stdout)
	if path == "" {
		path = SubtitleStyle.Render("(using defaults)")
	}
	fmt.Fprintf(stdout, "%s: %s\n\n", CmdStyle.Render("Config file"), path)

	out, err := config.Marshal(cfg)
	if err != nil {
		return app.fail(stderr, err)
	}
	fmt.Fprint(stdout, string(out))

	if projectDir == "" {
		return nil
	}
	pm, err := project.Load(app.Fs, projectDir)
	if err != nil {
		return app.fail(stderr, err)
	}
	pc := pm.Configuration()
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, TitleStyle.Render("Build Configurations"))
	for _, bc := range pc.Build.Configurations {
		marker := " "
		if bc.Name == pc.Build.DefaultConfiguration {
			marker = "*"
		}
		fmt.Fprintf(stdout, "%s %s %s\n", marker, CmdStyle.Render(bc.Name), VerboseStyle.Render(bc.OutputPath))
	}
	return nil
}

func initConfig(cmd *cobra.Command, app *App) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	path := app.opts.configFile
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return app.fail(stderr, err)
		}
		path = filepath.Join(dir, config.ConfigFileName+".yaml")
	}
	if ok, _ := afero.Exists(app.Fs, path); ok {
		fmt.Fprintf(stdout, "%s Configuration already exists at %s\n", warningIcon, CmdStyle.Render(path))
		return nil
	}

	out, err := config.Marshal(config.DefaultConfig())
	if err != nil {
		return app.fail(stderr, err)
	}
	if err := app.Fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return app.fail(stderr, err)
	}
	if err := afero.WriteFile(app.Fs, path, out, 0o644); err != nil {
		return app.fail(stderr, issue.WrapWithContext(err, "write configuration", path))
	}
	fmt.Fprintf(stdout, "%s Created %s\n", successIcon, CmdStyle.Render(path))
	return nil
}

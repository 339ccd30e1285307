// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nccbuild/ncc/pkg/project"
)

type initOptions struct {
	pkg       string
	name      string
	extension string
}

func newInitCommand(app *App) *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a project file",
		Long: `Create project.yml in a directory (default: the current one) with a
fresh assembly UUID, a src/ source directory and a release configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, app, dir, opts)
		},
	}
	cmd.Flags().StringVar(&opts.pkg, "package", "", "package name, such as com.example.app (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name (default is the last package segment)")
	cmd.Flags().StringVar(&opts.extension, "extension", "shell", "compiler extension: shell, php, python, perl or lua")
	_ = cmd.MarkFlagRequired("package")
	return cmd
}

func runInit(cmd *cobra.Command, app *App, dir string, opts initOptions) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	for _, name := range project.FileNames {
		if ok, _ := afero.Exists(app.Fs, filepath.Join(dir, name)); ok {
			fmt.Fprintf(stdout, "%s %s already exists\n", warningIcon, CmdStyle.Render(filepath.Join(dir, name)))
			return nil
		}
	}

	pkg := project.PackageName(opts.pkg)
	name := opts.name
	if name == "" {
		name = pkg.String()[strings.LastIndex(pkg.String(), ".")+1:]
	}
	cfg := project.Configuration{
		Project:  project.Project{Compiler: project.Compiler{Extension: opts.extension}},
		Assembly: project.NewAssembly(name, pkg),
		Build: project.Build{
			SourcePath:           "src",
			DefaultConfiguration: "release",
			ExcludeFiles:         []string{"*.tmp"},
			Configurations: []project.BuildConfiguration{
				{Name: "release", OutputPath: "build"},
				{Name: "debug", OutputPath: "build/debug", Options: map[string]string{"debug": "true"}},
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		return app.fail(stderr, err)
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return app.fail(stderr, fmt.Errorf("marshal project: %w", err))
	}
	if err := app.Fs.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		return app.fail(stderr, err)
	}
	path := filepath.Join(dir, project.FileNames[0])
	if err := afero.WriteFile(app.Fs, path, out, 0o644); err != nil {
		return app.fail(stderr, err)
	}
	fmt.Fprintf(stdout, "%s Created %s for %s\n", successIcon, CmdStyle.Render(path), CmdStyle.Render(pkg.String()))
	return nil
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nccbuild/ncc/internal/compiler"
	"github.com/nccbuild/ncc/internal/issue"
	"github.com/nccbuild/ncc/internal/watch"
	"github.com/nccbuild/ncc/pkg/constants"
	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

type buildOptions struct {
	project       string
	configuration string
	output        string
	compression   string
	defines       []string
	static        bool
	noProgress    bool
	watch         bool
}

func newBuildCommand(app *App) *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile a project into a package",
		Long: `Compile a build configuration of a project into a package file.

The output path is, in order of precedence: the configuration's output_name
below its output_path, the --output flag, or <output_path>/<package>.ncc.
Placeholders such as ${ASSEMBLY.VERSION} are substituted in every segment.

Examples:
  ncc build                               Build the default configuration
  ncc build -c debug                      Build the debug configuration
  ncc build --compression high -o app.ncc Build a compressed package
  ncc build -D optimize=true              Override a build option
  ncc build --watch                       Rebuild whenever project files change`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, app, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.project, "project", "p", ".", "project directory")
	flags.StringVarP(&opts.configuration, "configuration", "c", "", "build configuration (default is build.default_configuration)")
	flags.StringVarP(&opts.output, "output", "o", "", "package file to write")
	flags.StringVar(&opts.compression, "compression", "", "compression level: none, low, medium or high")
	flags.StringArrayVarP(&opts.defines, "define", "D", nil, "set a build option, as key=value (repeatable)")
	flags.BoolVar(&opts.static, "static", false, "mark dependencies as statically linked")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "do not print build progress")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "keep running and rebuild when project files change")
	return cmd
}

func runBuild(cmd *cobra.Command, app *App, opts buildOptions) error {
	ctx := cmd.Context()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return app.fail(stderr, err)
	}
	logger, err := app.logger(cfg, stderr)
	if err != nil {
		return app.fail(stderr, err)
	}

	options, err := buildOptionMap(opts)
	if err != nil {
		return app.fail(stderr, err)
	}
	defaultLevel, err := ncc.ParseCompression(cfg.DefaultCompression)
	if err != nil {
		return app.fail(stderr, err)
	}
	encoding, err := ncc.ParseDataType(cfg.Build.ComponentEncoding)
	if err != nil {
		return app.fail(stderr, err)
	}

	build := func(ctx context.Context) (string, error) {
		pm, err := project.Load(app.Fs, opts.project)
		if err != nil {
			return "", issue.NewErrorContext().
				WithOperation("load project").
				WithResource(opts.project).
				Wrap(err).
				BuildError()
		}

		progress := newProgressLine(stderr, opts.noProgress || app.opts.verbose)
		c := compiler.New(pm, app.Runners,
			compiler.WithFs(app.Fs),
			compiler.WithLogger(logger),
			compiler.WithClock(app.Clock),
			compiler.WithProgress(progress.report),
			compiler.WithDefaultCompression(defaultLevel),
			compiler.WithComponentEncoding(encoding),
			compiler.WithInstallPaths(cfg.InstallPaths()),
			compiler.WithBuildInfo(constants.Build{Version: Version, Branch: Commit}),
			compiler.WithFallbackConfiguration(cfg.Build.DefaultConfiguration),
			compiler.WithHookOutput(stdout, stderr),
		)
		out, err := c.Build(ctx, opts.configuration, options)
		progress.done()
		if err != nil {
			return "", issue.NewErrorContext().
				WithOperation("build package").
				WithResource(pm.ProjectPath()).
				Wrap(err).
				BuildError()
		}
		fmt.Fprintf(stdout, "%s Built %s\n", successIcon, CmdStyle.Render(out))
		return out, nil
	}

	if !opts.watch {
		if _, err := build(ctx); err != nil {
			return app.fail(stderr, err)
		}
		return nil
	}
	return watchBuild(ctx, app, opts.project, logger, stderr, build)
}

// watchBuild builds once, then rebuilds after every burst of changes below
// the project directory until the context is canceled. The first build runs
// before watching starts so the output directories it creates do not count
// as changes. Build failures are
// reported and watching continues.
func watchBuild(ctx context.Context, app *App, dir string, logger *slog.Logger, stderr io.Writer, build func(context.Context) (string, error)) error {
	rebuild := func(ctx context.Context) {
		if _, err := build(ctx); err != nil && ctx.Err() == nil {
			renderError(stderr, err, app.opts.verbose)
		}
	}

	rebuild(ctx)
	w, err := watch.New(watch.Config{
		Root:   dir,
		Logger: logger,
		OnChange: func(ctx context.Context, changed []string) error {
			logger.Info("rebuilding", "changed", changed)
			rebuild(ctx)
			return nil
		},
	})
	if err != nil {
		return app.fail(stderr, err)
	}

	fmt.Fprintf(stderr, "%s %s\n", warningIcon, SubtitleStyle.Render("Watching "+dir+" for changes, press Ctrl+C to stop"))
	if err := w.Run(ctx); err != nil {
		return app.fail(stderr, err)
	}
	return nil
}

// buildOptionMap turns the flags into compiler options. -D entries are
// applied first so the dedicated flags win.
func buildOptionMap(opts buildOptions) (map[string]string, error) {
	options := make(map[string]string, len(opts.defines)+3)
	for _, d := range opts.defines {
		key, value, ok := strings.Cut(d, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --define %q: expected key=value", d)
		}
		options[strings.TrimSpace(key)] = value
	}
	if opts.output != "" {
		options[compiler.OptionOutputFile] = opts.output
	}
	if opts.compression != "" {
		options[compiler.OptionCompression] = opts.compression
	}
	if opts.static {
		options[compiler.OptionStatic] = "true"
	}
	return options, nil
}

// progressLine redraws a single status line on stderr.
type progressLine struct {
	w      io.Writer
	quiet  bool
	active bool
}

func newProgressLine(w io.Writer, quiet bool) *progressLine {
	return &progressLine{w: w, quiet: quiet}
}

func (p *progressLine) report(pr compiler.Progress) error {
	if p.quiet {
		return nil
	}
	width := len(fmt.Sprint(pr.Total))
	count := progressCountStyle.Render(fmt.Sprintf("[%*d/%d]", width, pr.Step, pr.Total))
	fmt.Fprintf(p.w, "\r\033[K%s %s %s", count, progressPhaseStyle.Render(string(pr.Phase)), pr.Item)
	p.active = true
	return nil
}

func (p *progressLine) done() {
	if p.active {
		fmt.Fprintln(p.w)
		p.active = false
	}
}

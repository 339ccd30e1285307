// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nccbuild/ncc/pkg/ncc"
)

type inspectOptions struct {
	checksum bool
	list     bool
}

func newInspectCommand(app *App) *cobra.Command {
	var opts inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect <package>...",
		Short: "Show what packages hold",
		Long: `Show the version, flags, assembly and section counts of packages.

Packages are opened concurrently; a package embedded behind a stub prefix is
found by scanning for its magic bytes.

Examples:
  ncc inspect app.ncc
  ncc inspect --checksum --list build/*.ncc`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, app, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.checksum, "checksum", false, "print the BLAKE3 checksum of each package")
	cmd.Flags().BoolVarP(&opts.list, "list", "l", false, "list execution units, components and resources")
	return cmd
}

func runInspect(cmd *cobra.Command, app *App, paths []string, opts inspectOptions) error {
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

	readers, err := ncc.OpenAll(ctx, app.Fs, paths, ncc.WithReaderLogger(logger))
	if err != nil {
		return app.fail(stderr, err)
	}
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	for i, r := range readers {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		if err := describePackage(stdout, r, opts); err != nil {
			return app.fail(stderr, err)
		}
	}
	return nil
}

func describePackage(w io.Writer, r *ncc.Reader, opts inspectOptions) error {
	asm, err := r.Assembly()
	if err != nil {
		return err
	}
	meta, err := r.Metadata()
	if err != nil {
		return err
	}
	units, err := r.ExecutionUnits()
	if err != nil {
		return err
	}
	components, err := r.Components()
	if err != nil {
		return err
	}
	resources, err := r.Resources()
	if err != nil {
		return err
	}
	deps, err := r.Dependencies()
	if err != nil {
		return err
	}

	flags := make([]string, 0, len(r.Flags()))
	for _, f := range r.Flags() {
		flags = append(flags, string(f))
	}

	fmt.Fprintln(w, TitleStyle.Render(r.Path()))
	field(w, "name", asm.Name)
	field(w, "package", asm.Package.String())
	field(w, "version", asm.Version)
	field(w, "uuid", asm.UUID)
	field(w, "format", r.Version())
	field(w, "flags", orNone(strings.Join(flags, ", ")))
	field(w, "compression", r.Compression().String())
	field(w, "compiler", strings.TrimSpace(meta.Compiler.Extension+" "+meta.CompilerVersion))
	if meta.MainExecutionPolicy != "" {
		field(w, "main", meta.MainExecutionPolicy)
	}
	if r.Offset() > 0 {
		field(w, "offset", fmt.Sprint(r.Offset()))
	}
	field(w, "size", fmt.Sprintf("%d bytes", r.Size()))
	field(w, "units", fmt.Sprint(len(units)))
	field(w, "components", fmt.Sprint(len(components)))
	field(w, "resources", fmt.Sprint(len(resources)))
	field(w, "dependencies", fmt.Sprint(len(deps)))
	if opts.checksum {
		sum, err := r.Checksum()
		if err != nil {
			return err
		}
		field(w, "checksum", sum)
	}

	if !opts.list {
		return nil
	}
	for _, u := range units {
		fmt.Fprintf(w, "  unit      %s %s\n", CmdStyle.Render(u.Policy.Name), VerboseStyle.Render("("+u.Policy.Runner+")"))
	}
	for _, c := range components {
		fmt.Fprintf(w, "  component %s %s\n", CmdStyle.Render(c.Name), VerboseStyle.Render("("+c.DataType.String()+")"))
	}
	for _, res := range resources {
		fmt.Fprintf(w, "  resource  %s %s\n", CmdStyle.Render(res.Name), VerboseStyle.Render(fmt.Sprintf("(%d bytes)", len(res.Data))))
	}
	for _, d := range deps {
		fmt.Fprintf(w, "  depends   %s %s\n", CmdStyle.Render(d.Name), VerboseStyle.Render(d.VersionOrLatest()))
	}
	return nil
}

func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(label+":"), value)
}

func orNone(s string) string {
	if s == "" {
		return SubtitleStyle.Render("(none)")
	}
	return s
}

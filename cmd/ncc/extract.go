// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nccbuild/ncc/pkg/ncc"
)

func newExtractCommand(app *App) *cobra.Command {
	var clean bool
	cmd := &cobra.Command{
		Use:   "extract <package> <dir>",
		Short: "Unpack a package's components and resources",
		Long: `Write every component and resource of a package below a directory.

Component contents are decoded and verified against their checksums.
Extracting into a cleared directory always yields the same tree.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(stderr, err)
			}
			logger, err := app.logger(cfg, stderr)
			if err != nil {
				return app.fail(stderr, err)
			}

			pkg, dir := args[0], args[1]
			if clean {
				if err := app.Fs.RemoveAll(dir); err != nil {
					return app.fail(stderr, fmt.Errorf("clean %s: %w", dir, err))
				}
			}
			r, err := ncc.Open(app.Fs, pkg, ncc.WithReaderLogger(logger))
			if err != nil {
				return app.fail(stderr, err)
			}
			defer func() { _ = r.Close() }()

			if err := r.Extract(dir); err != nil {
				return app.fail(stderr, err)
			}
			fmt.Fprintf(stdout, "%s Extracted %s to %s\n", successIcon, CmdStyle.Render(pkg), CmdStyle.Render(dir))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "remove the directory before extracting")
	return cmd
}

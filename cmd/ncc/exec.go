// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nccbuild/ncc/internal/runner"
	"github.com/nccbuild/ncc/pkg/constants"
	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

// ErrNoMainPolicy is returned when exec names no policy and the package
// declares no main execution policy.
var ErrNoMainPolicy = errors.New("package declares no main execution policy")

func newExecCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <package> [policy] [-- args...]",
		Short: "Run an execution unit of a package",
		Long: `Run an execution unit stored in a package.

Without a policy name the package's main execution policy runs. Placeholders
in the policy are resolved against the package assembly, the install paths
and the running process; environment values may also use the constants the
package was built with.

The exit handlers of the policy decide the final exit code.

Examples:
  ncc exec app.ncc
  ncc exec app.ncc setup -- --force`,
		Args: func(cmd *cobra.Command, args []string) error {
			positional := args
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional = args[:dash]
			}
			if len(positional) < 1 || len(positional) > 2 {
				return fmt.Errorf("expected <package> [policy], got %d positional arguments", len(positional))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			positional, extra := args, []string(nil)
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				positional, extra = args[:dash], args[dash:]
			}
			policy := ""
			if len(positional) == 2 {
				policy = positional[1]
			}
			return runExec(cmd, app, positional[0], policy, extra)
		},
	}
}

func runExec(cmd *cobra.Command, app *App, pkg, policy string, args []string) error {
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

	r, err := ncc.Open(app.Fs, pkg, ncc.WithReaderLogger(logger))
	if err != nil {
		return app.fail(stderr, err)
	}
	defer func() { _ = r.Close() }()

	meta, err := r.Metadata()
	if err != nil {
		return app.fail(stderr, err)
	}
	asm, err := r.Assembly()
	if err != nil {
		return app.fail(stderr, err)
	}
	if policy == "" {
		if meta.MainExecutionPolicy == "" {
			return app.fail(stderr, fmt.Errorf("%s: %w", pkg, ErrNoMainPolicy))
		}
		policy = meta.MainExecutionPolicy
	}
	unit, err := r.ExecutionUnit(policy)
	if err != nil {
		return app.fail(stderr, err)
	}

	now := app.Clock.Now()
	wd, _ := os.Getwd()
	sub := constants.NewCompiler(constants.Groups{
		Assembly: asm,
		Install:  cfg.InstallPaths(),
		DateTime: &now,
		Runtime:  constants.CurrentRuntime(wd),
	})
	resolved := *unit
	resolved.Policy = sub.SubstitutePolicy(unit.Policy)
	env, err := constants.NewExpander(sub, constants.WithDefines(meta.Constants)).
		ExpandMap(resolved.Policy.Execute.EnvironmentVariables)
	if err != nil {
		return app.fail(stderr, err)
	}
	resolved.Policy.Execute.EnvironmentVariables = env

	if resolved.Policy.Message != "" {
		fmt.Fprintln(stderr, VerboseStyle.Render(resolved.Policy.Message))
	}
	logger.Debug("executing unit", "package", pkg, "policy", policy, "runner", resolved.Policy.Runner)

	res := app.Runners.Execute(ctx, &resolved, runner.ExecOptions{
		Args:   args,
		Stdin:  app.stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
	if res.Error != nil && res.ExitCode == 0 {
		return app.fail(stderr, res.Error)
	}
	return applyExitHandlers(stdout, stderr, resolved.Policy.ExitHandlers, res)
}

// applyExitHandlers picks the handler for the result: success for exit code
// 0, warning for 1 when one is declared, error otherwise. A handler that ends
// the process replaces the exit code with its own.
func applyExitHandlers(stdout, stderr io.Writer, handlers *project.ExitHandlers, res *runner.Result) error {
	code := res.ExitCode
	var h *project.ExitHandle
	if handlers != nil {
		switch {
		case code == 0:
			h = handlers.Success
		case code == 1 && handlers.Warning != nil:
			h = handlers.Warning
		default:
			h = handlers.Error
		}
	}

	if h != nil && h.Message != "" {
		switch {
		case code == 0:
			fmt.Fprintf(stdout, "%s %s\n", successIcon, h.Message)
		case h == handlers.Warning:
			fmt.Fprintf(stderr, "%s %s\n", warningIcon, WarningStyle.Render(h.Message))
		default:
			fmt.Fprintf(stderr, "%s %s\n", errorIcon, ErrorStyle.Render(h.Message))
		}
	}
	if h != nil && h.EndProcess {
		code = h.ExitCode
	}
	if code != 0 {
		return &ExitError{Code: code, Err: res.Error, rendered: true}
	}
	return nil
}

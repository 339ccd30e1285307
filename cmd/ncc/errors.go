// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/nccbuild/ncc/internal/compiler"
	"github.com/nccbuild/ncc/internal/issue"
	"github.com/nccbuild/ncc/internal/runner"
	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

// classifyError maps a failure to its issue catalog guide. Zero means the
// catalog has no guide for it.
func classifyError(err error) issue.Id {
	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.Issue != 0 {
		return ae.Issue
	}
	var unsupported *ncc.UnsupportedCompressionError

	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		return issue.ProjectNotFoundId
	case errors.Is(err, project.ErrBuildConfigurationNotFound):
		return issue.BuildConfigurationNotFoundId
	case errors.Is(err, project.ErrInvalidAssembly),
		errors.Is(err, project.ErrInvalidDependency),
		errors.Is(err, project.ErrInvalidExecutionPolicy),
		errors.Is(err, project.ErrInvalidPackageName),
		errors.Is(err, project.ErrInvalidSourceType):
		return issue.ProjectInvalidId
	case errors.Is(err, compiler.ErrBuildHookFailed):
		return issue.BuildHookFailedId
	case errors.Is(err, runner.ErrRunnerNotFound), errors.Is(err, runner.ErrRunnerNotAvailable):
		return issue.RunnerNotAvailableId
	case errors.As(err, &unsupported):
		return issue.CompressionUnsupportedId
	case errors.Is(err, ncc.ErrUnsupportedVersion):
		return issue.PackageVersionUnsupportedId
	case errors.Is(err, ncc.ErrCorruptPackage), errors.Is(err, ncc.ErrChecksumMismatch):
		return issue.PackageCorruptId
	case errors.Is(err, ncc.ErrUnsafePath):
		return issue.UnsafeExtractPathId
	default:
		return 0
	}
}

// formatErrorForDisplay formats an error for user display. An
// ActionableError uses its own layout; verbose shows the full chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderError prints the error and, when one exists, its catalog guide.
func renderError(w io.Writer, err error, verbose bool) {
	fmt.Fprintf(w, "%s %s %s\n", errorIcon, ErrorStyle.Render("Error:"), formatErrorForDisplay(err, verbose))

	id := classifyError(err)
	if id == 0 {
		return
	}
	guide := issue.Get(id)
	if guide == nil {
		return
	}
	rendered, renderErr := guide.Render("dark")
	if renderErr != nil {
		fmt.Fprintf(w, "%s failed to render guide %d: %v\n", warningIcon, id, renderErr)
		return
	}
	fmt.Fprint(w, rendered)
}

// fail renders err and returns the exit error a RunE handler hands back.
func (a *App) fail(w io.Writer, err error) error {
	renderError(w, err, a.opts.verbose)
	return &ExitError{Code: 1, Err: err, rendered: true}
}

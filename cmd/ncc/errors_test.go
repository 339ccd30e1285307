// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nccbuild/ncc/internal/compiler"
	"github.com/nccbuild/ncc/internal/issue"
	"github.com/nccbuild/ncc/internal/runner"
	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"project not found", fmt.Errorf("load: %w", project.ErrProjectNotFound), issue.ProjectNotFoundId},
		{"configuration not found", &project.BuildConfigurationNotFoundError{Name: "x"}, issue.BuildConfigurationNotFoundId},
		{"invalid assembly", fmt.Errorf("%w: bad uuid", project.ErrInvalidAssembly), issue.ProjectInvalidId},
		{"hook failed", &compiler.BuildHookError{Hook: "pre-build", Policy: "prepare", ExitCode: 2}, issue.BuildHookFailedId},
		{"runner not found", &runner.RunnerNotFoundError{Name: "cobol"}, issue.RunnerNotAvailableId},
		{"unsupported compression", &ncc.UnsupportedCompressionError{Value: "ultra"}, issue.CompressionUnsupportedId},
		{"unsupported version", &ncc.FormatError{Err: ncc.ErrUnsupportedVersion}, issue.PackageVersionUnsupportedId},
		{"truncated", &ncc.FormatError{Err: ncc.ErrTruncated}, issue.PackageCorruptId},
		{"checksum", fmt.Errorf("component a: %w", ncc.ErrChecksumMismatch), issue.PackageCorruptId},
		{"unsafe path", fmt.Errorf("../x: %w", ncc.ErrUnsafePath), issue.UnsafeExtractPathId},
		{"explicit issue", issue.NewErrorContext().WithOperation("x").WithIssue(issue.PackageCorruptId).BuildError(), issue.PackageCorruptId},
		{"wrapped in actionable", issue.WrapWithOperation(project.ErrProjectNotFound, "load project"), issue.ProjectNotFoundId},
		{"unknown", errors.New("boom"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFail(t *testing.T) {
	t.Parallel()

	app := NewApp(Dependencies{})
	var stderr bytes.Buffer
	err := app.fail(&stderr, errors.New("boom"))

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 || !exitErr.rendered {
		t.Fatalf("fail() = %#v, want a rendered *ExitError with code 1", err)
	}
	if !strings.Contains(stderr.String(), "boom") {
		t.Errorf("stderr = %q, want the error message", stderr.String())
	}
}

// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

// Shell runs bash or POSIX sh scripts in the embedded interpreter.
type Shell struct {
	name    string
	variant syntax.LangVariant
}

// NewShell returns the shell runner for name: "sh" parses POSIX shell, any
// other name parses bash.
func NewShell(name string) *Shell {
	variant := syntax.LangBash
	if name == "sh" {
		variant = syntax.LangPOSIX
	}
	return &Shell{name: name, variant: variant}
}

// Name returns the runner name.
func (s *Shell) Name() string { return s.name }

// Available always reports true; the interpreter is built in.
func (s *Shell) Available() bool { return true }

// Compile stores the target script after checking that it parses.
func (s *Shell) Compile(fs afero.Fs, projectPath string, policy project.ExecutionPolicy) (*ncc.ExecutionUnit, error) {
	script, err := readTarget(fs, projectPath, policy)
	if err != nil {
		return nil, err
	}
	if _, err := s.parse(script, policy.Execute.Target); err != nil {
		return nil, fmt.Errorf("policy %s: script syntax error: %w", policy.Name, err)
	}
	return &ncc.ExecutionUnit{Policy: policy, Data: script}, nil
}

// Execute runs the unit's script. Policy options are passed before the
// invocation arguments as positional parameters.
func (s *Shell) Execute(ctx context.Context, unit *ncc.ExecutionUnit, opts ExecOptions) *Result {
	prog, err := s.parse(unit.Data, unit.Policy.Name)
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("failed to parse script: %w", err)}
	}

	ctx, cancel := withTimeout(ctx, unit.Policy)
	defer cancel()

	stdout, stderr := outputs(unit, opts)
	params := append([]string{"--"}, unit.Policy.Execute.Options...)
	params = append(params, opts.Args...)
	runnerOpts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(environ(os.Environ(), unit.Policy, opts.Env)...)),
		interp.StdIO(opts.Stdin, stdout, stderr),
		interp.Params(params...),
	}
	if dir := unit.Policy.Execute.WorkingDirectory; dir != "" {
		runnerOpts = append(runnerOpts, interp.Dir(dir))
	}

	r, err := interp.New(runnerOpts...)
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("failed to create interpreter: %w", err)}
	}
	err = r.Run(ctx, prog)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("script interrupted: %w", ctxErr)}
	}
	if err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return &Result{ExitCode: int(status)}
		}
		return &Result{ExitCode: 1, Error: fmt.Errorf("script execution failed: %w", err)}
	}
	return &Result{}
}

func (s *Shell) parse(script []byte, name string) (*syntax.File, error) {
	return syntax.NewParser(syntax.Variant(s.variant)).Parse(bytes.NewReader(script), name)
}

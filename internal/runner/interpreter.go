// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

// Interpreter runs units with an external interpreter binary.
type Interpreter struct {
	name     string
	lookPath func(string) (string, error)
}

// NewInterpreter returns the runner for the interpreter binary name.
func NewInterpreter(name string) *Interpreter {
	return &Interpreter{name: name, lookPath: exec.LookPath}
}

// Name returns the runner name, which is also the binary it looks for.
func (i *Interpreter) Name() string { return i.name }

// Available reports whether the interpreter is on PATH.
func (i *Interpreter) Available() bool {
	_, err := i.lookPath(i.name)
	return err == nil
}

// Compile stores the target file. The interpreter is not needed at build
// time.
func (i *Interpreter) Compile(fs afero.Fs, projectPath string, policy project.ExecutionPolicy) (*ncc.ExecutionUnit, error) {
	data, err := readTarget(fs, projectPath, policy)
	if err != nil {
		return nil, err
	}
	return &ncc.ExecutionUnit{Policy: policy, Data: data}, nil
}

// Execute writes the unit to a temporary file and runs
// "<interpreter> <policy options> <file> <args>". Tty policies run on a
// pseudo-terminal.
func (i *Interpreter) Execute(ctx context.Context, unit *ncc.ExecutionUnit, opts ExecOptions) *Result {
	bin, err := i.lookPath(i.name)
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("runner %q: %w: %w", i.name, ErrRunnerNotAvailable, err)}
	}

	tmp, err := os.CreateTemp("", "ncc-unit-*")
	if err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("stage unit %s: %w", unit.Policy.Name, err)}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(unit.Data); err != nil {
		_ = tmp.Close()
		return &Result{ExitCode: 1, Error: fmt.Errorf("stage unit %s: %w", unit.Policy.Name, err)}
	}
	if err := tmp.Close(); err != nil {
		return &Result{ExitCode: 1, Error: fmt.Errorf("stage unit %s: %w", unit.Policy.Name, err)}
	}

	ctx, cancel := withTimeout(ctx, unit.Policy)
	defer cancel()

	args := append(append([]string{}, unit.Policy.Execute.Options...), tmp.Name())
	args = append(args, opts.Args...)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = unit.Policy.Execute.WorkingDirectory
	cmd.Env = environ(os.Environ(), unit.Policy, opts.Env)
	cmd.Stdin = opts.Stdin
	cmd.Stdout, cmd.Stderr = outputs(unit, opts)

	run := cmd.Run
	if unit.Policy.Execute.Tty {
		run = func() error { return runTTY(cmd, opts.Stdin, cmd.Stdout) }
	}
	if err := run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &Result{ExitCode: exitErr.ExitCode()}
		}
		return &Result{ExitCode: 1, Error: fmt.Errorf("run %s: %w", i.name, err)}
	}
	return &Result{}
}

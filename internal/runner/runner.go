// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

var (
	// ErrRunnerNotFound is returned when no runner is registered under a name.
	ErrRunnerNotFound = errors.New("runner not found")

	// ErrRunnerNotAvailable is returned when a runner's interpreter is missing.
	ErrRunnerNotAvailable = errors.New("runner not available")

	// ErrNoTarget is returned when a policy names no target file.
	ErrNoTarget = errors.New("execution policy has no target")
)

type (
	// Runner compiles and executes the units of one runner kind.
	Runner interface {
		// Name returns the runner identifier policies refer to.
		Name() string
		// Available reports whether the runner can execute on this host.
		Available() bool
		// Compile reads the policy's target below projectPath and returns
		// the unit to package.
		Compile(fs afero.Fs, projectPath string, policy project.ExecutionPolicy) (*ncc.ExecutionUnit, error)
		// Execute runs a unit and returns its exit code.
		Execute(ctx context.Context, unit *ncc.ExecutionUnit, opts ExecOptions) *Result
	}

	// ExecOptions carries the invocation-specific inputs of Execute.
	ExecOptions struct {
		Args   []string
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
		// Env is appended to the policy's environment variables, as KEY=VALUE.
		Env []string
	}

	// Result is the outcome of Execute.
	Result struct {
		ExitCode int
		Error    error
	}

	// RunnerNotFoundError names the unknown runner.
	RunnerNotFoundError struct {
		Name      string
		Available []string
	}

	// Registry holds the runners known to a build or an execution.
	Registry struct {
		runners map[string]Runner
	}
)

func (e *RunnerNotFoundError) Error() string {
	return fmt.Sprintf("runner %q not registered (known: %v)", e.Name, e.Available)
}

// Unwrap returns ErrRunnerNotFound for errors.Is() compatibility.
func (e *RunnerNotFoundError) Unwrap() error { return ErrRunnerNotFound }

// Success reports whether the unit exited zero without error.
func (r *Result) Success() bool { return r.ExitCode == 0 && r.Error == nil }

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Default returns a registry with every built-in runner.
func Default() *Registry {
	r := NewRegistry()
	r.Register(NewShell("bash"))
	r.Register(NewShell("sh"))
	for _, name := range []string{"php", "python", "python3", "python2", "perl", "lua"} {
		r.Register(NewInterpreter(name))
	}
	return r
}

// Register adds rn, replacing any runner of the same name.
func (r *Registry) Register(rn Runner) {
	r.runners[rn.Name()] = rn
}

// Get returns the runner registered under name.
func (r *Registry) Get(name string) (Runner, error) {
	rn, ok := r.runners[name]
	if !ok {
		return nil, &RunnerNotFoundError{Name: name, Available: r.Names()}
	}
	return rn, nil
}

// Names returns the registered runner names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Execute runs unit with the runner its policy names.
func (r *Registry) Execute(ctx context.Context, unit *ncc.ExecutionUnit, opts ExecOptions) *Result {
	rn, err := r.Get(unit.Policy.Runner)
	if err != nil {
		return &Result{ExitCode: 1, Error: err}
	}
	if !rn.Available() {
		return &Result{ExitCode: 1, Error: fmt.Errorf("runner %q: %w", rn.Name(), ErrRunnerNotAvailable)}
	}
	return rn.Execute(ctx, unit, opts)
}

// readTarget loads the policy's target file, resolved against projectPath
// when relative.
func readTarget(fs afero.Fs, projectPath string, policy project.ExecutionPolicy) ([]byte, error) {
	target := policy.Execute.Target
	if target == "" {
		return nil, fmt.Errorf("policy %s: %w", policy.Name, ErrNoTarget)
	}
	path := filepath.FromSlash(target)
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectPath, path)
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("policy %s: read target: %w", policy.Name, err)
	}
	return data, nil
}

// withTimeout applies the policy timeout, in seconds, when one is set.
func withTimeout(ctx context.Context, policy project.ExecutionPolicy) (context.Context, context.CancelFunc) {
	if policy.Execute.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(policy.Execute.Timeout)*time.Second)
	}
	return context.WithCancel(ctx)
}

// environ merges the policy's variables with extra, sorted for stable runs.
func environ(base []string, policy project.ExecutionPolicy, extra []string) []string {
	env := slices.Clone(base)
	keys := make([]string, 0, len(policy.Execute.EnvironmentVariables))
	for k := range policy.Execute.EnvironmentVariables {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+policy.Execute.EnvironmentVariables[k])
	}
	return append(env, extra...)
}

func outputs(unit *ncc.ExecutionUnit, opts ExecOptions) (stdout, stderr io.Writer) {
	stdout, stderr = opts.Stdout, opts.Stderr
	if stdout == nil || unit.Policy.Execute.Silent {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	return stdout, stderr
}

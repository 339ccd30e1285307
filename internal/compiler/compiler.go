// SPDX-License-Identifier: MPL-2.0

package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/internal/clock"
	"github.com/nccbuild/ncc/internal/runner"
	"github.com/nccbuild/ncc/pkg/constants"
	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

// Build option keys with a meaning to the compiler. They are stripped from
// the option map recorded in the package.
const (
	OptionOutputFile        = "output_file"
	OptionStatic            = "static"
	OptionCompression       = "compression"
	OptionComponentEncoding = "component_encoding"
)

// UnusedPoliciesWarning is logged when a project declares execution policies
// and none of them could be compiled.
const UnusedPoliciesWarning = "the project contains execution policies but none of them are used"

var (
	// ErrBuildCanceled is returned when the context ends or the progress
	// callback fails.
	ErrBuildCanceled = errors.New("build canceled")

	// ErrBuildHookFailed is returned when a pre or post build hook fails.
	ErrBuildHookFailed = errors.New("build hook failed")

	// ErrPolicyNotFound is returned when a hook names an undeclared policy.
	ErrPolicyNotFound = errors.New("execution policy not found")
)

type (
	// RunnerResolver finds the runner an execution policy names.
	RunnerResolver interface {
		Get(name string) (runner.Runner, error)
	}

	// Compiler builds packages from one project.
	Compiler struct {
		pm      project.ProjectManager
		runners RunnerResolver

		fs          afero.Fs
		logger      *slog.Logger
		progress    ProgressFunc
		clock       clock.Clock
		compression ncc.Compression
		encoding    ncc.DataType
		install     *constants.InstallPaths
		buildInfo   constants.Build
		runtime     *constants.Runtime
		fallback    string
		hookStdout  io.Writer
		hookStderr  io.Writer
	}

	// BuildHookError describes a failed pre or post build hook.
	BuildHookError struct {
		Hook     string
		Policy   string
		ExitCode int
		Err      error
	}

	// build is the state of one Build call.
	build struct {
		config  *project.BuildConfiguration
		options map[string]string
		groups  constants.Groups
		writer  *ncc.Writer
		step    int
		total   int
	}
)

func (e *BuildHookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s hook %s: %v", e.Hook, e.Policy, e.Err)
	}
	return fmt.Sprintf("%s hook %s exited with code %d", e.Hook, e.Policy, e.ExitCode)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *BuildHookError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBuildHookFailed, e.Err}
	}
	return []error{ErrBuildHookFailed}
}

// New creates a compiler for the project pm describes.
func New(pm project.ProjectManager, runners RunnerResolver, opts ...Option) *Compiler {
	c := &Compiler{
		pm:          pm,
		runners:     runners,
		fs:          afero.NewOsFs(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:       clock.Real{},
		compression: ncc.CompressionNone,
		encoding:    ncc.DataTypeEncodedText,
		install:     constants.NewInstallPaths("/usr/local/ncc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runtime == nil {
		c.runtime = constants.CurrentRuntime(pm.ProjectPath())
	}
	return c
}

// Build compiles the named build configuration and returns the package path.
// An empty name or "default" selects the project's default configuration.
// Entries of options override the configuration's options.
func (c *Compiler) Build(ctx context.Context, buildConfiguration string, options map[string]string) (string, error) {
	cfg := c.pm.Configuration()
	name := buildConfiguration
	if (name == "" || name == "default") && cfg.Build.DefaultConfiguration == "" && c.fallback != "" {
		name = c.fallback
	}
	bc, err := cfg.BuildConfiguration(name)
	if err != nil {
		return "", err
	}

	now := c.clock.Now()
	info := c.buildInfo
	info.Timestamp = now
	b := &build{
		config:  bc,
		options: mergeOptions(cfg.Build.Options, bc.Options, options),
		groups: constants.Groups{
			Assembly: &cfg.Assembly,
			Build:    &info,
			Install:  c.install,
			DateTime: &now,
			Runtime:  c.runtime,
		},
	}

	level := c.compression
	if v, ok := b.options[OptionCompression]; ok {
		if level, err = ncc.ParseCompression(v); err != nil {
			return "", err
		}
	}
	encoding := c.encoding
	if v, ok := b.options[OptionComponentEncoding]; ok {
		if encoding, err = ncc.ParseDataType(v); err != nil {
			return "", err
		}
		if encoding == ncc.DataTypeStructuredAst {
			return "", fmt.Errorf("component encoding %q: %w", v, ncc.ErrNotSupported)
		}
	}

	components, err := c.pm.Components(bc.Name)
	if err != nil {
		return "", err
	}
	resources, err := c.pm.Resources(bc.Name)
	if err != nil {
		return "", err
	}
	b.total = len(cfg.ExecutionPolicies) + len(components) + len(resources)

	out := c.outputPath(b)
	c.logger.Info("building package",
		"configuration", bc.Name,
		"output", out,
		"compression", level.String(),
		"components", len(components),
		"resources", len(resources))

	if err := c.runHooks(ctx, "pre-build", cfg.Build.PreBuild, b.groups); err != nil {
		return "", err
	}

	w, err := ncc.Create(c.fs, out, ncc.WithWriterLogger(c.logger))
	if err != nil {
		return "", err
	}
	b.writer = w
	// Abort is a no-op once Close succeeded.
	defer func() { _ = w.Abort() }()

	if err := c.writeFlags(b, level); err != nil {
		return "", err
	}
	if err := c.writeHeader(b); err != nil {
		return "", err
	}
	if err := c.writeExecutionUnits(ctx, b); err != nil {
		return "", err
	}
	if err := c.writeComponents(ctx, b, components, encoding); err != nil {
		return "", err
	}
	if err := c.writeResources(ctx, b, resources); err != nil {
		return "", err
	}
	for _, deps := range [][]project.Dependency{cfg.Build.Dependencies, bc.Dependencies} {
		for _, d := range deps {
			if err := w.AddDependency(d); err != nil {
				return "", err
			}
		}
	}
	if err := canceled(ctx); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	c.report(out)

	if err := c.runHooks(ctx, "post-build", cfg.Build.PostBuild, b.groups); err != nil {
		return out, err
	}
	return out, nil
}

// outputPath picks the configured output name, then the output_file option,
// then <output_path>/<package>.ncc. Relative results are resolved against
// the project directory.
func (c *Compiler) outputPath(b *build) string {
	sub := constants.NewCompiler(b.groups)
	var p string
	switch {
	case b.config.OutputName != "":
		p = path.Join(substitutePath(sub, b.config.OutputPath), substitutePath(sub, b.config.OutputName))
	case b.options[OptionOutputFile] != "":
		p = substitutePath(sub, b.options[OptionOutputFile])
	default:
		name := string(b.groups.Assembly.Package) + ".ncc"
		p = path.Join(substitutePath(sub, b.config.OutputPath), name)
	}
	p = filepath.FromSlash(p)
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.pm.ProjectPath(), p)
	}
	return filepath.Clean(p)
}

func (c *Compiler) writeFlags(b *build, level ncc.Compression) error {
	if f := level.Flag(); f != "" {
		if err := b.writer.AddFlag(f); err != nil {
			return err
		}
	}
	if enabled(b.options[OptionStatic]) {
		if err := b.writer.AddFlag(ncc.FlagStaticDependencies); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) writeHeader(b *build) error {
	cfg := c.pm.Configuration()
	defines := mergeOptions(cfg.Build.DefineConstants, b.config.DefineConstants)

	recorded := mergeOptions(b.options, cfg.Project.Options)
	delete(recorded, OptionOutputFile)
	delete(recorded, OptionStatic)
	expander := constants.NewExpander(constants.NewCompiler(b.groups), constants.WithDefines(defines))
	recorded, err := expander.ExpandMap(recorded)
	if err != nil {
		return fmt.Errorf("build options: %w", err)
	}

	meta := &ncc.Metadata{
		Compiler:            cfg.Project.Compiler,
		CompilerVersion:     c.buildInfo.Version,
		Options:             recorded,
		UpdateSource:        cfg.Project.UpdateSource,
		MainExecutionPolicy: cfg.Build.Main,
		Constants:           defines,
		Installer:           cfg.Installer,
	}
	if err := b.writer.SetMetadata(meta); err != nil {
		return err
	}
	return b.writer.SetAssembly(cfg.Assembly)
}

func (c *Compiler) writeExecutionUnits(ctx context.Context, b *build) error {
	policies := c.pm.Configuration().ExecutionPolicies
	if len(policies) == 0 {
		return nil
	}
	sub := constants.NewCompiler(b.groups)
	used := 0
	for _, policy := range policies {
		if err := canceled(ctx); err != nil {
			return err
		}
		unit, err := c.compileUnit(sub, policy)
		if err != nil {
			if !errors.Is(err, runner.ErrRunnerNotFound) {
				return err
			}
			c.logger.Warn("execution policy skipped", "policy", policy.Name, "runner", policy.Runner, "error", err)
		} else {
			if err := b.writer.AddExecutionUnit(unit); err != nil {
				return err
			}
			used++
		}
		if err := c.advance(b, PhaseExecutionUnits, policy.Name); err != nil {
			return err
		}
	}
	if used == 0 {
		c.logger.Warn(UnusedPoliciesWarning, "policies", len(policies))
	}
	return nil
}

func (c *Compiler) compileUnit(sub *constants.Compiler, policy project.ExecutionPolicy) (*ncc.ExecutionUnit, error) {
	rn, err := c.runners.Get(policy.Runner)
	if err != nil {
		return nil, err
	}
	unit, err := rn.Compile(c.fs, c.pm.ProjectPath(), sub.SubstitutePolicy(policy))
	if err != nil {
		return nil, fmt.Errorf("compile execution policy %s: %w", policy.Name, err)
	}
	return unit, nil
}

func (c *Compiler) writeComponents(ctx context.Context, b *build, names []string, encoding ncc.DataType) error {
	for _, name := range names {
		if err := canceled(ctx); err != nil {
			return err
		}
		raw, err := c.readSource(name)
		if err != nil {
			return err
		}
		comp, err := ncc.NewComponent(name, raw, encoding)
		if err != nil {
			return err
		}
		if err := b.writer.AddComponent(comp); err != nil {
			return err
		}
		if err := c.advance(b, PhaseComponents, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) writeResources(ctx context.Context, b *build, names []string) error {
	for _, name := range names {
		if err := canceled(ctx); err != nil {
			return err
		}
		raw, err := c.readSource(name)
		if err != nil {
			return err
		}
		if err := b.writer.AddResource(ncc.NewResource(name, raw)); err != nil {
			return err
		}
		if err := c.advance(b, PhaseResources, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) readSource(name string) ([]byte, error) {
	p := filepath.Join(c.pm.SourcePath(), filepath.FromSlash(name))
	data, err := afero.ReadFile(c.fs, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

func (c *Compiler) advance(b *build, phase Phase, item string) error {
	b.step++
	if c.progress == nil {
		return nil
	}
	if err := c.progress(Progress{Step: b.step, Total: b.total, Phase: phase, Item: item}); err != nil {
		return fmt.Errorf("%w: %w", ErrBuildCanceled, err)
	}
	return nil
}

// report logs the checksum and size of the finished package.
func (c *Compiler) report(out string) {
	r, err := ncc.Open(c.fs, out, ncc.WithReaderLogger(c.logger))
	if err != nil {
		c.logger.Warn("package written but could not be reopened", "path", out, "error", err)
		return
	}
	defer func() { _ = r.Close() }()
	sum, err := r.Checksum()
	if err != nil {
		c.logger.Warn("package checksum failed", "path", out, "error", err)
		return
	}
	c.logger.Info("package built", "path", out, "checksum", sum, "bytes", r.Size())
}

// runHooks compiles and runs the named policies in order, stopping at the
// first failure.
func (c *Compiler) runHooks(ctx context.Context, hook string, names []string, groups constants.Groups) error {
	if len(names) == 0 {
		return nil
	}
	cfg := c.pm.Configuration()
	sub := constants.NewCompiler(groups)
	for _, name := range names {
		if err := canceled(ctx); err != nil {
			return err
		}
		policy, ok := cfg.ExecutionPolicy(name)
		if !ok {
			return &BuildHookError{Hook: hook, Policy: name, Err: ErrPolicyNotFound}
		}
		unit, err := c.compileUnit(sub, *policy)
		if err != nil {
			return &BuildHookError{Hook: hook, Policy: name, Err: err}
		}
		if policy.Message != "" {
			c.logger.Info(sub.Substitute(policy.Message), "hook", hook)
		}
		rn, err := c.runners.Get(policy.Runner)
		if err != nil {
			return &BuildHookError{Hook: hook, Policy: name, Err: err}
		}
		res := rn.Execute(ctx, unit, runner.ExecOptions{Stdout: c.hookStdout, Stderr: c.hookStderr})
		if !res.Success() {
			return &BuildHookError{Hook: hook, Policy: name, ExitCode: res.ExitCode, Err: res.Error}
		}
		c.logger.Debug("build hook finished", "hook", hook, "policy", name)
	}
	return nil
}

func canceled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrBuildCanceled, err)
	}
	return nil
}

// mergeOptions layers the maps left to right; later maps win.
func mergeOptions(layers ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, layer := range layers {
		maps.Copy(out, layer)
	}
	return out
}

// substitutePath runs each slash-separated segment through the constant
// compiler.
func substitutePath(sub *constants.Compiler, p string) string {
	segments := strings.Split(p, "/")
	return strings.Join(sub.SubstituteSlice(segments), "/")
}

func enabled(v string) bool {
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return slices.Contains([]string{"yes", "on"}, strings.ToLower(v))
}

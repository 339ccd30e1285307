// SPDX-License-Identifier: MPL-2.0

package compiler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/internal/clock"
	"github.com/nccbuild/ncc/internal/runner"
	"github.com/nccbuild/ncc/internal/testutil"
	"github.com/nccbuild/ncc/pkg/constants"
	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

const baseProject = `
project:
  compiler:
    extension: shell
  options:
    optimize: "true"
assembly:
  name: Example
  package: com.example.app
  version: 1.2.3
  uuid: 7d1b6b8e-3c0e-4b5a-9a57-6f6f0d8f2c11
build:
  source_path: src
  default_configuration: release
  options:
    level: base
  define_constants:
    GREETING: hello ${ASSEMBLY.NAME}
  dependencies:
    - name: pkg.a
      version: 1.0.0
  configurations:
    - name: release
      output_path: build/${ASSEMBLY.VERSION}
      options:
        level: release
        flavor: ${GREETING}
      dependencies:
        - name: pkg.a
          version: 2.0.0
    - name: small
      output_path: build/small
      options:
        compression: high
    - name: named
      output_path: dist
      output_name: app-${ASSEMBLY.VERSION}.ncc
`

type fakeRunner struct {
	name     string
	compiled []string
	exitCode int
	executed []string
}

func (f *fakeRunner) Name() string    { return f.name }
func (f *fakeRunner) Available() bool { return true }

func (f *fakeRunner) Compile(fs afero.Fs, projectPath string, policy project.ExecutionPolicy) (*ncc.ExecutionUnit, error) {
	data, err := afero.ReadFile(fs, filepath.Join(projectPath, policy.Execute.Target))
	if err != nil {
		return nil, err
	}
	f.compiled = append(f.compiled, policy.Name)
	return &ncc.ExecutionUnit{Policy: policy, Data: data}, nil
}

func (f *fakeRunner) Execute(_ context.Context, unit *ncc.ExecutionUnit, _ runner.ExecOptions) *runner.Result {
	f.executed = append(f.executed, unit.Policy.Name)
	return &runner.Result{ExitCode: f.exitCode}
}

type testProject struct {
	fs      afero.Fs
	pm      *project.Manager
	runner  *fakeRunner
	runners *runner.Registry
	logs    *bytes.Buffer
	clock   *clock.Fake
}

// newTestProject writes a project with two components and one resource
// below /proj. extra is appended to the project file.
func newTestProject(t *testing.T, extra string) *testProject {
	t.Helper()

	fs := afero.NewMemMapFs()
	files := map[string]string{
		"project.yml":        baseProject + extra,
		"src/main.sh":        "echo main\n",
		"src/lib/util.sh":    "util() { :; }\n",
		"src/assets/big.txt": strings.Repeat("compressible resource data ", 4096),
		"scripts/setup.sh":   "echo setup\n",
	}
	testutil.WriteFiles(t, fs, "/proj", files)
	pm, err := project.Load(fs, "/proj")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	fake := &fakeRunner{name: "fake"}
	reg := runner.NewRegistry()
	reg.Register(fake)
	return &testProject{
		fs:      fs,
		pm:      pm,
		runner:  fake,
		runners: reg,
		logs:    &bytes.Buffer{},
		clock:   clock.NewFake(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)),
	}
}

func (p *testProject) compiler(opts ...Option) *Compiler {
	base := []Option{
		WithFs(p.fs),
		WithClock(p.clock),
		WithLogger(slog.New(slog.NewTextHandler(p.logs, nil))),
		WithRuntime(&constants.Runtime{ProjectPath: "/proj"}),
		WithBuildInfo(constants.Build{Version: "2.0.0"}),
	}
	return New(p.pm, p.runners, append(base, opts...)...)
}

func openBuilt(t *testing.T, fs afero.Fs, path string) *ncc.Reader {
	t.Helper()

	r, err := ncc.Open(fs, path)
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", path, err)
	}
	testutil.CloseOnCleanup(t, r)
	return r
}

func names[T any](items []*T, name func(*T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, name(it))
	}
	return out
}

func TestBuild_ComponentsAndResources(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	out, err := p.compiler().Build(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if want := "/proj/build/1.2.3/com.example.app.ncc"; out != filepath.FromSlash(want) {
		t.Errorf("Build() = %q, want %q", out, want)
	}

	r := openBuilt(t, p.fs, out)
	if r.Compression() != ncc.CompressionNone {
		t.Errorf("Compression() = %s, want none", r.Compression())
	}
	comps, err := r.Components()
	if err != nil {
		t.Fatalf("Components() failed: %v", err)
	}
	gotComps := names(comps, func(c *ncc.Component) string { return c.Name })
	if diff := cmp.Diff([]string{"lib/util.sh", "main.sh"}, gotComps); diff != "" {
		t.Errorf("Components() mismatch (-want +got):\n%s", diff)
	}
	for _, c := range comps {
		if c.DataType != ncc.DataTypeEncodedText {
			t.Errorf("component %s DataType = %s, want b64enc", c.Name, c.DataType)
		}
		if _, err := c.Contents(); err != nil {
			t.Errorf("component %s Contents() failed: %v", c.Name, err)
		}
	}

	res, err := r.Resources()
	if err != nil {
		t.Fatalf("Resources() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"assets/big.txt"}, names(res, func(r *ncc.Resource) string { return r.Name })); diff != "" {
		t.Errorf("Resources() mismatch (-want +got):\n%s", diff)
	}

	units, err := r.ExecutionUnits()
	if err != nil {
		t.Fatalf("ExecutionUnits() failed: %v", err)
	}
	if len(units) != 0 {
		t.Errorf("ExecutionUnits() = %d units, want 0", len(units))
	}
}

func TestBuild_HighCompressionShrinksPackage(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	plain, err := p.compiler().Build(context.Background(), "release", map[string]string{OptionOutputFile: "out/plain.ncc"})
	if err != nil {
		t.Fatalf("Build(release) failed: %v", err)
	}
	small, err := p.compiler().Build(context.Background(), "small", nil)
	if err != nil {
		t.Fatalf("Build(small) failed: %v", err)
	}

	r := openBuilt(t, p.fs, small)
	if !r.HasFlag(ncc.FlagHighCompression) {
		t.Errorf("Flags() = %v, want %s", r.Flags(), ncc.FlagHighCompression)
	}
	if r.Compression() != ncc.CompressionHigh {
		t.Errorf("Compression() = %s, want high", r.Compression())
	}
	if got, base := r.Size(), openBuilt(t, p.fs, plain).Size(); got >= base {
		t.Errorf("compressed size = %d, want less than uncompressed %d", got, base)
	}
}

func TestBuild_UnknownRunnerIsAWarning(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, `
execution_policies:
  - name: setup
    runner: does-not-exist
    execute:
      target: scripts/setup.sh
`)
	out, err := p.compiler().Build(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	units, err := openBuilt(t, p.fs, out).ExecutionUnits()
	if err != nil {
		t.Fatalf("ExecutionUnits() failed: %v", err)
	}
	if len(units) != 0 {
		t.Errorf("ExecutionUnits() = %d units, want 0", len(units))
	}
	if !strings.Contains(p.logs.String(), UnusedPoliciesWarning) {
		t.Errorf("logs do not contain %q:\n%s", UnusedPoliciesWarning, p.logs.String())
	}
}

func TestBuild_ExecutionUnits(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, `
execution_policies:
  - name: setup
    runner: fake
    message: Installing ${ASSEMBLY.NAME} ${ASSEMBLY.VERSION}
    execute:
      target: scripts/setup.sh
  - name: skipped
    runner: does-not-exist
    execute:
      target: scripts/setup.sh
`)
	out, err := p.compiler().Build(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	unit, err := openBuilt(t, p.fs, out).ExecutionUnit("setup")
	if err != nil {
		t.Fatalf("ExecutionUnit(setup) failed: %v", err)
	}
	if got, want := unit.Policy.Message, "Installing Example 1.2.3"; got != want {
		t.Errorf("Policy.Message = %q, want %q", got, want)
	}
	if got := string(unit.Data); got != "echo setup\n" {
		t.Errorf("Data = %q, want the target script", got)
	}
	if strings.Contains(p.logs.String(), UnusedPoliciesWarning) {
		t.Errorf("logs contain %q although one policy was used", UnusedPoliciesWarning)
	}
}

func TestBuild_Installer(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, `
execution_policies:
  - name: setup
    runner: fake
    execute:
      target: scripts/setup.sh
installer:
  post_install: [setup]
`)
	out, err := p.compiler().Build(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	r := openBuilt(t, p.fs, out)
	installer, err := r.Installer()
	if err != nil {
		t.Fatalf("Installer() failed: %v", err)
	}
	if installer == nil {
		t.Fatal("Installer() = nil, want the declared hooks")
	}
	if diff := cmp.Diff([]string{"setup"}, installer.PostInstall); diff != "" {
		t.Errorf("PostInstall mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.ExecutionUnit("setup"); err != nil {
		t.Errorf("ExecutionUnit(setup) failed: %v", err)
	}
}

func TestBuild_DependencyOrder(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	out, err := p.compiler().Build(context.Background(), "release", nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	deps, err := openBuilt(t, p.fs, out).Dependencies()
	if err != nil {
		t.Fatalf("Dependencies() failed: %v", err)
	}
	want := []project.Dependency{
		{Name: "pkg.a", Version: "1.0.0"},
		{Name: "pkg.a", Version: "2.0.0"},
	}
	if diff := cmp.Diff(want, deps); diff != "" {
		t.Errorf("Dependencies() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Metadata(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	out, err := p.compiler().Build(context.Background(), "release", map[string]string{
		OptionOutputFile: "ignored-when-recorded.ncc",
		OptionStatic:     "true",
		"optimize":       "false",
	})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	r := openBuilt(t, p.fs, out)
	if !r.HasFlag(ncc.FlagStaticDependencies) {
		t.Errorf("Flags() = %v, want %s", r.Flags(), ncc.FlagStaticDependencies)
	}
	meta, err := r.Metadata()
	if err != nil {
		t.Fatalf("Metadata() failed: %v", err)
	}
	wantOptions := map[string]string{
		"level":    "release",
		"flavor":   "hello Example",
		"optimize": "true",
	}
	if diff := cmp.Diff(wantOptions, meta.Options); diff != "" {
		t.Errorf("Metadata().Options mismatch (-want +got):\n%s", diff)
	}
	if got := meta.Constants["GREETING"]; got != "hello ${ASSEMBLY.NAME}" {
		t.Errorf("Constants[GREETING] = %q, want the raw definition", got)
	}
	if meta.CompilerVersion != "2.0.0" {
		t.Errorf("CompilerVersion = %q, want 2.0.0", meta.CompilerVersion)
	}
}

func TestBuild_OutputPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		configuration string
		options       map[string]string
		want          string
	}{
		{"default", "release", nil, "/proj/build/1.2.3/com.example.app.ncc"},
		{"output file option", "release", map[string]string{OptionOutputFile: "out/${ASSEMBLY.NAME}.ncc"}, "/proj/out/Example.ncc"},
		{"absolute output file", "release", map[string]string{OptionOutputFile: "/pkgs/app.ncc"}, "/pkgs/app.ncc"},
		{"output name wins", "named", map[string]string{OptionOutputFile: "out/x.ncc"}, "/proj/dist/app-1.2.3.ncc"},
		{"date constants", "release", map[string]string{OptionOutputFile: "out/${Y}${m}${d}.ncc"}, "/proj/out/20240309.ncc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestProject(t, "")
			out, err := p.compiler().Build(context.Background(), tt.configuration, tt.options)
			if err != nil {
				t.Fatalf("Build() failed: %v", err)
			}
			if want := filepath.FromSlash(tt.want); out != want {
				t.Errorf("Build() = %q, want %q", out, want)
			}
			if ok, _ := afero.Exists(p.fs, out); !ok {
				t.Errorf("no package at %s", out)
			}
		})
	}
}

func TestBuild_Progress(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, `
execution_policies:
  - name: setup
    runner: does-not-exist
    execute:
      target: scripts/setup.sh
`)
	var got []Progress
	_, err := p.compiler(WithProgress(func(pr Progress) error {
		got = append(got, pr)
		return nil
	})).Build(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	want := []Progress{
		{Step: 1, Total: 4, Phase: PhaseExecutionUnits, Item: "setup"},
		{Step: 2, Total: 4, Phase: PhaseComponents, Item: "lib/util.sh"},
		{Step: 3, Total: 4, Phase: PhaseComponents, Item: "main.sh"},
		{Step: 4, Total: 4, Phase: PhaseResources, Item: "assets/big.txt"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_ProgressCancels(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	stop := errors.New("stop")
	_, err := p.compiler(WithProgress(func(pr Progress) error {
		if pr.Step == 2 {
			return stop
		}
		return nil
	})).Build(context.Background(), "", nil)
	if !errors.Is(err, ErrBuildCanceled) || !errors.Is(err, stop) {
		t.Fatalf("Build() = %v, want ErrBuildCanceled wrapping the callback error", err)
	}
	assertNoPackages(t, p.fs)
}

func TestBuild_ContextCanceled(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.compiler().Build(ctx, "", nil)
	if !errors.Is(err, ErrBuildCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Build() = %v, want ErrBuildCanceled wrapping context.Canceled", err)
	}
	assertNoPackages(t, p.fs)
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		configuration string
		options       map[string]string
		want          error
	}{
		{"unsupported compression", "release", map[string]string{OptionCompression: "ultra"}, ncc.ErrNotSupported},
		{"unknown encoding", "release", map[string]string{OptionComponentEncoding: "rot13"}, ncc.ErrInvalidDataType},
		{"ast encoding", "release", map[string]string{OptionComponentEncoding: "ast"}, ncc.ErrNotSupported},
		{"unknown configuration", "missing", nil, project.ErrBuildConfigurationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestProject(t, "")
			_, err := p.compiler().Build(context.Background(), tt.configuration, tt.options)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Build() = %v, want %v", err, tt.want)
			}
			assertNoPackages(t, p.fs)
		})
	}
}

func TestBuild_ComponentEncoding(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	out, err := p.compiler(WithComponentEncoding(ncc.DataTypePlainText)).Build(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	comp, err := openBuilt(t, p.fs, out).Component("main.sh")
	if err != nil {
		t.Fatalf("Component(main.sh) failed: %v", err)
	}
	if comp.DataType != ncc.DataTypePlainText || string(comp.Data) != "echo main\n" {
		t.Errorf("Component(main.sh) = %s %q, want plain text source", comp.DataType, comp.Data)
	}
}

func TestBuild_MissingSourceAborts(t *testing.T) {
	t.Parallel()

	p := newTestProject(t, "")
	// The manager already listed the file; remove it behind its back.
	pm := &staleManager{Manager: p.pm, extra: "gone.sh"}
	_, err := New(pm, p.runners, WithFs(p.fs), WithClock(p.clock)).Build(context.Background(), "", nil)
	if err == nil || !strings.Contains(err.Error(), filepath.FromSlash("/proj/src/gone.sh")) {
		t.Fatalf("Build() = %v, want an error naming the missing file", err)
	}
	assertNoPackages(t, p.fs)
}

func TestBuild_Hooks(t *testing.T) {
	t.Parallel()

	hooks := `
  pre_build: [prepare]
  post_build: [announce]
`
	policies := `
execution_policies:
  - name: prepare
    runner: fake
    execute:
      target: scripts/setup.sh
  - name: announce
    runner: fake
    execute:
      target: scripts/setup.sh
`
	t.Run("success", func(t *testing.T) {
		t.Parallel()

		p := newTestProjectWithBuild(t, hooks, policies)
		if _, err := p.compiler().Build(context.Background(), "", nil); err != nil {
			t.Fatalf("Build() failed: %v", err)
		}
		if diff := cmp.Diff([]string{"prepare", "announce"}, p.runner.executed); diff != "" {
			t.Errorf("executed hooks mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("pre-build failure", func(t *testing.T) {
		t.Parallel()

		p := newTestProjectWithBuild(t, hooks, policies)
		p.runner.exitCode = 3
		_, err := p.compiler().Build(context.Background(), "", nil)
		if !errors.Is(err, ErrBuildHookFailed) {
			t.Fatalf("Build() = %v, want ErrBuildHookFailed", err)
		}
		var hookErr *BuildHookError
		if !errors.As(err, &hookErr) || hookErr.Policy != "prepare" || hookErr.ExitCode != 3 {
			t.Errorf("Build() error = %#v, want the prepare hook with exit code 3", err)
		}
		assertNoPackages(t, p.fs)
	})
}

// newTestProjectWithBuild inserts buildExtra into the build block.
func newTestProjectWithBuild(t *testing.T, buildExtra, extra string) *testProject {
	t.Helper()

	p := newTestProject(t, extra)
	data, err := afero.ReadFile(p.fs, "/proj/project.yml")
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	patched := strings.Replace(string(data), "  configurations:\n", strings.TrimPrefix(buildExtra, "\n")+"  configurations:\n", 1)
	testutil.MustWriteFile(t, p.fs, "/proj/project.yml", []byte(patched))
	if p.pm, err = project.Load(p.fs, "/proj"); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return p
}

type staleManager struct {
	*project.Manager
	extra string
}

func (m *staleManager) Components(buildConfiguration string) ([]string, error) {
	comps, err := m.Manager.Components(buildConfiguration)
	return append(comps, m.extra), err
}

// assertNoPackages fails when a package or a writer temp file exists.
func assertNoPackages(t *testing.T, fs afero.Fs) {
	t.Helper()

	var found []string
	err := afero.Walk(fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && (strings.HasSuffix(p, ".ncc") || strings.HasSuffix(p, ".tmp")) {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() failed: %v", err)
	}
	if len(found) > 0 {
		t.Errorf("files left behind: %v", found)
	}
}

// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/pkg/ncc"
	"github.com/nccbuild/ncc/pkg/project"
)

func shellPolicy(target string) project.ExecutionPolicy {
	return project.ExecutionPolicy{
		Name:    "setup",
		Runner:  "bash",
		Execute: project.Execute{Target: target},
	}
}

func TestDefault_Names(t *testing.T) {
	t.Parallel()

	want := []string{"bash", "lua", "perl", "php", "python", "python2", "python3", "sh"}
	if diff := cmp.Diff(want, Default().Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()

	_, err := Default().Get("does-not-exist")
	if !errors.Is(err, ErrRunnerNotFound) {
		t.Fatalf("Get() = %v, want ErrRunnerNotFound", err)
	}
	var notFound *RunnerNotFoundError
	if !errors.As(err, &notFound) || notFound.Name != "does-not-exist" {
		t.Errorf("Get() error = %#v, want *RunnerNotFoundError naming the runner", err)
	}
}

func TestShell_Compile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/proj/scripts/setup.sh", []byte("echo hi\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := afero.WriteFile(fs, "/proj/broken.sh", []byte("if then fi (\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	unit, err := NewShell("bash").Compile(fs, "/proj", shellPolicy("scripts/setup.sh"))
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	if string(unit.Data) != "echo hi\n" || unit.Policy.Name != "setup" {
		t.Errorf("Compile() = %+v", unit)
	}

	if _, err := NewShell("bash").Compile(fs, "/proj", shellPolicy("broken.sh")); err == nil {
		t.Error("Compile() accepted a script with a syntax error")
	}
	if _, err := NewShell("bash").Compile(fs, "/proj", shellPolicy("")); !errors.Is(err, ErrNoTarget) {
		t.Errorf("Compile() without target = %v, want ErrNoTarget", err)
	}
	if _, err := NewShell("bash").Compile(fs, "/proj", shellPolicy("missing.sh")); err == nil {
		t.Error("Compile() of a missing target succeeded")
	}
}

func TestShell_Execute(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		script   string
		policy   project.Execute
		args     []string
		wantOut  string
		wantCode int
	}{
		{
			name:    "echo",
			script:  "echo hello",
			wantOut: "hello\n",
		},
		{
			name:    "options then args",
			script:  `echo "$1 $2"`,
			policy:  project.Execute{Options: []string{"--verbose"}},
			args:    []string{"now"},
			wantOut: "--verbose now\n",
		},
		{
			name:    "policy environment",
			script:  `echo "$APP_ENV"`,
			policy:  project.Execute{EnvironmentVariables: map[string]string{"APP_ENV": "prod"}},
			wantOut: "prod\n",
		},
		{
			name:     "exit code",
			script:   "exit 3",
			wantCode: 3,
		},
		{
			name:    "silent",
			script:  "echo hidden",
			policy:  project.Execute{Silent: true},
			wantOut: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			unit := &ncc.ExecutionUnit{
				Policy: project.ExecutionPolicy{Name: tt.name, Runner: "bash", Execute: tt.policy},
				Data:   []byte(tt.script),
			}
			var stdout bytes.Buffer
			res := Default().Execute(context.Background(), unit, ExecOptions{Args: tt.args, Stdout: &stdout})
			if res.Error != nil {
				t.Fatalf("Execute() error: %v", res.Error)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("Execute() exit code = %d, want %d", res.ExitCode, tt.wantCode)
			}
			if stdout.String() != tt.wantOut {
				t.Errorf("Execute() output = %q, want %q", stdout.String(), tt.wantOut)
			}
		})
	}
}

func TestShell_ExecuteCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	unit := &ncc.ExecutionUnit{
		Policy: project.ExecutionPolicy{Name: "loop", Runner: "sh"},
		Data:   []byte("while true; do :; done"),
	}
	if res := NewShell("sh").Execute(ctx, unit, ExecOptions{}); res.Success() {
		t.Error("Execute() with a canceled context succeeded")
	}
}

func TestInterpreter(t *testing.T) {
	t.Parallel()

	missing := &Interpreter{name: "lua", lookPath: func(string) (string, error) { return "", exec.ErrNotFound }}
	if missing.Available() {
		t.Error("Available() = true with no binary on PATH")
	}
	res := missing.Execute(context.Background(), &ncc.ExecutionUnit{Policy: project.ExecutionPolicy{Name: "p", Runner: "lua"}}, ExecOptions{})
	if !errors.Is(res.Error, ErrRunnerNotAvailable) {
		t.Errorf("Execute() error = %v, want ErrRunnerNotAvailable", res.Error)
	}

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/proj/main.php", []byte("<?php echo 1;"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	unit, err := missing.Compile(fs, "/proj", project.ExecutionPolicy{Name: "main", Runner: "php", Execute: project.Execute{Target: "main.php"}})
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	if !strings.HasPrefix(string(unit.Data), "<?php") {
		t.Errorf("Compile().Data = %q", unit.Data)
	}
}

func TestInterpreter_Execute(t *testing.T) {
	t.Parallel()

	sh := NewInterpreter("sh")
	if !sh.Available() {
		t.Skip("sh not on PATH")
	}

	tests := []struct {
		name     string
		tty      bool
		script   string
		wantOut  string
		wantCode int
	}{
		{name: "pipes", script: "echo \"$1 $MODE\"", wantOut: "hello prod"},
		{name: "exit code", script: "exit 4", wantCode: 4},
		{name: "tty", tty: true, script: "test -t 1 && echo terminal", wantOut: "terminal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.tty && runtime.GOOS == "windows" {
				t.Skip("no pseudo-terminals on windows")
			}
			unit := &ncc.ExecutionUnit{
				Policy: project.ExecutionPolicy{
					Name:   "main",
					Runner: "sh",
					Execute: project.Execute{
						Target:               "main.sh",
						Tty:                  tt.tty,
						EnvironmentVariables: map[string]string{"MODE": "prod"},
					},
				},
				Data: []byte(tt.script),
			}
			var stdout, stderr bytes.Buffer
			res := sh.Execute(context.Background(), unit, ExecOptions{Args: []string{"hello"}, Stdout: &stdout, Stderr: &stderr})
			if res.Error != nil {
				t.Fatalf("Execute() error = %v", res.Error)
			}
			if res.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d (stderr %q)", res.ExitCode, tt.wantCode, stderr.String())
			}
			if got := strings.TrimSpace(stdout.String()); got != tt.wantOut {
				t.Errorf("stdout = %q, want %q", got, tt.wantOut)
			}
		})
	}
}

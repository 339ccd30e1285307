// SPDX-License-Identifier: MPL-2.0

package constants

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nccbuild/ncc/pkg/project"
)

func sampleAssembly() *project.Assembly {
	return &project.Assembly{
		Name:      "Example",
		Package:   "com.example.app",
		Version:   "1.2.3",
		UUID:      "7d1b6b8e-3c0e-4b5a-9a57-6f6f0d8f2c11",
		Company:   "Example Corp",
		Copyright: "(c) Example",
	}
}

func TestSubstitute_Assembly(t *testing.T) {
	t.Parallel()

	groups := Groups{Assembly: &project.Assembly{Version: "1.2.3"}}
	if got := Substitute("${ASSEMBLY.VERSION}", groups); got != "1.2.3" {
		t.Errorf("Substitute() = %q, want 1.2.3", got)
	}

	groups = Groups{Assembly: sampleAssembly()}
	got := Substitute("${ASSEMBLY.NAME} ${ASSEMBLY.PACKAGE} %ASSEMBLY.COMPANY% ${ASSEMBLY.UID}", groups)
	want := "Example com.example.app Example Corp 7d1b6b8e-3c0e-4b5a-9a57-6f6f0d8f2c11"
	if got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

func TestSubstitute_AbsentGroupsUntouched(t *testing.T) {
	t.Parallel()

	in := "${ASSEMBLY.NAME}/${INSTALL_PATH.BIN}/${Y}/${PID}/${COMPILE_TIMESTAMP}/${UNKNOWN}"
	if got := Substitute(in, Groups{}); got != in {
		t.Errorf("Substitute() with no groups = %q, want input unchanged", got)
	}

	got := Substitute(in, Groups{Install: NewInstallPaths("/opt/app/")})
	want := "${ASSEMBLY.NAME}//opt/app/bin/${Y}/${PID}/${COMPILE_TIMESTAMP}/${UNKNOWN}"
	if got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

func TestSubstitute_IsFlat(t *testing.T) {
	t.Parallel()

	// A replacement that itself looks like a placeholder is not expanded.
	groups := Groups{
		Assembly: &project.Assembly{Name: "${ASSEMBLY.VERSION}", Version: "9.9.9"},
	}
	if got := Substitute("${ASSEMBLY.NAME}", groups); got != "${ASSEMBLY.VERSION}" {
		t.Errorf("Substitute() = %q, want the raw replacement", got)
	}
}

func TestSubstitute_BuildAndRuntime(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	groups := Groups{
		Build:   &Build{Timestamp: ts, Version: "2.0.0", Flags: []string{"beta", "nightly"}, Branch: "main"},
		Runtime: &Runtime{CWD: "/work", PID: 42, UID: 1000, GID: 100, User: "dev", ProjectPath: "/proj"},
	}
	got := Substitute("${COMPILE_TIMESTAMP}|${NCC_BUILD_VERSION}|${NCC_BUILD_FLAGS}|${NCC_BUILD_BRANCH}|${CWD}|${PID}|${UID}|${GID}|${USER}|${PROJECT_PATH}", groups)
	want := "1709647629|2.0.0|beta nightly|main|/work|42|1000|100|dev|/proj"
	if got != want {
		t.Errorf("Substitute() = %q, want %q", got, want)
	}
}

func TestFormatDate(t *testing.T) {
	t.Parallel()

	// Thursday 2024-02-29 16:01:07 UTC: a leap day in ISO week 9.
	ts := time.Date(2024, time.February, 29, 16, 1, 7, 0, time.UTC)
	want := map[string]string{
		"d": "29", "D": "Thu", "j": "29", "l": "Thursday", "N": "4", "S": "th",
		"w": "4", "z": "59", "W": "09", "F": "February", "m": "02", "M": "Feb",
		"n": "2", "t": "29", "L": "1", "o": "2024", "Y": "2024", "y": "24",
		"a": "pm", "A": "PM", "B": "709", "g": "4", "G": "16", "h": "04",
		"H": "16", "i": "01", "s": "07",
		"c": "2024-02-29T16:01:07+00:00",
		"r": "Thu, 29 Feb 2024 16:01:07 +0000",
		"u": "1709222467",
	}
	got := make(map[string]string, len(DateTimeTokens))
	for _, tok := range DateTimeTokens {
		got[tok] = Substitute("${"+tok+"}", Groups{DateTime: &ts})
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("date tokens mismatch (-want +got):\n%s", diff)
	}

	for day, suffix := range map[int]string{1: "st", 2: "nd", 3: "rd", 11: "th", 12: "th", 13: "th", 21: "st", 22: "nd", 23: "rd"} {
		if got := ordinalSuffix(day); got != suffix {
			t.Errorf("ordinalSuffix(%d) = %q, want %q", day, got, suffix)
		}
	}
}

func TestCompiler_SubstitutePolicy(t *testing.T) {
	t.Parallel()

	c := NewCompiler(Groups{Assembly: sampleAssembly(), Install: NewInstallPaths("/opt/example")})
	in := project.ExecutionPolicy{
		Name:    "main",
		Runner:  "bash",
		Message: "Running ${ASSEMBLY.NAME}",
		Execute: project.Execute{
			Target:               "main.sh",
			WorkingDirectory:     "${INSTALL_PATH.DATA}",
			Options:              []string{"--version=${ASSEMBLY.VERSION}"},
			EnvironmentVariables: map[string]string{"APP_${ASSEMBLY.VERSION}": "${INSTALL_PATH}"},
		},
		ExitHandlers: &project.ExitHandlers{
			Error: &project.ExitHandle{Message: "${ASSEMBLY.PACKAGE} failed", ExitCode: 1},
		},
	}

	got := c.SubstitutePolicy(in)

	if got.Message != "Running Example" {
		t.Errorf("Message = %q", got.Message)
	}
	if got.Execute.WorkingDirectory != "/opt/example/data" {
		t.Errorf("WorkingDirectory = %q", got.Execute.WorkingDirectory)
	}
	if diff := cmp.Diff([]string{"--version=1.2.3"}, got.Execute.Options); diff != "" {
		t.Errorf("Options mismatch (-want +got):\n%s", diff)
	}
	if got.Execute.EnvironmentVariables["APP_1.2.3"] != "/opt/example" {
		t.Errorf("EnvironmentVariables = %v", got.Execute.EnvironmentVariables)
	}
	if got.ExitHandlers.Error.Message != "com.example.app failed" || got.ExitHandlers.Success != nil {
		t.Errorf("ExitHandlers = %+v", got.ExitHandlers)
	}
	if in.Message != "Running ${ASSEMBLY.NAME}" || in.ExitHandlers.Error.Message != "${ASSEMBLY.PACKAGE} failed" {
		t.Error("SubstitutePolicy() must not modify its input")
	}
}

func TestExpander_Recursive(t *testing.T) {
	t.Parallel()

	c := NewCompiler(Groups{Assembly: sampleAssembly()})
	e := NewExpander(c, WithDefines(map[string]string{
		"OUT":  "${ROOT}/${ASSEMBLY.PACKAGE}",
		"ROOT": "/build/${ASSEMBLY.VERSION}",
	}))

	got, err := e.Expand("${OUT}.ncc")
	if err != nil {
		t.Fatalf("Expand() failed: %v", err)
	}
	if got != "/build/1.2.3/com.example.app.ncc" {
		t.Errorf("Expand() = %q", got)
	}

	got, err = e.Expand("keep ${MISSING}")
	if err != nil || got != "keep ${MISSING}" {
		t.Errorf("non-strict Expand() = %q, %v", got, err)
	}
}

func TestExpander_DepthLimit(t *testing.T) {
	t.Parallel()

	e := NewExpander(nil, WithDefines(map[string]string{
		"LOOP": "x${LOOP}",
		"SELF": "${SELF}",
		"B":    "${C}",
		"C":    "${B}",
	}), Strict())
	for _, in := range []string{"${LOOP}", "${SELF}", "keep ${SELF} here", "${B}"} {
		_, err := e.Expand(in)
		if !errors.Is(err, ErrMacroDepthExceeded) {
			t.Fatalf("Expand(%q) error = %v, want ErrMacroDepthExceeded", in, err)
		}
		var unresolvedErr *UnresolvedMacroError
		if errors.As(err, &unresolvedErr) {
			t.Errorf("Expand(%q) reported %v as unresolved", in, unresolvedErr.Names)
		}
	}
	if _, err := e.Expand("${SELF}"); !errors.Is(err, ErrMacroCycle) {
		t.Errorf("Expand(${SELF}) error = %v, want ErrMacroCycle", err)
	}
	if _, err := NewExpander(nil, WithDefines(map[string]string{"SELF": "${SELF}"})).Expand("${SELF}"); !errors.Is(err, ErrMacroCycle) {
		t.Errorf("non-strict Expand(${SELF}) error = %v, want ErrMacroCycle", err)
	}

	// A chain needing exactly MaxMacroDepth passes still resolves.
	defines := map[string]string{}
	for i := range MaxMacroDepth - 1 {
		defines["M"+strings.Repeat("I", i)] = "${M" + strings.Repeat("I", i+1) + "}"
	}
	defines["M"+strings.Repeat("I", MaxMacroDepth-1)] = "done"
	got, err := NewExpander(nil, WithDefines(defines)).Expand("${M}")
	if err != nil {
		t.Fatalf("Expand(chain) failed: %v", err)
	}
	if got != "done" {
		t.Errorf("Expand(chain) = %q, want done", got)
	}
}

func TestExpander_Strict(t *testing.T) {
	t.Parallel()

	e := NewExpander(NewCompiler(Groups{Assembly: sampleAssembly()}), Strict())
	_, err := e.Expand("${ASSEMBLY.NAME} ${NOPE} ${ALSO_NOPE} ${NOPE}")
	var unresolvedErr *UnresolvedMacroError
	if !errors.As(err, &unresolvedErr) {
		t.Fatalf("Expand() error = %v, want UnresolvedMacroError", err)
	}
	if diff := cmp.Diff([]string{"NOPE", "ALSO_NOPE"}, unresolvedErr.Names); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	if _, err := e.ExpandMap(map[string]string{"a": "${ASSEMBLY.VERSION}"}); err != nil {
		t.Errorf("ExpandMap() failed: %v", err)
	}
}

// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/internal/testutil"
	"github.com/nccbuild/ncc/pkg/project"
)

func testMetadata() *Metadata {
	return &Metadata{
		Compiler:        project.Compiler{Extension: "php", MinimumVersion: "1.0.0"},
		CompilerVersion: "2.0.0",
		Options:         map[string]string{"optimize": "true"},
		UpdateSource: &project.UpdateSource{
			Source:     "https://updates.example.com",
			Repository: &project.Repository{Name: "main", Type: "http", Host: "updates.example.com", SSL: true},
		},
		MainExecutionPolicy: "start",
		Constants:           map[string]string{"INSTALL_PATH": "${INSTALL_PATH}"},
	}
}

func testAssembly() project.Assembly {
	return project.Assembly{
		Name:        "Example",
		Package:     "com.example.app",
		Description: "example package",
		Company:     "Example Inc",
		Version:     "1.2.3",
		UUID:        "6f1e4f0a-1b2c-4d3e-8f90-0a1b2c3d4e5f",
	}
}

func testPolicy() project.ExecutionPolicy {
	return project.ExecutionPolicy{
		Name:    "start",
		Runner:  "php",
		Message: "starting",
		Execute: project.Execute{
			Target:               "main.php",
			Options:              []string{"-d", "display_errors=1"},
			EnvironmentVariables: map[string]string{"APP_ENV": "prod"},
			Timeout:              30,
		},
		ExitHandlers: &project.ExitHandlers{
			Success: &project.ExitHandle{Message: "done"},
			Error:   &project.ExitHandle{Message: "failed", EndProcess: true, ExitCode: 1},
		},
	}
}

// writePackage builds a complete package at path with the given flags.
func writePackage(t *testing.T, fs afero.Fs, path string, flags ...Flag) {
	t.Helper()

	w, err := Create(fs, path)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	defer func() { _ = w.Abort() }()

	for _, f := range flags {
		if err := w.AddFlag(f); err != nil {
			t.Fatalf("AddFlag(%s) failed: %v", f, err)
		}
	}
	if err := w.SetMetadata(testMetadata()); err != nil {
		t.Fatalf("SetMetadata() failed: %v", err)
	}
	if err := w.SetAssembly(testAssembly()); err != nil {
		t.Fatalf("SetAssembly() failed: %v", err)
	}
	if err := w.AddExecutionUnit(&ExecutionUnit{Policy: testPolicy(), Data: []byte("<?php echo 1;")}); err != nil {
		t.Fatalf("AddExecutionUnit() failed: %v", err)
	}
	for _, name := range []string{"main.php", "lib/util.php"} {
		c, err := NewComponent(name, []byte("<?php // "+name+"\n"), DataTypeEncodedText)
		if err != nil {
			t.Fatalf("NewComponent() failed: %v", err)
		}
		if err := w.AddComponent(c); err != nil {
			t.Fatalf("AddComponent() failed: %v", err)
		}
	}
	if err := w.AddResource(NewResource("assets/logo.bin", bytes.Repeat([]byte{0xAB}, 512))); err != nil {
		t.Fatalf("AddResource() failed: %v", err)
	}
	if err := w.AddDependency(project.Dependency{Name: "pkg.a", SourceType: project.SourceStatic, Version: "1.0.0"}); err != nil {
		t.Fatalf("AddDependency() failed: %v", err)
	}
	testutil.MustClose(t, w)
}

func openPackage(t *testing.T, fs afero.Fs, path string) *Reader {
	t.Helper()

	r, err := Open(fs, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	testutil.CloseOnCleanup(t, r)
	return r
}

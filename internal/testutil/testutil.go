// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// WriteFiles writes each name/content pair below root. Parent directories
// are created as needed.
func WriteFiles(t testing.TB, fs afero.Fs, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		MustWriteFile(t, fs, filepath.Join(root, name), []byte(content))
	}
}

// MustWriteFile writes data to path with mode 0644.
func MustWriteFile(t testing.TB, fs afero.Fs, path string, data []byte) {
	t.Helper()
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
}

// MustClose closes c and fails the test on error.
func MustClose(t testing.TB, c io.Closer) {
	t.Helper()
	if err := c.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
}

// CloseOnCleanup closes c when the test finishes, logging any error.
func CloseOnCleanup(t testing.TB, c io.Closer) {
	t.Helper()
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Logf("warning: close returned error: %v", err)
		}
	})
}

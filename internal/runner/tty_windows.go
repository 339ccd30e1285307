// SPDX-License-Identifier: MPL-2.0

//go:build windows

package runner

import (
	"io"
	"os/exec"
)

// runTTY falls back to plain pipes; Windows has no pseudo-terminal support.
func runTTY(cmd *exec.Cmd, stdin io.Reader, stdout io.Writer) error {
	cmd.Stdin, cmd.Stdout = stdin, stdout
	return cmd.Run()
}

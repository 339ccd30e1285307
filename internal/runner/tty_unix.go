// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package runner

import (
	"errors"
	"io"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// runTTY runs cmd on a pseudo-terminal, feeding stdin to it and copying its
// combined output to stdout.
func runTTY(cmd *exec.Cmd, stdin io.Reader, stdout io.Writer) error {
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if stdin != nil {
		go func() { _, _ = io.Copy(f, stdin) }()
	}
	// Linux reports EIO on the master once the child side closes.
	if _, err := io.Copy(stdout, f); err != nil && !errors.Is(err, syscall.EIO) {
		_ = cmd.Wait()
		return err
	}
	return cmd.Wait()
}

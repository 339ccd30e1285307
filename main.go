// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/nccbuild/ncc/cmd/ncc"

func main() {
	cmd.Execute()
}

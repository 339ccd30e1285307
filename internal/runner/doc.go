// SPDX-License-Identifier: MPL-2.0

// Package runner turns execution policies into execution units at build
// time and runs those units from an installed or opened package.
//
// Shell runners (bash, sh) check the script's syntax while compiling and
// run it in the embedded mvdan/sh interpreter, so they need no system
// shell. Interpreter runners (php, python, perl, lua, ...) store the target
// file and hand it to the interpreter found on PATH.
package runner

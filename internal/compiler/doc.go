// SPDX-License-Identifier: MPL-2.0

// Package compiler turns a project build configuration into a package file.
//
// A build runs strictly in section order: header, assembly, execution units,
// components, resources and dependencies. Progress is reported synchronously
// after every unit of work, and a progress callback that returns an error
// aborts the build without leaving a package at the output path.
package compiler

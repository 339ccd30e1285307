// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown guides
// that the CLI renders when a build, inspection or extraction fails.
package issue

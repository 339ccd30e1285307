// SPDX-License-Identifier: MPL-2.0

// Package testutil holds test helpers that fail the test on error instead of
// returning it: fixture trees on an afero filesystem and cleanup of opened
// packages.
package testutil

// SPDX-License-Identifier: MPL-2.0

// Package project holds the declarative description of an NCC project: its
// assembly identity, build configurations, execution policies, dependency
// declarations and installer hooks, plus a Manager that loads project files
// from disk and enumerates the components and resources of a build.
package project

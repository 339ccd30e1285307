// SPDX-License-Identifier: MPL-2.0

// Package constants substitutes well-known placeholders inside strings that
// end up in a package: assembly fields, build facts, installation paths,
// date and time components, and runtime facts.
//
// Placeholders are written ${NAME}. The legacy %NAME% spelling is accepted
// for the same names. Substitution is a single flat pass; the Expander adds
// bounded re-scanning for callers that need macros to expand into macros.
package constants

// SPDX-License-Identifier: MPL-2.0

// Package ncc reads and writes NCC package files.
//
// A package is a single binary file framed by marker bytes:
//
//	0xA0 "NCCPKG"                       start and magic
//	0xA1 <version> <flags>              package version and flag list
//	0xA2 <item> 0xE1                    header (package metadata)
//	0xA3 <item> 0xE1                    assembly
//	[0xA4 <item>* 0xE1]                 execution units
//	[0xA5 <item>* 0xE1]                 components
//	[0xA6 <item>* 0xE1]                 resources
//	[0xA7 <item>* 0xE1]                 dependencies
//	0xE0 0xE0                           terminate
//
// Every item is a length-prefixed codec bin value whose content is the
// codec encoding of one entity, compressed when a compression flag is set.
// Because items always open with a bin tag, the soft terminator is never
// ambiguous, and readers can step over sections they do not understand.
package ncc

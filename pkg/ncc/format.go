// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"errors"
	"fmt"
)

// Marker is a single structural byte of the package framing.
type Marker byte

// Framing bytes.
const (
	StartPackage         Marker = 0xA0
	MarkerPackageVersion Marker = 0xA1
	MarkerHeader         Marker = 0xA2
	MarkerAssembly       Marker = 0xA3
	MarkerExecutionUnits Marker = 0xA4
	MarkerComponents     Marker = 0xA5
	MarkerResources      Marker = 0xA6
	MarkerDependencies   Marker = 0xA7
	SoftTerminate        Marker = 0xE1
	TerminateByte        Marker = 0xE0

	// Markers in this range that a reader does not know are future
	// sections, skipped with a warning.
	firstFutureMarker Marker = 0xA8
	lastFutureMarker  Marker = 0xDF
)

// MagicBytes follows StartPackage at the beginning of every package.
const MagicBytes = "NCCPKG"

// PackageVersion is the framing version this package writes.
const PackageVersion = "2.0"

// Extension is the conventional file extension of packages.
const Extension = ".ncc"

// SupportedVersions lists the framing versions Open accepts.
var SupportedVersions = []string{PackageVersion}

// Terminate closes a package.
var Terminate = []byte{byte(TerminateByte), byte(TerminateByte)}

// String names the marker.
func (m Marker) String() string {
	switch m {
	case StartPackage:
		return "START_PACKAGE"
	case MarkerPackageVersion:
		return "PACKAGE_VERSION"
	case MarkerHeader:
		return "HEADER"
	case MarkerAssembly:
		return "ASSEMBLY"
	case MarkerExecutionUnits:
		return "EXECUTION_UNITS"
	case MarkerComponents:
		return "COMPONENTS"
	case MarkerResources:
		return "RESOURCES"
	case MarkerDependencies:
		return "DEPENDENCIES"
	case SoftTerminate:
		return "SOFT_TERMINATE"
	case TerminateByte:
		return "TERMINATE"
	default:
		return fmt.Sprintf("0x%02X", byte(m))
	}
}

// rank orders the known sections; zero means unknown.
func (m Marker) rank() int {
	switch m {
	case MarkerHeader:
		return 1
	case MarkerAssembly:
		return 2
	case MarkerExecutionUnits:
		return 3
	case MarkerComponents:
		return 4
	case MarkerResources:
		return 5
	case MarkerDependencies:
		return 6
	default:
		return 0
	}
}

func (m Marker) isFuture() bool {
	return m >= firstFutureMarker && m <= lastFutureMarker
}

// Flag is a package-wide option recorded in the version preamble.
type Flag string

// Package flags.
const (
	FlagCompression        Flag = "compression"
	FlagLowCompression     Flag = "low_compression"
	FlagMediumCompression  Flag = "medium_compression"
	FlagHighCompression    Flag = "high_compression"
	FlagStaticDependencies Flag = "static_dependencies"
)

// Compression is the level applied to section items.
type Compression uint8

// Compression levels.
const (
	CompressionNone Compression = iota
	CompressionLow
	CompressionMedium
	CompressionHigh
)

// String returns the level's configuration name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLow:
		return "low"
	case CompressionMedium:
		return "medium"
	case CompressionHigh:
		return "high"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// Flag returns the package flag that selects the level, or "" for none.
func (c Compression) Flag() Flag {
	switch c {
	case CompressionLow:
		return FlagLowCompression
	case CompressionMedium:
		return FlagMediumCompression
	case CompressionHigh:
		return FlagHighCompression
	default:
		return ""
	}
}

// ParseCompression maps a configuration value to a level. The empty string
// and "none" disable compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "low":
		return CompressionLow, nil
	case "medium":
		return CompressionMedium, nil
	case "high":
		return CompressionHigh, nil
	default:
		return CompressionNone, &UnsupportedCompressionError{Value: s}
	}
}

// compressionOf derives the level from a flag set. A bare compression flag
// means medium.
func compressionOf(flags []Flag) Compression {
	level := CompressionNone
	for _, f := range flags {
		switch f {
		case FlagLowCompression:
			return CompressionLow
		case FlagMediumCompression:
			return CompressionMedium
		case FlagHighCompression:
			return CompressionHigh
		case FlagCompression:
			level = CompressionMedium
		}
	}
	return level
}

var (
	// ErrNotSupported is wrapped by errors about options this build of the
	// format does not implement.
	ErrNotSupported = errors.New("not supported")

	// ErrCorruptPackage is wrapped by every structural read failure.
	ErrCorruptPackage = errors.New("corrupt package")

	// ErrTruncated is returned when the file ends inside the package.
	ErrTruncated = errors.New("truncated package")

	// ErrMagicNotFound is returned when the file holds no package.
	ErrMagicNotFound = errors.New("package magic not found")

	// ErrUnsupportedVersion is returned for framing versions Open does not know.
	ErrUnsupportedVersion = errors.New("unsupported package version")

	// ErrSectionOrder is returned when sections are written or found out of
	// order.
	ErrSectionOrder = errors.New("section out of order")

	// ErrFlagsLocked is returned when a flag is added after writing began.
	ErrFlagsLocked = errors.New("flags can only be added before the first section")

	// ErrConflictingCompression is returned when two compression levels are set.
	ErrConflictingCompression = errors.New("conflicting compression levels")

	// ErrWriterClosed is returned for any write after Close or Abort.
	ErrWriterClosed = errors.New("package writer is closed")

	// ErrIncompletePackage is returned by Close when HEADER or ASSEMBLY is
	// missing.
	ErrIncompletePackage = errors.New("package is missing a mandatory section")

	// ErrUnsafePath is returned when an entry would extract outside its target.
	ErrUnsafePath = errors.New("entry path escapes the target directory")

	// ErrChecksumMismatch is returned when stored and computed checksums differ.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

type (
	// FormatError describes a structural problem at a file offset.
	FormatError struct {
		Offset int64
		Reason string
		Err    error
	}

	// SectionOrderError reports a section used out of turn.
	SectionOrderError struct {
		Section Marker
		After   Marker
	}

	// UnsupportedCompressionError names an unknown compression level.
	UnsupportedCompressionError struct {
		Value string
	}
)

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", e.Err, e.Offset, e.Reason)
}

// Unwrap returns the specific sentinel, such as ErrTruncated.
func (e *FormatError) Unwrap() error { return e.Err }

// Is makes every structural failure match ErrCorruptPackage. An unsupported
// version is a well-formed package this reader is too old for.
func (e *FormatError) Is(target error) bool {
	return target == ErrCorruptPackage && !errors.Is(e.Err, ErrUnsupportedVersion)
}

func (e *SectionOrderError) Error() string {
	if e.After == 0 {
		return fmt.Sprintf("%s: %s cannot come first", ErrSectionOrder, e.Section)
	}
	return fmt.Sprintf("%s: %s cannot follow %s", ErrSectionOrder, e.Section, e.After)
}

// Unwrap returns ErrSectionOrder for errors.Is() compatibility.
func (e *SectionOrderError) Unwrap() error { return ErrSectionOrder }

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("compression level %q is %s (expected low, medium or high)", e.Value, ErrNotSupported)
}

// Unwrap returns ErrNotSupported for errors.Is() compatibility.
func (e *UnsupportedCompressionError) Unwrap() error { return ErrNotSupported }

func formatErr(offset int64, sentinel error, format string, args ...any) *FormatError {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...), Err: sentinel}
}

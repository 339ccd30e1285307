// SPDX-License-Identifier: MPL-2.0

package project

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidPackageName is returned when a PackageName does not follow the
	// reverse-domain naming grammar.
	ErrInvalidPackageName = errors.New("invalid package name")

	// ErrInvalidSourceType is returned for an unknown dependency source type.
	ErrInvalidSourceType = errors.New("invalid dependency source type")

	// packageNamePattern requires at least two lowercase dot-separated segments,
	// e.g. "com.example.app".
	packageNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z0-9_]+)+[0-9a-z_]$`)
)

// Dependency source types.
const (
	SourceNone   SourceType = "none"
	SourceStatic SourceType = "static"
	SourceRemote SourceType = "remote"
	SourceLocal  SourceType = "local"
)

type (
	// PackageName is the unique, reverse-domain identifier of a package.
	PackageName string

	// InvalidPackageNameError wraps ErrInvalidPackageName.
	InvalidPackageNameError struct {
		Value PackageName
	}

	// SourceType says where a dependency is obtained from.
	SourceType string

	// InvalidSourceTypeError wraps ErrInvalidSourceType.
	InvalidSourceTypeError struct {
		Value SourceType
	}
)

// String returns the string representation of the PackageName.
func (n PackageName) String() string { return string(n) }

// Validate returns nil when n matches the package naming grammar.
func (n PackageName) Validate() error {
	if !packageNamePattern.MatchString(string(n)) {
		return &InvalidPackageNameError{Value: n}
	}
	return nil
}

func (e *InvalidPackageNameError) Error() string {
	return fmt.Sprintf("invalid package name %q: expected lowercase reverse-domain form such as com.example.app", string(e.Value))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidPackageNameError) Unwrap() error { return ErrInvalidPackageName }

// String returns the string representation of the SourceType.
func (s SourceType) String() string { return string(s) }

// Validate accepts the known source types. The empty value means none.
func (s SourceType) Validate() error {
	switch s {
	case "", SourceNone, SourceStatic, SourceRemote, SourceLocal:
		return nil
	default:
		return &InvalidSourceTypeError{Value: s}
	}
}

func (e *InvalidSourceTypeError) Error() string {
	return fmt.Sprintf("invalid source type %q (expected none, static, remote or local)", string(e.Value))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidSourceTypeError) Unwrap() error { return ErrInvalidSourceType }

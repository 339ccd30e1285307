// SPDX-License-Identifier: MPL-2.0

// Package semver parses and compares the semantic versions used by package
// assemblies and dependency declarations.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	modsemver "golang.org/x/mod/semver"
)

// Latest is the dependency version that accepts whatever is newest.
const Latest = "latest"

var (
	// ErrInvalidVersion is returned for strings that are not MAJOR.MINOR.PATCH
	// with optional pre-release and build suffixes.
	ErrInvalidVersion = errors.New("invalid semantic version")

	// ErrInvalidConstraint is returned for unparsable constraint strings.
	ErrInvalidConstraint = errors.New("invalid version constraint")

	// ErrNoMatch is returned by Resolve when no candidate satisfies the constraint.
	ErrNoMatch = errors.New("no version matches constraint")

	versionPattern    = regexp.MustCompile(`^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-([0-9A-Za-z\-.]+))?(?:\+([0-9A-Za-z\-.]+))?$`)
	constraintPattern = regexp.MustCompile(`^(\^|~|>=|<=|>|<|=)?\s*(\S+)$`)
)

type (
	// Version is a parsed semantic version. Build metadata is kept for display
	// but ignored by comparisons.
	Version struct {
		Major      int
		Minor      int
		Patch      int
		Prerelease string
		Build      string
	}

	// Constraint restricts acceptable versions: =, ^, ~, >, >=, <, <= or the
	// special value "latest".
	Constraint struct {
		Op      string
		Version Version
	}
)

// Parse parses s into a Version.
func Parse(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	var v Version
	// The pattern guarantees the numeric groups; Atoi only fails on overflow.
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}
	if v.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}
	v.Prerelease, v.Build = m[4], m[5]
	return v, nil
}

// IsValid reports whether s parses as a Version.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String renders the version without a leading "v".
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare returns -1, 0 or 1 following semver precedence: a release sorts
// after its pre-releases and build metadata is ignored.
func (v Version) Compare(o Version) int {
	return modsemver.Compare(v.canonical(), o.canonical())
}

func (v Version) canonical() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// ParseConstraint parses a constraint string. An empty string and "latest"
// both yield the latest constraint.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, Latest) {
		return Constraint{Op: Latest}, nil
	}
	m := constraintPattern.FindStringSubmatch(s)
	if m == nil {
		return Constraint{}, fmt.Errorf("%w: %q", ErrInvalidConstraint, s)
	}
	v, err := Parse(m[2])
	if err != nil {
		return Constraint{}, fmt.Errorf("%w: %q: %w", ErrInvalidConstraint, s, err)
	}
	op := m[1]
	if op == "" {
		op = "="
	}
	return Constraint{Op: op, Version: v}, nil
}

// IsLatest reports whether the constraint accepts the newest version.
func (c Constraint) IsLatest() bool { return c.Op == Latest }

// String renders the constraint as it would be written.
func (c Constraint) String() string {
	if c.IsLatest() {
		return Latest
	}
	if c.Op == "=" {
		return c.Version.String()
	}
	return c.Op + c.Version.String()
}

// Matches reports whether v satisfies the constraint.
func (c Constraint) Matches(v Version) bool {
	d := v.Compare(c.Version)
	switch c.Op {
	case Latest:
		return true
	case "=":
		return d == 0
	case ">":
		return d > 0
	case ">=":
		return d >= 0
	case "<":
		return d < 0
	case "<=":
		return d <= 0
	case "~":
		return d >= 0 && v.Major == c.Version.Major && v.Minor == c.Version.Minor
	case "^":
		if d < 0 {
			return false
		}
		switch {
		case c.Version.Major != 0:
			return v.Major == c.Version.Major
		case c.Version.Minor != 0:
			return v.Major == 0 && v.Minor == c.Version.Minor
		default:
			return v.Major == 0 && v.Minor == 0 && v.Patch == c.Version.Patch
		}
	default:
		return false
	}
}

// Resolve picks the highest of the candidate versions that satisfies
// constraint. Candidates that fail to parse are ignored, and pre-releases are
// only considered when the constraint itself names one.
func Resolve(constraint string, candidates []string) (string, error) {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return "", err
	}
	type candidate struct {
		raw string
		v   Version
	}
	var matching []candidate
	for _, raw := range candidates {
		v, err := Parse(raw)
		if err != nil || !c.Matches(v) {
			continue
		}
		if v.Prerelease != "" && c.Version.Prerelease == "" {
			continue
		}
		matching = append(matching, candidate{raw, v})
	}
	if len(matching) == 0 {
		return "", fmt.Errorf("%w %q (available: %s)", ErrNoMatch, constraint, strings.Join(candidates, ", "))
	}
	best := slices.MaxFunc(matching, func(a, b candidate) int { return a.v.Compare(b.v) })
	return best.raw, nil
}

// SPDX-License-Identifier: MPL-2.0

package constants

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// MaxMacroDepth is the number of re-scans after which expansion gives up.
const MaxMacroDepth = 100

var (
	// ErrMacroDepthExceeded is returned when expansion still finds new
	// placeholders after MaxMacroDepth passes.
	ErrMacroDepthExceeded = errors.New("macro expansion exceeded maximum depth")

	// ErrMacroCycle is returned when a macro expands to text containing
	// itself. It wraps ErrMacroDepthExceeded, since such a macro never
	// settles.
	ErrMacroCycle = fmt.Errorf("%w: macro refers to itself", ErrMacroDepthExceeded)

	// ErrUnresolvedMacro is returned in strict mode when placeholders remain.
	ErrUnresolvedMacro = errors.New("unresolved macro")

	macroPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.]*)\}`)
)

type (
	// UnresolvedMacroError lists the placeholders left after expansion.
	UnresolvedMacroError struct {
		Names []string
	}

	// Expander resolves ${NAME} macros, re-scanning the result until nothing
	// changes. User definitions take precedence over the built-in groups.
	Expander struct {
		compiler *Compiler
		defines  map[string]string
		strict   bool
		maxDepth int
	}

	// ExpanderOption configures an Expander.
	ExpanderOption func(*Expander)
)

func (e *UnresolvedMacroError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolvedMacro, strings.Join(e.Names, ", "))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *UnresolvedMacroError) Unwrap() error { return ErrUnresolvedMacro }

// Strict makes Expand fail when any placeholder cannot be resolved.
func Strict() ExpanderOption {
	return func(e *Expander) { e.strict = true }
}

// WithDefines adds user-defined macros.
func WithDefines(defines map[string]string) ExpanderOption {
	return func(e *Expander) {
		for k, v := range defines {
			e.defines[k] = v
		}
	}
}

// NewExpander creates an Expander over the given compiler's groups.
func NewExpander(c *Compiler, opts ...ExpanderOption) *Expander {
	if c == nil {
		c = NewCompiler(Groups{})
	}
	e := &Expander{compiler: c, defines: map[string]string{}, maxDepth: MaxMacroDepth}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand resolves macros in s. Each pass replaces every resolvable macro;
// passes repeat while they change the string.
func (e *Expander) Expand(s string) (string, error) {
	for depth := 0; ; depth++ {
		var cycle string
		next := macroPattern.ReplaceAllStringFunc(s, func(m string) string {
			v, ok := e.resolve(m[2 : len(m)-1])
			if !ok {
				return m
			}
			if cycle == "" && strings.Contains(v, m) {
				cycle = m[2 : len(m)-1]
			}
			return v
		})
		if cycle != "" {
			return "", fmt.Errorf("%w: %s", ErrMacroCycle, cycle)
		}
		if next == s {
			break
		}
		if depth >= e.maxDepth {
			return "", fmt.Errorf("%w (%d)", ErrMacroDepthExceeded, e.maxDepth)
		}
		s = next
	}
	if e.strict {
		if names := unresolved(s); len(names) > 0 {
			return "", &UnresolvedMacroError{Names: names}
		}
	}
	return s, nil
}

// ExpandMap expands every value of m into a new map.
func (e *Expander) ExpandMap(m map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		expanded, err := e.Expand(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}

func (e *Expander) resolve(name string) (string, bool) {
	if v, ok := e.defines[name]; ok {
		return v, true
	}
	return e.compiler.Lookup(name)
}

func unresolved(s string) []string {
	var names []string
	for _, m := range macroPattern.FindAllStringSubmatch(s, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}
	return names
}

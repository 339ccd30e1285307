// SPDX-License-Identifier: MPL-2.0

package constants

import (
	"maps"
	"slices"
	"strings"

	"github.com/nccbuild/ncc/pkg/project"
)

// Compiler substitutes a fixed set of placeholder groups. It is immutable
// and safe for concurrent use.
type Compiler struct {
	values   map[string]string
	replacer *strings.Replacer
}

// NewCompiler prepares substitution for the supplied groups.
func NewCompiler(groups Groups) *Compiler {
	values := groups.values()
	names := slices.Sorted(maps.Keys(values))
	pairs := make([]string, 0, 4*len(names))
	for _, name := range names {
		pairs = append(pairs, "${"+name+"}", values[name], "%"+name+"%", values[name])
	}
	return &Compiler{values: values, replacer: strings.NewReplacer(pairs...)}
}

// Substitute replaces every known placeholder in s in a single pass.
// Replacement text is never re-scanned.
func Substitute(s string, groups Groups) string {
	return NewCompiler(groups).Substitute(s)
}

// Substitute replaces every known placeholder in s in a single pass.
func (c *Compiler) Substitute(s string) string {
	if !strings.ContainsAny(s, "$%") {
		return s
	}
	return c.replacer.Replace(s)
}

// Lookup returns the replacement for a placeholder name.
func (c *Compiler) Lookup(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

// SubstituteSlice substitutes each element into a new slice.
func (c *Compiler) SubstituteSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = c.Substitute(s)
	}
	return out
}

// SubstituteMap substitutes keys and values into a new map.
func (c *Compiler) SubstituteMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[c.Substitute(k)] = c.Substitute(v)
	}
	return out
}

// SubstitutePolicy returns a copy of p with every string field substituted:
// the message, the execution target, working directory, options and
// environment, and each exit handler's message and run target.
func (c *Compiler) SubstitutePolicy(p project.ExecutionPolicy) project.ExecutionPolicy {
	out := p
	out.Message = c.Substitute(p.Message)
	out.Execute.Target = c.Substitute(p.Execute.Target)
	out.Execute.WorkingDirectory = c.Substitute(p.Execute.WorkingDirectory)
	out.Execute.Options = c.SubstituteSlice(p.Execute.Options)
	out.Execute.EnvironmentVariables = c.SubstituteMap(p.Execute.EnvironmentVariables)
	if p.ExitHandlers != nil {
		out.ExitHandlers = &project.ExitHandlers{
			Success: c.substituteHandle(p.ExitHandlers.Success),
			Warning: c.substituteHandle(p.ExitHandlers.Warning),
			Error:   c.substituteHandle(p.ExitHandlers.Error),
		}
	}
	return out
}

func (c *Compiler) substituteHandle(h *project.ExitHandle) *project.ExitHandle {
	if h == nil {
		return nil
	}
	out := *h
	out.Message = c.Substitute(h.Message)
	out.Run = c.Substitute(h.Run)
	return &out
}

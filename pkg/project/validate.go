// SPDX-License-Identifier: MPL-2.0

package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nccbuild/ncc/pkg/semver"
)

const (
	maxNameLength        = 126
	maxDescriptionLength = 512
)

var (
	// ErrInvalidAssembly is wrapped by every assembly validation failure.
	ErrInvalidAssembly = errors.New("invalid assembly")

	// ErrInvalidDependency is wrapped by every dependency validation failure.
	ErrInvalidDependency = errors.New("invalid dependency")

	// ErrInvalidExecutionPolicy is wrapped by every execution policy failure.
	ErrInvalidExecutionPolicy = errors.New("invalid execution policy")

	// ErrBuildConfigurationNotFound is returned when a named build
	// configuration does not exist.
	ErrBuildConfigurationNotFound = errors.New("build configuration not found")
)

// BuildConfigurationNotFoundError names the missing configuration.
type BuildConfigurationNotFoundError struct {
	Name      string
	Available []string
}

func (e *BuildConfigurationNotFoundError) Error() string {
	return fmt.Sprintf("build configuration %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *BuildConfigurationNotFoundError) Unwrap() error { return ErrBuildConfigurationNotFound }

// NewAssembly returns an assembly with a fresh v4 UUID and version 1.0.0.
func NewAssembly(name string, pkg PackageName) Assembly {
	return Assembly{
		Name:    name,
		Package: pkg,
		Version: "1.0.0",
		UUID:    uuid.NewString(),
	}
}

// Validate checks every field of the assembly and reports all failures.
func (a Assembly) Validate() error {
	var errs []error
	switch {
	case strings.TrimSpace(a.Name) == "":
		errs = append(errs, errors.New("name is required"))
	case len(a.Name) > maxNameLength:
		errs = append(errs, fmt.Errorf("name exceeds %d characters", maxNameLength))
	}
	if err := a.Package.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(a.Description) > maxDescriptionLength {
		errs = append(errs, fmt.Errorf("description exceeds %d characters", maxDescriptionLength))
	}
	if _, err := semver.Parse(a.Version); err != nil {
		errs = append(errs, err)
	}
	if id, err := uuid.Parse(a.UUID); err != nil {
		errs = append(errs, fmt.Errorf("uuid %q: %w", a.UUID, err))
	} else if id.Version() != 4 {
		errs = append(errs, fmt.Errorf("uuid %q is version %d, expected 4", a.UUID, id.Version()))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidAssembly, errors.Join(errs...))
}

// Validate checks the dependency's name, source type and version.
func (d Dependency) Validate() error {
	var errs []error
	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if err := d.SourceType.Validate(); err != nil {
		errs = append(errs, err)
	}
	if (d.SourceType == SourceRemote || d.SourceType == SourceLocal) && d.Source == "" {
		errs = append(errs, fmt.Errorf("source is required for %s dependencies", d.SourceType))
	}
	if _, err := semver.ParseConstraint(d.Version); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalidDependency, d.Name, errors.Join(errs...))
}

// VersionOrLatest returns the declared version, or "latest" when none is set.
func (d Dependency) VersionOrLatest() string {
	if strings.TrimSpace(d.Version) == "" {
		return semver.Latest
	}
	return d.Version
}

// Validate checks that the policy can be handed to a runner.
func (p ExecutionPolicy) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if strings.TrimSpace(p.Runner) == "" {
		errs = append(errs, errors.New("runner is required"))
	}
	if strings.TrimSpace(p.Execute.Target) == "" {
		errs = append(errs, errors.New("execute.target is required"))
	}
	if p.Execute.Timeout < 0 {
		errs = append(errs, errors.New("execute.timeout must not be negative"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w %q: %w", ErrInvalidExecutionPolicy, p.Name, errors.Join(errs...))
}

// Validate checks the whole project description.
func (c *Configuration) Validate() error {
	var errs []error
	if err := c.Assembly.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Build.Configurations) == 0 {
		errs = append(errs, errors.New("build: at least one configuration is required"))
	}
	seen := make(map[string]bool, len(c.Build.Configurations))
	for _, bc := range c.Build.Configurations {
		if bc.Name == "" {
			errs = append(errs, errors.New("build: configuration without a name"))
		} else if seen[bc.Name] {
			errs = append(errs, fmt.Errorf("build: duplicate configuration %q", bc.Name))
		}
		seen[bc.Name] = true
		for _, dep := range bc.Dependencies {
			if err := dep.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if def := c.Build.DefaultConfiguration; def != "" && !seen[def] {
		errs = append(errs, fmt.Errorf("build: default configuration %q is not defined", def))
	}
	for _, dep := range c.Build.Dependencies {
		if err := dep.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	policies := make(map[string]bool, len(c.ExecutionPolicies))
	for _, p := range c.ExecutionPolicies {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
		policies[p.Name] = true
	}
	refs := append([]string{}, c.Installer.Policies()...)
	refs = append(refs, c.Build.PreBuild...)
	refs = append(refs, c.Build.PostBuild...)
	if c.Build.Main != "" {
		refs = append(refs, c.Build.Main)
	}
	for _, name := range refs {
		if !policies[name] {
			errs = append(errs, fmt.Errorf("execution policy %q is referenced but not defined", name))
		}
	}
	return errors.Join(errs...)
}

// BuildConfiguration returns the named configuration. An empty name or
// "default" selects the project's default configuration.
func (c *Configuration) BuildConfiguration(name string) (*BuildConfiguration, error) {
	if name == "" || name == "default" {
		name = c.Build.DefaultConfiguration
	}
	names := make([]string, 0, len(c.Build.Configurations))
	for i := range c.Build.Configurations {
		if c.Build.Configurations[i].Name == name {
			return &c.Build.Configurations[i], nil
		}
		names = append(names, c.Build.Configurations[i].Name)
	}
	return nil, &BuildConfigurationNotFoundError{Name: name, Available: names}
}

// ExecutionPolicy returns the named policy.
func (c *Configuration) ExecutionPolicy(name string) (*ExecutionPolicy, bool) {
	for i := range c.ExecutionPolicies {
		if c.ExecutionPolicies[i].Name == name {
			return &c.ExecutionPolicies[i], true
		}
	}
	return nil, false
}

// SPDX-License-Identifier: MPL-2.0

package project

type (
	// Assembly is the identity of a package.
	Assembly struct {
		Name        string      `json:"name" yaml:"name" toml:"name"`
		Package     PackageName `json:"package" yaml:"package" toml:"package"`
		Description string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
		Company     string      `json:"company,omitempty" yaml:"company,omitempty" toml:"company,omitempty"`
		Product     string      `json:"product,omitempty" yaml:"product,omitempty" toml:"product,omitempty"`
		Copyright   string      `json:"copyright,omitempty" yaml:"copyright,omitempty" toml:"copyright,omitempty"`
		Trademark   string      `json:"trademark,omitempty" yaml:"trademark,omitempty" toml:"trademark,omitempty"`
		Version     string      `json:"version" yaml:"version" toml:"version"`
		UUID        string      `json:"uuid" yaml:"uuid" toml:"uuid"`
	}

	// Compiler names the compiler extension a project targets and the range of
	// its versions the project was written for.
	Compiler struct {
		Extension      string `json:"extension" yaml:"extension" toml:"extension"`
		MinimumVersion string `json:"minimum_version,omitempty" yaml:"minimum_version,omitempty" toml:"minimum_version,omitempty"`
		MaximumVersion string `json:"maximum_version,omitempty" yaml:"maximum_version,omitempty" toml:"maximum_version,omitempty"`
	}

	// Repository is a remote that serves package updates.
	Repository struct {
		Name string `json:"name" yaml:"name" toml:"name"`
		Type string `json:"type" yaml:"type" toml:"type"`
		Host string `json:"host" yaml:"host" toml:"host"`
		SSL  bool   `json:"ssl" yaml:"ssl" toml:"ssl"`
	}

	// UpdateSource tells an installed package where newer versions live.
	UpdateSource struct {
		Source     string      `json:"source" yaml:"source" toml:"source"`
		Repository *Repository `json:"repository,omitempty" yaml:"repository,omitempty" toml:"repository,omitempty"`
	}

	// Installer lists the execution policies run around install, uninstall
	// and update.
	Installer struct {
		PreInstall    []string `json:"pre_install,omitempty" yaml:"pre_install,omitempty" toml:"pre_install,omitempty"`
		PostInstall   []string `json:"post_install,omitempty" yaml:"post_install,omitempty" toml:"post_install,omitempty"`
		PreUninstall  []string `json:"pre_uninstall,omitempty" yaml:"pre_uninstall,omitempty" toml:"pre_uninstall,omitempty"`
		PostUninstall []string `json:"post_uninstall,omitempty" yaml:"post_uninstall,omitempty" toml:"post_uninstall,omitempty"`
		PreUpdate     []string `json:"pre_update,omitempty" yaml:"pre_update,omitempty" toml:"pre_update,omitempty"`
		PostUpdate    []string `json:"post_update,omitempty" yaml:"post_update,omitempty" toml:"post_update,omitempty"`
	}

	// Dependency declares another package this one needs.
	Dependency struct {
		Name       string     `json:"name" yaml:"name" toml:"name"`
		SourceType SourceType `json:"source_type,omitempty" yaml:"source_type,omitempty" toml:"source_type,omitempty"`
		Source     string     `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`
		Version    string     `json:"version,omitempty" yaml:"version,omitempty" toml:"version,omitempty"`
	}

	// ExitHandle reacts to one class of exit code.
	ExitHandle struct {
		Message    string `json:"message,omitempty" yaml:"message,omitempty" toml:"message,omitempty"`
		EndProcess bool   `json:"end_process,omitempty" yaml:"end_process,omitempty" toml:"end_process,omitempty"`
		Run        string `json:"run,omitempty" yaml:"run,omitempty" toml:"run,omitempty"`
		ExitCode   int    `json:"exit_code,omitempty" yaml:"exit_code,omitempty" toml:"exit_code,omitempty"`
	}

	// ExitHandlers groups the success, warning and error reactions.
	ExitHandlers struct {
		Success *ExitHandle `json:"success,omitempty" yaml:"success,omitempty" toml:"success,omitempty"`
		Warning *ExitHandle `json:"warning,omitempty" yaml:"warning,omitempty" toml:"warning,omitempty"`
		Error   *ExitHandle `json:"error,omitempty" yaml:"error,omitempty" toml:"error,omitempty"`
	}

	// Execute describes what to launch for an execution policy.
	Execute struct {
		Target               string            `json:"target" yaml:"target" toml:"target"`
		WorkingDirectory     string            `json:"working_directory,omitempty" yaml:"working_directory,omitempty" toml:"working_directory,omitempty"`
		Options              []string          `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
		EnvironmentVariables map[string]string `json:"environment_variables,omitempty" yaml:"environment_variables,omitempty" toml:"environment_variables,omitempty"`
		Silent               bool              `json:"silent,omitempty" yaml:"silent,omitempty" toml:"silent,omitempty"`
		Tty                  bool              `json:"tty,omitempty" yaml:"tty,omitempty" toml:"tty,omitempty"`
		Timeout              int               `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	}

	// ExecutionPolicy is a named, declarative description of a runnable action.
	ExecutionPolicy struct {
		Name         string        `json:"name" yaml:"name" toml:"name"`
		Runner       string        `json:"runner" yaml:"runner" toml:"runner"`
		Message      string        `json:"message,omitempty" yaml:"message,omitempty" toml:"message,omitempty"`
		Execute      Execute       `json:"execute" yaml:"execute" toml:"execute"`
		ExitHandlers *ExitHandlers `json:"exit_handlers,omitempty" yaml:"exit_handlers,omitempty" toml:"exit_handlers,omitempty"`
	}

	// BuildConfiguration is a named set of build options.
	BuildConfiguration struct {
		Name            string            `json:"name" yaml:"name" toml:"name"`
		OutputPath      string            `json:"output_path,omitempty" yaml:"output_path,omitempty" toml:"output_path,omitempty"`
		OutputName      string            `json:"output_name,omitempty" yaml:"output_name,omitempty" toml:"output_name,omitempty"`
		Options         map[string]string `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
		DefineConstants map[string]string `json:"define_constants,omitempty" yaml:"define_constants,omitempty" toml:"define_constants,omitempty"`
		ExcludeFiles    []string          `json:"exclude_files,omitempty" yaml:"exclude_files,omitempty" toml:"exclude_files,omitempty"`
		Dependencies    []Dependency      `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	}

	// Build holds the project-wide build settings and its configurations.
	Build struct {
		SourcePath           string               `json:"source_path" yaml:"source_path" toml:"source_path"`
		DefaultConfiguration string               `json:"default_configuration" yaml:"default_configuration" toml:"default_configuration"`
		Main                 string               `json:"main,omitempty" yaml:"main,omitempty" toml:"main,omitempty"`
		ExcludeFiles         []string             `json:"exclude_files,omitempty" yaml:"exclude_files,omitempty" toml:"exclude_files,omitempty"`
		Options              map[string]string    `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
		DefineConstants      map[string]string    `json:"define_constants,omitempty" yaml:"define_constants,omitempty" toml:"define_constants,omitempty"`
		PreBuild             []string             `json:"pre_build,omitempty" yaml:"pre_build,omitempty" toml:"pre_build,omitempty"`
		PostBuild            []string             `json:"post_build,omitempty" yaml:"post_build,omitempty" toml:"post_build,omitempty"`
		Dependencies         []Dependency         `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
		Configurations       []BuildConfiguration `json:"configurations" yaml:"configurations" toml:"configurations"`
	}

	// Project holds compiler selection and project-level options.
	Project struct {
		Compiler     Compiler          `json:"compiler" yaml:"compiler" toml:"compiler"`
		Options      map[string]string `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
		UpdateSource *UpdateSource     `json:"update_source,omitempty" yaml:"update_source,omitempty" toml:"update_source,omitempty"`
	}

	// Configuration is the full contents of a project file.
	Configuration struct {
		Project           Project           `json:"project" yaml:"project" toml:"project"`
		Assembly          Assembly          `json:"assembly" yaml:"assembly" toml:"assembly"`
		Build             Build             `json:"build" yaml:"build" toml:"build"`
		ExecutionPolicies []ExecutionPolicy `json:"execution_policies,omitempty" yaml:"execution_policies,omitempty" toml:"execution_policies,omitempty"`
		Installer         *Installer        `json:"installer,omitempty" yaml:"installer,omitempty" toml:"installer,omitempty"`
	}
)

// Policies returns every execution policy name the installer refers to, in
// hook order.
func (i *Installer) Policies() []string {
	if i == nil {
		return nil
	}
	var out []string
	for _, hook := range [][]string{i.PreInstall, i.PostInstall, i.PreUninstall, i.PostUninstall, i.PreUpdate, i.PostUpdate} {
		out = append(out, hook...)
	}
	return out
}

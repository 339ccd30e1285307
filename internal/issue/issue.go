// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a catalog guide.
type Id int

// Catalog guides.
const (
	ProjectNotFoundId Id = iota + 1
	ProjectInvalidId
	BuildConfigurationNotFoundId
	RunnerNotAvailableId
	BuildHookFailedId
	PackageCorruptId
	PackageVersionUnsupportedId
	CompressionUnsupportedId
	UnsafeExtractPathId
)

type (
	// MarkdownMsg is the Markdown body of a guide.
	MarkdownMsg string

	// HttpLink is a documentation link shown under a guide.
	HttpLink string

	// Issue is one guide of the catalog.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

// Id returns the guide's identifier.
func (i *Issue) Id() Id { return i.id }

// MarkdownMsg returns the raw Markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns the documentation links.
func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// Render renders the guide for a terminal. stylePath is a glamour style
// name such as "dark", "light" or "notty".
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var render = glamour.Render

var issues = map[Id]*Issue{
	ProjectNotFoundId: {
		id: ProjectNotFoundId,
		mdMsg: `
# No project file found

ncc looks for ` + "`project.yml`, `project.yaml`, `project.toml` or `project.cue`" + ` in the project directory.

## Things you can try
- Run the command from the project root, or pass it explicitly:
~~~
$ ncc build --project /path/to/project
~~~`,
	},
	ProjectInvalidId: {
		id: ProjectInvalidId,
		mdMsg: `
# The project file is invalid

The project file was found but failed to parse or validate.

## Common causes
- ` + "`assembly.package`" + ` is not a reverse-DNS name such as ` + "`com.example.app`" + `
- ` + "`assembly.version`" + ` is not MAJOR.MINOR.PATCH
- An installer hook or ` + "`build.main`" + ` names an execution policy that does not exist`,
	},
	BuildConfigurationNotFoundId: {
		id: BuildConfigurationNotFoundId,
		mdMsg: `
# Build configuration not found

The requested build configuration is not declared under ` + "`build.configurations`" + `.

## Things you can try
- Omit ` + "`--configuration`" + ` to use ` + "`build.default_configuration`" + `
- List the declared configurations:
~~~
$ ncc config show --project .
~~~`,
	},
	RunnerNotAvailableId: {
		id: RunnerNotAvailableId,
		mdMsg: `
# Runner not available

An execution policy names a runner that ncc does not know, or whose
interpreter is not installed.

## Built-in runners
- **bash**, **sh**: run in the embedded shell interpreter
- **php**, **python**, **python3**, **python2**, **perl**, **lua**: need the interpreter on ` + "`PATH`",
	},
	BuildHookFailedId: {
		id: BuildHookFailedId,
		mdMsg: `
# A build hook failed

A ` + "`pre_build` or `post_build`" + ` execution policy exited with an error.
When a pre-build hook fails no package is written.`,
	},
	PackageCorruptId: {
		id: PackageCorruptId,
		mdMsg: `
# The package is corrupt

The file is not a well-formed package: it may be truncated, or it may not
be a package at all.

## Things you can try
- Rebuild the package
- Compare checksums with the source:
~~~
$ ncc inspect --checksum app.ncc
~~~`,
	},
	PackageVersionUnsupportedId: {
		id: PackageVersionUnsupportedId,
		mdMsg: `
# Package version not supported

The package was written by a newer ncc. Upgrade ncc to read it.`,
	},
	CompressionUnsupportedId: {
		id: CompressionUnsupportedId,
		mdMsg: `
# Compression level not supported

The supported levels are ` + "`none`, `low`, `medium` and `high`" + `.`,
	},
	UnsafeExtractPathId: {
		id: UnsafeExtractPathId,
		mdMsg: `
# Unsafe entry path

The package holds an entry whose path would land outside the extraction
directory. Nothing outside the target directory was written.`,
	},
}

// Values returns every guide ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].id < out[b].id })
	return out
}

// Get returns the guide for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}

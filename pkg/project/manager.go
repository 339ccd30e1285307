// SPDX-License-Identifier: MPL-2.0

package project

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/nccbuild/ncc/internal/cueutil"
)

// ErrProjectNotFound is returned when a directory holds no project file.
var ErrProjectNotFound = errors.New("project file not found")

// FileNames are the project file names Load looks for, in order.
var FileNames = []string{"project.yml", "project.yaml", "project.toml", "project.cue"}

//go:embed project_schema.cue
var projectSchema []byte

// componentExtensions maps a compiler extension to the file extensions it
// treats as source components. Everything else is a resource.
var componentExtensions = map[string][]string{
	"php":    {".php"},
	"shell":  {".sh", ".bash"},
	"bash":   {".sh", ".bash"},
	"python": {".py"},
	"perl":   {".pl", ".pm"},
	"lua":    {".lua"},
}

var defaultComponentExtensions = []string{".sh", ".bash", ".php", ".py", ".pl", ".pm", ".lua"}

type (
	// ProjectManager is what a build needs from a project: its validated
	// description and the ordered files of a build configuration. Component
	// and resource paths are slash-separated and relative to SourcePath.
	ProjectManager interface {
		Configuration() *Configuration
		ProjectPath() string
		SourcePath() string
		Components(buildConfiguration string) ([]string, error)
		Resources(buildConfiguration string) ([]string, error)
	}

	// Manager is the file-backed ProjectManager.
	Manager struct {
		fs     afero.Fs
		dir    string
		file   string
		config *Configuration
	}
)

var _ ProjectManager = (*Manager)(nil)

// Load finds the project file in dir, parses and validates it.
func Load(fsys afero.Fs, dir string) (*Manager, error) {
	for _, name := range FileNames {
		p := filepath.Join(dir, name)
		if ok, err := afero.Exists(fsys, p); err != nil {
			return nil, err
		} else if ok {
			return LoadFile(fsys, p)
		}
	}
	return nil, fmt.Errorf("%w in %s (looked for %s)", ErrProjectNotFound, dir, strings.Join(FileNames, ", "))
}

// LoadFile parses and validates the project file at p.
func LoadFile(fsys afero.Fs, p string) (*Manager, error) {
	data, err := afero.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	cfg, err := Decode(p, data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("project %s: %w", p, err)
	}
	return &Manager{fs: fsys, dir: filepath.Dir(p), file: p, config: cfg}, nil
}

// Decode parses project file contents. The format follows the extension of
// name: .toml is TOML, .cue is CUE checked against the project schema, and
// anything else YAML.
func Decode(name string, data []byte) (*Configuration, error) {
	var cfg Configuration
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".cue":
		var res *cueutil.ParseResult[Configuration]
		res, err = cueutil.ParseAndDecode[Configuration](projectSchema, data, "#Project", cueutil.WithFilename(filepath.Base(name)))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		cfg = *res.Value
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if cfg.Build.SourcePath == "" {
		cfg.Build.SourcePath = "."
	}
	return &cfg, nil
}

// Configuration returns the parsed project description.
func (m *Manager) Configuration() *Configuration { return m.config }

// ProjectPath returns the directory containing the project file.
func (m *Manager) ProjectPath() string { return m.dir }

// ProjectFile returns the path of the project file.
func (m *Manager) ProjectFile() string { return m.file }

// SourcePath returns the directory holding the project's sources.
func (m *Manager) SourcePath() string {
	return filepath.Join(m.dir, filepath.FromSlash(m.config.Build.SourcePath))
}

// Components returns the source files of a build configuration in
// lexicographic order.
func (m *Manager) Components(buildConfiguration string) ([]string, error) {
	components, _, err := m.scan(buildConfiguration)
	return components, err
}

// Resources returns the non-source files of a build configuration in
// lexicographic order.
func (m *Manager) Resources(buildConfiguration string) ([]string, error) {
	_, resources, err := m.scan(buildConfiguration)
	return resources, err
}

func (m *Manager) scan(buildConfiguration string) (components, resources []string, err error) {
	bc, err := m.config.BuildConfiguration(buildConfiguration)
	if err != nil {
		return nil, nil, err
	}
	exclude := slices.Concat(m.config.Build.ExcludeFiles, bc.ExcludeFiles)
	exts := componentExtensions[strings.ToLower(m.config.Project.Compiler.Extension)]
	if exts == nil {
		exts = defaultComponentExtensions
	}
	root := m.SourcePath()

	err = afero.Walk(m.fs, root, func(p string, info fs.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		// The project file and previously built packages never ship.
		if filepath.Clean(p) == filepath.Clean(m.file) || path.Ext(rel) == ".ncc" || excluded(rel, exclude) {
			return nil
		}
		if slices.Contains(exts, strings.ToLower(path.Ext(rel))) {
			components = append(components, rel)
		} else {
			resources = append(resources, rel)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}
	slices.Sort(components)
	slices.Sort(resources)
	return components, resources, nil
}

// excluded matches rel against each doublestar glob, both as a whole path
// and by base name. A pattern ending in "/" excludes a directory subtree.
func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if rel == dir || strings.HasPrefix(rel, dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, path.Base(rel)); ok {
			return true
		}
	}
	return false
}

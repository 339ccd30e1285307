// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/nccbuild/ncc/pkg/codec"
	"github.com/nccbuild/ncc/pkg/project"
)

type (
	// Writer streams a package to disk section by section. Output goes to a
	// temporary file next to the destination, which Close renames into place;
	// until then no file exists at the destination path. A Writer is not
	// safe for concurrent use.
	Writer struct {
		fs      afero.Fs
		path    string
		tmpPath string
		file    afero.File
		logger  *slog.Logger
		enc     *codec.Encoder

		flags       []Flag
		compression Compression
		started     bool

		section   Marker // open section; zero before HEADER
		sectionAt int64  // offset of the open section's marker
		offset    int64
		items     map[Marker]int

		metadata    *Metadata
		installer   *project.Installer
		hasAssembly bool

		err    error // first I/O failure; sticky
		closed bool
	}

	// WriterOption configures a Writer.
	WriterOption func(*Writer)
)

// WithWriterLogger sets the writer's logger.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// Create prepares a package at path. Parent directories are created.
func Create(fs afero.Fs, path string, opts ...WriterOption) (*Writer, error) {
	w := &Writer{
		fs:     fs,
		path:   path,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		enc:    codec.NewEncoder(),
		items:  make(map[Marker]int),
	}
	for _, opt := range opts {
		opt(w)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create package %s: %w", path, err)
	}
	f, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create package %s: %w", path, err)
	}
	w.file = f
	w.tmpPath = f.Name()
	w.logger.Debug("package writer opened", "path", path, "temp", w.tmpPath)
	return w, nil
}

// Path returns the destination path.
func (w *Writer) Path() string { return w.path }

// Flags returns the flags set so far.
func (w *Writer) Flags() []Flag { return slices.Clone(w.flags) }

// Compression returns the active compression level.
func (w *Writer) Compression() Compression { return w.compression }

// AddFlag records a package flag. Flags are written with the version
// preamble, so they can only be added before the first section.
func (w *Writer) AddFlag(f Flag) error {
	if err := w.usable(); err != nil {
		return err
	}
	if w.started {
		return ErrFlagsLocked
	}
	if slices.Contains(w.flags, f) {
		return nil
	}
	next := append(slices.Clone(w.flags), f)
	if level := compressionOf([]Flag{f}); level != CompressionNone && f != FlagCompression {
		for _, existing := range w.flags {
			if other := compressionOf([]Flag{existing}); existing != FlagCompression && other != CompressionNone && other != level {
				return fmt.Errorf("%w: %s and %s", ErrConflictingCompression, existing, f)
			}
		}
		if !slices.Contains(next, FlagCompression) {
			next = append(next, FlagCompression)
		}
	}
	w.flags = next
	w.compression = compressionOf(next)
	return nil
}

// SetMetadata writes the header. Calling it again while the header is still
// the last section rewrites it.
func (w *Writer) SetMetadata(m *Metadata) error {
	if err := w.usable(); err != nil {
		return err
	}
	if m == nil {
		return errors.New("metadata must not be nil")
	}
	switch w.section {
	case 0:
		if err := w.writePreamble(); err != nil {
			return err
		}
		if err := w.enter(MarkerHeader); err != nil {
			return err
		}
	case MarkerHeader:
		if err := w.rewind(); err != nil {
			return err
		}
	default:
		return &SectionOrderError{Section: MarkerHeader, After: w.section}
	}
	w.metadata = m
	return w.writeItem(w.header())
}

// SetInstaller attaches installer hooks to the header. It may be called
// before SetMetadata, or after it while the header is still the last section.
// Once SetAssembly has run the header is sealed and SetInstaller returns a
// *SectionOrderError; set Metadata.Installer instead.
func (w *Writer) SetInstaller(i *project.Installer) error {
	if err := w.usable(); err != nil {
		return err
	}
	switch w.section {
	case 0:
		w.installer = i
		return nil
	case MarkerHeader:
		w.installer = i
		if err := w.rewind(); err != nil {
			return err
		}
		return w.writeItem(w.header())
	default:
		return &SectionOrderError{Section: MarkerHeader, After: w.section}
	}
}

// SetAssembly writes the assembly section, which must directly follow the
// header. Calling it again before any later section rewrites it.
func (w *Writer) SetAssembly(a project.Assembly) error {
	if err := w.usable(); err != nil {
		return err
	}
	switch w.section {
	case MarkerHeader:
		if err := w.enter(MarkerAssembly); err != nil {
			return err
		}
	case MarkerAssembly:
		if err := w.rewind(); err != nil {
			return err
		}
	default:
		return &SectionOrderError{Section: MarkerAssembly, After: w.section}
	}
	entity := assemblyEntity(a)
	if err := w.writeItem(&entity); err != nil {
		return err
	}
	w.hasAssembly = true
	return nil
}

// AddExecutionUnit appends to the execution units section.
func (w *Writer) AddExecutionUnit(u *ExecutionUnit) error {
	return w.add(MarkerExecutionUnits, u)
}

// AddComponent appends to the components section.
func (w *Writer) AddComponent(c *Component) error {
	return w.add(MarkerComponents, c)
}

// AddResource appends to the resources section.
func (w *Writer) AddResource(r *Resource) error {
	return w.add(MarkerResources, r)
}

// AddDependency appends to the dependencies section. Dependencies are kept
// in the order they are added, duplicates included.
func (w *Writer) AddDependency(d project.Dependency) error {
	entity := dependencyEntity(d)
	return w.add(MarkerDependencies, &entity)
}

// Close terminates the package and moves it to its destination. HEADER and
// ASSEMBLY must have been written; otherwise nothing is produced.
func (w *Writer) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		err := w.err
		_ = w.Abort()
		return err
	}
	if w.metadata == nil || !w.hasAssembly {
		_ = w.Abort()
		return fmt.Errorf("%w: %s", ErrIncompletePackage, w.path)
	}

	if err := w.write([]byte{byte(SoftTerminate)}); err != nil {
		_ = w.Abort()
		return err
	}
	if err := w.write(Terminate); err != nil {
		_ = w.Abort()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.Abort()
		return fmt.Errorf("sync package %s: %w", w.path, err)
	}
	if err := w.file.Close(); err != nil {
		_ = w.fs.Remove(w.tmpPath)
		w.closed = true
		return fmt.Errorf("close package %s: %w", w.path, err)
	}
	w.closed = true
	if err := w.fs.Rename(w.tmpPath, w.path); err != nil {
		_ = w.fs.Remove(w.tmpPath)
		return fmt.Errorf("move package into place %s: %w", w.path, err)
	}

	w.logger.Info("package written",
		"path", w.path,
		"bytes", w.offset,
		"execution_units", w.items[MarkerExecutionUnits],
		"components", w.items[MarkerComponents],
		"resources", w.items[MarkerResources],
		"dependencies", w.items[MarkerDependencies],
		"compression", w.compression.String())
	return nil
}

// Abort discards the package. It is a no-op after Close, so it can be
// deferred unconditionally.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	closeErr := w.file.Close()
	removeErr := w.fs.Remove(w.tmpPath)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("discard package %s: %w", w.path, removeErr)
	}
	w.logger.Debug("package writer aborted", "path", w.path)
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return fmt.Errorf("discard package %s: %w", w.path, closeErr)
	}
	return nil
}

func (w *Writer) usable() error {
	if w.closed {
		return ErrWriterClosed
	}
	return w.err
}

func (w *Writer) header() *Metadata {
	m := *w.metadata
	if w.installer != nil {
		m.Installer = w.installer
	}
	return &m
}

func (w *Writer) add(m Marker, item codec.Marshaler) error {
	if err := w.usable(); err != nil {
		return err
	}
	if !w.hasAssembly || m.rank() < w.section.rank() {
		return &SectionOrderError{Section: m, After: w.section}
	}
	if w.section != m {
		if err := w.enter(m); err != nil {
			return err
		}
	}
	return w.writeItem(item)
}

func (w *Writer) writePreamble() error {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(StartPackage))
	buf = append(buf, MagicBytes...)
	buf = append(buf, byte(MarkerPackageVersion))
	buf = codec.AppendString(buf, PackageVersion)
	buf = codec.AppendArrayHeader(buf, uint32(len(w.flags)))
	for _, f := range w.flags {
		buf = codec.AppendString(buf, string(f))
	}
	w.started = true
	return w.write(buf)
}

// enter soft-terminates the open section, if any, and opens m.
func (w *Writer) enter(m Marker) error {
	if w.section != 0 {
		if err := w.write([]byte{byte(SoftTerminate)}); err != nil {
			return err
		}
	}
	w.sectionAt = w.offset
	w.section = m
	return w.write([]byte{byte(m)})
}

// rewind truncates the file back to the open section's marker and writes
// the marker again, leaving the section empty.
func (w *Writer) rewind() error {
	if err := w.file.Truncate(w.sectionAt); err != nil {
		return w.fail(err)
	}
	if _, err := w.file.Seek(w.sectionAt, io.SeekStart); err != nil {
		return w.fail(err)
	}
	w.offset = w.sectionAt
	w.items[w.section] = 0
	w.logger.Debug("rewriting section", "section", w.section.String())
	return w.write([]byte{byte(w.section)})
}

func (w *Writer) writeItem(item codec.Marshaler) error {
	content, err := w.enc.Encode(item)
	if err != nil {
		return fmt.Errorf("encode %s item: %w", w.section, err)
	}
	stored, err := compressItem(w.compression, content)
	if err != nil {
		return err
	}
	buf := codec.AppendBinaryHeader(make([]byte, 0, len(stored)+5), len(stored))
	buf = append(buf, stored...)
	if err := w.write(buf); err != nil {
		return err
	}
	w.items[w.section]++
	return nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.file.Write(b)
	w.offset += int64(n)
	if err != nil {
		return w.fail(err)
	}
	return nil
}

func (w *Writer) fail(err error) error {
	w.err = fmt.Errorf("write package %s: %w", w.path, err)
	return w.err
}

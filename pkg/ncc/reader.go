// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/nccbuild/ncc/pkg/codec"
	"github.com/nccbuild/ncc/pkg/project"
)

// ErrEntryNotFound is returned when a named unit, component or resource is
// not in the package.
var ErrEntryNotFound = errors.New("entry not found")

const (
	magicSearchChunk = 64 << 10
	initialWindow    = 256
)

var magic = append([]byte{byte(StartPackage)}, MagicBytes...)

type (
	// Reader gives lazy access to the sections of a package. Open validates
	// the framing and records where each item lives; an item is decoded the
	// first time an accessor needs it and then cached. A Reader is not safe
	// for concurrent use; open one Reader per goroutine instead.
	Reader struct {
		fs     afero.Fs
		path   string
		file   afero.File
		size   int64
		logger *slog.Logger
		dec    *codec.Decoder

		start, end  int64
		version     string
		flags       []Flag
		compression Compression
		sections    map[Marker][]span

		metadata     *Metadata
		assembly     *project.Assembly
		units        []*ExecutionUnit
		components   []*Component
		resources    []*Resource
		dependencies []project.Dependency
		loaded       map[Marker]bool
	}

	// ReaderOption configures a Reader.
	ReaderOption func(*Reader)

	span struct {
		off, n int64
	}
)

// WithReaderLogger sets the reader's logger.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDecoder replaces the codec decoder, for example to change its
// overflow strategy.
func WithDecoder(d *codec.Decoder) ReaderOption {
	return func(r *Reader) {
		if d != nil {
			r.dec = d
		}
	}
}

// Open validates the package at path. The package may be preceded by other
// data, such as an executable stub.
func Open(fs afero.Fs, path string, opts ...ReaderOption) (*Reader, error) {
	r := &Reader{
		fs:       fs,
		path:     path,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		dec:      codec.NewDecoder(),
		sections: make(map[Marker][]span),
		loaded:   make(map[Marker]bool),
	}
	for _, opt := range opts {
		opt(r)
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open package %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat package %s: %w", path, err)
	}
	r.file, r.size = f, info.Size()

	if err := r.scan(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open package %s: %w", path, err)
	}
	r.logger.Debug("package opened", "path", path, "version", r.version, "offset", r.start, "bytes", r.end-r.start)
	return r, nil
}

// OpenAll opens independent packages concurrently. Either every Reader is
// returned, in path order, or none is.
func OpenAll(ctx context.Context, fs afero.Fs, paths []string, opts ...ReaderOption) ([]*Reader, error) {
	readers := make([]*Reader, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := Open(fs, p, opts...)
			if err != nil {
				return err
			}
			readers[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range readers {
			if r != nil {
				_ = r.Close()
			}
		}
		return nil, err
	}
	return readers, nil
}

// Close releases the file handle.
func (r *Reader) Close() error { return r.file.Close() }

// Path returns the file the package was read from.
func (r *Reader) Path() string { return r.path }

// Version returns the framing version.
func (r *Reader) Version() string { return r.version }

// Flags returns the package flags.
func (r *Reader) Flags() []Flag { return slices.Clone(r.flags) }

// HasFlag reports whether f is set.
func (r *Reader) HasFlag(f Flag) bool { return slices.Contains(r.flags, f) }

// Compression returns the compression level of the section items.
func (r *Reader) Compression() Compression { return r.compression }

// Offset returns where the package starts inside the file.
func (r *Reader) Offset() int64 { return r.start }

// Size returns the length of the package in bytes, excluding any prefix.
func (r *Reader) Size() int64 { return r.end - r.start }

// Metadata returns the package header.
func (r *Reader) Metadata() (*Metadata, error) {
	if r.metadata == nil {
		v, err := r.decodeItem(MarkerHeader, r.sections[MarkerHeader][0])
		if err != nil {
			return nil, err
		}
		if r.metadata, err = decodeMetadata(v); err != nil {
			return nil, err
		}
	}
	return r.metadata, nil
}

// Installer returns the installer hooks from the header, if any.
func (r *Reader) Installer() (*project.Installer, error) {
	m, err := r.Metadata()
	if err != nil {
		return nil, err
	}
	return m.Installer, nil
}

// Assembly returns the package identity.
func (r *Reader) Assembly() (*project.Assembly, error) {
	if r.assembly == nil {
		v, err := r.decodeItem(MarkerAssembly, r.sections[MarkerAssembly][0])
		if err != nil {
			return nil, err
		}
		if r.assembly, err = decodeAssembly(v); err != nil {
			return nil, err
		}
	}
	return r.assembly, nil
}

// ExecutionUnits returns every execution unit in package order.
func (r *Reader) ExecutionUnits() ([]*ExecutionUnit, error) {
	if !r.loaded[MarkerExecutionUnits] {
		units, err := decodeAll(r, MarkerExecutionUnits, decodeExecutionUnit)
		if err != nil {
			return nil, err
		}
		r.units = units
		r.loaded[MarkerExecutionUnits] = true
	}
	return r.units, nil
}

// ExecutionUnit returns the unit compiled from the named policy.
func (r *Reader) ExecutionUnit(name string) (*ExecutionUnit, error) {
	units, err := r.ExecutionUnits()
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		if u.Policy.Name == name {
			return u, nil
		}
	}
	return nil, fmt.Errorf("execution unit %q: %w", name, ErrEntryNotFound)
}

// Components returns every component in package order.
func (r *Reader) Components() ([]*Component, error) {
	if !r.loaded[MarkerComponents] {
		components, err := decodeAll(r, MarkerComponents, decodeComponent)
		if err != nil {
			return nil, err
		}
		r.components = components
		r.loaded[MarkerComponents] = true
	}
	return r.components, nil
}

// Component returns the named component.
func (r *Reader) Component(name string) (*Component, error) {
	components, err := r.Components()
	if err != nil {
		return nil, err
	}
	for _, c := range components {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("component %q: %w", name, ErrEntryNotFound)
}

// Resources returns every resource in package order.
func (r *Reader) Resources() ([]*Resource, error) {
	if !r.loaded[MarkerResources] {
		resources, err := decodeAll(r, MarkerResources, decodeResource)
		if err != nil {
			return nil, err
		}
		r.resources = resources
		r.loaded[MarkerResources] = true
	}
	return r.resources, nil
}

// Resource returns the named resource.
func (r *Reader) Resource(name string) (*Resource, error) {
	resources, err := r.Resources()
	if err != nil {
		return nil, err
	}
	for _, res := range resources {
		if res.Name == name {
			return res, nil
		}
	}
	return nil, fmt.Errorf("resource %q: %w", name, ErrEntryNotFound)
}

// Find returns the names of components and resources ending in suffix,
// components first, each group in package order.
func (r *Reader) Find(suffix string) ([]string, error) {
	components, err := r.Components()
	if err != nil {
		return nil, err
	}
	resources, err := r.Resources()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, c := range components {
		if strings.HasSuffix(c.Name, suffix) {
			names = append(names, c.Name)
		}
	}
	for _, res := range resources {
		if strings.HasSuffix(res.Name, suffix) {
			names = append(names, res.Name)
		}
	}
	return names, nil
}

// Dependencies returns the dependency declarations in the order they were
// written.
func (r *Reader) Dependencies() ([]project.Dependency, error) {
	if !r.loaded[MarkerDependencies] {
		deps, err := decodeAll(r, MarkerDependencies, decodeDependency)
		if err != nil {
			return nil, err
		}
		r.dependencies = make([]project.Dependency, 0, len(deps))
		for _, d := range deps {
			r.dependencies = append(r.dependencies, *d)
		}
		r.loaded[MarkerDependencies] = true
	}
	return r.dependencies, nil
}

// Extract writes every component, decoded, and every resource below dir,
// recreating their relative paths. Existing files are overwritten.
func (r *Reader) Extract(dir string) error {
	components, err := r.Components()
	if err != nil {
		return err
	}
	resources, err := r.Resources()
	if err != nil {
		return err
	}
	for _, c := range components {
		data, err := c.Contents()
		if err != nil {
			return err
		}
		if err := r.extractFile(dir, c.Name, data); err != nil {
			return err
		}
	}
	for _, res := range resources {
		if err := res.Verify(); err != nil {
			return err
		}
		if err := r.extractFile(dir, res.Name, res.Data); err != nil {
			return err
		}
	}
	r.logger.Debug("package extracted", "path", r.path, "target", dir,
		"components", len(components), "resources", len(resources))
	return nil
}

func (r *Reader) extractFile(dir, name string, data []byte) error {
	rel := filepath.FromSlash(name)
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("extract %q: %w", name, ErrUnsafePath)
	}
	target := filepath.Join(dir, rel)
	if err := r.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("extract %s: %w", target, err)
	}
	if err := afero.WriteFile(r.fs, target, data, 0o644); err != nil {
		return fmt.Errorf("extract %s: %w", target, err)
	}
	return nil
}

// Checksum returns the hex BLAKE3-256 digest of the package bytes,
// excluding any prefix before the magic.
func (r *Reader) Checksum() (string, error) {
	return hashRange(r.file, r.start, r.end-r.start)
}

// SaveCopy writes the package bytes, without any prefix, to path in fs and
// verifies the copy against the original.
func (r *Reader) SaveCopy(fs afero.Fs, path string) (err error) {
	want, err := r.Checksum()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("save copy %s: %w", path, err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("save copy %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = fs.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, io.NewSectionReader(r.file, r.start, r.end-r.start)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save copy %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save copy %s: %w", path, err)
	}

	copied, err := fs.Open(tmp.Name())
	if err != nil {
		return fmt.Errorf("verify copy %s: %w", path, err)
	}
	got, err := hashRange(copied, 0, r.end-r.start)
	_ = copied.Close()
	if err != nil {
		return fmt.Errorf("verify copy %s: %w", path, err)
	}
	if got != want {
		return fmt.Errorf("verify copy %s: %w", path, ErrChecksumMismatch)
	}
	if err := fs.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save copy %s: %w", path, err)
	}
	return nil
}

func hashRange(src io.ReaderAt, off, n int64) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, io.NewSectionReader(src, off, n)); err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// --- scanning ---

// scan locates the magic, reads the version preamble, and indexes every
// section item without decoding it.
func (r *Reader) scan() error {
	start, err := r.findMagic()
	if err != nil {
		return err
	}
	r.start = start
	pos := start + int64(len(magic))

	b, err := r.byteAt(pos)
	if err != nil {
		return err
	}
	if Marker(b) != MarkerPackageVersion {
		return formatErr(pos, ErrCorruptPackage, "expected %s marker, found 0x%02X", MarkerPackageVersion, b)
	}
	if pos, err = r.readPreamble(pos + 1); err != nil {
		return err
	}

	var (
		last         Marker
		seenHeader   bool
		seenAssembly bool
	)
	for {
		b, err := r.byteAt(pos)
		if err != nil {
			return err
		}
		m := Marker(b)

		if m == TerminateByte {
			b2, err := r.byteAt(pos + 1)
			if err != nil {
				return err
			}
			if Marker(b2) != TerminateByte {
				return formatErr(pos, ErrCorruptPackage, "incomplete terminator")
			}
			r.end = pos + 2
			break
		}

		switch {
		case m.rank() > 0:
			if err := checkOrder(pos, m, last, seenHeader, seenAssembly); err != nil {
				return err
			}
			seenHeader = seenHeader || m == MarkerHeader
			seenAssembly = seenAssembly || m == MarkerAssembly
			last = m
		case m.isFuture():
			if !seenAssembly {
				return &FormatError{Offset: pos, Reason: "unknown section before ASSEMBLY", Err: &SectionOrderError{Section: m, After: last}}
			}
			r.logger.Warn("skipping unknown section", "path", r.path, "marker", m.String(), "offset", pos)
		default:
			return formatErr(pos, ErrCorruptPackage, "expected a section marker, found 0x%02X", b)
		}

		items, next, err := r.scanItems(pos + 1)
		if err != nil {
			return err
		}
		if (m == MarkerHeader || m == MarkerAssembly) && len(items) != 1 {
			return formatErr(pos, ErrCorruptPackage, "%s section holds %d items, expected 1", m, len(items))
		}
		if m.rank() > 0 {
			r.sections[m] = items
		}
		pos = next
	}

	switch {
	case !seenHeader:
		return formatErr(pos, ErrCorruptPackage, "package has no %s section", MarkerHeader)
	case !seenAssembly:
		return formatErr(pos, ErrCorruptPackage, "package has no %s section", MarkerAssembly)
	}
	return nil
}

func checkOrder(pos int64, m, last Marker, seenHeader, seenAssembly bool) error {
	bad := false
	switch {
	case m == MarkerHeader:
		bad = last != 0
	case !seenHeader:
		bad = true
	case m == MarkerAssembly:
		bad = last != MarkerHeader
	case !seenAssembly:
		bad = true
	default:
		bad = m.rank() <= last.rank()
	}
	if bad {
		return &FormatError{Offset: pos, Reason: "sections out of order", Err: &SectionOrderError{Section: m, After: last}}
	}
	return nil
}

func (r *Reader) readPreamble(pos int64) (int64, error) {
	v, pos, err := r.decodeAt(pos)
	if err != nil {
		return 0, err
	}
	version, ok := v.(string)
	if !ok {
		return 0, formatErr(pos, ErrCorruptPackage, "package version is %T, expected string", v)
	}
	if !slices.Contains(SupportedVersions, version) {
		return 0, formatErr(pos, ErrUnsupportedVersion, "version %q (supported: %v)", version, SupportedVersions)
	}
	r.version = version

	v, pos, err = r.decodeAt(pos)
	if err != nil {
		return 0, err
	}
	list, ok := v.([]any)
	if !ok {
		return 0, formatErr(pos, ErrCorruptPackage, "package flags are %T, expected array", v)
	}
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return 0, formatErr(pos, ErrCorruptPackage, "package flag is %T, expected string", item)
		}
		r.flags = append(r.flags, Flag(s))
	}
	r.compression = compressionOf(r.flags)
	return pos, nil
}

// scanItems walks the bin items of a section up to its soft terminator.
func (r *Reader) scanItems(pos int64) ([]span, int64, error) {
	var items []span
	for {
		b, err := r.byteAt(pos)
		if err != nil {
			return nil, 0, err
		}
		if Marker(b) == SoftTerminate {
			return items, pos + 1, nil
		}
		if !codec.IsBinaryTag(b) {
			return nil, 0, formatErr(pos, ErrCorruptPackage, "expected an item or %s, found 0x%02X", SoftTerminate, b)
		}
		head, err := r.readAt(pos, min(5, r.size-pos))
		if err != nil {
			return nil, 0, err
		}
		payload, length, err := codec.PeekBinary(head, 0)
		if err != nil {
			return nil, 0, formatErr(pos, ErrTruncated, "item header: %v", err)
		}
		off := pos + int64(payload)
		end := off + int64(length)
		if end > r.size {
			return nil, 0, formatErr(pos, ErrTruncated, "item of %d bytes runs past end of file", length)
		}
		items = append(items, span{off: off, n: int64(length)})
		pos = end
	}
}

func (r *Reader) findMagic() (int64, error) {
	buf := make([]byte, magicSearchChunk+len(magic))
	for off := int64(0); off < r.size; off += magicSearchChunk {
		n, err := r.file.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read %s: %w", r.path, err)
		}
		if i := bytes.Index(buf[:n], magic); i >= 0 {
			return off + int64(i), nil
		}
	}
	return 0, formatErr(0, ErrMagicNotFound, "no %q signature in %d bytes", MagicBytes, r.size)
}

func (r *Reader) byteAt(pos int64) (byte, error) {
	b, err := r.readAt(pos, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) readAt(pos, n int64) ([]byte, error) {
	if n <= 0 || pos+n > r.size {
		return nil, formatErr(pos, ErrTruncated, "unexpected end of file")
	}
	buf := make([]byte, n)
	if _, err := r.file.ReadAt(buf, pos); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	return buf, nil
}

// decodeAt decodes one codec value at pos, widening the read window while
// the value is incomplete.
func (r *Reader) decodeAt(pos int64) (any, int64, error) {
	for window := int64(initialWindow); ; window *= 4 {
		avail := r.size - pos
		w := min(window, avail)
		buf, err := r.readAt(pos, w)
		if err != nil {
			return nil, 0, err
		}
		v, n, err := r.dec.Decode(buf)
		switch {
		case err == nil:
			return v, pos + int64(n), nil
		case errors.Is(err, codec.ErrIncomplete) && w < avail:
			continue
		case errors.Is(err, codec.ErrIncomplete):
			return nil, 0, formatErr(pos, ErrTruncated, "%v", err)
		default:
			return nil, 0, formatErr(pos, ErrCorruptPackage, "%v", err)
		}
	}
}

// --- item decoding ---

func (r *Reader) decodeItem(m Marker, s span) (any, error) {
	stored, err := r.readAt(s.off, s.n)
	if s.n == 0 {
		stored, err = []byte{}, nil
	}
	if err != nil {
		return nil, err
	}
	content, err := decompressItem(r.compression, stored)
	if err != nil {
		return nil, &FormatError{Offset: s.off, Reason: m.String() + " item", Err: err}
	}
	v, n, err := r.dec.Decode(content)
	if err != nil {
		return nil, &FormatError{Offset: s.off, Reason: m.String() + " item: " + err.Error(), Err: ErrCorruptPackage}
	}
	if n != len(content) {
		return nil, formatErr(s.off, ErrCorruptPackage, "%s item has %d trailing bytes", m, len(content)-n)
	}
	return v, nil
}

func decodeAll[T any](r *Reader, m Marker, decode func(any) (*T, error)) ([]*T, error) {
	spans := r.sections[m]
	out := make([]*T, 0, len(spans))
	for _, s := range spans {
		v, err := r.decodeItem(m, s)
		if err != nil {
			return nil, err
		}
		item, err := decode(v)
		if err != nil {
			return nil, &FormatError{Offset: s.off, Reason: m.String() + " item", Err: err}
		}
		out = append(out, item)
	}
	return out, nil
}

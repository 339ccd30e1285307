// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/nccbuild/ncc/pkg/codec"
	"github.com/nccbuild/ncc/pkg/project"
)

// DataType says how a component's payload must be decoded.
type DataType uint8

// Component data types.
const (
	DataTypeBinary DataType = iota + 1
	DataTypePlainText
	DataTypeEncodedText
	DataTypeStructuredAst
)

// ErrInvalidDataType is returned for an unknown component data type.
var ErrInvalidDataType = errors.New("invalid component data type")

// String returns the stored name of the data type.
func (d DataType) String() string {
	switch d {
	case DataTypeBinary:
		return "binary"
	case DataTypePlainText:
		return "plain"
	case DataTypeEncodedText:
		return "b64enc"
	case DataTypeStructuredAst:
		return "ast"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(d))
	}
}

// ParseDataType maps a stored name back to its DataType.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "binary":
		return DataTypeBinary, nil
	case "plain":
		return DataTypePlainText, nil
	case "b64enc", "":
		return DataTypeEncodedText, nil
	case "ast":
		return DataTypeStructuredAst, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDataType, s)
	}
}

// Checksum returns the hex BLAKE3-256 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type (
	// Metadata is the package header.
	Metadata struct {
		Compiler            project.Compiler
		CompilerVersion     string
		Options             map[string]string
		UpdateSource        *project.UpdateSource
		MainExecutionPolicy string
		Installer           *project.Installer
		// Constants maps runtime placeholders to their raw, unsubstituted values.
		Constants map[string]string
	}

	// Component is one source file. Data holds the payload in the transfer
	// form named by DataType; Checksum covers the decoded contents.
	Component struct {
		Name     string
		Flags    []string
		DataType DataType
		Checksum string
		Data     []byte
	}

	// Resource is one opaque non-source file.
	Resource struct {
		Name     string
		Checksum string
		Data     []byte
	}

	// ExecutionUnit is an execution policy compiled by its runner. Data holds
	// the runner's artifact, such as the script the policy targets.
	ExecutionUnit struct {
		Policy project.ExecutionPolicy
		Data   []byte
	}
)

// NewComponent encodes raw into the transfer form of dataType.
func NewComponent(name string, raw []byte, dataType DataType) (*Component, error) {
	c := &Component{Name: name, DataType: dataType, Checksum: Checksum(raw)}
	switch dataType {
	case DataTypeBinary, DataTypeStructuredAst:
		c.Data = raw
	case DataTypePlainText:
		if !utf8.Valid(raw) {
			return nil, fmt.Errorf("component %s: contents are not valid UTF-8 text", name)
		}
		c.Data = raw
	case DataTypeEncodedText:
		c.Data = []byte(base64.StdEncoding.EncodeToString(raw))
	default:
		return nil, fmt.Errorf("component %s: %w: %d", name, ErrInvalidDataType, dataType)
	}
	return c, nil
}

// Contents decodes the payload and verifies it against the checksum.
func (c *Component) Contents() ([]byte, error) {
	var raw []byte
	switch c.DataType {
	case DataTypeBinary, DataTypePlainText, DataTypeStructuredAst:
		raw = c.Data
	case DataTypeEncodedText:
		decoded, err := base64.StdEncoding.DecodeString(string(c.Data))
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", c.Name, err)
		}
		raw = decoded
	default:
		return nil, fmt.Errorf("component %s: %w: %d", c.Name, ErrInvalidDataType, c.DataType)
	}
	if c.Checksum != "" && Checksum(raw) != c.Checksum {
		return nil, fmt.Errorf("component %s: %w", c.Name, ErrChecksumMismatch)
	}
	return raw, nil
}

// NewResource wraps data as a resource.
func NewResource(name string, data []byte) *Resource {
	return &Resource{Name: name, Checksum: Checksum(data), Data: data}
}

// Verify checks the resource data against its checksum.
func (r *Resource) Verify() error {
	if r.Checksum != "" && Checksum(r.Data) != r.Checksum {
		return fmt.Errorf("resource %s: %w", r.Name, ErrChecksumMismatch)
	}
	return nil
}

// --- encoding ---

// MarshalCodec implements codec.Marshaler.
func (m *Metadata) MarshalCodec() (any, error) {
	var r record
	r.put("compiler", compilerRecord(m.Compiler))
	r.put("compiler_version", m.CompilerVersion)
	r.put("options", m.Options)
	if m.UpdateSource != nil {
		r.put("update_source", updateSourceRecord(m.UpdateSource))
	}
	r.put("main_execution_policy", m.MainExecutionPolicy)
	if m.Installer != nil {
		r.put("installer", installerRecord(m.Installer))
	}
	r.put("constants", m.Constants)
	return r.value(), nil
}

// MarshalCodec implements codec.Marshaler.
func (c *Component) MarshalCodec() (any, error) {
	var r record
	r.put("name", c.Name)
	r.put("flags", c.Flags)
	r.put("data_type", c.DataType.String())
	r.put("checksum", c.Checksum)
	r.put("data", nonNil(c.Data))
	return r.value(), nil
}

// MarshalCodec implements codec.Marshaler.
func (r *Resource) MarshalCodec() (any, error) {
	var rec record
	rec.put("name", r.Name)
	rec.put("checksum", r.Checksum)
	rec.put("data", nonNil(r.Data))
	return rec.value(), nil
}

// MarshalCodec implements codec.Marshaler.
func (u *ExecutionUnit) MarshalCodec() (any, error) {
	var r record
	r.put("execution_policy", policyRecord(&u.Policy))
	r.put("data", nonNil(u.Data))
	return r.value(), nil
}

type assemblyEntity project.Assembly

// MarshalCodec implements codec.Marshaler.
func (a *assemblyEntity) MarshalCodec() (any, error) {
	var r record
	r.put("name", a.Name)
	r.put("package", a.Package.String())
	r.put("description", a.Description)
	r.put("company", a.Company)
	r.put("product", a.Product)
	r.put("copyright", a.Copyright)
	r.put("trademark", a.Trademark)
	r.put("version", a.Version)
	r.put("uuid", a.UUID)
	return r.value(), nil
}

type dependencyEntity project.Dependency

// MarshalCodec implements codec.Marshaler.
func (d *dependencyEntity) MarshalCodec() (any, error) {
	var r record
	r.put("name", d.Name)
	r.put("source_type", string(d.SourceType))
	r.put("source", d.Source)
	r.put("version", d.Version)
	return r.value(), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func compilerRecord(c project.Compiler) codec.Map {
	var r record
	r.put("extension", c.Extension)
	r.put("minimum_version", c.MinimumVersion)
	r.put("maximum_version", c.MaximumVersion)
	return r.value()
}

func updateSourceRecord(u *project.UpdateSource) codec.Map {
	var r record
	r.put("source", u.Source)
	if repo := u.Repository; repo != nil {
		var rr record
		rr.put("name", repo.Name)
		rr.put("type", repo.Type)
		rr.put("host", repo.Host)
		rr.put("ssl", repo.SSL)
		r.put("repository", rr.value())
	}
	return r.value()
}

func installerRecord(i *project.Installer) codec.Map {
	var r record
	r.put("pre_install", i.PreInstall)
	r.put("post_install", i.PostInstall)
	r.put("pre_uninstall", i.PreUninstall)
	r.put("post_uninstall", i.PostUninstall)
	r.put("pre_update", i.PreUpdate)
	r.put("post_update", i.PostUpdate)
	return r.value()
}

func policyRecord(p *project.ExecutionPolicy) codec.Map {
	var exec record
	exec.put("target", p.Execute.Target)
	exec.put("working_directory", p.Execute.WorkingDirectory)
	exec.put("options", p.Execute.Options)
	exec.put("environment_variables", p.Execute.EnvironmentVariables)
	exec.put("silent", p.Execute.Silent)
	exec.put("tty", p.Execute.Tty)
	exec.put("timeout", p.Execute.Timeout)

	var r record
	r.put("name", p.Name)
	r.put("runner", p.Runner)
	r.put("message", p.Message)
	r.put("execute", exec.value())
	if h := p.ExitHandlers; h != nil {
		var hr record
		if h.Success != nil {
			hr.put("success", exitHandleRecord(h.Success))
		}
		if h.Warning != nil {
			hr.put("warning", exitHandleRecord(h.Warning))
		}
		if h.Error != nil {
			hr.put("error", exitHandleRecord(h.Error))
		}
		r.put("exit_handlers", codec.Map(append(codec.Map{}, hr...)))
	}
	return r.value()
}

func exitHandleRecord(h *project.ExitHandle) codec.Map {
	var r record
	r.put("message", h.Message)
	r.put("end_process", h.EndProcess)
	r.put("run", h.Run)
	r.put("exit_code", h.ExitCode)
	return r.value()
}

// --- decoding ---

func decodeMetadata(v any) (*Metadata, error) {
	f, err := newFields("metadata", v)
	if err != nil {
		return nil, err
	}
	m := &Metadata{
		CompilerVersion:     f.str("compiler_version"),
		Options:             f.stringMap("options"),
		MainExecutionPolicy: f.str("main_execution_policy"),
		Constants:           f.stringMap("constants"),
	}
	if c := f.sub("compiler", "compiler"); c != nil {
		m.Compiler = project.Compiler{
			Extension:      c.str("extension"),
			MinimumVersion: c.str("minimum_version"),
			MaximumVersion: c.str("maximum_version"),
		}
		f.collect(c)
	}
	if u := f.sub("update_source", "update_source"); u != nil {
		m.UpdateSource = &project.UpdateSource{Source: u.str("source")}
		if repo := u.sub("repository", "repository"); repo != nil {
			m.UpdateSource.Repository = &project.Repository{
				Name: repo.str("name"),
				Type: repo.str("type"),
				Host: repo.str("host"),
				SSL:  repo.boolean("ssl"),
			}
			u.collect(repo)
		}
		f.collect(u)
	}
	if i := f.sub("installer", "installer"); i != nil {
		m.Installer = &project.Installer{
			PreInstall:    i.strings("pre_install"),
			PostInstall:   i.strings("post_install"),
			PreUninstall:  i.strings("pre_uninstall"),
			PostUninstall: i.strings("post_uninstall"),
			PreUpdate:     i.strings("pre_update"),
			PostUpdate:    i.strings("post_update"),
		}
		f.collect(i)
	}
	return m, f.err
}

func decodeAssembly(v any) (*project.Assembly, error) {
	f, err := newFields("assembly", v)
	if err != nil {
		return nil, err
	}
	return &project.Assembly{
		Name:        f.str("name"),
		Package:     project.PackageName(f.str("package")),
		Description: f.str("description"),
		Company:     f.str("company"),
		Product:     f.str("product"),
		Copyright:   f.str("copyright"),
		Trademark:   f.str("trademark"),
		Version:     f.str("version"),
		UUID:        f.str("uuid"),
	}, f.err
}

func decodeDependency(v any) (*project.Dependency, error) {
	f, err := newFields("dependency", v)
	if err != nil {
		return nil, err
	}
	return &project.Dependency{
		Name:       f.str("name"),
		SourceType: project.SourceType(f.str("source_type")),
		Source:     f.str("source"),
		Version:    f.str("version"),
	}, f.err
}

func decodeComponent(v any) (*Component, error) {
	f, err := newFields("component", v)
	if err != nil {
		return nil, err
	}
	c := &Component{
		Name:     f.str("name"),
		Flags:    f.strings("flags"),
		Checksum: f.str("checksum"),
		Data:     f.bytes("data"),
	}
	if f.err != nil {
		return nil, f.err
	}
	dt, err := ParseDataType(f.str("data_type"))
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", c.Name, err)
	}
	c.DataType = dt
	return c, f.err
}

func decodeResource(v any) (*Resource, error) {
	f, err := newFields("resource", v)
	if err != nil {
		return nil, err
	}
	return &Resource{
		Name:     f.str("name"),
		Checksum: f.str("checksum"),
		Data:     f.bytes("data"),
	}, f.err
}

func decodeExecutionUnit(v any) (*ExecutionUnit, error) {
	f, err := newFields("execution_unit", v)
	if err != nil {
		return nil, err
	}
	u := &ExecutionUnit{Data: f.bytes("data")}
	p := f.sub("execution_policy", "execution_policy")
	if p == nil {
		return nil, fmt.Errorf("%w: execution unit without a policy", ErrCorruptPackage)
	}
	u.Policy = project.ExecutionPolicy{
		Name:    p.str("name"),
		Runner:  p.str("runner"),
		Message: p.str("message"),
	}
	if e := p.sub("execute", "execute"); e != nil {
		u.Policy.Execute = project.Execute{
			Target:               e.str("target"),
			WorkingDirectory:     e.str("working_directory"),
			Options:              e.strings("options"),
			EnvironmentVariables: e.stringMap("environment_variables"),
			Silent:               e.boolean("silent"),
			Tty:                  e.boolean("tty"),
			Timeout:              int(e.integer("timeout")),
		}
		p.collect(e)
	}
	if h := p.sub("exit_handlers", "exit_handlers"); h != nil {
		u.Policy.ExitHandlers = &project.ExitHandlers{
			Success: decodeExitHandle(h, "success"),
			Warning: decodeExitHandle(h, "warning"),
			Error:   decodeExitHandle(h, "error"),
		}
		p.collect(h)
	}
	f.collect(p)
	return u, f.err
}

func decodeExitHandle(parent *fields, name string) *project.ExitHandle {
	h := parent.sub(name, "exit_handle")
	if h == nil {
		return nil
	}
	out := &project.ExitHandle{
		Message:    h.str("message"),
		EndProcess: h.boolean("end_process"),
		Run:        h.str("run"),
		ExitCode:   int(h.integer("exit_code")),
	}
	parent.collect(h)
	return out
}

// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"fmt"
	"hash/crc32"

	"github.com/nccbuild/ncc/pkg/codec"
)

// key is the compact on-disk key of an entity field: the CRC-32 of its name.
func key(name string) int64 {
	return int64(crc32.ChecksumIEEE([]byte(name)))
}

// record builds an entity map with hashed keys. Nil values are left out.
type record codec.Map

func (r *record) put(name string, v any) {
	switch x := v.(type) {
	case nil:
		return
	case codec.Map:
		if x == nil {
			return
		}
	case []string:
		if x == nil {
			return
		}
	case map[string]string:
		if x == nil {
			return
		}
	case []byte:
		if x == nil {
			return
		}
	}
	*r = append(*r, codec.Pair{Key: key(name), Value: v})
}

func (r record) value() codec.Map { return codec.Map(r) }

// fields reads an entity map written with hashed or plain string keys. The
// first type mismatch is kept and reported by err.
type fields struct {
	entity string
	m      codec.Map
	err    error
}

func newFields(entity string, v any) (*fields, error) {
	m, ok := v.(codec.Map)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected map, got %T", ErrCorruptPackage, entity, v)
	}
	return &fields{entity: entity, m: m}, nil
}

func (f *fields) lookup(name string) (any, bool) {
	if v, ok := f.m.Get(key(name)); ok {
		return v, true
	}
	return f.m.Get(name)
}

func (f *fields) fail(name, want string, got any) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: %s.%s: expected %s, got %T", ErrCorruptPackage, f.entity, name, want, got)
	}
}

func (f *fields) str(name string) string {
	v, ok := f.lookup(name)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		f.fail(name, "string", v)
		return ""
	}
}

func (f *fields) integer(name string) int64 {
	v, ok := f.lookup(name)
	if !ok || v == nil {
		return 0
	}
	n, isInt := v.(int64)
	if !isInt {
		f.fail(name, "integer", v)
	}
	return n
}

func (f *fields) boolean(name string) bool {
	v, ok := f.lookup(name)
	if !ok || v == nil {
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		f.fail(name, "bool", v)
	}
	return b
}

func (f *fields) bytes(name string) []byte {
	v, ok := f.lookup(name)
	if !ok || v == nil {
		return nil
	}
	switch b := v.(type) {
	case []byte:
		return b
	case string:
		return []byte(b)
	default:
		f.fail(name, "binary", v)
		return nil
	}
}

func (f *fields) strings(name string) []string {
	v, ok := f.lookup(name)
	if !ok || v == nil {
		return nil
	}
	arr, isArr := v.([]any)
	if !isArr {
		f.fail(name, "array", v)
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, isStr := item.(string)
		if !isStr {
			f.fail(name, "array of strings", item)
			return nil
		}
		out = append(out, s)
	}
	return out
}

func (f *fields) stringMap(name string) map[string]string {
	v, ok := f.lookup(name)
	if !ok || v == nil {
		return nil
	}
	m, isMap := v.(codec.Map)
	if !isMap {
		f.fail(name, "map", v)
		return nil
	}
	out := make(map[string]string, len(m))
	for _, p := range m {
		k, kok := p.Key.(string)
		val, vok := p.Value.(string)
		if !kok || !vok {
			f.fail(name, "map of strings", p.Value)
			return nil
		}
		out[k] = val
	}
	return out
}

// sub returns the nested entity stored under name, or nil when absent.
func (f *fields) sub(name, entity string) *fields {
	v, ok := f.lookup(name)
	if !ok || v == nil {
		return nil
	}
	nested, err := newFields(entity, v)
	if err != nil {
		if f.err == nil {
			f.err = err
		}
		return nil
	}
	return nested
}

// collect merges the error of nested readers into f.
func (f *fields) collect(nested ...*fields) {
	for _, n := range nested {
		if n != nil && f.err == nil && n.err != nil {
			f.err = n.err
		}
	}
}

// SPDX-License-Identifier: MPL-2.0

package codec

import "fmt"

type (
	// Ext is an externally typed blob: an application-defined type number and
	// its raw bytes. Negative types are reserved by the wire format.
	Ext struct {
		Type int8
		Data []byte
	}

	// Pair is one key/value entry of a Map.
	Pair struct {
		Key   any
		Value any
	}

	// Map is a key-ordered map. Decoded maps always come back as Map so that
	// the on-wire order survives a round trip.
	Map []Pair

	// Marshaler is implemented by types that know how to turn themselves into
	// a value the encoder understands.
	Marshaler interface {
		MarshalCodec() (any, error)
	}
)

// Get returns the value stored under key. Integer keys of any width compare
// equal to an int64 with the same value.
func (m Map) Get(key any) (any, bool) {
	want := normalizeKey(key)
	for _, p := range m {
		if normalizeKey(p.Key) == want {
			return p.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key, or appends a new pair.
func (m *Map) Set(key, value any) {
	want := normalizeKey(key)
	for i, p := range *m {
		if normalizeKey(p.Key) == want {
			(*m)[i].Value = value
			return
		}
	}
	*m = append(*m, Pair{Key: key, Value: value})
}

// StringMap converts a Map with string keys into a Go map. Non-string keys
// are rendered with fmt.
func (m Map) StringMap() map[string]any {
	out := make(map[string]any, len(m))
	for _, p := range m {
		switch k := p.Key.(type) {
		case string:
			out[k] = p.Value
		default:
			out[fmt.Sprint(k)] = p.Value
		}
	}
	return out
}

func normalizeKey(k any) any {
	switch v := k.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint:
		if uint64(v) <= maxInt64 {
			return int64(v)
		}
	case uint64:
		if v <= maxInt64 {
			return int64(v)
		}
	case []byte:
		return string(v)
	}
	return k
}

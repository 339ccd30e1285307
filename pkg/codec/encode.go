// SPDX-License-Identifier: MPL-2.0

package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"slices"
	"unicode/utf8"
)

const maxInt64 = math.MaxInt64

// StringMode selects how Go strings are tagged on the wire.
type StringMode uint8

const (
	// StringDetect tags valid UTF-8 as str and anything else as bin.
	StringDetect StringMode = iota
	// StringForce tags every Go string as str.
	StringForce
	// BinaryForce tags every Go string as bin.
	BinaryForce
)

type (
	// Encoder turns Go values into wire bytes. Its options are fixed at
	// construction; an Encoder is safe for concurrent use.
	Encoder struct {
		strings  StringMode
		float32s bool
	}

	// EncoderOption configures an Encoder.
	EncoderOption func(*Encoder)
)

// WithStringMode sets how strings are tagged.
func WithStringMode(m StringMode) EncoderOption {
	return func(e *Encoder) { e.strings = m }
}

// WithFloat32 narrows every float64 to float32 on the wire.
func WithFloat32() EncoderOption {
	return func(e *Encoder) { e.float32s = true }
}

// NewEncoder creates an Encoder.
func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEncoder = NewEncoder()

// Marshal encodes v with the default encoder.
func Marshal(v any) ([]byte, error) {
	return defaultEncoder.Encode(v)
}

// Encode returns the wire form of v.
func (e *Encoder) Encode(v any) ([]byte, error) {
	return e.Append(nil, v)
}

// Append appends the wire form of v to dst.
func (e *Encoder) Append(dst []byte, v any) ([]byte, error) {
	return e.appendValue(dst, v, 0)
}

//nolint:gocyclo // one case per supported Go type
func (e *Encoder) appendValue(dst []byte, v any, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return dst, ErrTooDeep
	}
	switch x := v.(type) {
	case nil:
		return AppendNil(dst), nil
	case bool:
		return AppendBool(dst, x), nil
	case int:
		return AppendInt(dst, int64(x)), nil
	case int8:
		return AppendInt(dst, int64(x)), nil
	case int16:
		return AppendInt(dst, int64(x)), nil
	case int32:
		return AppendInt(dst, int64(x)), nil
	case int64:
		return AppendInt(dst, x), nil
	case uint:
		return AppendUint(dst, uint64(x)), nil
	case uint8:
		return AppendUint(dst, uint64(x)), nil
	case uint16:
		return AppendUint(dst, uint64(x)), nil
	case uint32:
		return AppendUint(dst, uint64(x)), nil
	case uint64:
		return AppendUint(dst, x), nil
	case *big.Int:
		return appendBig(dst, x)
	case float32:
		return AppendFloat32(dst, x), nil
	case float64:
		if e.float32s {
			return AppendFloat32(dst, float32(x)), nil
		}
		return AppendFloat64(dst, x), nil
	case string:
		return e.appendString(dst, x), nil
	case []byte:
		return AppendBinary(dst, x), nil
	case Ext:
		return AppendExt(dst, x.Type, x.Data), nil
	case []string:
		dst = AppendArrayHeader(dst, uint32(len(x)))
		for _, s := range x {
			dst = e.appendString(dst, s)
		}
		return dst, nil
	case []any:
		dst = AppendArrayHeader(dst, uint32(len(x)))
		var err error
		for _, item := range x {
			if dst, err = e.appendValue(dst, item, depth+1); err != nil {
				return dst, err
			}
		}
		return dst, nil
	case Map:
		dst = AppendMapHeader(dst, uint32(len(x)))
		var err error
		for _, p := range x {
			if dst, err = e.appendValue(dst, p.Key, depth+1); err != nil {
				return dst, err
			}
			if dst, err = e.appendValue(dst, p.Value, depth+1); err != nil {
				return dst, err
			}
		}
		return dst, nil
	case map[string]any:
		// Go maps are unordered; sort keys so equal maps encode identically.
		keys := sortedKeys(x)
		dst = AppendMapHeader(dst, uint32(len(keys)))
		var err error
		for _, k := range keys {
			dst = e.appendString(dst, k)
			if dst, err = e.appendValue(dst, x[k], depth+1); err != nil {
				return dst, err
			}
		}
		return dst, nil
	case map[string]string:
		keys := sortedKeys(x)
		dst = AppendMapHeader(dst, uint32(len(keys)))
		for _, k := range keys {
			dst = e.appendString(dst, k)
			dst = e.appendString(dst, x[k])
		}
		return dst, nil
	case Marshaler:
		inner, err := x.MarshalCodec()
		if err != nil {
			return dst, err
		}
		return e.appendValue(dst, inner, depth+1)
	default:
		return dst, &UnsupportedTypeError{GoType: fmt.Sprintf("%T", v)}
	}
}

func (e *Encoder) appendString(dst []byte, s string) []byte {
	switch e.strings {
	case StringForce:
		return AppendString(dst, s)
	case BinaryForce:
		return AppendBinary(dst, []byte(s))
	default:
		if utf8.ValidString(s) {
			return AppendString(dst, s)
		}
		return AppendBinary(dst, []byte(s))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func appendBig(dst []byte, x *big.Int) ([]byte, error) {
	switch {
	case x == nil:
		return AppendNil(dst), nil
	case x.IsInt64():
		return AppendInt(dst, x.Int64()), nil
	case x.IsUint64():
		return AppendUint(dst, x.Uint64()), nil
	default:
		return dst, fmt.Errorf("%w: %s", ErrIntegerOverflow, x.String())
	}
}

// AppendNil appends a nil value.
func AppendNil(dst []byte) []byte {
	return append(dst, tagNil)
}

// AppendBool appends a boolean.
func AppendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, tagTrue)
	}
	return append(dst, tagFalse)
}

// AppendInt appends a signed integer using the narrowest tag that fits.
// Non-negative values are written with the unsigned family.
func AppendInt(dst []byte, n int64) []byte {
	switch {
	case n >= 0:
		return AppendUint(dst, uint64(n))
	case n >= -32:
		return append(dst, byte(int8(n)))
	case n >= math.MinInt8:
		return append(dst, tagInt8, byte(int8(n)))
	case n >= math.MinInt16:
		return binary.BigEndian.AppendUint16(append(dst, tagInt16), uint16(int16(n)))
	case n >= math.MinInt32:
		return binary.BigEndian.AppendUint32(append(dst, tagInt32), uint32(int32(n)))
	default:
		return binary.BigEndian.AppendUint64(append(dst, tagInt64), uint64(n))
	}
}

// AppendUint appends an unsigned integer using the narrowest tag that fits.
func AppendUint(dst []byte, n uint64) []byte {
	switch {
	case n <= uint64(tagPositiveFixIntMax):
		return append(dst, byte(n))
	case n <= math.MaxUint8:
		return append(dst, tagUint8, byte(n))
	case n <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(dst, tagUint16), uint16(n))
	case n <= math.MaxUint32:
		return binary.BigEndian.AppendUint32(append(dst, tagUint32), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(dst, tagUint64), n)
	}
}

// AppendFloat32 appends an IEEE 754 single.
func AppendFloat32(dst []byte, f float32) []byte {
	return binary.BigEndian.AppendUint32(append(dst, tagFloat32), math.Float32bits(f))
}

// AppendFloat64 appends an IEEE 754 double.
func AppendFloat64(dst []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(append(dst, tagFloat64), math.Float64bits(f))
}

// AppendString appends s tagged as str regardless of its content.
func AppendString(dst []byte, s string) []byte {
	n := len(s)
	switch {
	case n <= fixStrMaxLen:
		dst = append(dst, tagFixStr|byte(n))
	case n <= math.MaxUint8:
		dst = append(dst, tagStr8, byte(n))
	case n <= math.MaxUint16:
		dst = binary.BigEndian.AppendUint16(append(dst, tagStr16), uint16(n))
	default:
		dst = binary.BigEndian.AppendUint32(append(dst, tagStr32), uint32(n))
	}
	return append(dst, s...)
}

// AppendBinary appends b tagged as bin.
func AppendBinary(dst, b []byte) []byte {
	return append(AppendBinaryHeader(dst, len(b)), b...)
}

// AppendBinaryHeader appends only the bin tag and length for a payload of n
// bytes. The caller appends the payload itself.
func AppendBinaryHeader(dst []byte, n int) []byte {
	switch {
	case n <= math.MaxUint8:
		return append(dst, tagBin8, byte(n))
	case n <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(dst, tagBin16), uint16(n))
	default:
		return binary.BigEndian.AppendUint32(append(dst, tagBin32), uint32(n))
	}
}

// AppendArrayHeader appends the header of an array holding n elements.
func AppendArrayHeader(dst []byte, n uint32) []byte {
	switch {
	case n <= fixArrayMaxLen:
		return append(dst, tagFixArray|byte(n))
	case n <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(dst, tagArray16), uint16(n))
	default:
		return binary.BigEndian.AppendUint32(append(dst, tagArray32), n)
	}
}

// AppendMapHeader appends the header of a map holding n pairs.
func AppendMapHeader(dst []byte, n uint32) []byte {
	switch {
	case n <= fixMapMaxLen:
		return append(dst, tagFixMap|byte(n))
	case n <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(dst, tagMap16), uint16(n))
	default:
		return binary.BigEndian.AppendUint32(append(dst, tagMap32), n)
	}
}

// AppendExt appends an extension value.
func AppendExt(dst []byte, typ int8, data []byte) []byte {
	n := len(data)
	switch n {
	case 1:
		dst = append(dst, tagFixExt1)
	case 2:
		dst = append(dst, tagFixExt2)
	case 4:
		dst = append(dst, tagFixExt4)
	case 8:
		dst = append(dst, tagFixExt8)
	case 16:
		dst = append(dst, tagFixExt16)
	default:
		switch {
		case n <= math.MaxUint8:
			dst = append(dst, tagExt8, byte(n))
		case n <= math.MaxUint16:
			dst = binary.BigEndian.AppendUint16(append(dst, tagExt16), uint16(n))
		default:
			dst = binary.BigEndian.AppendUint32(append(dst, tagExt32), uint32(n))
		}
	}
	dst = append(dst, byte(typ))
	return append(dst, data...)
}

// SPDX-License-Identifier: MPL-2.0

package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"strconv"
)

// MaxDepth bounds the nesting of arrays and maps on both sides of the codec.
const MaxDepth = 512

// OverflowStrategy decides what a Decoder returns for unsigned 64-bit values
// that do not fit in int64.
type OverflowStrategy uint8

const (
	// OverflowString returns the value as its decimal string.
	OverflowString OverflowStrategy = iota
	// OverflowBigInt returns the value as a *big.Int.
	OverflowBigInt
	// OverflowError fails the decode with ErrIntegerOverflow.
	OverflowError
)

// String returns the strategy's name.
func (s OverflowStrategy) String() string {
	switch s {
	case OverflowString:
		return "string"
	case OverflowBigInt:
		return "bigint"
	case OverflowError:
		return "error"
	default:
		return "OverflowStrategy(" + strconv.Itoa(int(s)) + ")"
	}
}

type (
	// Decoder turns wire bytes back into Go values:
	//
	//	nil          -> nil
	//	bool         -> bool
	//	int family   -> int64 (see OverflowStrategy for large uint64)
	//	float32/64   -> float32 / float64
	//	str          -> string
	//	bin          -> []byte
	//	array        -> []any
	//	map          -> Map
	//	ext          -> Ext
	//
	// Options are fixed at construction; a Decoder is safe for concurrent use.
	Decoder struct {
		overflow OverflowStrategy
		logger   *slog.Logger
	}

	// DecoderOption configures a Decoder.
	DecoderOption func(*Decoder)
)

// WithOverflow selects the overflow strategy.
func WithOverflow(s OverflowStrategy) DecoderOption {
	return func(d *Decoder) { d.overflow = s }
}

// WithLogger sets the logger that receives overflow warnings.
func WithLogger(l *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDecoder creates a Decoder. The default overflow strategy is
// OverflowString.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		overflow: OverflowString,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Overflow returns the decoder's overflow strategy.
func (d *Decoder) Overflow() OverflowStrategy { return d.overflow }

var defaultDecoder = NewDecoder()

// Unmarshal decodes exactly one value from b with the default decoder.
func Unmarshal(b []byte) (any, error) {
	v, n, err := defaultDecoder.Decode(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("%w: %d byte(s)", ErrTrailingData, len(b)-n)
	}
	return v, nil
}

// Decode decodes the first value in b and returns it together with the
// number of bytes it occupied.
func (d *Decoder) Decode(b []byte) (any, int, error) {
	return d.DecodeAt(b, 0)
}

// DecodeAt decodes the value starting at pos and returns the position just
// past it.
func (d *Decoder) DecodeAt(b []byte, pos int) (any, int, error) {
	return d.value(b, pos, 0)
}

//nolint:gocyclo // one branch per tag family
func (d *Decoder) value(b []byte, pos, depth int) (any, int, error) {
	if depth > MaxDepth {
		return nil, pos, ErrTooDeep
	}
	if pos >= len(b) {
		return nil, pos, &IncompleteError{Offset: pos, Need: 1}
	}
	tag := b[pos]
	next := pos + 1

	switch {
	case tag <= tagPositiveFixIntMax:
		return int64(tag), next, nil
	case tag >= tagNegativeFixIntMin:
		return int64(int8(tag)), next, nil
	case tag&0xf0 == tagFixMap:
		return d.mapBody(b, next, int(tag&0x0f), depth)
	case tag&0xf0 == tagFixArray:
		return d.arrayBody(b, next, int(tag&0x0f), depth)
	case tag&0xe0 == tagFixStr:
		return stringBody(b, next, int(tag&0x1f))
	}

	switch tag {
	case tagNil:
		return nil, next, nil
	case tagFalse:
		return false, next, nil
	case tagTrue:
		return true, next, nil

	case tagUint8, tagUint16, tagUint32, tagUint64:
		u, p, err := readUint(b, next, uintWidth(tag))
		if err != nil {
			return nil, pos, err
		}
		if u > maxInt64 {
			v, err := d.overflowValue(u, pos)
			return v, p, err
		}
		return int64(u), p, nil

	case tagInt8:
		u, p, err := readUint(b, next, 1)
		return int64(int8(u)), p, err
	case tagInt16:
		u, p, err := readUint(b, next, 2)
		return int64(int16(u)), p, err
	case tagInt32:
		u, p, err := readUint(b, next, 4)
		return int64(int32(u)), p, err
	case tagInt64:
		u, p, err := readUint(b, next, 8)
		return int64(u), p, err

	case tagFloat32:
		u, p, err := readUint(b, next, 4)
		return math.Float32frombits(uint32(u)), p, err
	case tagFloat64:
		u, p, err := readUint(b, next, 8)
		return math.Float64frombits(u), p, err

	case tagStr8, tagStr16, tagStr32:
		n, p, err := readUint(b, next, lengthWidth(tag, tagStr8))
		if err != nil {
			return nil, pos, err
		}
		return stringBody(b, p, int(n))

	case tagBin8, tagBin16, tagBin32:
		n, p, err := readUint(b, next, lengthWidth(tag, tagBin8))
		if err != nil {
			return nil, pos, err
		}
		raw, p, err := readN(b, p, int(n))
		if err != nil {
			return nil, pos, err
		}
		return append([]byte(nil), raw...), p, nil

	case tagArray16, tagArray32:
		n, p, err := readUint(b, next, containerWidth(tag, tagArray16))
		if err != nil {
			return nil, pos, err
		}
		return d.arrayBody(b, p, int(n), depth)

	case tagMap16, tagMap32:
		n, p, err := readUint(b, next, containerWidth(tag, tagMap16))
		if err != nil {
			return nil, pos, err
		}
		return d.mapBody(b, p, int(n), depth)

	case tagFixExt1, tagFixExt2, tagFixExt4, tagFixExt8, tagFixExt16:
		return extBody(b, next, 1<<(tag-tagFixExt1))

	case tagExt8, tagExt16, tagExt32:
		n, p, err := readUint(b, next, lengthWidth(tag, tagExt8))
		if err != nil {
			return nil, pos, err
		}
		return extBody(b, p, int(n))
	}

	return nil, pos, &UnknownTagError{Tag: tag, Offset: pos}
}

func (d *Decoder) overflowValue(u uint64, pos int) (any, error) {
	switch d.overflow {
	case OverflowBigInt:
		d.logger.Debug("uint64 exceeds int64, returning big integer", "offset", pos)
		return new(big.Int).SetUint64(u), nil
	case OverflowError:
		return nil, fmt.Errorf("%w: %d at offset %d", ErrIntegerOverflow, u, pos)
	default:
		d.logger.Warn("uint64 exceeds int64, returning decimal string", "offset", pos)
		return strconv.FormatUint(u, 10), nil
	}
}

func (d *Decoder) arrayBody(b []byte, pos, n, depth int) (any, int, error) {
	// Every element takes at least one byte.
	if rest := len(b) - pos; n > rest {
		return nil, pos, &IncompleteError{Offset: pos, Need: n - rest}
	}
	out := make([]any, 0, n)
	for range n {
		v, p, err := d.value(b, pos, depth+1)
		if err != nil {
			return nil, p, err
		}
		out = append(out, v)
		pos = p
	}
	return out, pos, nil
}

func (d *Decoder) mapBody(b []byte, pos, n, depth int) (any, int, error) {
	if rest := len(b) - pos; 2*n > rest {
		return nil, pos, &IncompleteError{Offset: pos, Need: 2*n - rest}
	}
	out := make(Map, 0, n)
	for range n {
		k, p, err := d.value(b, pos, depth+1)
		if err != nil {
			return nil, p, err
		}
		v, p, err := d.value(b, p, depth+1)
		if err != nil {
			return nil, p, err
		}
		out = append(out, Pair{Key: k, Value: v})
		pos = p
	}
	return out, pos, nil
}

func stringBody(b []byte, pos, n int) (any, int, error) {
	raw, p, err := readN(b, pos, n)
	if err != nil {
		return nil, pos, err
	}
	return string(raw), p, nil
}

func extBody(b []byte, pos, n int) (any, int, error) {
	typ, p, err := readUint(b, pos, 1)
	if err != nil {
		return nil, pos, err
	}
	raw, p, err := readN(b, p, n)
	if err != nil {
		return nil, pos, err
	}
	return Ext{Type: int8(typ), Data: append([]byte(nil), raw...)}, p, nil
}

// readN returns the n bytes at pos without copying.
func readN(b []byte, pos, n int) ([]byte, int, error) {
	if n < 0 || pos+n > len(b) {
		return nil, pos, &IncompleteError{Offset: pos, Need: pos + n - len(b)}
	}
	return b[pos : pos+n], pos + n, nil
}

// readUint reads a big-endian unsigned integer of width 1, 2, 4 or 8.
func readUint(b []byte, pos, width int) (uint64, int, error) {
	raw, p, err := readN(b, pos, width)
	if err != nil {
		return 0, pos, err
	}
	switch width {
	case 1:
		return uint64(raw[0]), p, nil
	case 2:
		return uint64(binary.BigEndian.Uint16(raw)), p, nil
	case 4:
		return uint64(binary.BigEndian.Uint32(raw)), p, nil
	default:
		return binary.BigEndian.Uint64(raw), p, nil
	}
}

func uintWidth(tag byte) int {
	return 1 << (tag - tagUint8)
}

// lengthWidth maps the 8/16/32 members of a tag family to 1, 2 and 4.
func lengthWidth(tag, first byte) int {
	return 1 << (tag - first)
}

// containerWidth maps the 16/32 members of the array and map families to 2
// and 4.
func containerWidth(tag, first byte) int {
	return 2 << (tag - first)
}

// PeekBinary reports the layout of the bin value at pos: the offset of its
// payload and the payload length. It does not copy the payload.
func PeekBinary(b []byte, pos int) (payload, length int, err error) {
	if pos >= len(b) {
		return 0, 0, &IncompleteError{Offset: pos, Need: 1}
	}
	tag := b[pos]
	if !IsBinaryTag(tag) {
		return 0, 0, &UnknownTagError{Tag: tag, Offset: pos}
	}
	n, p, err := readUint(b, pos+1, lengthWidth(tag, tagBin8))
	if err != nil {
		return 0, 0, err
	}
	return p, int(n), nil
}

// SPDX-License-Identifier: MPL-2.0

package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrIncomplete is returned when the input ends before a value is complete.
	// Streaming callers may append more bytes and retry.
	ErrIncomplete = errors.New("insufficient data")

	// ErrUnknownTag is returned when the input contains a tag byte that does not
	// start any known value. It is not recoverable.
	ErrUnknownTag = errors.New("unknown type tag")

	// ErrIntegerOverflow is returned by decoders configured with OverflowError
	// when an unsigned value does not fit in int64, and by the encoder for
	// integers wider than 64 bits.
	ErrIntegerOverflow = errors.New("integer overflows 64 bits")

	// ErrUnsupportedType is returned when the encoder is handed a Go value it
	// does not know how to represent.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrTooDeep is returned when nested arrays and maps exceed MaxDepth.
	ErrTooDeep = errors.New("nesting too deep")

	// ErrTrailingData is returned by Unmarshal when bytes remain after the value.
	ErrTrailingData = errors.New("trailing data after value")
)

type (
	// IncompleteError reports where the input ran out and how many more bytes
	// the current value needed at minimum.
	IncompleteError struct {
		Offset int
		Need   int
	}

	// UnknownTagError reports an unrecognised tag byte and its position.
	UnknownTagError struct {
		Tag    byte
		Offset int
	}

	// UnsupportedTypeError names the Go type the encoder rejected.
	UnsupportedTypeError struct {
		GoType string
	}
)

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("insufficient data at offset %d: need %d more byte(s)", e.Offset, e.Need)
}

// Unwrap returns ErrIncomplete for errors.Is() compatibility.
func (e *IncompleteError) Unwrap() error { return ErrIncomplete }

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown type tag 0x%02x at offset %d", e.Tag, e.Offset)
}

// Unwrap returns ErrUnknownTag for errors.Is() compatibility.
func (e *UnknownTagError) Unwrap() error { return ErrUnknownTag }

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("cannot encode value of type %s", e.GoType)
}

// Unwrap returns ErrUnsupportedType for errors.Is() compatibility.
func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

// SPDX-License-Identifier: MPL-2.0

package codec

import "errors"

// Stream accumulates bytes that arrive in arbitrary chunks and yields every
// value that is complete so far. A Stream is not safe for concurrent use.
type Stream struct {
	dec *Decoder
	buf []byte
}

// NewStream creates a Stream decoding with dec, or with a default decoder
// when dec is nil.
func NewStream(dec *Decoder) *Stream {
	if dec == nil {
		dec = NewDecoder()
	}
	return &Stream{dec: dec}
}

// Write buffers p. It never fails.
func (s *Stream) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes not yet consumed by a decoded value.
func (s *Stream) Buffered() int { return len(s.buf) }

// TryDecode decodes as many whole values as the buffer holds. A trailing
// partial value stays buffered for the next call. Any error other than
// ErrIncomplete is returned along with the values decoded before it, and the
// offending bytes are left in the buffer.
func (s *Stream) TryDecode() ([]any, error) {
	var (
		out []any
		pos int
	)
	for pos < len(s.buf) {
		v, next, err := s.dec.DecodeAt(s.buf, pos)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			s.consume(pos)
			return out, err
		}
		out = append(out, v)
		pos = next
	}
	s.consume(pos)
	return out, nil
}

func (s *Stream) consume(n int) {
	if n == 0 {
		return
	}
	rest := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
}

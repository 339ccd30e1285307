// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressed items start with a method byte and the uvarint length of the
// uncompressed content. Content that does not shrink is stored as is.
const (
	methodStored byte = 0
	methodLZ4    byte = 1
	methodZstd   byte = 2

	// maxItemSize bounds the declared uncompressed size of one item.
	maxItemSize = 1 << 32
)

// zstd encoders and decoders are safe for concurrent use and costly to
// create, so one of each level is shared.
var (
	zstdDefault = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdBest = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	})
	zstdReader = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil)
	})
)

// compressItem returns the stored form of content at the given level.
func compressItem(level Compression, content []byte) ([]byte, error) {
	if level == CompressionNone {
		return content, nil
	}

	var (
		method = methodStored
		packed []byte
	)
	switch level {
	case CompressionLow:
		buf := make([]byte, lz4.CompressBlockBound(len(content)))
		n, err := lz4.CompressBlock(content, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n > 0 {
			method, packed = methodLZ4, buf[:n]
		}
	case CompressionMedium, CompressionHigh:
		get := zstdDefault
		if level == CompressionHigh {
			get = zstdBest
		}
		enc, err := get()
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		method, packed = methodZstd, enc.EncodeAll(content, nil)
	default:
		return nil, &UnsupportedCompressionError{Value: level.String()}
	}

	if method == methodStored || len(packed) >= len(content) {
		method, packed = methodStored, content
	}
	out := make([]byte, 0, 1+binary.MaxVarintLen64+len(packed))
	out = append(out, method)
	out = binary.AppendUvarint(out, uint64(len(content)))
	return append(out, packed...), nil
}

// decompressItem reverses compressItem.
func decompressItem(level Compression, stored []byte) ([]byte, error) {
	if level == CompressionNone {
		return stored, nil
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: empty compressed item", ErrCorruptPackage)
	}
	method := stored[0]
	size, n := binary.Uvarint(stored[1:])
	if n <= 0 || size > maxItemSize {
		return nil, fmt.Errorf("%w: bad compressed item length", ErrCorruptPackage)
	}
	body := stored[1+n:]

	switch method {
	case methodStored:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("%w: stored item is %d bytes, header says %d", ErrCorruptPackage, len(body), size)
		}
		return body, nil
	case methodLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %w", ErrCorruptPackage, err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("%w: lz4 produced %d bytes, expected %d", ErrCorruptPackage, read, size)
		}
		return out, nil
	case methodZstd:
		dec, err := zstdReader()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrCorruptPackage, err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("%w: zstd produced %d bytes, expected %d", ErrCorruptPackage, len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression method %d", ErrCorruptPackage, method)
	}
}

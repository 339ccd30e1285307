// SPDX-License-Identifier: MPL-2.0

package codec

// Wire tags. Fixed-width "fix" families carry their payload in the low bits
// of the tag byte.
const (
	tagPositiveFixIntMax byte = 0x7f
	tagFixMap            byte = 0x80
	tagFixArray          byte = 0x90
	tagFixStr            byte = 0xa0
	tagNil               byte = 0xc0
	tagNeverUsed         byte = 0xc1
	tagFalse             byte = 0xc2
	tagTrue              byte = 0xc3
	tagBin8              byte = 0xc4
	tagBin16             byte = 0xc5
	tagBin32             byte = 0xc6
	tagExt8              byte = 0xc7
	tagExt16             byte = 0xc8
	tagExt32             byte = 0xc9
	tagFloat32           byte = 0xca
	tagFloat64           byte = 0xcb
	tagUint8             byte = 0xcc
	tagUint16            byte = 0xcd
	tagUint32            byte = 0xce
	tagUint64            byte = 0xcf
	tagInt8              byte = 0xd0
	tagInt16             byte = 0xd1
	tagInt32             byte = 0xd2
	tagInt64             byte = 0xd3
	tagFixExt1           byte = 0xd4
	tagFixExt2           byte = 0xd5
	tagFixExt4           byte = 0xd6
	tagFixExt8           byte = 0xd7
	tagFixExt16          byte = 0xd8
	tagStr8              byte = 0xd9
	tagStr16             byte = 0xda
	tagStr32             byte = 0xdb
	tagArray16           byte = 0xdc
	tagArray32           byte = 0xdd
	tagMap16             byte = 0xde
	tagMap32             byte = 0xdf
	tagNegativeFixIntMin byte = 0xe0

	fixStrMaxLen   = 31
	fixArrayMaxLen = 15
	fixMapMaxLen   = 15
)

// IsBinaryTag reports whether b opens a bin8, bin16 or bin32 value.
func IsBinaryTag(b byte) bool {
	return b == tagBin8 || b == tagBin16 || b == tagBin32
}

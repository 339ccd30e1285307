// SPDX-License-Identifier: MPL-2.0

package ncc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/nccbuild/ncc/pkg/codec"
)

func TestNewComponent_DataTypes(t *testing.T) {
	t.Parallel()

	raw := []byte("<?php echo 'hi';\n")
	tests := []struct {
		dataType DataType
		stored   []byte
	}{
		{DataTypeBinary, raw},
		{DataTypePlainText, raw},
		{DataTypeEncodedText, []byte("PD9waHAgZWNobyAnaGknOwo=")},
		{DataTypeStructuredAst, raw},
	}

	for _, tt := range tests {
		t.Run(tt.dataType.String(), func(t *testing.T) {
			t.Parallel()

			c, err := NewComponent("main.php", raw, tt.dataType)
			if err != nil {
				t.Fatalf("NewComponent() failed: %v", err)
			}
			if !bytes.Equal(c.Data, tt.stored) {
				t.Errorf("Data = %q, want %q", c.Data, tt.stored)
			}
			got, err := c.Contents()
			if err != nil {
				t.Fatalf("Contents() failed: %v", err)
			}
			if !bytes.Equal(got, raw) {
				t.Errorf("Contents() = %q, want %q", got, raw)
			}
		})
	}
}

func TestNewComponent_PlainTextRejectsBinary(t *testing.T) {
	t.Parallel()

	if _, err := NewComponent("blob", []byte{0xff, 0xfe, 0x00}, DataTypePlainText); err == nil {
		t.Error("NewComponent() accepted invalid UTF-8 as plain text")
	}
}

func TestComponent_ChecksumMismatch(t *testing.T) {
	t.Parallel()

	c, err := NewComponent("a.php", []byte("one"), DataTypeBinary)
	if err != nil {
		t.Fatalf("NewComponent() failed: %v", err)
	}
	c.Data = []byte("two")
	if _, err := c.Contents(); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Contents() = %v, want ErrChecksumMismatch", err)
	}

	r := NewResource("r", []byte("one"))
	r.Data[0] = 'x'
	if err := r.Verify(); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Verify() = %v, want ErrChecksumMismatch", err)
	}
}

func TestParseDataType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    DataType
		wantErr bool
	}{
		{"binary", DataTypeBinary, false},
		{"plain", DataTypePlainText, false},
		{"b64enc", DataTypeEncodedText, false},
		{"", DataTypeEncodedText, false},
		{"ast", DataTypeStructuredAst, false},
		{"rot13", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDataType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDataType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDataType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEntities_HashedKeys(t *testing.T) {
	t.Parallel()

	v, err := NewResource("r.txt", []byte("r")).MarshalCodec()
	if err != nil {
		t.Fatalf("MarshalCodec() failed: %v", err)
	}
	m, ok := v.(codec.Map)
	if !ok {
		t.Fatalf("MarshalCodec() returned %T, want codec.Map", v)
	}
	if _, ok := m.Get(key("name")); !ok {
		t.Error("resource map has no CRC-32 key for name")
	}
	if key("name") != 0x5E237E06 {
		t.Errorf("key(name) = %#x, want the IEEE CRC-32 0x5e237e06", key("name"))
	}
}

func TestEntities_DecodeStringKeys(t *testing.T) {
	t.Parallel()

	v := codec.Map{
		{Key: "name", Value: "legacy.txt"},
		{Key: "checksum", Value: ""},
		{Key: "data", Value: []byte("old")},
	}
	r, err := decodeResource(v)
	if err != nil {
		t.Fatalf("decodeResource() failed: %v", err)
	}
	if r.Name != "legacy.txt" || string(r.Data) != "old" {
		t.Errorf("decodeResource() = %+v", r)
	}
}

func TestEntities_DecodeWrongType(t *testing.T) {
	t.Parallel()

	if _, err := decodeResource([]any{"not", "a", "map"}); !errors.Is(err, ErrCorruptPackage) {
		t.Errorf("decodeResource(array) = %v, want ErrCorruptPackage", err)
	}
	v := codec.Map{{Key: key("name"), Value: int64(7)}}
	if _, err := decodeResource(v); err == nil {
		t.Error("decodeResource() accepted an integer name")
	}
}

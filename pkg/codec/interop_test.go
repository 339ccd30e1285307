// SPDX-License-Identifier: MPL-2.0

package codec

import (
	"math"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type interopRecord struct {
	Name  string   `msgpack:"name"`
	Count int64    `msgpack:"count"`
	Neg   int64    `msgpack:"neg"`
	Big   uint64   `msgpack:"big"`
	Ratio float64  `msgpack:"ratio"`
	Tags  []string `msgpack:"tags"`
	Raw   []byte   `msgpack:"raw"`
	Ok    bool     `msgpack:"ok"`
}

func TestInterop_EncodedBytesReadByMsgpack(t *testing.T) {
	t.Parallel()

	b, err := Marshal(Map{
		{Key: "name", Value: "com.example.app"},
		{Key: "count", Value: 65536},
		{Key: "neg", Value: -129},
		{Key: "big", Value: uint64(math.MaxUint64)},
		{Key: "ratio", Value: 0.25},
		{Key: "tags", Value: []string{"a", "b"}},
		{Key: "raw", Value: []byte{1, 2, 3}},
		{Key: "ok", Value: true},
	})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var got interopRecord
	if err := msgpack.Unmarshal(b, &got); err != nil {
		t.Fatalf("msgpack.Unmarshal() failed: %v", err)
	}

	if got.Name != "com.example.app" || got.Count != 65536 || got.Neg != -129 {
		t.Errorf("scalars = %+v", got)
	}
	if got.Big != math.MaxUint64 || got.Ratio != 0.25 || !got.Ok {
		t.Errorf("wide values = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[1] != "b" || len(got.Raw) != 3 {
		t.Errorf("collections = %+v", got)
	}
}

func TestInterop_MsgpackBytesReadByDecoder(t *testing.T) {
	t.Parallel()

	b, err := msgpack.Marshal(&interopRecord{
		Name:  "x",
		Count: -5,
		Big:   math.MaxUint64,
		Tags:  []string{"t"},
		Raw:   []byte{9},
	})
	if err != nil {
		t.Fatalf("msgpack.Marshal() failed: %v", err)
	}

	v, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	m, ok := v.(Map)
	if !ok {
		t.Fatalf("Unmarshal() returned %T, want Map", v)
	}

	checks := map[string]any{
		"name":  "x",
		"count": int64(-5),
		"big":   "18446744073709551615",
		"ok":    false,
	}
	for key, want := range checks {
		if got, _ := m.Get(key); got != want {
			t.Errorf("%s = %v (%T), want %v", key, got, got, want)
		}
	}
	if raw, _ := m.Get("raw"); len(raw.([]byte)) != 1 {
		t.Errorf("raw = %v", raw)
	}
}

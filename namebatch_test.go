package uasset

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildNameBatch encodes a minimal name-batch blob (ASCII-only names) in
// the layout readNameBatch expects: count, string-byte count (unused),
// 8-byte hash version, one 8-byte hash per name (unused), one 2-byte
// length header per name, then the concatenated name bytes.
func buildNameBatch(names []string) []byte {
	var buf bytes.Buffer
	write32 := func(v int32) { binary.Write(&buf, binary.LittleEndian, v) }
	write32(int32(len(names)))
	write32(0) // numStringBytes, unused by the reader
	buf.Write(make([]byte, 8))                 // hash version
	buf.Write(make([]byte, 8*len(names)))       // per-name hashes
	for _, n := range names {
		binary.Write(&buf, binary.LittleEndian, uint16(len(n)))
	}
	for _, n := range names {
		buf.WriteString(n)
	}
	return buf.Bytes()
}

func TestReadNameBatch(t *testing.T) {
	want := []string{"Foo", "Bar", "Baz"}
	r := NewArchiveReader(buildNameBatch(want))
	got, ok := readNameBatch(r)
	if !ok {
		t.Fatal("readNameBatch failed")
	}
	if len(got) != len(want) {
		t.Fatalf("got %d names, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadNameBatchTruncated(t *testing.T) {
	full := buildNameBatch([]string{"Foo"})
	r := NewArchiveReader(full[:len(full)-1])
	if _, ok := readNameBatch(r); ok {
		t.Fatal("expected truncated name batch to fail")
	}
}

func TestMappedNameResolve(t *testing.T) {
	names := []string{"Texture2D", "StaticMesh"}

	m := MappedName{Index: 0}
	if got := m.Resolve(names); got != "Texture2D" {
		t.Errorf("got %q", got)
	}

	withSuffix := MappedName{Index: 1, ExtraIndex: 3}
	if got := withSuffix.Resolve(names); got != "StaticMesh_2" {
		t.Errorf("got %q, want StaticMesh_2", got)
	}

	outOfRange := MappedName{Index: 99}
	if got := outOfRange.Resolve(names); got != "" {
		t.Errorf("got %q, want empty for out-of-range index", got)
	}
}

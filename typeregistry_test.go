package uasset

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildUsmapBody encodes the uncompressed usmap body: name table, an empty
// enum table, then a single type "Pawn" with one int32 field "Health".
func buildUsmapBody() []byte {
	var buf bytes.Buffer
	names := []string{"Pawn", "Health"}
	binary.Write(&buf, binary.LittleEndian, int32(len(names)))
	for _, n := range names {
		buf.WriteByte(byte(len(n)))
		buf.WriteString(n)
	}

	binary.Write(&buf, binary.LittleEndian, int32(0)) // enumCount

	binary.Write(&buf, binary.LittleEndian, int32(1)) // typeCount
	binary.Write(&buf, binary.LittleEndian, int32(0))  // nameIdx -> "Pawn"
	binary.Write(&buf, binary.LittleEndian, int32(-1)) // superIdx -> none
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // propCount
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // serializedCount
	binary.Write(&buf, binary.LittleEndian, uint16(0)) // schemaIdx
	buf.WriteByte(1)                                   // arrayDim
	binary.Write(&buf, binary.LittleEndian, int32(1))  // fieldNameIdx -> "Health"
	buf.WriteByte(3)                                   // usmap property tag 3 == KindInt32

	return buf.Bytes()
}

func buildUsmapBlob() []byte {
	body := buildUsmapBody()
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint16(usmapMagic))
	buf.WriteByte(0) // version 0: skips the optional versioning block entirely
	buf.WriteByte(byte(usmapCompressionNone))
	binary.Write(&buf, binary.LittleEndian, uint32(len(body)))
	binary.Write(&buf, binary.LittleEndian, uint32(len(body)))
	buf.Write(body)
	return buf.Bytes()
}

func TestLoadUsmap(t *testing.T) {
	tr := NewTypeRegistry(NewCodecs())
	if err := tr.LoadUsmap(buildUsmapBlob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def, ok := tr.LookupType("Pawn")
	if !ok {
		t.Fatal("expected Pawn to be registered")
	}
	if len(def.Fields) != 1 {
		t.Fatalf("got %d fields, want 1", len(def.Fields))
	}
	field := def.Fields[0]
	if field.Name != "Health" || field.Type.Kind != KindInt32 {
		t.Fatalf("got field %+v", field)
	}

	// Case-insensitive lookup.
	if _, ok := tr.LookupType("pawn"); !ok {
		t.Error("expected case-insensitive lookup to succeed")
	}
}

func TestLoadUsmapRejectsBadMagic(t *testing.T) {
	tr := NewTypeRegistry(NewCodecs())
	data := buildUsmapBlob()
	data[0] = 0x00
	data[1] = 0x00
	if err := tr.LoadUsmap(data); err == nil {
		t.Fatal("expected an error for a bad usmap magic")
	}
}

func TestFlattenedFieldsCachesResult(t *testing.T) {
	tr := NewTypeRegistry(NewCodecs())
	tr.RegisterType(&TypeDefinition{
		Name:   "Simple",
		Fields: []PropertySchemaField{{Name: "A", Type: PropertyType{Kind: KindBool}}},
	})
	def, _ := tr.LookupType("Simple")
	first := tr.FlattenedFields(def)
	second := tr.FlattenedFields(def)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got lengths %d, %d, want 1, 1", len(first), len(second))
	}
	if &first[0] != &second[0] {
		// The cache returns the same underlying slice once computed rather
		// than recomputing.
		t.Fatalf("flattened fields recomputed across calls, want the cached slice")
	}
}

func TestResolveAssetTypeCachesNegativeMisses(t *testing.T) {
	calls := 0
	tr := NewTypeRegistry(NewCodecs())
	tr.SetAssetTypeResolver(func(assetPath string) (string, bool) {
		calls++
		return "", false
	})
	for i := 0; i < 3; i++ {
		if _, ok := tr.ResolveAssetType("/Game/Unknown"); ok {
			t.Fatal("expected resolver to report a miss")
		}
	}
	if calls != 1 {
		t.Fatalf("resolver called %d times, want 1 (subsequent misses should be cached)", calls)
	}
}

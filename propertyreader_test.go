package uasset

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func writeFName(buf *bytes.Buffer, idx, number int32) {
	binary.Write(buf, binary.LittleEndian, idx)
	binary.Write(buf, binary.LittleEndian, number)
}

func TestReadTaggedPropertiesEmpty(t *testing.T) {
	names := []string{"None"}
	var buf bytes.Buffer
	writeFName(&buf, 0, 0) // "None" sentinel, no number suffix

	r := NewArchiveReader(buf.Bytes())
	bag, diags, err := ReadTaggedProperties(r, names, nil, "Widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	if bag.Len() != 0 {
		t.Fatalf("expected empty bag, got %d entries", bag.Len())
	}
}

func TestReadTaggedPropertiesInt(t *testing.T) {
	names := []string{"None", "IntProperty", "MyIntProp"}
	var buf bytes.Buffer
	writeFName(&buf, 2, 0)                             // property name "MyIntProp"
	writeFName(&buf, 1, 0)                             // type tag "IntProperty"
	binary.Write(&buf, binary.LittleEndian, int32(4))  // declared size
	binary.Write(&buf, binary.LittleEndian, int32(0))  // array index
	buf.WriteByte(0)                                   // hasGuid = false
	binary.Write(&buf, binary.LittleEndian, int32(42)) // value
	writeFName(&buf, 0, 0)                              // "None" sentinel

	r := NewArchiveReader(buf.Bytes())
	bag, diags, err := ReadTaggedProperties(r, names, nil, "Widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	v, ok := bag.Get("MyIntProp")
	if !ok {
		t.Fatal("expected MyIntProp to be set")
	}
	if v.Int != 42 {
		t.Fatalf("got %d, want 42", v.Int)
	}
}

func TestReadTaggedPropertiesBoolInline(t *testing.T) {
	names := []string{"None", "BoolProperty", "bEnabled"}
	var buf bytes.Buffer
	writeFName(&buf, 2, 0)                            // property name "bEnabled"
	writeFName(&buf, 1, 0)                            // type tag "BoolProperty"
	binary.Write(&buf, binary.LittleEndian, int32(0)) // declared size is 0; value lives in the tag
	binary.Write(&buf, binary.LittleEndian, int32(0)) // array index
	buf.WriteByte(1)                                  // inline bool value = true
	buf.WriteByte(0)                                  // hasGuid = false
	writeFName(&buf, 0, 0)                             // "None" sentinel

	r := NewArchiveReader(buf.Bytes())
	bag, _, err := ReadTaggedProperties(r, names, nil, "Widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := bag.Get("bEnabled")
	if !ok || !v.Bool {
		t.Fatalf("got (%v, %v), want (true, true)", v.Bool, ok)
	}
}

func TestReadTaggedPropertiesSizeMismatchRecovers(t *testing.T) {
	names := []string{"None", "IntProperty", "MyIntProp", "Next", "IntProperty2"}
	var buf bytes.Buffer
	writeFName(&buf, 2, 0)                              // "MyIntProp"
	writeFName(&buf, 1, 0)                              // "IntProperty"
	binary.Write(&buf, binary.LittleEndian, int32(8))   // declared size says 8, but only 4 follow
	binary.Write(&buf, binary.LittleEndian, int32(0))   // array index
	buf.WriteByte(0)                                    // hasGuid
	binary.Write(&buf, binary.LittleEndian, int32(7))   // value
	buf.Write(make([]byte, 4))                           // padding to honor the declared (wrong) size
	writeFName(&buf, 0, 0)                               // "None" sentinel

	r := NewArchiveReader(buf.Bytes())
	bag, diags, err := ReadTaggedProperties(r, names, nil, "Widget")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diags) == 0 {
		t.Fatal("expected a size-mismatch diagnostic")
	}
	v, _ := bag.Get("MyIntProp")
	if v.Int != 7 {
		t.Fatalf("got %d, want 7", v.Int)
	}
}

func TestReadUnversionedPropertiesMissingSchema(t *testing.T) {
	registry := NewTypeRegistry(NewCodecs())
	r := NewArchiveReader([]byte{})
	_, diags, err := ReadUnversionedProperties(r, nil, registry, "Nonexistent")
	if err == nil {
		t.Fatal("expected an error for a missing schema")
	}
	if len(diags) == 0 {
		t.Fatal("expected a missing-schema diagnostic")
	}
}

func TestReadUnversionedPropertiesSingleField(t *testing.T) {
	registry := NewTypeRegistry(NewCodecs())
	registry.RegisterType(&TypeDefinition{
		Name: "Pawn",
		Fields: []PropertySchemaField{
			{Name: "Health", Type: PropertyType{Kind: KindInt32}},
		},
	})

	var buf bytes.Buffer
	header := uint16(1<<8 | 1<<15) // skipNum=0, valueNum=1, isLast=true, no zero mask
	binary.Write(&buf, binary.LittleEndian, header)
	binary.Write(&buf, binary.LittleEndian, int32(99))

	r := NewArchiveReader(buf.Bytes())
	bag, diags, err := ReadUnversionedProperties(r, nil, registry, "Pawn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
	v, ok := bag.Get("Health")
	if !ok || v.Int != 99 {
		t.Fatalf("got (%d, %v), want (99, true)", v.Int, ok)
	}
}

func TestReadUnversionedPropertiesSkipsFields(t *testing.T) {
	registry := NewTypeRegistry(NewCodecs())
	registry.RegisterType(&TypeDefinition{
		Name: "Pawn",
		Fields: []PropertySchemaField{
			{Name: "Health", Type: PropertyType{Kind: KindInt32}},
			{Name: "Mana", Type: PropertyType{Kind: KindInt32}},
		},
	})

	var buf bytes.Buffer
	header := uint16(1 | 1<<8 | 1<<15) // skipNum=1 (Health), valueNum=1 (Mana), isLast=true
	binary.Write(&buf, binary.LittleEndian, header)
	binary.Write(&buf, binary.LittleEndian, int32(55))

	r := NewArchiveReader(buf.Bytes())
	bag, _, err := ReadUnversionedProperties(r, nil, registry, "Pawn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := bag.Get("Health"); ok {
		t.Fatal("Health should have been skipped, not set")
	}
	v, ok := bag.Get("Mana")
	if !ok || v.Int != 55 {
		t.Fatalf("got (%d, %v), want (55, true)", v.Int, ok)
	}
}

func TestReadUnversionedPropertiesZeroMask(t *testing.T) {
	registry := NewTypeRegistry(NewCodecs())
	registry.RegisterType(&TypeDefinition{
		Name: "Pawn",
		Fields: []PropertySchemaField{
			{Name: "Health", Type: PropertyType{Kind: KindInt32}},
			{Name: "Mana", Type: PropertyType{Kind: KindInt32}},
		},
	})

	var buf bytes.Buffer
	header := uint16(1<<7 | 2<<8 | 1<<15) // hasAnyZeroes, valueNum=2, isLast=true
	binary.Write(&buf, binary.LittleEndian, header)
	buf.WriteByte(0x01)                                // bit0 set: Health is zero-defaulted
	binary.Write(&buf, binary.LittleEndian, int32(77)) // Mana's actual value

	r := NewArchiveReader(buf.Bytes())
	bag, _, err := ReadUnversionedProperties(r, nil, registry, "Pawn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	health, ok := bag.Get("Health")
	if !ok || health.Int != 0 {
		t.Fatalf("got (%d, %v), want (0, true) for zero-masked field", health.Int, ok)
	}
	mana, ok := bag.Get("Mana")
	if !ok || mana.Int != 77 {
		t.Fatalf("got (%d, %v), want (77, true)", mana.Int, ok)
	}
}

func TestFlattenedFieldsIncludesSuperclass(t *testing.T) {
	registry := NewTypeRegistry(NewCodecs())
	registry.RegisterType(&TypeDefinition{
		Name:   "Actor",
		Fields: []PropertySchemaField{{Name: "Tag", Type: PropertyType{Kind: KindName}}},
	})
	registry.RegisterType(&TypeDefinition{
		Name:      "Pawn",
		SuperName: "Actor",
		Fields:    []PropertySchemaField{{Name: "Health", Type: PropertyType{Kind: KindInt32}}},
	})

	pawn, ok := registry.LookupType("Pawn")
	if !ok {
		t.Fatal("expected Pawn to resolve")
	}
	flat := registry.FlattenedFields(pawn)
	if len(flat) != 2 {
		t.Fatalf("got %d fields, want 2", len(flat))
	}
	if flat[0].Name != "Tag" || flat[0].Index != 0 {
		t.Errorf("got %+v, want Tag at index 0", flat[0])
	}
	if flat[1].Name != "Health" || flat[1].Index != 1 {
		t.Errorf("got %+v, want Health at index 1", flat[1])
	}
}

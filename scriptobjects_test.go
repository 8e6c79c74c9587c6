package uasset

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildGlobalScriptObjectsBlob(names []string, entries []struct {
	nameIndex   uint32
	globalIndex uint64
	outerIndex  uint64
}) []byte {
	var buf bytes.Buffer
	buf.Write(buildNameBatch(names))
	binary.Write(&buf, binary.LittleEndian, int32(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, e.nameIndex) // MappedName.Index
		binary.Write(&buf, binary.LittleEndian, uint32(0))   // MappedName.ExtraIndex
		binary.Write(&buf, binary.LittleEndian, e.globalIndex)
		binary.Write(&buf, binary.LittleEndian, e.outerIndex)
		binary.Write(&buf, binary.LittleEndian, uint64(0)) // cdoClassIndex
	}
	return buf.Bytes()
}

func TestParseGlobalScriptObjectsAndModuleResolution(t *testing.T) {
	names := []string{"/Script/Engine", "Actor"}
	entries := []struct {
		nameIndex   uint32
		globalIndex uint64
		outerIndex  uint64
	}{
		{nameIndex: 0, globalIndex: 100, outerIndex: 0},
		{nameIndex: 1, globalIndex: 200, outerIndex: 100},
	}
	blob := buildGlobalScriptObjectsBlob(names, entries)

	idx := NewScriptObjectIndex()
	if err := idx.ParseGlobalScriptObjects(blob); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("got %d entries, want 2", idx.Len())
	}

	actor, ok := idx.Resolve(200)
	if !ok {
		t.Fatal("expected to resolve global index 200")
	}
	if actor.ObjectName != "Actor" {
		t.Errorf("got object name %q", actor.ObjectName)
	}
	if actor.ModuleName != "Engine" {
		t.Errorf("got module name %q, want Engine", actor.ModuleName)
	}

	objName, pkgPath, ok := idx.ResolveWithModule(200)
	if !ok || objName != "Actor" || pkgPath != "/Script/Engine" {
		t.Fatalf("got (%q, %q, %v), want (Actor, /Script/Engine, true)", objName, pkgPath, ok)
	}
}

func TestScriptObjectIndexResolveMiss(t *testing.T) {
	idx := NewScriptObjectIndex()
	if _, ok := idx.Resolve(999); ok {
		t.Fatal("expected miss on empty index")
	}
	objName, pkgPath, ok := idx.ResolveWithModule(999)
	if ok {
		t.Fatal("expected ResolveWithModule to report a miss")
	}
	if pkgPath != "/Script" {
		t.Errorf("got fallback package path %q, want /Script", pkgPath)
	}
	if objName == "" {
		t.Error("expected a non-empty placeholder object name")
	}
}

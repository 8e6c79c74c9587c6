package uasset

import (
	"fmt"
	"strings"
)

// ScriptObjectEntry is one resolved engine-builtin "script" object: a class,
// function, or package known to the engine at cook time rather than
// authored as game content.
type ScriptObjectEntry struct {
	ObjectName  string
	ModuleName  string
	OuterIndex  uint64
	CDOClassIndex uint64
}

// ScriptObjectIndex resolves a 64-bit packed script-import index (as found
// on Zen import-table entries and UAsset PackageIndex references into
// engine code) to the object and module name it names.
type ScriptObjectIndex struct {
	byGlobalIndex map[uint64]ScriptObjectEntry
}

// NewScriptObjectIndex constructs an empty index; entries are populated by
// ParseGlobalScriptObjects.
func NewScriptObjectIndex() *ScriptObjectIndex {
	return &ScriptObjectIndex{byGlobalIndex: make(map[uint64]ScriptObjectEntry)}
}

// ParseGlobalScriptObjects decodes the ScriptObjects chunk found in
// global.ucas (chunk type IoChunkScriptObjects): a name batch followed by a
// count and, per entry, a mapped name (the object's own name), its global
// index, its outer index, and its CDO class index.
func (idx *ScriptObjectIndex) ParseGlobalScriptObjects(data []byte) error {
	r := NewArchiveReader(data)
	names, ok := readNameBatch(r)
	if !ok {
		return fmt.Errorf("%w: script object name batch", ErrInvalidFormat)
	}

	count, ok := r.TryReadI32()
	if !ok || count < 0 {
		return fmt.Errorf("%w: script object count", ErrInvalidFormat)
	}

	for i := int32(0); i < count; i++ {
		mapped, ok := readMappedName(r)
		if !ok {
			return fmt.Errorf("%w: script object entry %d mapped name", ErrInvalidFormat, i)
		}
		globalIndex, ok := r.TryReadU64()
		if !ok {
			return fmt.Errorf("%w: script object entry %d global index", ErrInvalidFormat, i)
		}
		outerIndex, ok := r.TryReadU64()
		if !ok {
			return fmt.Errorf("%w: script object entry %d outer index", ErrInvalidFormat, i)
		}
		cdoClassIndex, ok := r.TryReadU64()
		if !ok {
			return fmt.Errorf("%w: script object entry %d cdo class index", ErrInvalidFormat, i)
		}

		idx.byGlobalIndex[globalIndex] = ScriptObjectEntry{
			ObjectName:    mapped.Resolve(names),
			OuterIndex:    outerIndex,
			CDOClassIndex: cdoClassIndex,
		}
	}

	// A second pass derives each entry's module name by walking Outer links
	// up to a root object whose name looks like "/Script/<Module>".
	for key, entry := range idx.byGlobalIndex {
		entry.ModuleName = idx.moduleNameFor(entry)
		idx.byGlobalIndex[key] = entry
	}
	return nil
}

func (idx *ScriptObjectIndex) moduleNameFor(entry ScriptObjectEntry) string {
	seen := map[uint64]bool{}
	cur := entry
	for i := 0; i < 64; i++ {
		if strings.HasPrefix(cur.ObjectName, "/Script/") {
			return strings.TrimPrefix(cur.ObjectName, "/Script/")
		}
		if seen[cur.OuterIndex] {
			break
		}
		seen[cur.OuterIndex] = true
		next, ok := idx.byGlobalIndex[cur.OuterIndex]
		if !ok {
			break
		}
		cur = next
	}
	return ""
}

// Len returns the number of script objects currently indexed.
func (idx *ScriptObjectIndex) Len() int { return len(idx.byGlobalIndex) }

// Resolve looks up a script import by its raw 64-bit typeAndId.
func (idx *ScriptObjectIndex) Resolve(rawID uint64) (ScriptObjectEntry, bool) {
	e, ok := idx.byGlobalIndex[rawID]
	return e, ok
}

// ResolveWithModule resolves a script import and returns a ready-to-use
// (objectName, packagePath) pair, falling back to a deterministic
// placeholder on miss per spec section 4.5.
func (idx *ScriptObjectIndex) ResolveWithModule(rawID uint64) (objectName, packagePath string, ok bool) {
	e, found := idx.Resolve(rawID)
	if !found {
		return fmt.Sprintf("ScriptImport_0x%x", rawID), "/Script", false
	}
	if e.ModuleName == "" {
		return e.ObjectName, "/Script", true
	}
	return e.ObjectName, "/Script/" + e.ModuleName, true
}

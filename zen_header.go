package uasset

import "fmt"

const maxZenHeaderSize = 500 * 1024 * 1024
const maxZenCustomVersions = 10000

// ZenResolver supplies the cross-cutting lookups a Zen header parse needs
// but does not own: the global name table (for mapped names whose high
// bits select the global table over the local one) and the script object
// index (for resolving ScriptImport-tagged imports at parse time).
type ZenResolver struct {
	GlobalNames  []string
	ScriptObjects *ScriptObjectIndex
}

// ParseZenHeader decodes a modern Zen package summary, name table, import
// table and export table into a uniform AssetMetadata. The version-
// dependent trailer (single graphDataOffset for UE 5.0-5.2, or three
// dependency-bundle fields for UE 5.3+) is disambiguated with the
// monotonic-offset heuristic from spec section 4.5 -- preserved exactly
// per the Open Question in spec section 9 rather than guessing from an
// engine version field.
func ParseZenHeader(data []byte, packageName string, resolver ZenResolver) (*AssetMetadata, error) {
	r := NewArchiveReader(data)

	hasVersioningInfo, ok := r.TryReadU32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	headerSize, ok := r.TryReadU32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	if headerSize == 0 || headerSize > maxZenHeaderSize {
		return nil, fmt.Errorf("%w: implausible zen header size %d", ErrInvalidFormat, headerSize)
	}
	nameMapped, ok := readMappedName(r)
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	packageFlags, ok := r.TryReadU32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	cookedHeaderSize, ok := r.TryReadU32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	importedHashesOffset, ok := r.TryReadI32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	importMapOffset, ok := r.TryReadI32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	exportMapOffset, ok := r.TryReadI32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}
	exportBundleEntriesOffset, ok := r.TryReadI32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen summary", ErrInvalidFormat)
	}

	for _, off := range []int32{importedHashesOffset, importMapOffset, exportMapOffset, exportBundleEntriesOffset} {
		if off < 0 || uint32(off) > headerSize {
			return nil, fmt.Errorf("%w: zen summary offset out of bounds", ErrInvalidFormat)
		}
	}

	// Disambiguate the version-dependent trailer: try the three-field
	// UE5.3+ form first; accept it only if the offsets are monotonically
	// non-decreasing and strictly less than headerSize, else rewind and
	// treat the summary as the single-field UE5.0-5.2 form.
	trailerStart := r.Position()
	var importedPackageNamesOffset int32 = -1
	depBundleHeaders, ok1 := r.TryReadI32()
	depBundleEntries, ok2 := r.TryReadI32()
	pkgNamesOffset, ok3 := r.TryReadI32()
	threeFieldValid := ok1 && ok2 && ok3 &&
		depBundleHeaders >= 0 && depBundleEntries >= depBundleHeaders && pkgNamesOffset >= depBundleEntries &&
		uint32(depBundleHeaders) < headerSize && uint32(depBundleEntries) < headerSize && uint32(pkgNamesOffset) < headerSize
	if threeFieldValid {
		importedPackageNamesOffset = pkgNamesOffset
	} else {
		r.Seek(trailerStart)
		if _, ok := r.TryReadI32(); !ok { // graphDataOffset, unused by this model
			return nil, fmt.Errorf("%w: truncated zen summary trailer", ErrInvalidFormat)
		}
	}

	if hasVersioningInfo != 0 {
		if !r.Skip(4 + 8 + 4) { // ZenVersion + PackageVersion + LicenseeVersion
			return nil, fmt.Errorf("%w: truncated zen versioning info", ErrInvalidFormat)
		}
		count, ok := r.TryReadI32()
		if !ok || count < 0 || count > maxZenCustomVersions {
			return nil, fmt.Errorf("%w: implausible zen custom version count", ErrInvalidFormat)
		}
		if !r.Skip(int64(count) * 20) {
			return nil, fmt.Errorf("%w: truncated zen custom versions", ErrInvalidFormat)
		}
	}

	localNames, ok := readNameBatch(r)
	if !ok {
		return nil, fmt.Errorf("%w: truncated zen name batch", ErrInvalidFormat)
	}

	meta := &AssetMetadata{
		PackageName:      packageName,
		NameTable:        localNames,
		IsUnversioned:    true,
		CookedHeaderSize: cookedHeaderSize,
	}
	_ = packageFlags
	_ = nameMapped

	hashCount := 0
	if importMapOffset > importedHashesOffset {
		hashCount = int(importMapOffset-importedHashesOffset) / 8
	}
	meta.ImportedPublicExportHashes = make([]uint64, 0, hashCount)
	for i := 0; i < hashCount; i++ {
		h, ok := r.TryReadU64()
		if !ok {
			return nil, fmt.Errorf("%w: truncated imported public export hashes", ErrInvalidFormat)
		}
		meta.ImportedPublicExportHashes = append(meta.ImportedPublicExportHashes, h)
	}

	if importedPackageNamesOffset >= 0 {
		count, ok := r.TryReadI32()
		if !ok || count < 0 {
			return nil, fmt.Errorf("%w: truncated imported package name count", ErrInvalidFormat)
		}
		meta.ImportedPackageNames = make([]string, 0, count)
		for i := int32(0); i < count; i++ {
			s, ok := r.TryReadFString()
			if !ok {
				return nil, fmt.Errorf("%w: truncated imported package name %d", ErrInvalidFormat, i)
			}
			meta.ImportedPackageNames = append(meta.ImportedPackageNames, s)
		}
	}

	importCount := 0
	if exportMapOffset > importMapOffset {
		importCount = int(exportMapOffset-importMapOffset) / 8
	}
	meta.Imports = make([]AssetImport, 0, importCount)
	for i := 0; i < importCount; i++ {
		typeAndID, ok := r.TryReadU64()
		if !ok {
			return nil, fmt.Errorf("%w: truncated import %d", ErrInvalidFormat, i)
		}
		meta.Imports = append(meta.Imports, decodeZenImport(typeAndID, meta, resolver))
	}

	exportCount := 0
	const exportRecordSize = 72
	if exportBundleEntriesOffset > exportMapOffset {
		exportCount = int(exportBundleEntriesOffset-exportMapOffset) / exportRecordSize
	}
	meta.Exports = make([]AssetExport, 0, exportCount)
	for i := 0; i < exportCount; i++ {
		exp, err := readZenExport(r, meta.NameTable, resolver.GlobalNames)
		if err != nil {
			return nil, fmt.Errorf("export %d: %w", i, err)
		}
		meta.Exports = append(meta.Exports, exp)
	}

	return meta, nil
}

func decodeZenImport(typeAndID uint64, meta *AssetMetadata, resolver ZenResolver) AssetImport {
	tag := typeAndID >> 62
	switch tag {
	case 1: // ScriptImport
		objectName, packagePath, found := resolveScriptImport(typeAndID, resolver.ScriptObjects)
		return AssetImport{
			Variant:     ImportScript,
			Name:        objectName,
			ClassName:   "Class",
			PackageName: packagePath,
			PublicExportHashIndex: -1,
			IsResolved:  found,
			RawScriptID: typeAndID,
		}
	case 2: // PackageImport
		value := typeAndID &^ (uint64(3) << 62)
		pkgIdx := uint32(value >> 32)
		hashIdx := uint32(value & 0xFFFFFFFF)
		name := fmt.Sprintf("PackageImport_%d_%d", pkgIdx, hashIdx)
		packageName := fmt.Sprintf("/Package_%d", pkgIdx)
		if int(pkgIdx) < len(meta.ImportedPackageNames) {
			packageName = meta.ImportedPackageNames[pkgIdx]
			name = basePathName(packageName)
		}
		return AssetImport{
			Variant:               ImportPackage,
			Name:                  name,
			PackageName:           packageName,
			PublicExportHashIndex: int(hashIdx),
			RawPackageIdx:         pkgIdx,
			RawHashIdx:            hashIdx,
		}
	default:
		return AssetImport{
			Variant:               ImportOther,
			Name:                  fmt.Sprintf("UnknownImport_0x%x", typeAndID),
			PublicExportHashIndex: -1,
		}
	}
}

func resolveScriptImport(typeAndID uint64, idx *ScriptObjectIndex) (objectName, packagePath string, found bool) {
	if idx == nil {
		return fmt.Sprintf("ScriptImport_0x%x", typeAndID), "/Script", false
	}
	return idx.ResolveWithModule(typeAndID)
}

func basePathName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func readZenExport(r *ArchiveReader, localNames, globalNames []string) (AssetExport, error) {
	cookedSerialOffset, ok := r.TryReadU64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	cookedSerialSize, ok := r.TryReadU64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	nameRaw, ok := r.TryReadU32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	nameExtra, ok := r.TryReadU32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	outer, ok := r.TryReadU64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	class, ok := r.TryReadU64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	super, ok := r.TryReadU64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	template, ok := r.TryReadU64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	publicExportHash, ok := r.TryReadU64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	objectFlags, ok := r.TryReadU32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}

	// FilterFlags (u8) and three bytes of padding complete the 72-byte record.
	if !r.Skip(4) {
		return AssetExport{}, ErrStreamOverrun
	}

	// The top two bits of the raw name index select the name table; a
	// non-zero selector refers to the global table.
	nameMapped := MappedName{Index: nameRaw & 0x3FFFFFFF, ExtraIndex: nameExtra}
	names := localNames
	if nameRaw>>30 != 0 {
		names = globalNames
	}

	return AssetExport{
		Name:             nameMapped.Resolve(names),
		SerialOffset:     cookedSerialOffset,
		SerialSize:       cookedSerialSize,
		OuterIndex:       ParsePackageObjectIndex(outer),
		ObjectFlags:      objectFlags,
		IsPublic:         objectFlags&1 != 0,
		PublicExportHash: publicExportHash,
		ClassRef:         ParsePackageObjectIndex(class),
		SuperRef:         ParsePackageObjectIndex(super),
		TemplateRef:      ParsePackageObjectIndex(template),
	}, nil
}

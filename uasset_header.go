package uasset

import "fmt"

const uassetMagic = 0x9E2A83C1
const pkgFlagUnversionedProperties = 0x2000

// ParseUAssetHeader decodes a legacy tagged UAsset package summary plus its
// name/import/export tables into a uniform AssetMetadata. Grounded on the
// teacher's fixed-offset-summary idiom (dosheader.go/ntheader.go: a known
// struct at a known offset, read with a bounds-checked cursor).
func ParseUAssetHeader(data []byte, packageName string) (*AssetMetadata, error) {
	r := NewArchiveReader(data)

	magic, ok := r.TryReadU32()
	if !ok || magic != uassetMagic {
		return nil, fmt.Errorf("%w: uasset magic mismatch", ErrInvalidFormat)
	}

	if _, ok := r.TryReadI32(); !ok { // LegacyVersion
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	if _, ok := r.TryReadI32(); !ok { // LegacyUE3Version
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	if _, ok := r.TryReadI32(); !ok { // FileVersionUE4
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	if _, ok := r.TryReadI32(); !ok { // FileVersionLicenseeUE4
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	customVersionCount, ok := r.TryReadI32()
	if !ok || customVersionCount < 0 || customVersionCount > 10000 {
		return nil, fmt.Errorf("%w: implausible custom version count", ErrInvalidFormat)
	}
	if !r.Skip(int64(customVersionCount) * 20) {
		return nil, fmt.Errorf("%w: truncated custom versions", ErrInvalidFormat)
	}

	totalHeaderSize, ok := r.TryReadI32()
	_ = totalHeaderSize
	if !ok {
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	if _, ok := r.TryReadFString(); !ok { // FolderName
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	packageFlags, ok := r.TryReadU32()
	if !ok {
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}

	nameCount, ok1 := r.TryReadI32()
	nameOffset, ok2 := r.TryReadI32()
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	if _, ok := r.TryReadI32(); !ok { // GatherableTextDataCount
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	if _, ok := r.TryReadI32(); !ok { // GatherableTextDataOffset
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	exportCount, ok1 := r.TryReadI32()
	exportOffset, ok2 := r.TryReadI32()
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	importCount, ok1 := r.TryReadI32()
	importOffset, ok2 := r.TryReadI32()
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}
	if _, ok := r.TryReadI32(); !ok { // DependsOffset
		return nil, fmt.Errorf("%w: truncated uasset summary", ErrInvalidFormat)
	}

	meta := &AssetMetadata{
		PackageName:      packageName,
		IsUnversioned:    packageFlags&pkgFlagUnversionedProperties != 0,
		CookedHeaderSize: uint32(totalHeaderSize),
	}

	if nameOffset < 0 || int(nameOffset) > len(data) {
		return nil, fmt.Errorf("%w: name table offset out of bounds", ErrInvalidFormat)
	}
	nameReader := NewArchiveReader(data)
	nameReader.Seek(int64(nameOffset))
	meta.NameTable = make([]string, 0, nameCount)
	for i := int32(0); i < nameCount; i++ {
		name, ok := nameReader.TryReadFString()
		if !ok {
			return nil, fmt.Errorf("%w: truncated name table entry %d", ErrInvalidFormat, i)
		}
		// Each name entry is followed by a NameEntryId/hash pair used for
		// case-preserving comparisons; not needed for display.
		if !nameReader.Skip(4) {
			return nil, fmt.Errorf("%w: truncated name table hash", ErrInvalidFormat)
		}
		meta.NameTable = append(meta.NameTable, name)
	}

	if importOffset < 0 || int(importOffset) > len(data) {
		return nil, fmt.Errorf("%w: import table offset out of bounds", ErrInvalidFormat)
	}
	importReader := NewArchiveReader(data)
	importReader.Seek(int64(importOffset))
	meta.Imports = make([]AssetImport, 0, importCount)
	for i := int32(0); i < importCount; i++ {
		imp, err := readUAssetImport(importReader, meta.NameTable)
		if err != nil {
			return nil, fmt.Errorf("import %d: %w", i, err)
		}
		meta.Imports = append(meta.Imports, imp)
	}

	if exportOffset < 0 || int(exportOffset) > len(data) {
		return nil, fmt.Errorf("%w: export table offset out of bounds", ErrInvalidFormat)
	}
	exportReader := NewArchiveReader(data)
	exportReader.Seek(int64(exportOffset))
	meta.Exports = make([]AssetExport, 0, exportCount)
	for i := int32(0); i < exportCount; i++ {
		exp, err := readUAssetExport(exportReader, meta.NameTable)
		if err != nil {
			return nil, fmt.Errorf("export %d: %w", i, err)
		}
		meta.Exports = append(meta.Exports, exp)
	}

	return meta, nil
}

// packageIndexToObject converts a signed UAsset PackageIndex
// (positive=export+1, negative=-(import+1), zero=null) into a
// PackageObjectIndex so both header dialects share one resolution path.
func packageIndexToObject(raw int32) PackageObjectIndex {
	switch {
	case raw > 0:
		return PackageObjectIndex{Tag: PackageObjectExport, Value: uint64(raw - 1)}
	case raw < 0:
		return PackageObjectIndex{Tag: PackageObjectPackageImport, Value: uint64(-raw - 1)}
	default:
		return PackageObjectIndex{Tag: PackageObjectNull}
	}
}

func readUAssetImport(r *ArchiveReader, names []string) (AssetImport, error) {
	classPackageIdx, ok := r.TryReadI32()
	if !ok {
		return AssetImport{}, ErrStreamOverrun
	}
	classNameIdx, ok := r.TryReadI32()
	if !ok {
		return AssetImport{}, ErrStreamOverrun
	}
	if _, ok := r.TryReadI32(); !ok { // OuterIndex
		return AssetImport{}, ErrStreamOverrun
	}
	objectNameIdx, ok := r.TryReadI32()
	if !ok {
		return AssetImport{}, ErrStreamOverrun
	}

	nameAt := func(idx int32) string {
		if idx < 0 || int(idx) >= len(names) {
			return ""
		}
		return names[idx]
	}

	_ = classPackageIdx
	return AssetImport{
		Variant:               ImportOther,
		Name:                  nameAt(objectNameIdx),
		ClassName:             nameAt(classNameIdx),
		PublicExportHashIndex: -1,
	}, nil
}

func readUAssetExport(r *ArchiveReader, names []string) (AssetExport, error) {
	classIndex, ok := r.TryReadI32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	superIndex, ok := r.TryReadI32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	templateIndex, ok := r.TryReadI32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	outerIndex, ok := r.TryReadI32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	objectNameIdx, ok := r.TryReadI32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	if !r.Skip(4) { // object name number suffix
		return AssetExport{}, ErrStreamOverrun
	}
	objectFlags, ok := r.TryReadU32()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	serialSize, ok := r.TryReadI64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	serialOffset, ok := r.TryReadI64()
	if !ok {
		return AssetExport{}, ErrStreamOverrun
	}
	// Remaining legacy fields (forced export, not-for-client/server, bools,
	// package guid, package flags, not-always-loaded-for-editor-game,
	// is-asset, first/serialized export dependencies, public export hash)
	// are skipped here since they carry no information this model needs
	// beyond the public export hash, which the tagged UAsset dialect does
	// not predate -- current cookers emit it as a trailing optional u64.
	if !r.Skip(4 * 7) {
		return AssetExport{}, ErrStreamOverrun
	}
	publicExportHash, _ := r.TryReadU64()

	nameAt := func(idx int32) string {
		if idx < 0 || int(idx) >= len(names) {
			return ""
		}
		return names[idx]
	}

	return AssetExport{
		Name:             nameAt(objectNameIdx),
		SerialOffset:     uint64(serialOffset),
		SerialSize:       uint64(serialSize),
		OuterIndex:       packageIndexToObject(outerIndex),
		ObjectFlags:      objectFlags,
		IsPublic:         objectFlags&1 != 0,
		PublicExportHash: publicExportHash,
		ClassRef:         packageIndexToObject(classIndex),
		SuperRef:         packageIndexToObject(superIndex),
		TemplateRef:      packageIndexToObject(templateIndex),
	}, nil
}

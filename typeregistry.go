package uasset

import (
	"fmt"
	"strings"
)

const usmapMagic = 0x30C4
const maxUsmapNames = 1_000_000
const maxUsmapTypes = 1_000_000

// usmapCompressionMethod mirrors the byte codes a .usmap-style blob uses to
// tag its own compression, distinct from (but overlapping in spirit with)
// Pak/IoStore's CompressionMethod since a schema blob ships as one opaque
// compressed span rather than a block table.
type usmapCompressionMethod uint8

const (
	usmapCompressionNone usmapCompressionMethod = iota
	usmapCompressionOodle
	usmapCompressionBrotli
	usmapCompressionZStandard
)

// PropertySchemaField is one flattened field slot of a resolved type: its
// wire name, its shape, and the zero-based index unversioned property
// streams address it by.
type PropertySchemaField struct {
	Index int
	Name  string
	Type  PropertyType
	ArrayDim int // static array size; 1 for a scalar field
}

// TypeDefinition is one class or struct entry of a loaded type-mapping
// blob: its own declared fields plus a pointer to its parent for
// inheritance resolution.
type TypeDefinition struct {
	Name       string
	SuperName  string
	Fields     []PropertySchemaField

	super *TypeDefinition // resolved lazily by resolveSuper

	flattened      []PropertySchemaField // super's fields followed by own, computed once
	flattenedReady bool
}

// EnumDefinition names the values of one enum, in declaration order.
type EnumDefinition struct {
	Name   string
	Values []string
}

// TypeRegistry holds every type and enum definition loaded from a
// .usmap-style blob (or registered programmatically) and computes, once
// per type and on demand, the flattened field layout an unversioned
// property stream needs to walk.
//
// Grounded on the teacher's metadata-table row readers
// (dotnet_metadata_tables.go): a fixed binary table format decoded
// sequentially into Go structs, here additionally gated behind a
// compression stage.
type TypeRegistry struct {
	codecs *Codecs

	names []string
	enums map[string]*EnumDefinition
	types map[string]*TypeDefinition

	resolver func(assetPath string) (string, bool) // lazy asset-path -> type-name resolver
	negativeResolveCache map[string]bool
}

// NewTypeRegistry constructs an empty registry; types are populated by
// LoadUsmap or RegisterType.
func NewTypeRegistry(codecs *Codecs) *TypeRegistry {
	return &TypeRegistry{
		codecs:               codecs,
		enums:                make(map[string]*EnumDefinition),
		types:                make(map[string]*TypeDefinition),
		negativeResolveCache: make(map[string]bool),
	}
}

// SetAssetTypeResolver installs the callback used to map an asset's
// package path to the engine class name whose schema should be used for
// unversioned reads of that asset, when the class name cannot be read
// directly off the export table. Resolutions that return ok=false are
// cached so repeated lookups of an unresolvable asset don't re-run the
// (potentially expensive) callback.
func (tr *TypeRegistry) SetAssetTypeResolver(resolver func(assetPath string) (string, bool)) {
	tr.resolver = resolver
}

// ResolveAssetType looks up the schema type name for assetPath, consulting
// the installed resolver and caching failures.
func (tr *TypeRegistry) ResolveAssetType(assetPath string) (string, bool) {
	if tr.negativeResolveCache[assetPath] {
		return "", false
	}
	if tr.resolver == nil {
		return "", false
	}
	name, ok := tr.resolver(assetPath)
	if !ok {
		tr.negativeResolveCache[assetPath] = true
	}
	return name, ok
}

// RegisterType installs a type definition directly, bypassing blob
// parsing; used by tests and by callers that already have a schema.
func (tr *TypeRegistry) RegisterType(def *TypeDefinition) {
	tr.types[strings.ToLower(def.Name)] = def
}

// RegisterEnum installs an enum definition directly.
func (tr *TypeRegistry) RegisterEnum(def *EnumDefinition) {
	tr.enums[strings.ToLower(def.Name)] = def
}

// LookupType returns the type definition for name, case-insensitively.
func (tr *TypeRegistry) LookupType(name string) (*TypeDefinition, bool) {
	def, ok := tr.types[strings.ToLower(name)]
	return def, ok
}

// LookupEnum returns the enum definition for name, case-insensitively.
func (tr *TypeRegistry) LookupEnum(name string) (*EnumDefinition, bool) {
	def, ok := tr.enums[strings.ToLower(name)]
	return def, ok
}

// FlattenedFields returns def's complete field layout -- its resolved
// superclass chain's fields in order, followed by its own -- computing and
// caching it on first call. This is the index space an unversioned
// property stream's fragment header addresses.
func (tr *TypeRegistry) FlattenedFields(def *TypeDefinition) []PropertySchemaField {
	if def.flattenedReady {
		return def.flattened
	}
	tr.resolveSuper(def)

	var flat []PropertySchemaField
	if def.super != nil {
		flat = append(flat, tr.FlattenedFields(def.super)...)
	}
	base := len(flat)
	for i, f := range def.Fields {
		f.Index = base + i
		flat = append(flat, f)
	}

	def.flattened = flat
	def.flattenedReady = true
	return flat
}

func (tr *TypeRegistry) resolveSuper(def *TypeDefinition) {
	if def.super != nil || def.SuperName == "" {
		return
	}
	if super, ok := tr.LookupType(def.SuperName); ok {
		def.super = super
	}
}

// LoadUsmap decodes a .usmap-style type-mapping blob: magic, version,
// optional compression, name table, enum table, and type table. The name
// table replaces the previous one; enums and types are added to this
// registry's contents, overwriting any existing entry of the same name.
func (tr *TypeRegistry) LoadUsmap(data []byte) error {
	r := NewArchiveReader(data)

	magic, ok := r.TryReadU16()
	if !ok || magic != usmapMagic {
		return fmt.Errorf("%w: usmap magic mismatch", ErrInvalidFormat)
	}
	version, ok := r.TryReadU8()
	if !ok || version > 4 {
		return fmt.Errorf("%w: unsupported usmap version %d", ErrInvalidFormat, version)
	}

	if version >= 3 { // PackageVersioning
		hasVersioning, ok := r.TryReadBool()
		if !ok {
			return fmt.Errorf("%w: truncated usmap versioning flag", ErrInvalidFormat)
		}
		if hasVersioning {
			if !r.Skip(4 + 4) { // FileVersionUE4 + FileVersionUE5
				return fmt.Errorf("%w: truncated usmap package version", ErrInvalidFormat)
			}
			count, ok := r.TryReadI32()
			if !ok || count < 0 || count > maxZenCustomVersions {
				return fmt.Errorf("%w: implausible usmap custom version count", ErrInvalidFormat)
			}
			if !r.Skip(int64(count) * 20) {
				return fmt.Errorf("%w: truncated usmap custom versions", ErrInvalidFormat)
			}
			if !r.Skip(4) { // net object version / licensee version
				return fmt.Errorf("%w: truncated usmap package version tail", ErrInvalidFormat)
			}
		}
	}

	method, ok := r.TryReadU8()
	if !ok {
		return fmt.Errorf("%w: truncated usmap compression method", ErrInvalidFormat)
	}
	compressedSize, ok1 := r.TryReadU32()
	decompressedSize, ok2 := r.TryReadU32()
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: truncated usmap size header", ErrInvalidFormat)
	}

	payload, ok := r.TryReadBytes(int(compressedSize))
	if !ok {
		return fmt.Errorf("%w: truncated usmap payload", ErrInvalidFormat)
	}

	body, err := tr.decompressUsmapPayload(payload, usmapCompressionMethod(method), int(decompressedSize))
	if err != nil {
		return err
	}

	return tr.parseUsmapBody(body)
}

func (tr *TypeRegistry) decompressUsmapPayload(payload []byte, method usmapCompressionMethod, decompressedSize int) ([]byte, error) {
	switch method {
	case usmapCompressionNone:
		return payload, nil
	case usmapCompressionBrotli:
		return tr.codecs.Decompress(payload, decompressedSize, CompressionBrotli)
	case usmapCompressionZStandard:
		return tr.codecs.Decompress(payload, decompressedSize, CompressionZstd)
	case usmapCompressionOodle:
		return tr.codecs.Decompress(payload, decompressedSize, CompressionOodle)
	default:
		return nil, fmt.Errorf("%w: usmap compression method %d", ErrUnsupportedCodec, method)
	}
}

func (tr *TypeRegistry) parseUsmapBody(body []byte) error {
	r := NewArchiveReader(body)

	nameCount, ok := r.TryReadI32()
	if !ok || nameCount < 0 || nameCount > maxUsmapNames {
		return fmt.Errorf("%w: implausible usmap name count", ErrInvalidFormat)
	}
	names := make([]string, 0, nameCount)
	for i := int32(0); i < nameCount; i++ {
		length, ok := r.TryReadU8()
		if !ok {
			return fmt.Errorf("%w: truncated usmap name %d length", ErrInvalidFormat, i)
		}
		raw, ok := r.TryReadBytes(int(length))
		if !ok {
			return fmt.Errorf("%w: truncated usmap name %d", ErrInvalidFormat, i)
		}
		names = append(names, string(raw))
	}
	tr.names = names

	nameAt := func(idx int32) string {
		if idx < 0 || int(idx) >= len(names) {
			return ""
		}
		return names[idx]
	}

	enumCount, ok := r.TryReadI32()
	if !ok || enumCount < 0 || enumCount > maxUsmapTypes {
		return fmt.Errorf("%w: implausible usmap enum count", ErrInvalidFormat)
	}
	for i := int32(0); i < enumCount; i++ {
		enumNameIdx, ok := r.TryReadI32()
		if !ok {
			return fmt.Errorf("%w: truncated usmap enum %d name", ErrInvalidFormat, i)
		}
		valueCount, ok := r.TryReadU8()
		if !ok {
			return fmt.Errorf("%w: truncated usmap enum %d value count", ErrInvalidFormat, i)
		}
		values := make([]string, 0, valueCount)
		for j := 0; j < int(valueCount); j++ {
			valIdx, ok := r.TryReadI32()
			if !ok {
				return fmt.Errorf("%w: truncated usmap enum %d value %d", ErrInvalidFormat, i, j)
			}
			values = append(values, nameAt(valIdx))
		}
		def := &EnumDefinition{Name: nameAt(enumNameIdx), Values: values}
		tr.enums[strings.ToLower(def.Name)] = def
	}

	typeCount, ok := r.TryReadI32()
	if !ok || typeCount < 0 || typeCount > maxUsmapTypes {
		return fmt.Errorf("%w: implausible usmap type count", ErrInvalidFormat)
	}
	for i := int32(0); i < typeCount; i++ {
		def, err := readUsmapType(r, nameAt)
		if err != nil {
			return fmt.Errorf("usmap type %d: %w", i, err)
		}
		tr.types[strings.ToLower(def.Name)] = def
	}

	return nil
}

func readUsmapType(r *ArchiveReader, nameAt func(int32) string) (*TypeDefinition, error) {
	nameIdx, ok := r.TryReadI32()
	if !ok {
		return nil, ErrStreamOverrun
	}
	superIdx, ok := r.TryReadI32()
	if !ok {
		return nil, ErrStreamOverrun
	}
	propCount, ok := r.TryReadU16()
	if !ok {
		return nil, ErrStreamOverrun
	}
	serializedCount, ok := r.TryReadU16()
	if !ok {
		return nil, ErrStreamOverrun
	}
	_ = propCount

	def := &TypeDefinition{
		Name:      nameAt(nameIdx),
		SuperName: nameAt(superIdx),
	}

	for i := 0; i < int(serializedCount); i++ {
		schemaIdx, ok := r.TryReadU16()
		if !ok {
			return nil, ErrStreamOverrun
		}
		arrayDim, ok := r.TryReadU8()
		if !ok {
			return nil, ErrStreamOverrun
		}
		fieldNameIdx, ok := r.TryReadI32()
		if !ok {
			return nil, ErrStreamOverrun
		}
		propType, err := readUsmapPropertyType(r, nameAt)
		if err != nil {
			return nil, err
		}

		field := PropertySchemaField{
			Index:    int(schemaIdx),
			Name:     nameAt(fieldNameIdx),
			Type:     propType,
			ArrayDim: int(arrayDim),
		}
		if field.ArrayDim < 1 {
			field.ArrayDim = 1
		}
		// A static array of N contiguously addresses schema slots
		// schemaIdx..schemaIdx+N-1, each carrying the element type.
		for d := 0; d < field.ArrayDim; d++ {
			slot := field
			slot.Index = int(schemaIdx) + d
			def.Fields = append(def.Fields, slot)
		}
	}

	return def, nil
}

// readUsmapPropertyType reads a usmap property descriptor, whose leading
// tag byte identifies its shape, distinct from the tagged-property FName
// scheme PropertyKind otherwise decodes from.
func readUsmapPropertyType(r *ArchiveReader, nameAt func(int32) string) (PropertyType, error) {
	tag, ok := r.TryReadU8()
	if !ok {
		return PropertyType{}, ErrStreamOverrun
	}
	kind := usmapTagToKind(tag)

	switch kind {
	case KindEnum:
		inner, err := readUsmapPropertyType(r, nameAt)
		if err != nil {
			return PropertyType{}, err
		}
		enumNameIdx, ok := r.TryReadI32()
		if !ok {
			return PropertyType{}, ErrStreamOverrun
		}
		return PropertyType{Kind: KindEnum, EnumName: nameAt(enumNameIdx), Inner: &inner}, nil

	case KindStruct:
		structNameIdx, ok := r.TryReadI32()
		if !ok {
			return PropertyType{}, ErrStreamOverrun
		}
		return PropertyType{Kind: KindStruct, StructName: nameAt(structNameIdx)}, nil

	case KindArray, KindSet, KindOptional:
		inner, err := readUsmapPropertyType(r, nameAt)
		if err != nil {
			return PropertyType{}, err
		}
		return PropertyType{Kind: kind, Inner: &inner}, nil

	case KindMap:
		keyType, err := readUsmapPropertyType(r, nameAt)
		if err != nil {
			return PropertyType{}, err
		}
		valType, err := readUsmapPropertyType(r, nameAt)
		if err != nil {
			return PropertyType{}, err
		}
		return PropertyType{Kind: KindMap, Inner: &keyType, Value: &valType}, nil

	default:
		return PropertyType{Kind: kind}, nil
	}
}

// usmapTagToKind maps the .usmap format's own small property-tag byte
// space to PropertyKind with a straight cast: a tag up to KindFieldPath is
// taken as that PropertyKind value, and any larger tag is KindUnknown.
func usmapTagToKind(tag uint8) PropertyKind {
	if tag <= uint8(KindFieldPath) {
		return PropertyKind(tag)
	}
	return KindUnknown
}

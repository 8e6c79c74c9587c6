package uasset

import "fmt"

const maxUnversionedFragments = 50
const maxBoundedCollectionCount = 1 << 24

// propertyContext threads the read cursor, the owning package's name
// table, and the type schema through one property-stream decode, and
// accumulates non-fatal Diagnostics instead of aborting on every
// recoverable oddity. A fatal diagnostic (schema overrun, runaway
// fragment count, stream overrun) still halts the read -- the caller
// checks ctx.fatal after the loop exits.
type propertyContext struct {
	r        *ArchiveReader
	names    []string
	registry *TypeRegistry

	diagnostics []Diagnostic
	fatal       bool
}

func newPropertyContext(r *ArchiveReader, names []string, registry *TypeRegistry) *propertyContext {
	return &propertyContext{r: r, names: names, registry: registry}
}

func (c *propertyContext) diag(code DiagnosticCode, detail string) {
	c.diagnostics = append(c.diagnostics, Diagnostic{Code: code, Position: c.r.Position(), Detail: detail})
	if code.fatal() {
		c.fatal = true
	}
}

// readFName reads the legacy (index, number) FName encoding used inline
// within tagged property streams -- distinct from MappedName, which Zen
// headers use for their own, differently-packed name references.
func readFName(r *ArchiveReader, names []string) (string, bool) {
	idx, ok := r.TryReadI32()
	if !ok {
		return "", false
	}
	number, ok := r.TryReadI32()
	if !ok {
		return "", false
	}
	base := ""
	if idx >= 0 && int(idx) < len(names) {
		base = names[idx]
	}
	if number > 0 {
		return fmt.Sprintf("%s_%d", base, number-1), true
	}
	return base, true
}

// ReadTaggedProperties decodes a self-describing tagged property stream:
// a sequence of (name, type, size, value) tags terminated by the sentinel
// name "None". Each tag's declared size is authoritative -- if a value
// reader consumes a different number of bytes, the cursor is forced back
// to the tag's declared end and a DiagSizeMismatch is recorded rather than
// letting the stream desynchronize.
func ReadTaggedProperties(r *ArchiveReader, names []string, registry *TypeRegistry, typeName string) (*PropertyBag, []Diagnostic, error) {
	ctx := newPropertyContext(r, names, registry)
	bag := NewPropertyBag(typeName)

	for {
		name, ok := readFName(r, names)
		if !ok {
			ctx.diag(DiagStreamOverrun, "truncated property name")
			break
		}
		if name == "None" {
			break
		}

		typeTag, ok := readFName(r, names)
		if !ok {
			ctx.diag(DiagStreamOverrun, "truncated property type tag")
			break
		}
		size, ok := r.TryReadI32()
		if !ok {
			ctx.diag(DiagStreamOverrun, "truncated property size")
			break
		}
		if _, ok := r.TryReadI32(); !ok { // array index (fixed-size C arrays); collapsed into one slot
			ctx.diag(DiagStreamOverrun, "truncated property array index")
			break
		}

		kind := ParsePropertyKind(typeTag)
		if kind == KindUnknown {
			ctx.diag(DiagUnknownTaggedType, typeTag)
		}

		propType, boolInline, ok := readTaggedTypeExtra(r, kind, names)
		if !ok {
			ctx.diag(DiagStreamOverrun, "truncated property tag extra data")
			break
		}

		if hasGuid, ok := r.TryReadBool(); ok && hasGuid {
			if _, ok := r.TryReadGUID(); !ok {
				ctx.diag(DiagStreamOverrun, "truncated property guid")
				break
			}
		} else if !ok {
			ctx.diag(DiagStreamOverrun, "truncated property guid flag")
			break
		}

		valueStart := r.Position()
		var value PropertyValue
		if kind == KindBool {
			value = PropertyValue{Type: propType, Bool: boolInline}
		} else {
			value = readTaggedValue(ctx, propType)
			if ctx.fatal {
				break
			}
		}

		consumed := r.Position() - valueStart
		if consumed != int64(size) {
			ctx.diag(DiagSizeMismatch, fmt.Sprintf("%s: declared %d, consumed %d", name, size, consumed))
			if !r.Seek(valueStart + int64(size)) {
				ctx.diag(DiagStreamOverrun, "could not reseek past mismatched property")
				break
			}
		}

		bag.Set(name, value)
	}

	if ctx.fatal {
		return bag, ctx.diagnostics, ErrStreamOverrun
	}
	return bag, ctx.diagnostics, nil
}

// readTaggedTypeExtra reads the per-kind header data a tagged property
// carries ahead of its value (struct name/guid, enum name, container inner
// type names), and synthesizes the PropertyType the value reader needs.
// For KindBool, the tag's "extra data" IS the value (Unreal inlines a
// BoolProperty's value into its tag rather than giving it a body), so the
// boolean is returned directly.
func readTaggedTypeExtra(r *ArchiveReader, kind PropertyKind, names []string) (PropertyType, bool, bool) {
	switch kind {
	case KindBool:
		v, ok := r.TryReadBool()
		return PropertyType{Kind: KindBool}, v, ok

	case KindByte, KindEnum:
		enumName, ok := readFName(r, names)
		if !ok {
			return PropertyType{}, false, false
		}
		return PropertyType{Kind: kind, EnumName: enumName}, false, true

	case KindStruct:
		structName, ok := readFName(r, names)
		if !ok {
			return PropertyType{}, false, false
		}
		if _, ok := r.TryReadGUID(); !ok {
			return PropertyType{}, false, false
		}
		return PropertyType{Kind: KindStruct, StructName: structName}, false, true

	case KindArray, KindSet, KindOptional:
		innerTag, ok := readFName(r, names)
		if !ok {
			return PropertyType{}, false, false
		}
		inner := PropertyType{Kind: ParsePropertyKind(innerTag)}
		return PropertyType{Kind: kind, Inner: &inner}, false, true

	case KindMap:
		keyTag, ok := readFName(r, names)
		if !ok {
			return PropertyType{}, false, false
		}
		valueTag, ok := readFName(r, names)
		if !ok {
			return PropertyType{}, false, false
		}
		key := PropertyType{Kind: ParsePropertyKind(keyTag)}
		val := PropertyType{Kind: ParsePropertyKind(valueTag)}
		return PropertyType{Kind: KindMap, Inner: &key, Value: &val}, false, true

	default:
		return PropertyType{Kind: kind}, false, true
	}
}

// ReadUnversionedProperties decodes a cooked unversioned property stream:
// a sequence of bit-packed fragment headers, each naming a run of schema
// slots to skip and a run of values to read (optionally sparse, via a
// zero mask), against typeName's flattened field layout. A schema that
// cannot be found is a fatal, unrecoverable condition -- there is no way
// to know how many bytes the stream occupies without it.
func ReadUnversionedProperties(r *ArchiveReader, names []string, registry *TypeRegistry, typeName string) (*PropertyBag, []Diagnostic, error) {
	ctx := newPropertyContext(r, names, registry)
	bag := NewPropertyBag(typeName)

	def, ok := registry.LookupType(typeName)
	if !ok {
		ctx.diag(DiagMissingSchema, typeName)
		return bag, ctx.diagnostics, fmt.Errorf("%w: no schema for %s", ErrInvalidFormat, typeName)
	}
	fields := registry.FlattenedFields(def)

	schemaIndex := 0
	fragments := 0
	for {
		fragments++
		if fragments > maxUnversionedFragments {
			ctx.diag(DiagTooManyFragments, typeName)
			break
		}

		header, ok := r.TryReadU16()
		if !ok {
			ctx.diag(DiagStreamOverrun, "truncated fragment header")
			break
		}
		skipNum := int(header & 0x7F)
		hasAnyZeroes := header&0x80 != 0
		valueNum := int((header >> 8) & 0x7F)
		isLast := header&0x8000 != 0

		schemaIndex += skipNum

		var zeroMask []byte
		if hasAnyZeroes && valueNum > 0 {
			maskBytes := (valueNum + 7) / 8
			m, ok := r.TryReadBytes(maskBytes)
			if !ok {
				ctx.diag(DiagStreamOverrun, "truncated fragment zero mask")
				break
			}
			zeroMask = m
		}

		for i := 0; i < valueNum; i++ {
			if schemaIndex < 0 || schemaIndex >= len(fields) {
				ctx.diag(DiagSchemaIndexOutOfRange, fmt.Sprintf("%s: index %d of %d", typeName, schemaIndex, len(fields)))
				break
			}
			field := fields[schemaIndex]
			isZero := hasAnyZeroes && zeroMask[i/8]>>(uint(i)%8)&1 != 0

			if isZero {
				bag.Set(field.Name, zeroPropertyValue(field.Type))
			} else {
				value := readUnversionedValue(ctx, field.Type)
				if ctx.fatal {
					break
				}
				bag.Set(field.Name, value)
			}
			schemaIndex++
		}
		if ctx.fatal {
			break
		}

		if isLast {
			break
		}
	}

	if ctx.fatal {
		return bag, ctx.diagnostics, ErrStreamOverrun
	}
	return bag, ctx.diagnostics, nil
}

// zeroPropertyValue returns the canonical zero value for t, used when a
// fragment's zero mask marks a slot as present-but-default rather than
// spending wire bytes on it.
func zeroPropertyValue(t PropertyType) PropertyValue {
	switch t.Kind {
	case KindBool:
		return PropertyValue{Type: t, Bool: false}
	case KindInt8, KindInt16, KindInt32, KindInt64, KindByte, KindUInt16, KindUInt32, KindUInt64, KindEnum:
		return PropertyValue{Type: t, Int: 0}
	case KindFloat, KindDouble:
		return PropertyValue{Type: t, Float: 0}
	case KindName, KindStr:
		return PropertyValue{Type: t, Str: ""}
	case KindObject, KindWeakObject, KindLazyObject, KindSoftObject, KindInterface, KindClass:
		return PropertyValue{Type: t, Object: &ObjectReference{Index: 0}}
	case KindArray, KindSet:
		return PropertyValue{Type: t, Array: nil}
	case KindMap:
		return PropertyValue{Type: t, Map: nil}
	case KindStruct:
		return PropertyValue{Type: t, Struct: NewPropertyBag(t.StructName)}
	case KindOptional:
		return PropertyValue{Type: t, Optional: nil}
	default:
		return PropertyValue{Type: t}
	}
}

package uasset

import "strings"

// compactStructs are core engine struct types serialized as a fixed binary
// layout rather than as a nested tagged/unversioned property stream. The
// set is the common subset cookers actually emit this way; anything else
// falls back to a nested property-bag read.
var compactStructs = map[string]bool{
	"Vector": true, "Vector2D": true, "Vector4": true,
	"Rotator": true, "Quat": true,
	"Color": true, "LinearColor": true,
	"Guid": true, "DateTime": true, "Timespan": true,
	"IntPoint": true, "IntVector": true, "Box": true,
}

// readTaggedValue and readUnversionedValue both bottom out in the same
// per-kind body decode; the only thing that differs between the two
// modes is how the tag/schema metadata ahead of the value is obtained,
// which their respective callers have already handled by the time this
// runs.
func readTaggedValue(ctx *propertyContext, t PropertyType) PropertyValue {
	return readPropertyValue(ctx, t)
}

func readUnversionedValue(ctx *propertyContext, t PropertyType) PropertyValue {
	return readPropertyValue(ctx, t)
}

func readPropertyValue(ctx *propertyContext, t PropertyType) PropertyValue {
	r := ctx.r
	switch t.Kind {
	case KindBool:
		v, ok := r.TryReadBool()
		if !ok {
			ctx.diag(DiagStreamOverrun, "bool")
		}
		return PropertyValue{Type: t, Bool: v}

	case KindInt8:
		v, ok := r.TryReadI8()
		if !ok {
			ctx.diag(DiagStreamOverrun, "int8")
		}
		return PropertyValue{Type: t, Int: int64(v)}
	case KindInt16:
		v, ok := r.TryReadI16()
		if !ok {
			ctx.diag(DiagStreamOverrun, "int16")
		}
		return PropertyValue{Type: t, Int: int64(v)}
	case KindInt32:
		v, ok := r.TryReadI32()
		if !ok {
			ctx.diag(DiagStreamOverrun, "int32")
		}
		return PropertyValue{Type: t, Int: int64(v)}
	case KindInt64:
		v, ok := r.TryReadI64()
		if !ok {
			ctx.diag(DiagStreamOverrun, "int64")
		}
		return PropertyValue{Type: t, Int: v}
	case KindByte:
		v, ok := r.TryReadU8()
		if !ok {
			ctx.diag(DiagStreamOverrun, "byte")
		}
		return PropertyValue{Type: t, Int: int64(v)}
	case KindUInt16:
		v, ok := r.TryReadU16()
		if !ok {
			ctx.diag(DiagStreamOverrun, "uint16")
		}
		return PropertyValue{Type: t, Int: int64(v)}
	case KindUInt32:
		v, ok := r.TryReadU32()
		if !ok {
			ctx.diag(DiagStreamOverrun, "uint32")
		}
		return PropertyValue{Type: t, Int: int64(v)}
	case KindUInt64:
		v, ok := r.TryReadU64()
		if !ok {
			ctx.diag(DiagStreamOverrun, "uint64")
		}
		return PropertyValue{Type: t, Int: int64(v)}
	case KindFloat:
		v, ok := r.TryReadF32()
		if !ok {
			ctx.diag(DiagStreamOverrun, "float")
		}
		return PropertyValue{Type: t, Float: float64(v)}
	case KindDouble:
		v, ok := r.TryReadF64()
		if !ok {
			ctx.diag(DiagStreamOverrun, "double")
		}
		return PropertyValue{Type: t, Float: v}

	case KindEnum:
		name, ok := readFName(r, ctx.names)
		if !ok {
			ctx.diag(DiagStreamOverrun, "enum value name")
		}
		return PropertyValue{Type: t, Str: name}

	case KindName:
		name, ok := readFName(r, ctx.names)
		if !ok {
			ctx.diag(DiagStreamOverrun, "name")
		}
		return PropertyValue{Type: t, Str: name}

	case KindStr:
		s, ok := r.TryReadFString()
		if !ok {
			ctx.diag(DiagStreamOverrun, "str")
		}
		return PropertyValue{Type: t, Str: s}

	case KindFieldPath:
		path, ok := r.TryReadFString()
		if ok {
			if owner, ok2 := readFName(r, ctx.names); ok2 {
				path = owner + ":" + path
			}
		} else {
			ctx.diag(DiagStreamOverrun, "field path")
		}
		return PropertyValue{Type: t, Str: path}

	case KindText:
		return PropertyValue{Type: t, Text: readTextValue(ctx)}

	case KindObject, KindWeakObject, KindInterface, KindClass:
		return PropertyValue{Type: t, Object: readIndexObjectReference(ctx)}
	case KindLazyObject:
		return PropertyValue{Type: t, Object: readLazyObjectReference(ctx)}
	case KindSoftObject:
		return PropertyValue{Type: t, Object: readSoftObjectReference(ctx)}

	case KindDelegate:
		return PropertyValue{Type: t, Delegate: readDelegateValue(ctx)}
	case KindMulticastDelegate:
		return PropertyValue{Type: t, MulticastDelegate: readMulticastDelegateValue(ctx)}

	case KindArray:
		return PropertyValue{Type: t, Array: readContainerElements(ctx, t.Inner, false)}
	case KindSet:
		return PropertyValue{Type: t, Set: readContainerElements(ctx, t.Inner, true)}
	case KindMap:
		return PropertyValue{Type: t, Map: readMapEntries(ctx, t.Inner, t.Value)}

	case KindStruct:
		return PropertyValue{Type: t, Struct: readStructValue(ctx, t.StructName)}

	case KindOptional:
		hasValue, ok := r.TryReadBool()
		if !ok {
			ctx.diag(DiagStreamOverrun, "optional present flag")
			return PropertyValue{Type: t}
		}
		if !hasValue {
			return PropertyValue{Type: t}
		}
		inner := PropertyType{}
		if t.Inner != nil {
			inner = *t.Inner
		}
		v := readPropertyValue(ctx, inner)
		return PropertyValue{Type: t, Optional: &v}

	default:
		ctx.diag(DiagUnknownPropertyKind, t.Kind.String())
		return PropertyValue{Type: t}
	}
}

// readBoundedCount reads an element count, clamping implausible values
// (negative, or larger than the stream could possibly contain) to zero and
// recording a non-fatal diagnostic rather than attempting to allocate or
// iterate an attacker- or corruption-controlled count.
func readBoundedCount(ctx *propertyContext) int {
	n, ok := ctx.r.TryReadI32()
	if !ok {
		ctx.diag(DiagStreamOverrun, "container count")
		return 0
	}
	if n < 0 || int64(n) > ctx.r.Remaining() || n > maxBoundedCollectionCount {
		ctx.diag(DiagBoundedCollectionTruncated, "implausible container count")
		return 0
	}
	return int(n)
}

func readContainerElements(ctx *propertyContext, inner *PropertyType, isSet bool) []PropertyValue {
	elemType := PropertyType{}
	if inner != nil {
		elemType = *inner
	}

	if isSet {
		removeCount := readBoundedCount(ctx)
		for i := 0; i < removeCount && !ctx.fatal; i++ {
			readPropertyValue(ctx, elemType)
		}
	}

	count := readBoundedCount(ctx)
	out := make([]PropertyValue, 0, count)
	for i := 0; i < count; i++ {
		if ctx.fatal {
			break
		}
		out = append(out, readPropertyValue(ctx, elemType))
	}
	return out
}

func readMapEntries(ctx *propertyContext, keyType, valueType *PropertyType) []MapEntry {
	kt, vt := PropertyType{}, PropertyType{}
	if keyType != nil {
		kt = *keyType
	}
	if valueType != nil {
		vt = *valueType
	}

	removeCount := readBoundedCount(ctx)
	for i := 0; i < removeCount && !ctx.fatal; i++ {
		readPropertyValue(ctx, kt)
	}

	count := readBoundedCount(ctx)
	out := make([]MapEntry, 0, count)
	for i := 0; i < count; i++ {
		if ctx.fatal {
			break
		}
		key := readPropertyValue(ctx, kt)
		val := readPropertyValue(ctx, vt)
		out = append(out, MapEntry{Key: key, Value: val})
	}
	return out
}

// readIndexObjectReference reads the signed PackageIndex encoding an
// Object/WeakObject/Interface/Class property uses: positive means export,
// negative means import, zero means null. Resolving the index to a
// package-qualified name requires the owning AssetGroup's metadata, which
// a bare property read does not have access to, so only the raw index
// fields are populated; nothing in this package resolves them afterward.
func readIndexObjectReference(ctx *propertyContext) *ObjectReference {
	raw, ok := ctx.r.TryReadI32()
	if !ok {
		ctx.diag(DiagStreamOverrun, "object reference")
		return &ObjectReference{Index: 0}
	}
	ref := &ObjectReference{Index: raw}
	switch {
	case raw > 0:
		ref.ExportIndex = raw - 1
		ref.ImportIndex = -1
	case raw < 0:
		ref.ImportIndex = -raw - 1
		ref.ExportIndex = -1
	default:
		ref.ExportIndex = -1
		ref.ImportIndex = -1
	}
	return ref
}

func readLazyObjectReference(ctx *propertyContext) *ObjectReference {
	guid, ok := ctx.r.TryReadGUID()
	if !ok {
		ctx.diag(DiagStreamOverrun, "lazy object guid")
		return &ObjectReference{Index: 0}
	}
	return &ObjectReference{Path: formatGUID(guid), ExportIndex: -1, ImportIndex: -1}
}

func readSoftObjectReference(ctx *propertyContext) *ObjectReference {
	assetPath, ok := ctx.r.TryReadFString()
	if !ok {
		ctx.diag(DiagStreamOverrun, "soft object asset path")
		return &ObjectReference{Index: 0}
	}
	subPath, ok := ctx.r.TryReadFString()
	if !ok {
		ctx.diag(DiagStreamOverrun, "soft object sub path")
	}

	ref := &ObjectReference{Path: assetPath, SubPath: subPath, ExportIndex: -1, ImportIndex: -1}
	if i := strings.LastIndexByte(assetPath, '.'); i >= 0 {
		ref.Path = assetPath[:i]
		ref.Name = assetPath[i+1:]
	}
	return ref
}

func readDelegateValue(ctx *propertyContext) *DelegateValue {
	obj := readIndexObjectReference(ctx)
	fn, ok := readFName(ctx.r, ctx.names)
	if !ok {
		ctx.diag(DiagStreamOverrun, "delegate function name")
	}
	return &DelegateValue{Object: *obj, FunctionName: fn}
}

func readMulticastDelegateValue(ctx *propertyContext) []DelegateValue {
	count := readBoundedCount(ctx)
	out := make([]DelegateValue, 0, count)
	for i := 0; i < count && !ctx.fatal; i++ {
		out = append(out, *readDelegateValue(ctx))
	}
	return out
}

func formatGUID(g [16]byte) string {
	const hex = "0123456789abcdef"
	var b strings.Builder
	b.Grow(32)
	for _, c := range g {
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xF])
	}
	return b.String()
}

// readStructValue decodes a struct's body: a known binary layout for
// core engine structs (compactStructs), or a nested tagged property
// stream (terminated by its own "None" sentinel) for everything else,
// since struct bodies -- even inside an unversioned outer stream -- are
// themselves tagged unless the whole package predates tagged properties
// entirely, which this reader does not target.
func readStructValue(ctx *propertyContext, structName string) *PropertyBag {
	if compactStructs[structName] {
		if bag, ok := readCompactStruct(ctx, structName); ok {
			return bag
		}
	}
	bag, diags, err := ReadTaggedProperties(ctx.r, ctx.names, ctx.registry, structName)
	ctx.diagnostics = append(ctx.diagnostics, diags...)
	if err != nil {
		ctx.fatal = true
	}
	return bag
}

func readCompactStruct(ctx *propertyContext, structName string) (*PropertyBag, bool) {
	bag := NewPropertyBag(structName)
	r := ctx.r

	readFloats := func(names ...string) {
		for _, n := range names {
			v, ok := r.TryReadF32()
			if !ok {
				ctx.diag(DiagStreamOverrun, structName)
			}
			bag.Set(n, PropertyValue{Type: PropertyType{Kind: KindFloat}, Float: float64(v)})
		}
	}

	switch structName {
	case "Vector", "IntVector":
		readFloats("X", "Y", "Z")
	case "Vector2D":
		readFloats("X", "Y")
	case "Vector4":
		readFloats("X", "Y", "Z", "W")
	case "Rotator":
		readFloats("Pitch", "Yaw", "Roll")
	case "Quat":
		readFloats("X", "Y", "Z", "W")
	case "LinearColor":
		readFloats("R", "G", "B", "A")
	case "IntPoint":
		x, _ := r.TryReadI32()
		y, _ := r.TryReadI32()
		bag.Set("X", PropertyValue{Type: PropertyType{Kind: KindInt32}, Int: int64(x)})
		bag.Set("Y", PropertyValue{Type: PropertyType{Kind: KindInt32}, Int: int64(y)})
	case "Color":
		for _, n := range []string{"B", "G", "R", "A"} {
			v, ok := r.TryReadU8()
			if !ok {
				ctx.diag(DiagStreamOverrun, structName)
			}
			bag.Set(n, PropertyValue{Type: PropertyType{Kind: KindByte}, Int: int64(v)})
		}
	case "Guid":
		g, ok := r.TryReadGUID()
		if !ok {
			ctx.diag(DiagStreamOverrun, structName)
		}
		bag.Set("Value", PropertyValue{Type: PropertyType{Kind: KindStr}, Str: formatGUID(g)})
	case "DateTime", "Timespan":
		v, ok := r.TryReadI64()
		if !ok {
			ctx.diag(DiagStreamOverrun, structName)
		}
		bag.Set("Ticks", PropertyValue{Type: PropertyType{Kind: KindInt64}, Int: v})
	case "Box":
		readFloats("Min.X", "Min.Y", "Min.Z", "Max.X", "Max.Y", "Max.Z")
		valid, ok := r.TryReadBool()
		if !ok {
			ctx.diag(DiagStreamOverrun, structName)
		}
		bag.Set("IsValid", PropertyValue{Type: PropertyType{Kind: KindBool}, Bool: valid})
	default:
		return nil, false
	}

	return bag, true
}

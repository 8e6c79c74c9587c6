package uasset

import "fmt"

// PropertyKind is the closed set of primitive and composite property shapes
// a deserialized value can take.
type PropertyKind int

const (
	KindBool PropertyKind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindByte // UInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat
	KindDouble
	KindName
	KindStr
	KindText
	KindObject
	KindWeakObject
	KindLazyObject
	KindSoftObject
	KindInterface
	KindClass // alias of Object
	KindEnum
	KindArray
	KindSet
	KindMap
	KindStruct
	KindOptional
	KindDelegate
	KindMulticastDelegate
	KindFieldPath
	KindUnknown
)

var kindNames = map[PropertyKind]string{
	KindBool:              "BoolProperty",
	KindInt8:               "Int8Property",
	KindInt16:              "Int16Property",
	KindInt32:              "IntProperty",
	KindInt64:              "Int64Property",
	KindByte:               "ByteProperty",
	KindUInt16:             "UInt16Property",
	KindUInt32:             "UInt32Property",
	KindUInt64:             "UInt64Property",
	KindFloat:              "FloatProperty",
	KindDouble:             "DoubleProperty",
	KindName:               "NameProperty",
	KindStr:                "StrProperty",
	KindText:               "TextProperty",
	KindObject:             "ObjectProperty",
	KindWeakObject:         "WeakObjectProperty",
	KindLazyObject:         "LazyObjectProperty",
	KindSoftObject:         "SoftObjectProperty",
	KindInterface:          "InterfaceProperty",
	KindClass:              "ClassProperty",
	KindEnum:               "EnumProperty",
	KindArray:              "ArrayProperty",
	KindSet:                "SetProperty",
	KindMap:                "MapProperty",
	KindStruct:             "StructProperty",
	KindOptional:           "OptionalProperty",
	KindDelegate:           "DelegateProperty",
	KindMulticastDelegate:  "MulticastDelegateProperty",
	KindFieldPath:          "FieldPathProperty",
	KindUnknown:            "UnknownProperty",
}

// String returns the Unreal-facing type name for this kind, e.g. "IntProperty".
func (k PropertyKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UnknownProperty"
}

// kindFromTagName maps a tagged-property FName (as it appears on the wire,
// e.g. "IntProperty") back to a PropertyKind.
var kindFromTagName = func() map[string]PropertyKind {
	m := make(map[string]PropertyKind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

// ParsePropertyKind resolves a tagged-property type FName to its kind.
// Unknown names resolve to KindUnknown so callers can emit a diagnostic
// instead of failing the whole read.
func ParsePropertyKind(tag string) PropertyKind {
	if k, ok := kindFromTagName[tag]; ok {
		return k
	}
	return KindUnknown
}

// PropertyType fully describes the shape of a property: its kind plus, for
// composite kinds, the nested type information needed to read a value.
type PropertyType struct {
	Kind       PropertyKind
	StructName string        // valid when Kind == KindStruct
	EnumName   string        // valid when Kind == KindEnum or KindByte-as-enum
	Inner      *PropertyType // element type for Array/Set/Optional; key type for KindMap
	Value      *PropertyType // value type for KindMap
}

func (t PropertyType) String() string {
	switch t.Kind {
	case KindStruct:
		return fmt.Sprintf("StructProperty<%s>", t.StructName)
	case KindEnum:
		return fmt.Sprintf("EnumProperty<%s>", t.EnumName)
	case KindArray, KindSet, KindOptional:
		if t.Inner != nil {
			return fmt.Sprintf("%s<%s>", t.Kind, t.Inner)
		}
		return t.Kind.String()
	case KindMap:
		if t.Inner != nil && t.Value != nil {
			return fmt.Sprintf("MapProperty<%s,%s>", t.Inner, t.Value)
		}
		return t.Kind.String()
	default:
		return t.Kind.String()
	}
}

// ObjectReference is the resolved or unresolved form of an Object/Class/
// WeakObject/SoftObject property value: a pointer to another UObject,
// possibly in another package.
type ObjectReference struct {
	Type        string
	Name        string
	Path        string
	SubPath     string
	ExportIndex int32 // zero-based; -1 if not an export reference
	ImportIndex int32 // zero-based; -1 if not an import reference
	Index       int32 // raw PackageIndex: positive=export+1, negative=-(import+1), 0=null
}

// IsNull reports whether this reference points at nothing.
func (r ObjectReference) IsNull() bool { return r.Index == 0 }

// String renders the canonical "Type'Path.Name'" form for non-null
// references; script-object references ("/Script/Module") are rendered
// without a trailing object index since they name the module itself.
func (r ObjectReference) String() string {
	if r.IsNull() {
		return "None"
	}
	if r.Type == "" {
		return fmt.Sprintf("%s.%s", r.Path, r.Name)
	}
	return fmt.Sprintf("%s'%s.%s'", r.Type, r.Path, r.Name)
}

// ResolvedReference is the late-bound target of an export's class, super,
// or template pointer once AssetRegistry resolution has run.
type ResolvedReference struct {
	ClassName   string
	Name        string
	PackagePath string
	ExportIndex int32 // index into PackagePath's exports; -1 for script and unresolved imports
}

func (r ResolvedReference) String() string {
	return fmt.Sprintf("%s'%s.%s'", r.ClassName, r.PackagePath, r.Name)
}

// PropertyValue is the tagged union stored under each PropertyBag entry.
// Which field is meaningful is determined by Type.Kind.
type PropertyValue struct {
	Type PropertyType

	Bool   bool
	Int    int64  // Int8/16/32/64, Byte/UInt16/32/64 all normalize here
	Float  float64 // Float and Double both normalize here
	Str    string  // Name, Str, and enum-value-name all normalize here
	Text   *TextValue
	Object *ObjectReference

	Array []PropertyValue
	Set   []PropertyValue
	Map   []MapEntry
	Struct *PropertyBag

	Optional *PropertyValue // nil means "not set"

	// Delegate/MulticastDelegate store their structural fields verbatim;
	// domain interpretation of the bound function is out of scope.
	Delegate *DelegateValue
	MulticastDelegate []DelegateValue
}

// MapEntry is one key/value pair of a MapProperty.
type MapEntry struct {
	Key   PropertyValue
	Value PropertyValue
}

// DelegateValue is the resolved object + function name pair behind a
// delegate property.
type DelegateValue struct {
	Object ObjectReference
	FunctionName string
}

// TextHistoryType enumerates FText's serialized history kinds.
type TextHistoryType int8

const (
	TextHistoryNone            TextHistoryType = -1
	TextHistoryBase            TextHistoryType = 0
	TextHistoryNamedFormat     TextHistoryType = 1
	TextHistoryOrderedFormat   TextHistoryType = 2
	TextHistoryArgumentFormat  TextHistoryType = 3
	TextHistoryAsNumber        TextHistoryType = 4
	TextHistoryAsPercent       TextHistoryType = 5
	TextHistoryAsCurrency      TextHistoryType = 6
	TextHistoryAsDate          TextHistoryType = 7
	TextHistoryAsTime          TextHistoryType = 8
	TextHistoryAsDateTime      TextHistoryType = 9
	TextHistoryTransform       TextHistoryType = 10
	TextHistoryStringTableEntry TextHistoryType = 11
	TextHistoryTextGenerator   TextHistoryType = 12
)

// TextValue is a localized FText, flattened to the fields that matter for
// read-only inspection: its resolved or literal display string plus the
// raw history record it was built from.
type TextValue struct {
	Flags   uint32
	History TextHistoryType

	// Populated depending on History; see PropertyReader's text reader.
	Namespace    string
	Key          string
	SourceString string
	Culture      string
	Arguments    []TextArgument
	Nested       *TextValue
}

// TextArgument is one argument of a Named/Ordered/ArgumentFormat FText.
type TextArgument struct {
	Name      string // empty for OrderedFormat
	ValueKind int8
	Int       int64
	Float     float64
	Text      *TextValue
}

// PropertyBag is an ordered name->value map produced by deserializing one
// struct/object's property stream. Insertion order is preserved so callers
// that re-serialize or print the bag get deterministic output.
type PropertyBag struct {
	TypeName string
	TypeDef  *TypeDefinition

	order  []string
	values map[string]PropertyValue
}

// NewPropertyBag constructs an empty bag for the named type.
func NewPropertyBag(typeName string) *PropertyBag {
	return &PropertyBag{
		TypeName: typeName,
		values:   make(map[string]PropertyValue),
	}
}

// Set inserts or overwrites a value by name, preserving first-insertion
// order for new keys.
func (b *PropertyBag) Set(name string, v PropertyValue) {
	if _, exists := b.values[name]; !exists {
		b.order = append(b.order, name)
	}
	b.values[name] = v
}

// Get returns the value stored under name, if any.
func (b *PropertyBag) Get(name string) (PropertyValue, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Names returns property names in insertion order.
func (b *PropertyBag) Names() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Len returns the number of distinct properties stored.
func (b *PropertyBag) Len() int { return len(b.order) }

package uasset

import "strconv"

// Argument value-kind tags used by FFormatArgumentValue, matching the
// engine's own EFormatArgumentType ordering closely enough for read-only
// inspection: Int, UInt, Float, Double, Text, Gender.
const (
	textArgInt    int8 = 0
	textArgUInt   int8 = 1
	textArgFloat  int8 = 2
	textArgDouble int8 = 3
	textArgText   int8 = 4
	textArgGender int8 = 5
)

// readTextValue decodes an FText's serialized flags and history record.
// Every history variant after the type tag is read defensively: an
// unsupported or malformed history marks the text's History as
// TextHistoryNone with a recorded diagnostic rather than aborting the
// enclosing property read, since FText values are rarely load-bearing for
// callers that just want the display string.
func readTextValue(ctx *propertyContext) *TextValue {
	r := ctx.r
	flags, ok := r.TryReadU32()
	if !ok {
		ctx.diag(DiagStreamOverrun, "text flags")
		return &TextValue{History: TextHistoryNone}
	}
	historyRaw, ok := r.TryReadI8()
	if !ok {
		ctx.diag(DiagStreamOverrun, "text history type")
		return &TextValue{Flags: flags, History: TextHistoryNone}
	}
	history := TextHistoryType(historyRaw)

	tv := &TextValue{Flags: flags, History: history}

	switch history {
	case TextHistoryNone:
		// No further data: an empty or culture-invariant-only text.

	case TextHistoryBase:
		tv.Namespace, _ = r.TryReadFString()
		tv.Key, _ = r.TryReadFString()
		tv.SourceString, _ = r.TryReadFString()

	case TextHistoryNamedFormat:
		tv.Nested = readTextValue(ctx)
		tv.Arguments = readNamedTextArguments(ctx)

	case TextHistoryOrderedFormat:
		tv.Nested = readTextValue(ctx)
		tv.Arguments = readOrderedTextArguments(ctx)

	case TextHistoryArgumentFormat:
		tv.Nested = readTextValue(ctx)
		tv.Arguments = readNamedTextArguments(ctx)

	case TextHistoryAsNumber, TextHistoryAsPercent, TextHistoryAsCurrency:
		v, ok := r.TryReadF64()
		if !ok {
			ctx.diag(DiagStreamOverrun, "text source number")
		}
		tv.SourceString = formatFloat(v)
		hasFormatOptions, _ := r.TryReadBool()
		if hasFormatOptions {
			skipNumberFormatOptions(ctx)
		}
		tv.Culture, _ = r.TryReadFString()

	case TextHistoryAsDate, TextHistoryAsTime, TextHistoryAsDateTime:
		ticks, ok := r.TryReadI64()
		if !ok {
			ctx.diag(DiagStreamOverrun, "text datetime ticks")
		}
		tv.SourceString = formatInt(ticks)
		tv.Culture, _ = r.TryReadFString()

	case TextHistoryTransform:
		tv.Nested = readTextValue(ctx)
		if _, ok := r.TryReadI8(); !ok { // transform type (ToLower/ToUpper/...)
			ctx.diag(DiagStreamOverrun, "text transform type")
		}

	case TextHistoryStringTableEntry:
		tv.Namespace, _ = r.TryReadFString() // table id
		tv.Key, _ = r.TryReadFString()

	case TextHistoryTextGenerator:
		ctx.diag(DiagUnsupportedTextHistoryType, "TextGenerator")
		tv.History = TextHistoryNone

	default:
		ctx.diag(DiagUnsupportedTextHistoryType, formatInt(int64(historyRaw)))
		tv.History = TextHistoryNone
	}

	return tv
}

func readNamedTextArguments(ctx *propertyContext) []TextArgument {
	count := readBoundedCount(ctx)
	out := make([]TextArgument, 0, count)
	for i := 0; i < count; i++ {
		name, _ := ctx.r.TryReadFString()
		out = append(out, readTextArgumentValue(ctx, name))
	}
	return out
}

func readOrderedTextArguments(ctx *propertyContext) []TextArgument {
	count := readBoundedCount(ctx)
	out := make([]TextArgument, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, readTextArgumentValue(ctx, ""))
	}
	return out
}

func readTextArgumentValue(ctx *propertyContext, name string) TextArgument {
	kind, ok := ctx.r.TryReadI8()
	if !ok {
		ctx.diag(DiagStreamOverrun, "text argument kind")
		return TextArgument{Name: name}
	}
	arg := TextArgument{Name: name, ValueKind: kind}
	switch kind {
	case textArgInt, textArgGender:
		v, _ := ctx.r.TryReadI64()
		arg.Int = v
	case textArgUInt:
		v, _ := ctx.r.TryReadU64()
		arg.Int = int64(v)
	case textArgFloat:
		v, _ := ctx.r.TryReadF32()
		arg.Float = float64(v)
	case textArgDouble:
		v, _ := ctx.r.TryReadF64()
		arg.Float = v
	case textArgText:
		arg.Text = readTextValue(ctx)
	default:
		ctx.diag(DiagUnsupportedTextHistoryType, "text argument kind")
	}
	return arg
}

// skipNumberFormatOptions discards an FNumberFormattingOptions block: a
// fixed run of three single-byte fields and four digit-count integers whose
// values this read-only model has no use for.
func skipNumberFormatOptions(ctx *propertyContext) {
	r := ctx.r
	for i := 0; i < 3; i++ { // AlwaysSign, UseGrouping, RoundingMode(i8)
		r.Skip(1)
	}
	for i := 0; i < 4; i++ { // Minimum/MaximumIntegralDigits, Minimum/MaximumFractionalDigits
		r.Skip(4)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

package uasset

import "errors"

// Sentinel errors returned by container and header parsing. Property-level
// issues do not use these; they are collected as Diagnostics on a read
// context instead, since a malformed property should not abort an entire
// package read.
var (
	// ErrInvalidFormat is returned on magic mismatch, unsupported version, or
	// an impossibly large declared size.
	ErrInvalidFormat = errors.New("uasset: invalid container or header format")

	// ErrStreamOverrun is returned on a short read relative to a declared
	// size or offset.
	ErrStreamOverrun = errors.New("uasset: stream overrun")

	// ErrBadKey is returned when decryption succeeded mechanically but the
	// plaintext sanity check failed.
	ErrBadKey = errors.New("uasset: decryption key rejected by plausibility check")

	// ErrUnsupportedCodec is returned when no decompressor is registered for
	// a referenced compression method.
	ErrUnsupportedCodec = errors.New("uasset: unsupported compression codec")

	// ErrMissingCompanion is returned when export data is split into a
	// .uexp file that is absent from the asset group.
	ErrMissingCompanion = errors.New("uasset: missing .uexp companion file")

	// ErrInvalidExportSize is returned when an export's SerialSize is
	// non-positive or exceeds the maximum representable size.
	ErrInvalidExportSize = errors.New("uasset: invalid export serial size")

	// ErrContainerNotMounted is returned when an entry references a
	// container path that has not been mounted.
	ErrContainerNotMounted = errors.New("uasset: container not mounted")

	// ErrNoPrimaryAsset is returned when an asset group has no .uasset or
	// .umap primary file.
	ErrNoPrimaryAsset = errors.New("uasset: asset group has no primary file")
)

// DiagnosticCode identifies the kind of a recoverable parsing issue.
type DiagnosticCode int

const (
	// DiagMissingSchema is fatal: an unversioned read needs a type schema
	// that is not registered.
	DiagMissingSchema DiagnosticCode = iota

	// DiagSchemaIndexOutOfRange is fatal: fragment iteration overshot the
	// flattened property array.
	DiagSchemaIndexOutOfRange

	// DiagSizeMismatch: a tagged-property value consumed a different byte
	// count than its declared size.
	DiagSizeMismatch

	// DiagTooManyFragments is fatal: a runaway unversioned header, likely
	// delta-serialized or corrupt.
	DiagTooManyFragments

	// DiagUnknownPropertyKind is informational only.
	DiagUnknownPropertyKind

	// DiagUnknownTaggedType is informational only.
	DiagUnknownTaggedType

	// DiagUnsupportedTextHistoryType is informational only.
	DiagUnsupportedTextHistoryType

	// DiagStreamOverrun is fatal: a read ran past the end of the stream.
	DiagStreamOverrun

	// DiagBoundedCollectionTruncated is informational: an array/set/map
	// count exceeded its bound and was clamped to empty.
	DiagBoundedCollectionTruncated
)

// fatal reports whether this diagnostic kind halts the enclosing property
// read sequence.
func (c DiagnosticCode) fatal() bool {
	switch c {
	case DiagMissingSchema, DiagSchemaIndexOutOfRange, DiagTooManyFragments, DiagStreamOverrun:
		return true
	default:
		return false
	}
}

// Diagnostic records one recoverable issue encountered while decoding a
// property stream. Diagnostics never abort the read on their own; only
// fatal diagnostics set the enclosing context's fatal flag.
type Diagnostic struct {
	Code     DiagnosticCode
	Position int64
	Detail   string
}

func (d Diagnostic) String() string {
	return d.Detail
}

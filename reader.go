package uasset

import (
	"encoding/binary"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// ArchiveReader is a little-endian, bounds-checked, fallible cursor over a
// finite in-memory byte source. Every read reports success via a boolean
// return rather than panicking or returning a partially-populated value,
// mirroring the teacher's ReadUint32/ReadBytesAtOffset boundary-check idiom
// but generalized to a stateful cursor so callers don't have to thread an
// offset through every call by hand.
type ArchiveReader struct {
	data []byte
	pos  int64
}

// NewArchiveReader wraps a byte slice for sequential, bounds-checked reads.
func NewArchiveReader(data []byte) *ArchiveReader {
	return &ArchiveReader{data: data}
}

// Position returns the current cursor offset.
func (r *ArchiveReader) Position() int64 { return r.pos }

// Length returns the total number of bytes available.
func (r *ArchiveReader) Length() int64 { return int64(len(r.data)) }

// Remaining returns the number of unread bytes.
func (r *ArchiveReader) Remaining() int64 { return r.Length() - r.pos }

// Seek repositions the cursor to an absolute offset. It fails (returns
// false) if the offset is negative or beyond the end of the source; seeking
// exactly to Length() is allowed (an empty read range).
func (r *ArchiveReader) Seek(offset int64) bool {
	if offset < 0 || offset > r.Length() {
		return false
	}
	r.pos = offset
	return true
}

// Skip advances the cursor by n bytes without reading them.
func (r *ArchiveReader) Skip(n int64) bool {
	return r.Seek(r.pos + n)
}

func (r *ArchiveReader) sliceAt(n int64) ([]byte, bool) {
	if n < 0 || r.pos+n > r.Length() {
		return nil, false
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

// TryReadBytes reads n raw bytes.
func (r *ArchiveReader) TryReadBytes(n int) ([]byte, bool) {
	return r.sliceAt(int64(n))
}

// TryReadU8 reads an unsigned byte.
func (r *ArchiveReader) TryReadU8() (uint8, bool) {
	b, ok := r.sliceAt(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

// TryReadI8 reads a signed byte.
func (r *ArchiveReader) TryReadI8() (int8, bool) {
	v, ok := r.TryReadU8()
	return int8(v), ok
}

// TryReadBool reads one byte as a boolean (zero is false, anything else true).
func (r *ArchiveReader) TryReadBool() (bool, bool) {
	v, ok := r.TryReadU8()
	return v != 0, ok
}

// TryReadU16 reads a little-endian uint16.
func (r *ArchiveReader) TryReadU16() (uint16, bool) {
	b, ok := r.sliceAt(2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

// TryReadI16 reads a little-endian int16.
func (r *ArchiveReader) TryReadI16() (int16, bool) {
	v, ok := r.TryReadU16()
	return int16(v), ok
}

// TryReadU32 reads a little-endian uint32.
func (r *ArchiveReader) TryReadU32() (uint32, bool) {
	b, ok := r.sliceAt(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// TryReadI32 reads a little-endian int32.
func (r *ArchiveReader) TryReadI32() (int32, bool) {
	v, ok := r.TryReadU32()
	return int32(v), ok
}

// TryReadU64 reads a little-endian uint64.
func (r *ArchiveReader) TryReadU64() (uint64, bool) {
	b, ok := r.sliceAt(8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

// TryReadI64 reads a little-endian int64.
func (r *ArchiveReader) TryReadI64() (int64, bool) {
	v, ok := r.TryReadU64()
	return int64(v), ok
}

// TryReadF32 reads a little-endian IEEE-754 float32.
func (r *ArchiveReader) TryReadF32() (float32, bool) {
	v, ok := r.TryReadU32()
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

// TryReadF64 reads a little-endian IEEE-754 float64.
func (r *ArchiveReader) TryReadF64() (float64, bool) {
	v, ok := r.TryReadU64()
	if !ok {
		return 0, false
	}
	return math.Float64frombits(v), true
}

// TryReadGUID reads a 16-byte GUID verbatim.
func (r *ArchiveReader) TryReadGUID() ([16]byte, bool) {
	var guid [16]byte
	b, ok := r.sliceAt(16)
	if !ok {
		return guid, false
	}
	copy(guid[:], b)
	return guid, true
}

// utf16LE decodes Unreal's wide-string encoding, matching FString's on-disk
// WIDECHAR layout rather than assuming the host's native UTF-16 handling.
var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// TryReadFString reads Unreal's length-prefixed string encoding: a signed
// i32 length; negative means |length|-1 UTF-16LE code units followed by a
// NUL code unit; positive means length-1 UTF-8 bytes followed by a NUL
// byte; zero means an empty string.
func (r *ArchiveReader) TryReadFString() (string, bool) {
	length, ok := r.TryReadI32()
	if !ok {
		return "", false
	}
	switch {
	case length == 0:
		return "", true
	case length < 0:
		units := -length - 1
		if units < 0 {
			return "", false
		}
		raw, ok := r.sliceAt(int64(units) * 2)
		if !ok {
			return "", false
		}
		if _, ok := r.TryReadU16(); !ok { // NUL terminator
			return "", false
		}
		decoded, err := utf16LE.NewDecoder().Bytes(raw)
		if err != nil {
			return "", false
		}
		return string(decoded), true
	default:
		n := length - 1
		raw, ok := r.sliceAt(int64(n))
		if !ok {
			return "", false
		}
		if _, ok := r.TryReadU8(); !ok { // NUL terminator
			return "", false
		}
		return string(raw), true
	}
}

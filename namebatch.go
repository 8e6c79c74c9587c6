package uasset

import (
	"strconv"
	"unicode/utf16"
)

const maxNameBatchStringLength = 10000

// readNameBatch decodes the name-batch format shared by Zen package name
// tables and the global script-object chunk: a name count, a byte count,
// an 8-byte hash-algorithm tag, one 8-byte hash per name, one 2-byte header
// per name (high bit of the header selects UTF-16 vs UTF-8, low 15 bits are
// the string length), followed by the concatenated encoded name bytes in
// declaration order.
//
// Grounded on the teacher's dotnet_metadata_tables.go row-reader shape:
// declare a count, loop an index, read fixed-width fields off a running
// cursor -- generalized here to variable-length trailing string data.
func readNameBatch(r *ArchiveReader) ([]string, bool) {
	numNames, ok := r.TryReadI32()
	if !ok || numNames < 0 {
		return nil, false
	}
	_, ok = r.TryReadI32() // numStringBytes, not needed once headers are read
	if !ok {
		return nil, false
	}
	if _, ok := r.TryReadBytes(8); !ok { // hashVersion
		return nil, false
	}

	type nameHeader struct {
		isUTF16 bool
		length  uint16
	}

	if !r.Skip(int64(numNames) * 8) { // per-name hashes, not needed for string decode
		return nil, false
	}

	headers := make([]nameHeader, numNames)
	for i := int32(0); i < numNames; i++ {
		h, ok := r.TryReadU16()
		if !ok {
			return nil, false
		}
		headers[i] = nameHeader{
			isUTF16: h&0x8000 != 0,
			length:  h &^ 0x8000,
		}
	}

	names := make([]string, numNames)
	for i, h := range headers {
		if h.length > maxNameBatchStringLength {
			names[i] = ""
			if h.isUTF16 {
				r.Skip(int64(h.length) * 2)
			} else {
				r.Skip(int64(h.length))
			}
			continue
		}
		if h.isUTF16 {
			raw, ok := r.TryReadBytes(int(h.length) * 2)
			if !ok {
				return nil, false
			}
			u16 := make([]uint16, h.length)
			for j := range u16 {
				u16[j] = uint16(raw[j*2]) | uint16(raw[j*2+1])<<8
			}
			names[i] = string(utf16.Decode(u16))
		} else {
			raw, ok := r.TryReadBytes(int(h.length))
			if !ok {
				return nil, false
			}
			names[i] = string(raw)
		}
	}
	return names, true
}

// MappedName is a Zen-format name reference: an index into a name table
// (local or global, disambiguated by the caller) plus an optional numeric
// suffix.
type MappedName struct {
	Index      uint32
	ExtraIndex uint32
}

// readMappedName reads the 8-byte (nameIdxRaw, extraIndex) pair used
// throughout Zen headers and the global script-object chunk.
func readMappedName(r *ArchiveReader) (MappedName, bool) {
	idx, ok := r.TryReadU32()
	if !ok {
		return MappedName{}, false
	}
	extra, ok := r.TryReadU32()
	if !ok {
		return MappedName{}, false
	}
	return MappedName{Index: idx & 0x3FFFFFFF, ExtraIndex: extra}, true
}

// Resolve turns a MappedName into a display string against the given name
// table, appending "_<ExtraIndex-1>" when ExtraIndex is set, matching
// FName's number suffix convention.
func (m MappedName) Resolve(nameTable []string) string {
	var base string
	if int(m.Index) < len(nameTable) {
		base = nameTable[m.Index]
	}
	if m.ExtraIndex > 0 {
		return base + "_" + strconv.Itoa(int(m.ExtraIndex-1))
	}
	return base
}

package uasset

import "fmt"

// Pak footer layout. The footer sits at a fixed offset from the end of the
// .pak file; its shape has drifted across Pak versions (encryption GUID and
// encrypted-index flag were added later), so PakVersion gates which fields
// are present rather than assuming a single fixed-size record -- per the
// spec's note to "honor the version field's disambiguation rather than
// guessing".
const (
	pakMagic = 0x5A6F12E1

	pakVersionInitial           = 1
	pakVersionEncryptionKeyGUID = 2
	pakVersionEncryptedIndex    = 4
)

// PakFooter is the fixed trailer describing where the Pak index lives.
type PakFooter struct {
	Version          int32
	IndexOffset      uint64
	IndexSize        uint64
	IndexHash        [20]byte
	EncryptionKeyGUID [16]byte
	IsIndexEncrypted bool
}

// pakFooterSize returns the on-disk footer size for a given version: the
// base fields are always present; the encryption GUID and encrypted-index
// flag are only present from the versions that introduced them.
func pakFooterSize(version int32) int64 {
	size := int64(4 + 4 + 8 + 8 + 20) // magic, version, indexOffset, indexSize, hash
	if version >= pakVersionEncryptionKeyGUID {
		size += 16
	}
	if version >= pakVersionEncryptedIndex {
		size += 1
	}
	return size
}

// ParsePakFooter reads the trailing footer of a .pak file. data must be the
// full file contents, or any suffix of them that contains the whole footer.
func ParsePakFooter(data []byte) (PakFooter, error) {
	// Try decreasing candidate sizes since the version field (which decides
	// the size) lives inside the footer itself.
	for _, probeSize := range []int64{61, 60, 44} {
		if int64(len(data)) < probeSize {
			continue
		}
		r := NewArchiveReader(data[int64(len(data))-probeSize:])
		magic, ok := r.TryReadU32()
		if !ok || magic != pakMagic {
			continue
		}
		version, ok := r.TryReadI32()
		if !ok {
			continue
		}
		if pakFooterSize(version) != probeSize {
			continue
		}
		indexOffset, ok1 := r.TryReadU64()
		indexSize, ok2 := r.TryReadU64()
		hashBytes, ok3 := r.TryReadBytes(20)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		footer := PakFooter{Version: version, IndexOffset: indexOffset, IndexSize: indexSize}
		copy(footer.IndexHash[:], hashBytes)
		if version >= pakVersionEncryptionKeyGUID {
			guid, ok := r.TryReadBytes(16)
			if !ok {
				continue
			}
			copy(footer.EncryptionKeyGUID[:], guid)
		}
		if version >= pakVersionEncryptedIndex {
			enc, ok := r.TryReadBool()
			if !ok {
				continue
			}
			footer.IsIndexEncrypted = enc
		}
		return footer, nil
	}
	return PakFooter{}, fmt.Errorf("%w: pak footer magic not found", ErrInvalidFormat)
}

// readPakIndexEntry reads the fixed-shape record describing one file within the
// Pak index, read in the same "declare count, loop, read fields" shape the
// teacher's dotnet_metadata_tables.go row readers use.
func readPakIndexEntry(r *ArchiveReader, compressionMethods []string) (Entry, bool) {
	name, ok := r.TryReadFString()
	if !ok {
		return Entry{}, false
	}
	offset, ok := r.TryReadU64()
	if !ok {
		return Entry{}, false
	}
	compressedSize, ok := r.TryReadU64()
	if !ok {
		return Entry{}, false
	}
	uncompressedSize, ok := r.TryReadU64()
	if !ok {
		return Entry{}, false
	}
	methodIndex, ok := r.TryReadI32()
	if !ok {
		return Entry{}, false
	}
	if _, ok := r.TryReadBytes(20); !ok { // per-entry hash, unused for enumeration
		return Entry{}, false
	}

	entry := Entry{
		Kind:        EntryPak,
		LogicalPath: name,
		Offset:      offset,
		Size:        uncompressedSize,
	}
	_ = compressedSize

	if methodIndex > 0 && int(methodIndex) <= len(compressionMethods) {
		entry.PakCompressionMethod = compressionMethods[methodIndex-1]
	}

	if methodIndex != 0 {
		numBlocks, ok := r.TryReadI32()
		if !ok || numBlocks < 0 {
			return Entry{}, false
		}
		blocks := make([]PakBlock, numBlocks)
		for i := range blocks {
			start, ok1 := r.TryReadU64()
			end, ok2 := r.TryReadU64()
			if !ok1 || !ok2 {
				return Entry{}, false
			}
			blocks[i] = PakBlock{CompressedOffset: start, CompressedSize: end - start}
		}
		entry.PakBlocks = blocks
	}

	encrypted, ok := r.TryReadBool()
	if !ok {
		return Entry{}, false
	}
	entry.PakIsEncrypted = encrypted

	blockSize, ok := r.TryReadU32() // compression block size: every block but the last decompresses to this many bytes
	if !ok {
		return Entry{}, false
	}
	remaining := uncompressedSize
	for i := range entry.PakBlocks {
		n := uint64(blockSize)
		if n == 0 || n > remaining {
			n = remaining
		}
		entry.PakBlocks[i].UncompressedSize = n
		remaining -= n
	}

	return entry, true
}

// defaultPakCompressionMethods is the conventional compression-method-name
// table used by Pak versions that do not carry an explicit name table
// ahead of the footer (the spec leaves the exact per-version layout of
// that table as an open question); index 0 always means "None" and never
// appears in this slice.
var defaultPakCompressionMethods = []string{"Zlib", "Gzip", "Oodle", "LZ4"}

// ParsePakIndex decodes a (decrypted, decompressed) Pak index blob into its
// mount point and entries. compressionMethods is the footer/header-declared
// method-name table; index 0 conventionally means "None" and is implicit.
// A nil table falls back to defaultPakCompressionMethods.
func ParsePakIndex(data []byte, compressionMethods []string, containerPath string) (mountPoint string, entries []Entry, err error) {
	if compressionMethods == nil {
		compressionMethods = defaultPakCompressionMethods
	}

	r := NewArchiveReader(data)
	mountPoint, ok := r.TryReadFString()
	if !ok {
		return "", nil, fmt.Errorf("%w: pak index mount point", ErrInvalidFormat)
	}
	count, ok := r.TryReadI32()
	if !ok || count < 0 {
		return "", nil, fmt.Errorf("%w: pak index entry count", ErrInvalidFormat)
	}
	entries = make([]Entry, 0, count)
	for i := int32(0); i < count; i++ {
		e, ok := readPakIndexEntry(r, compressionMethods)
		if !ok {
			return "", nil, fmt.Errorf("%w: pak index entry %d", ErrInvalidFormat, i)
		}
		e.ContainerPath = containerPath
		e.LogicalPath = joinMountPoint(mountPoint, e.LogicalPath)
		entries = append(entries, e)
	}
	return mountPoint, entries, nil
}

func joinMountPoint(mountPoint, relative string) string {
	if mountPoint == "" {
		return relative
	}
	if mountPoint[len(mountPoint)-1] == '/' {
		return mountPoint + relative
	}
	return mountPoint + "/" + relative
}

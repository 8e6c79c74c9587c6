package uasset

import (
	"bytes"
	"fmt"
)

var ioStoreMagic = []byte("-==--==--==--==-")

const ioStoreMountPointSentinelMax = 1024

// IoStoreHeader is the fixed-shape prologue of a .utoc file, read in
// declared field order exactly as the spec's byte layout prescribes.
type IoStoreHeader struct {
	Version                  uint8
	HeaderSize               int32
	EntryCount               int32
	CompressedBlockCount     int32
	CompressedBlockEntrySize int32
	CompressionMethodCount   int32
	CompressionMethodLength  int32
	CompressionBlockSize     int32
	DirectoryIndexSize       int32
	PartitionCount           int32
	ContainerID              uint64
	EncryptionKeyGUID        [16]byte
	ContainerFlags           uint8
	PerfectHashSeedsCount    int32
	PartitionSize            uint64
	ChunksWithoutPerfectHashCount int32
}

const (
	ioContainerFlagIndexed   = 1 << 0
	ioContainerFlagEncrypted = 1 << 1
	ioContainerFlagSigned    = 1 << 2
)

func (h IoStoreHeader) isEncrypted() bool { return h.ContainerFlags&ioContainerFlagEncrypted != 0 }
func (h IoStoreHeader) isSigned() bool    { return h.ContainerFlags&ioContainerFlagSigned != 0 }

// ParseIoStoreHeader reads the fixed-layout .utoc prologue described in
// spec section 4.3: a 16-byte magic, a version byte, two reserved pads,
// nine packed i32 counts, container identity fields (id, encryption key
// GUID, flags byte) followed by 7 reserved bytes, the perfect-hash seed
// count, partition size and chunks-without-perfect-hash count, then 44
// reserved bytes.
func ParseIoStoreHeader(r *ArchiveReader) (IoStoreHeader, error) {
	magic, ok := r.TryReadBytes(16)
	if !ok || !bytes.Equal(magic, ioStoreMagic) {
		return IoStoreHeader{}, fmt.Errorf("%w: iostore TOC magic mismatch", ErrInvalidFormat)
	}
	var h IoStoreHeader
	var fail bool
	readU8 := func() uint8 { v, ok := r.TryReadU8(); fail = fail || !ok; return v }
	readI32 := func() int32 { v, ok := r.TryReadI32(); fail = fail || !ok; return v }
	readU32 := func() uint32 { v, ok := r.TryReadU32(); fail = fail || !ok; return v }
	readU64 := func() uint64 { v, ok := r.TryReadU64(); fail = fail || !ok; return v }

	h.Version = readU8()
	_ = readU8() // reserved pad
	_ = readU8() // reserved pad

	h.HeaderSize = readI32()
	h.EntryCount = readI32()
	h.CompressedBlockCount = readI32()
	h.CompressedBlockEntrySize = readI32()
	h.CompressionMethodCount = readI32()
	h.CompressionMethodLength = readI32()
	h.CompressionBlockSize = readI32()
	h.DirectoryIndexSize = readI32()
	h.PartitionCount = readI32()

	h.ContainerID = readU64()
	if guid, ok := r.TryReadBytes(16); ok {
		copy(h.EncryptionKeyGUID[:], guid)
	} else {
		fail = true
	}
	h.ContainerFlags = readU8()
	_ = readU8() // reserved pad
	_ = readU16Pad(r, &fail)
	_ = readU32() // reserved

	h.PerfectHashSeedsCount = readI32()
	h.PartitionSize = readU64()
	h.ChunksWithoutPerfectHashCount = readI32()

	if !r.Skip(44) {
		fail = true
	}
	if fail {
		return IoStoreHeader{}, fmt.Errorf("%w: truncated iostore TOC header", ErrInvalidFormat)
	}
	return h, nil
}

func readU16Pad(r *ArchiveReader, fail *bool) uint16 {
	v, ok := r.TryReadU16()
	if !ok {
		*fail = true
	}
	return v
}

// readIoChunkID reads the 12-byte packed chunk identifier: an 8-byte id
// plus a final 4-byte field whose high byte is the chunk type.
func readIoChunkID(r *ArchiveReader) (IoChunkID, bool) {
	id, ok := r.TryReadU64()
	if !ok {
		return IoChunkID{}, false
	}
	last, ok := r.TryReadU32()
	if !ok {
		return IoChunkID{}, false
	}
	return IoChunkID{ID: id, Type: IoChunkType(last >> 24)}, true
}

// readIoOffsetLength reads the packed 10-byte (offset:40, length:40)
// big-endian pair used for the per-chunk offset/length table.
func readIoOffsetLength(r *ArchiveReader) (offset, length uint64, ok bool) {
	b, ok := r.TryReadBytes(10)
	if !ok {
		return 0, 0, false
	}
	offset = uint64(b[0])<<32 | uint64(b[1])<<24 | uint64(b[2])<<16 | uint64(b[3])<<8 | uint64(b[4])
	length = uint64(b[5])<<32 | uint64(b[6])<<24 | uint64(b[7])<<16 | uint64(b[8])<<8 | uint64(b[9])
	return offset, length, true
}

// readIoCompressionBlockEntry reads the packed 12-byte compression-block
// record (offset:40, compSize:24, uncompSize:24, methodIndex:8).
func readIoCompressionBlockEntry(r *ArchiveReader) (CompressionBlock, bool) {
	b, ok := r.TryReadBytes(12)
	if !ok {
		return CompressionBlock{}, false
	}
	offset := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 | uint64(b[4])<<32
	compSize := uint32(b[5]) | uint32(b[6])<<8 | uint32(b[7])<<16
	uncompSize := uint32(b[8]) | uint32(b[9])<<8 | uint32(b[10])<<16
	methodIndex := b[11]
	return CompressionBlock{
		CompressedOffset: offset,
		CompressedSize:   compSize,
		UncompressedSize: uncompSize,
		CompressionMethod: CompressionMethod(methodIndex), // resolved to a real method by the caller via the method-name table
	}, true
}

// IoStoreTOC is the fully parsed content of a .utoc file: chunk identities,
// their offset/length spans, the shared compression-block table, and
// (optionally) the decoded directory index.
type IoStoreTOC struct {
	Header             IoStoreHeader
	ChunkIDs           []IoChunkID
	ChunkOffsetLengths []chunkOffsetLength
	CompressionBlocks  []CompressionBlock
	CompressionMethods []string // index 0 is always the implicit "None"
	DirectoryIndexRaw  []byte   // still encrypted if Header.isEncrypted(); decrypt before ParseDirectoryIndex
}

type chunkOffsetLength struct {
	Offset uint64
	Length uint64
}

// ParseIoStoreTOC decodes a complete .utoc buffer.
func ParseIoStoreTOC(data []byte) (*IoStoreTOC, error) {
	r := NewArchiveReader(data)
	header, err := ParseIoStoreHeader(r)
	if err != nil {
		return nil, err
	}
	if header.HeaderSize <= 0 || header.EntryCount < 0 || header.CompressedBlockCount < 0 {
		return nil, fmt.Errorf("%w: implausible iostore TOC counts", ErrInvalidFormat)
	}

	toc := &IoStoreTOC{Header: header}

	toc.ChunkIDs = make([]IoChunkID, header.EntryCount)
	for i := range toc.ChunkIDs {
		id, ok := readIoChunkID(r)
		if !ok {
			return nil, fmt.Errorf("%w: truncated chunk id table", ErrInvalidFormat)
		}
		toc.ChunkIDs[i] = id
	}

	toc.ChunkOffsetLengths = make([]chunkOffsetLength, header.EntryCount)
	for i := range toc.ChunkOffsetLengths {
		off, length, ok := readIoOffsetLength(r)
		if !ok {
			return nil, fmt.Errorf("%w: truncated chunk offset/length table", ErrInvalidFormat)
		}
		toc.ChunkOffsetLengths[i] = chunkOffsetLength{Offset: off, Length: length}
	}

	if header.Version >= 4 {
		if !r.Skip(int64(header.PerfectHashSeedsCount) * 4) {
			return nil, fmt.Errorf("%w: truncated perfect hash seeds", ErrInvalidFormat)
		}
	}
	if header.Version >= 5 {
		if !r.Skip(int64(header.ChunksWithoutPerfectHashCount) * 4) {
			return nil, fmt.Errorf("%w: truncated chunks-without-perfect-hash list", ErrInvalidFormat)
		}
	}

	toc.CompressionBlocks = make([]CompressionBlock, header.CompressedBlockCount)
	for i := range toc.CompressionBlocks {
		b, ok := readIoCompressionBlockEntry(r)
		if !ok {
			return nil, fmt.Errorf("%w: truncated compression block table", ErrInvalidFormat)
		}
		toc.CompressionBlocks[i] = b
	}

	toc.CompressionMethods = make([]string, header.CompressionMethodCount+1)
	toc.CompressionMethods[0] = "None"
	for i := int32(0); i < header.CompressionMethodCount; i++ {
		raw, ok := r.TryReadBytes(int(header.CompressionMethodLength))
		if !ok {
			return nil, fmt.Errorf("%w: truncated compression method names", ErrInvalidFormat)
		}
		toc.CompressionMethods[i+1] = cStringFromNulPadded(raw)
	}

	// Resolve each block's placeholder method index against the real table.
	for i := range toc.CompressionBlocks {
		idx := int(toc.CompressionBlocks[i].CompressionMethod)
		name := "None"
		if idx >= 0 && idx < len(toc.CompressionMethods) {
			name = toc.CompressionMethods[idx]
		}
		toc.CompressionBlocks[i].CompressionMethod = ParseCompressionMethod(name)
	}

	if header.isSigned() {
		// The signing block is an i32 hash size, the TOC and block-table
		// signatures of that many bytes each, and one 20-byte hash per
		// compression block. It is skipped unvalidated since signature
		// *verification* is outside this library's scope.
		hashSize, ok := r.TryReadI32()
		if !ok || hashSize < 0 || !r.Skip(2*int64(hashSize)+20*int64(header.CompressedBlockCount)) {
			return nil, fmt.Errorf("%w: truncated signing block", ErrInvalidFormat)
		}
	}

	if header.DirectoryIndexSize > 0 {
		size := Align16(uint64(header.DirectoryIndexSize))
		raw, ok := r.TryReadBytes(int(size))
		if !ok {
			return nil, fmt.Errorf("%w: truncated directory index", ErrInvalidFormat)
		}
		toc.DirectoryIndexRaw = raw
	}

	return toc, nil
}

func cStringFromNulPadded(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// ioDirectory / ioFile mirror the on-disk directory-index node shapes.
type ioDirectory struct {
	NameIndex  uint32
	FirstChild uint32
	NextSibling uint32
	FirstFile  uint32
}

type ioFile struct {
	NameIndex uint32
	NextFile  uint32
	ChunkIndex uint32
}

const ioIndexNone = 0xFFFFFFFF

// ParseDirectoryIndex decodes the (already decrypted) directory-index
// payload and returns one Entry per file, with logical paths built by
// walking the directory tree from the mount point -- the same
// nameIdx/firstChild/nextSibling/firstFile link-walk shape as the teacher's
// resource.go ResourceDirectory tree, generalized from PE resources to
// filesystem paths.
func ParseDirectoryIndex(data []byte, chunkIDs []IoChunkID, offsetLengths []chunkOffsetLength, containerPath string, blockSize uint32) ([]Entry, string, error) {
	r := NewArchiveReader(data)

	// Validation: the first four bytes, reinterpreted as the FString length
	// prefix of the mount point, must be non-negative and at most
	// ioStoreMountPointSentinelMax.
	if r.Remaining() < 4 {
		return nil, "", fmt.Errorf("%w: directory index too short", ErrInvalidFormat)
	}
	peekLen, _ := NewArchiveReader(data).TryReadI32()
	if peekLen < 0 || peekLen > ioStoreMountPointSentinelMax {
		return nil, "", fmt.Errorf("%w: directory index mount point length implausible (%w)", ErrInvalidFormat, ErrBadKey)
	}

	mountPoint, ok := r.TryReadFString()
	if !ok {
		return nil, "", fmt.Errorf("%w: directory index mount point", ErrInvalidFormat)
	}
	mountPoint = strippedMountPoint(mountPoint)

	dirCount, ok := r.TryReadI32()
	if !ok || dirCount < 0 {
		return nil, "", fmt.Errorf("%w: directory index dir count", ErrInvalidFormat)
	}
	dirs := make([]ioDirectory, dirCount)
	for i := range dirs {
		a, ok1 := r.TryReadU32()
		b, ok2 := r.TryReadU32()
		c, ok3 := r.TryReadU32()
		d, ok4 := r.TryReadU32()
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, "", fmt.Errorf("%w: directory index dir table", ErrInvalidFormat)
		}
		dirs[i] = ioDirectory{NameIndex: a, FirstChild: b, NextSibling: c, FirstFile: d}
	}

	fileCount, ok := r.TryReadI32()
	if !ok || fileCount < 0 {
		return nil, "", fmt.Errorf("%w: directory index file count", ErrInvalidFormat)
	}
	files := make([]ioFile, fileCount)
	for i := range files {
		a, ok1 := r.TryReadU32()
		b, ok2 := r.TryReadU32()
		c, ok3 := r.TryReadU32()
		if !ok1 || !ok2 || !ok3 {
			return nil, "", fmt.Errorf("%w: directory index file table", ErrInvalidFormat)
		}
		files[i] = ioFile{NameIndex: a, NextFile: b, ChunkIndex: c}
	}

	stringCount, ok := r.TryReadI32()
	if !ok || stringCount < 0 {
		return nil, "", fmt.Errorf("%w: directory index string count", ErrInvalidFormat)
	}
	strs := make([]string, stringCount)
	for i := range strs {
		s, ok := r.TryReadFString()
		if !ok {
			return nil, "", fmt.Errorf("%w: directory index string pool", ErrInvalidFormat)
		}
		strs[i] = s
	}

	nameAt := func(idx uint32) string {
		if idx == ioIndexNone || int(idx) >= len(strs) {
			return ""
		}
		return strs[idx]
	}

	var entries []Entry
	var walk func(dirIdx uint32, prefix string)
	walk = func(dirIdx uint32, prefix string) {
		if dirIdx == ioIndexNone || int(dirIdx) >= len(dirs) {
			return
		}
		dir := dirs[dirIdx]
		dirPath := prefix
		if name := nameAt(dir.NameIndex); name != "" {
			dirPath = prefix + name + "/"
		}

		for fileIdx := dir.FirstFile; fileIdx != ioIndexNone && int(fileIdx) < len(files); {
			f := files[fileIdx]
			fullPath := dirPath + nameAt(f.NameIndex)
			if int(f.ChunkIndex) < len(chunkIDs) && int(f.ChunkIndex) < len(offsetLengths) {
				ol := offsetLengths[f.ChunkIndex]
				entries = append(entries, Entry{
					ContainerPath:     containerPath,
					LogicalPath:       fullPath,
					Offset:            ol.Offset,
					Size:              ol.Length,
					Kind:              EntryIoStore,
					IoChunkID:         chunkIDs[f.ChunkIndex],
					IoBlockSize:       blockSize,
					IoFirstBlockIndex: int(ol.Offset / uint64(blockSize)),
					IoLastBlockIndex:  int((ol.Offset + maxUint64(ol.Length, 1) - 1) / uint64(blockSize)),
				})
			}
			fileIdx = f.NextFile
		}

		for childIdx := dir.FirstChild; childIdx != ioIndexNone && int(childIdx) < len(dirs); {
			walk(childIdx, dirPath)
			childIdx = dirs[childIdx].NextSibling
		}
	}
	walk(0, mountPoint)

	return entries, mountPoint, nil
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func strippedMountPoint(mountPoint string) string {
	const prefix = "../../../"
	if len(mountPoint) >= len(prefix) && mountPoint[:len(prefix)] == prefix {
		return mountPoint[len(prefix):]
	}
	return mountPoint
}

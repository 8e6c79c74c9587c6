package uasset

// Block describes one physical compression block backing a portion of an
// entry's logical byte range.
type Block struct {
	CompressedOffset uint64
	CompressedSize   uint32
	UncompressedSize uint32
	UncompressedOffset uint64 // offset within the entry's logical stream where this block's data begins
	Method           CompressionMethod
}

// BlockProvider translates an entry's logical offsets into the container
// blocks that back them, abstracting over the Pak (entry-local blocks) and
// IoStore (container-shared blocks) layouts.
type BlockProvider struct {
	UncompressedSize  uint64
	BlockSize         uint32 // 0 for Pak, where block sizes vary per block
	IsEncrypted       bool
	FirstBlockOffset  uint64 // entry.Offset mod BlockSize for IoStore; always 0 for Pak
	Blocks            []Block
}

// NewBlockProviderForIoStore builds a BlockProvider for an IoStore entry,
// slicing out of the container-shared compression-block table the
// contiguous run this entry spans.
func NewBlockProviderForIoStore(entry Entry, containerBlocks []CompressionBlock) *BlockProvider {
	first := entry.IoFirstBlockIndex
	last := entry.IoLastBlockIndex
	if first < 0 {
		first = 0
	}
	if last >= len(containerBlocks) {
		last = len(containerBlocks) - 1
	}

	var blocks []Block
	var logicalCursor uint64
	for i := first; i <= last && i < len(containerBlocks); i++ {
		cb := containerBlocks[i]
		blocks = append(blocks, Block{
			CompressedOffset:   cb.CompressedOffset,
			CompressedSize:     cb.CompressedSize,
			UncompressedSize:   cb.UncompressedSize,
			UncompressedOffset: logicalCursor,
			Method:             cb.CompressionMethod,
		})
		logicalCursor += uint64(cb.UncompressedSize)
	}

	return &BlockProvider{
		UncompressedSize: entry.Size,
		BlockSize:        entry.IoBlockSize,
		IsEncrypted:      entry.IoIsEncrypted,
		FirstBlockOffset: entry.Offset % uint64(entry.IoBlockSize),
		Blocks:           blocks,
	}
}

// NewBlockProviderForPak builds a BlockProvider for a Pak entry, whose
// blocks are entry-local (not shared) and whose sizes vary per block.
func NewBlockProviderForPak(entry Entry) *BlockProvider {
	var blocks []Block
	var logicalCursor uint64
	method := ParseCompressionMethod(entry.PakCompressionMethod)
	for _, pb := range entry.PakBlocks {
		blocks = append(blocks, Block{
			CompressedOffset:   pb.CompressedOffset,
			CompressedSize:     uint32(pb.CompressedSize),
			UncompressedSize:   uint32(pb.UncompressedSize),
			UncompressedOffset: logicalCursor,
			Method:             method,
		})
		logicalCursor += pb.UncompressedSize
	}
	return &BlockProvider{
		UncompressedSize: entry.Size,
		BlockSize:        0,
		IsEncrypted:      entry.PakIsEncrypted,
		FirstBlockOffset: 0,
		Blocks:           blocks,
	}
}

// BlockCount returns the number of physical blocks backing the entry.
func (p *BlockProvider) BlockCount() int { return len(p.Blocks) }

// GetBlockReadSize returns the number of bytes to read from the container
// for block i: the compressed size rounded up to a 16-byte boundary when
// encrypted (ciphertext is always block-aligned), or the raw compressed
// size otherwise.
func (p *BlockProvider) GetBlockReadSize(i int) uint32 {
	size := p.Blocks[i].CompressedSize
	if p.IsEncrypted {
		return uint32(Align16(uint64(size)))
	}
	return size
}

// GetBlockMethod returns the compression method for block i.
func (p *BlockProvider) GetBlockMethod(i int) CompressionMethod {
	return p.Blocks[i].Method
}

// blockIndexForPosition finds the block covering blockSpacePos, a position
// expressed in the block table's own coordinate space (i.e. the entry's
// logical position plus FirstBlockOffset, since block 0 of an IoStore
// entry may start mid-block). Block uncompressed sizes are typically
// uniform (IoStore) but may vary (Pak), so this falls back to a linear
// scan when the fixed-size shortcut doesn't land on the right block.
func (p *BlockProvider) blockIndexForPosition(blockSpacePos uint64) int {
	if p.BlockSize > 0 {
		idx := int(blockSpacePos / uint64(p.BlockSize))
		if idx >= 0 && idx < len(p.Blocks) {
			b := p.Blocks[idx]
			if blockSpacePos >= b.UncompressedOffset && blockSpacePos < b.UncompressedOffset+uint64(b.UncompressedSize) {
				return idx
			}
		}
	}
	for i, b := range p.Blocks {
		if blockSpacePos >= b.UncompressedOffset && blockSpacePos < b.UncompressedOffset+uint64(b.UncompressedSize) {
			return i
		}
	}
	return -1
}

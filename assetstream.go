package uasset

import "fmt"

// RandomAccessSource is the narrow read interface AssetStream needs from a
// mounted container; satisfied by *MountedContainer, and by a plain byte
// slice in tests via bytesSource.
type RandomAccessSource interface {
	ReadAt(offset uint64, size uint64) ([]byte, bool)
}

type bytesSource []byte

func (b bytesSource) ReadAt(offset, size uint64) ([]byte, bool) {
	end := offset + size
	if end < offset || end > uint64(len(b)) {
		return nil, false
	}
	return b[offset:end], true
}

// AssetStream is a seekable, read-only logical view over an entry's
// decompressed, decrypted bytes. It holds exactly one decoded block buffer
// at a time, re-decoding on demand as the read position crosses block
// boundaries -- mirroring the teacher's zero-copy mmap slice access
// (file.go/helper.go) but adding a decode stage between "container bytes"
// and "logical bytes".
type AssetStream struct {
	source   RandomAccessSource
	provider *BlockProvider
	codecs   *Codecs
	aesKey   []byte
	baseOffset uint64 // added to each block's CompressedOffset: 0 (IoStore) or entry.Offset (Pak, entry-relative blocks)

	pos int64

	currentBlockIndex int
	currentBlockStart int64
	currentBlockEnd   int64
	currentBlockData  []byte
}

// NewAssetStream constructs a stream over the given entry.
// containerDataOffset is added to every block's CompressedOffset before the
// block is read from source: it is 0 for IoStore entries, whose shared
// compression-block table already holds absolute offsets within the
// container file, and the entry's own data offset for Pak entries, whose
// block offsets are relative to it.
func NewAssetStream(source RandomAccessSource, provider *BlockProvider, codecs *Codecs, aesKey []byte, containerDataOffset uint64) *AssetStream {
	return &AssetStream{
		source:            source,
		provider:          provider,
		codecs:            codecs,
		aesKey:            aesKey,
		baseOffset:         containerDataOffset,
		currentBlockIndex: -1,
	}
}

// Len returns the logical uncompressed length of the stream.
func (s *AssetStream) Len() int64 { return int64(s.provider.UncompressedSize) }

// Position returns the current logical read offset.
func (s *AssetStream) Position() int64 { return s.pos }

// Seek repositions the stream; it does not itself trigger a block load.
func (s *AssetStream) Seek(offset int64) bool {
	if offset < 0 || offset > s.Len() {
		return false
	}
	s.pos = offset
	return true
}

// Read copies up to len(buf) bytes starting at the current position,
// loading blocks on demand, and returns the number of bytes copied. A
// return of 0 with pos == Len() means end of stream.
func (s *AssetStream) Read(buf []byte) (int, error) {
	if s.pos >= s.Len() {
		return 0, nil
	}
	total := 0
	for total < len(buf) && s.pos < s.Len() {
		blockSpacePos := uint64(s.pos) + s.provider.FirstBlockOffset
		if int64(blockSpacePos) < s.currentBlockStart || int64(blockSpacePos) >= s.currentBlockEnd {
			idx := s.provider.blockIndexForPosition(blockSpacePos)
			if idx < 0 {
				return total, fmt.Errorf("%w: no block covers logical offset %d", ErrStreamOverrun, s.pos)
			}
			if err := s.loadBlock(idx); err != nil {
				return total, err
			}
		}

		blockOffset := int64(blockSpacePos) - s.currentBlockStart
		available := int64(len(s.currentBlockData)) - blockOffset
		if available <= 0 {
			return total, fmt.Errorf("%w: decoded block shorter than expected", ErrStreamOverrun)
		}
		n := int64(len(buf) - total)
		if n > available {
			n = available
		}
		copy(buf[total:], s.currentBlockData[blockOffset:blockOffset+n])
		total += int(n)
		s.pos += n
	}
	return total, nil
}

// ReadAll reads the remainder of the stream from the current position.
func (s *AssetStream) ReadAll() ([]byte, error) {
	out := make([]byte, 0, s.Len()-s.pos)
	buf := make([]byte, 64*1024)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			return out, err
		}
		if n == 0 {
			return out, nil
		}
	}
}

// loadBlock decodes block i (reading from the container, decrypting and
// decompressing as needed) and makes it the current block. The stream
// holds exactly one decoded buffer at a time.
func (s *AssetStream) loadBlock(i int) error {
	block := s.provider.Blocks[i]
	readSize := s.provider.GetBlockReadSize(i)

	raw, ok := s.source.ReadAt(s.baseOffset+block.CompressedOffset, uint64(readSize))
	if !ok {
		return fmt.Errorf("%w: reading compressed block %d", ErrStreamOverrun, i)
	}

	working := make([]byte, len(raw))
	copy(working, raw)

	if s.provider.IsEncrypted {
		if len(s.aesKey) != 32 {
			return fmt.Errorf("%w: encrypted block without a configured AES key", ErrBadKey)
		}
		if err := DecryptAES256ECB(working, s.aesKey); err != nil {
			return err
		}
	}

	method := s.provider.GetBlockMethod(i)
	var decoded []byte
	if method == CompressionNone {
		decoded = working[:block.UncompressedSize]
	} else {
		compressed := working[:minInt(int(block.CompressedSize), len(working))]
		var err error
		decoded, err = s.codecs.Decompress(compressed, int(block.UncompressedSize), method)
		if err != nil {
			return err
		}
	}

	s.currentBlockIndex = i
	s.currentBlockStart = int64(block.UncompressedOffset)
	s.currentBlockEnd = s.currentBlockStart + int64(block.UncompressedSize)
	s.currentBlockData = decoded
	return nil
}

package uasset

import "testing"

func TestNewBlockProviderForPakResolvesMethod(t *testing.T) {
	entry := Entry{
		Size:                 10,
		PakCompressionMethod: "Zlib",
		PakBlocks: []PakBlock{
			{CompressedOffset: 0, CompressedSize: 5, UncompressedSize: 10},
		},
	}
	p := NewBlockProviderForPak(entry)
	if p.BlockCount() != 1 {
		t.Fatalf("got %d blocks, want 1", p.BlockCount())
	}
	if p.GetBlockMethod(0) != CompressionZlib {
		t.Fatalf("got method %v, want Zlib", p.GetBlockMethod(0))
	}
}

func TestNewBlockProviderForPakUncompressed(t *testing.T) {
	entry := Entry{
		Size: 4,
		PakBlocks: []PakBlock{
			{CompressedOffset: 0, CompressedSize: 4, UncompressedSize: 4},
		},
	}
	p := NewBlockProviderForPak(entry)
	if p.GetBlockMethod(0) != CompressionNone {
		t.Fatalf("got method %v, want None for empty PakCompressionMethod", p.GetBlockMethod(0))
	}
}

func TestGetBlockReadSizeEncryptedAlignment(t *testing.T) {
	p := &BlockProvider{
		IsEncrypted: true,
		Blocks:      []Block{{CompressedSize: 17}},
	}
	if got := p.GetBlockReadSize(0); got != 32 {
		t.Fatalf("got %d, want 32 (aligned up from 17)", got)
	}
}

func TestGetBlockReadSizeUnencryptedPassthrough(t *testing.T) {
	p := &BlockProvider{Blocks: []Block{{CompressedSize: 17}}}
	if got := p.GetBlockReadSize(0); got != 17 {
		t.Fatalf("got %d, want 17 unchanged", got)
	}
}

func TestBlockIndexForPositionFixedSizeFastPath(t *testing.T) {
	p := &BlockProvider{
		BlockSize: 8,
		Blocks: []Block{
			{UncompressedOffset: 0, UncompressedSize: 8},
			{UncompressedOffset: 8, UncompressedSize: 8},
			{UncompressedOffset: 16, UncompressedSize: 8},
		},
	}
	if idx := p.blockIndexForPosition(0); idx != 0 {
		t.Errorf("pos 0: got %d, want 0", idx)
	}
	if idx := p.blockIndexForPosition(9); idx != 1 {
		t.Errorf("pos 9: got %d, want 1", idx)
	}
	if idx := p.blockIndexForPosition(23); idx != 2 {
		t.Errorf("pos 23: got %d, want 2", idx)
	}
	if idx := p.blockIndexForPosition(24); idx != -1 {
		t.Errorf("pos 24 (past end): got %d, want -1", idx)
	}
}

func TestBlockIndexForPositionVariableSizeFallback(t *testing.T) {
	// Pak-style: BlockSize is 0, so the fixed-size shortcut never applies
	// and every lookup falls through to the linear scan.
	p := &BlockProvider{
		Blocks: []Block{
			{UncompressedOffset: 0, UncompressedSize: 5},
			{UncompressedOffset: 5, UncompressedSize: 11},
		},
	}
	if idx := p.blockIndexForPosition(4); idx != 0 {
		t.Errorf("pos 4: got %d, want 0", idx)
	}
	if idx := p.blockIndexForPosition(10); idx != 1 {
		t.Errorf("pos 10: got %d, want 1", idx)
	}
}

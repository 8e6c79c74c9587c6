package uasset

import (
	"bytes"
	"crypto/aes"
	"testing"
)

func twoUncompressedBlockProvider() (*BlockProvider, []byte) {
	data := []byte("ABCDEFGHIJKLMNOP") // 16 bytes, two 8-byte blocks
	p := &BlockProvider{
		UncompressedSize: 16,
		BlockSize:        8,
		Blocks: []Block{
			{CompressedOffset: 0, CompressedSize: 8, UncompressedSize: 8, UncompressedOffset: 0, Method: CompressionNone},
			{CompressedOffset: 8, CompressedSize: 8, UncompressedSize: 8, UncompressedOffset: 8, Method: CompressionNone},
		},
	}
	return p, data
}

func TestAssetStreamReadAll(t *testing.T) {
	p, data := twoUncompressedBlockProvider()
	s := NewAssetStream(bytesSource(data), p, NewCodecs(), nil, 0)
	out, err := s.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("got %q, want %q", out, data)
	}
}

func TestAssetStreamReadAcrossBlockBoundary(t *testing.T) {
	p, data := twoUncompressedBlockProvider()
	s := NewAssetStream(bytesSource(data), p, NewCodecs(), nil, 0)
	if !s.Seek(5) {
		t.Fatal("seek failed")
	}
	buf := make([]byte, 6) // spans bytes [5,11), crossing the block-8 boundary
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 6 {
		t.Fatalf("got %d bytes, want 6", n)
	}
	if want := data[5:11]; !bytes.Equal(buf, want) {
		t.Fatalf("got %q, want %q", buf, want)
	}
}

func TestAssetStreamSeekBounds(t *testing.T) {
	p, data := twoUncompressedBlockProvider()
	s := NewAssetStream(bytesSource(data), p, NewCodecs(), nil, 0)
	if !s.Seek(s.Len()) {
		t.Fatal("seeking exactly to Len() should succeed")
	}
	if s.Seek(s.Len() + 1) {
		t.Fatal("seeking past Len() should fail")
	}
	if s.Seek(-1) {
		t.Fatal("seeking negative should fail")
	}
}

func TestAssetStreamReadAtEndReturnsZero(t *testing.T) {
	p, data := twoUncompressedBlockProvider()
	s := NewAssetStream(bytesSource(data), p, NewCodecs(), nil, 0)
	s.Seek(s.Len())
	n, err := s.Read(make([]byte, 4))
	if n != 0 || err != nil {
		t.Fatalf("got (%d, %v), want (0, nil) at end of stream", n, err)
	}
}

func TestAssetStreamOverrunOnMissingBlock(t *testing.T) {
	// UncompressedSize claims 16 bytes but only one 8-byte block is provided,
	// so reading into the second half must fail rather than panic.
	p := &BlockProvider{
		UncompressedSize: 16,
		BlockSize:        8,
		Blocks: []Block{
			{CompressedOffset: 0, CompressedSize: 8, UncompressedSize: 8, UncompressedOffset: 0, Method: CompressionNone},
		},
	}
	s := NewAssetStream(bytesSource([]byte("ABCDEFGH")), p, NewCodecs(), nil, 0)
	s.Seek(8)
	if _, err := s.Read(make([]byte, 4)); err == nil {
		t.Fatal("expected an error reading past the last available block")
	}
}

func TestAssetStreamEncryptedBlockRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	plaintext := []byte("0123456789ABCDEF") // 16 bytes, one AES block
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	ciphertext := make([]byte, len(plaintext))
	block.Encrypt(ciphertext, plaintext)

	p := &BlockProvider{
		UncompressedSize: uint64(len(plaintext)),
		IsEncrypted:      true,
		Blocks: []Block{
			{CompressedOffset: 0, CompressedSize: uint32(len(ciphertext)), UncompressedSize: uint32(len(plaintext)), UncompressedOffset: 0, Method: CompressionNone},
		},
	}
	s := NewAssetStream(bytesSource(ciphertext), p, NewCodecs(), key, 0)
	out, err := s.ReadAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, plaintext) {
		t.Fatalf("got %q, want %q", out, plaintext)
	}
}

func TestAssetStreamEncryptedBlockMissingKey(t *testing.T) {
	p := &BlockProvider{
		UncompressedSize: 16,
		IsEncrypted:      true,
		Blocks: []Block{
			{CompressedOffset: 0, CompressedSize: 16, UncompressedSize: 16, UncompressedOffset: 0, Method: CompressionNone},
		},
	}
	s := NewAssetStream(bytesSource(make([]byte, 16)), p, NewCodecs(), nil, 0)
	if _, err := s.ReadAll(); err == nil {
		t.Fatal("expected an error when no AES key is configured for an encrypted block")
	}
}

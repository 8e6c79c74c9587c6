package uasset

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"crypto/aes"
	"testing"
)

func TestParseCompressionMethod(t *testing.T) {
	tests := []struct {
		name string
		want CompressionMethod
	}{
		{"", CompressionNone},
		{"None", CompressionNone},
		{"Zlib", CompressionZlib},
		{"Gzip", CompressionGzip},
		{"Oodle", CompressionOodle},
		{"LZ4", CompressionLZ4},
		{"Zstd", CompressionZstd},
		{"Brotli", CompressionBrotli},
		{"Unobtainium", CompressionUnknown},
	}
	for _, tt := range tests {
		if got := ParseCompressionMethod(tt.name); got != tt.want {
			t.Errorf("ParseCompressionMethod(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDecompressNone(t *testing.T) {
	codecs := NewCodecs()
	src := []byte("exact size payload")
	out, err := codecs.Decompress(src, len(src), CompressionNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("got %q, want %q", out, src)
	}
}

func TestDecompressNoneSizeMismatch(t *testing.T) {
	codecs := NewCodecs()
	if _, err := codecs.Decompress([]byte("abc"), 10, CompressionNone); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestDecompressZlib(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog")
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(want)
	zw.Close()

	codecs := NewCodecs()
	out, err := codecs.Decompress(buf.Bytes(), len(want), CompressionZlib)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestDecompressGzip(t *testing.T) {
	want := []byte("another payload entirely")
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write(want)
	gw.Close()

	codecs := NewCodecs()
	out, err := codecs.Decompress(buf.Bytes(), len(want), CompressionGzip)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestDecompressOodleUnregistered(t *testing.T) {
	codecs := NewCodecs()
	if _, err := codecs.Decompress([]byte{0x01}, 1, CompressionOodle); err != ErrUnsupportedCodec {
		t.Fatalf("expected ErrUnsupportedCodec, got %v", err)
	}
}

type stubOodle struct{ out []byte }

func (s stubOodle) Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	return s.out, nil
}

func TestDecompressOodleRegistered(t *testing.T) {
	codecs := NewCodecs()
	want := []byte("oodle decoded bytes")
	codecs.RegisterOodle(stubOodle{out: want})
	out, err := codecs.Decompress([]byte{0xFF}, len(want), CompressionOodle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestAlign16(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{0, 0}, {1, 16}, {15, 16}, {16, 16}, {17, 32},
	}
	for _, tt := range tests {
		if got := Align16(tt.in); got != tt.want {
			t.Errorf("Align16(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestDecryptAES256ECBRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	plaintext := append([]byte("0123456789ABCDEF"), []byte("FEDCBA9876543210")...) // 32 bytes, two blocks

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	ciphertext := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		block.Encrypt(ciphertext[i:i+aes.BlockSize], plaintext[i:i+aes.BlockSize])
	}

	if err := DecryptAES256ECB(ciphertext, key); err != nil {
		t.Fatalf("DecryptAES256ECB: %v", err)
	}
	if !bytes.Equal(ciphertext, plaintext) {
		t.Fatalf("got %q, want %q", ciphertext, plaintext)
	}
}

func TestDecryptAES256ECBRejectsBadKeyLength(t *testing.T) {
	data := make([]byte, 16)
	if err := DecryptAES256ECB(data, []byte("too short")); err == nil {
		t.Fatal("expected error for non-32-byte key")
	}
}

func TestDecryptAES256ECBRejectsUnalignedData(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	if err := DecryptAES256ECB(make([]byte, 17), key); err == nil {
		t.Fatal("expected error for non-block-aligned ciphertext")
	}
}

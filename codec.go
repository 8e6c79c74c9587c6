package uasset

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionMethod identifies a block decompression algorithm. The zero
// value, CompressionNone, means the block is stored uncompressed.
type CompressionMethod int

const (
	CompressionNone CompressionMethod = iota
	CompressionZlib
	CompressionGzip
	CompressionOodle
	CompressionLZ4
	CompressionZstd
	CompressionBrotli
	CompressionUnknown
)

// ParseCompressionMethod maps a container's declared method name (read from
// the IoStore/Pak compression-method-name table) to a CompressionMethod.
// Unknown names return CompressionUnknown rather than an error, so entry
// enumeration can proceed even if a later block decode fails.
func ParseCompressionMethod(name string) CompressionMethod {
	switch name {
	case "", "None":
		return CompressionNone
	case "Zlib":
		return CompressionZlib
	case "Gzip":
		return CompressionGzip
	case "Oodle":
		return CompressionOodle
	case "LZ4":
		return CompressionLZ4
	case "Zstd":
		return CompressionZstd
	case "Brotli":
		return CompressionBrotli
	default:
		return CompressionUnknown
	}
}

// OodleDecompressor is the pluggable extension point for Oodle decoding.
// Oodle has no redistributable open-source Go implementation, so the core
// ships no default implementation; callers that need Oodle-compressed
// containers register one (e.g. by shelling out to a licensed decoder) via
// Codecs.RegisterOodle.
type OodleDecompressor interface {
	Decompress(src []byte, uncompressedSize int) ([]byte, error)
}

// Codecs dispatches compressed block decoding by CompressionMethod. It is
// stateless except for the optional Oodle plugin slot.
type Codecs struct {
	oodle OodleDecompressor
}

// NewCodecs constructs a Codecs dispatcher with no Oodle plugin registered.
func NewCodecs() *Codecs {
	return &Codecs{}
}

// RegisterOodle installs an Oodle decoder. Passing nil clears a previously
// registered decoder.
func (c *Codecs) RegisterOodle(d OodleDecompressor) {
	c.oodle = d
}

// Decompress decompresses src into a buffer of exactly uncompressedSize
// bytes. A length mismatch after decoding is reported as ErrInvalidFormat
// rather than silently truncating or zero-padding.
func (c *Codecs) Decompress(src []byte, uncompressedSize int, method CompressionMethod) ([]byte, error) {
	switch method {
	case CompressionNone:
		if len(src) != uncompressedSize {
			return nil, fmt.Errorf("%w: uncompressed block size mismatch", ErrInvalidFormat)
		}
		return src, nil

	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readExact(zr, uncompressedSize)

	case CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		return readExact(gr, uncompressedSize)

	case CompressionLZ4:
		lr := lz4.NewReader(bytes.NewReader(src))
		return readExact(lr, uncompressedSize)

	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readExact(zr, uncompressedSize)

	case CompressionBrotli:
		br := brotli.NewReader(bytes.NewReader(src))
		return readExact(br, uncompressedSize)

	case CompressionOodle:
		if c.oodle == nil {
			return nil, ErrUnsupportedCodec
		}
		out, err := c.oodle.Decompress(src, uncompressedSize)
		if err != nil {
			return nil, err
		}
		if len(out) != uncompressedSize {
			return nil, fmt.Errorf("%w: oodle decompressed size mismatch", ErrInvalidFormat)
		}
		return out, nil

	default:
		return nil, ErrUnsupportedCodec
	}
}

func readExact(r io.Reader, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, fmt.Errorf("%w: decompressed data shorter than declared size", ErrInvalidFormat)
		}
		return nil, err
	}
	// Confirm the stream is fully consumed; a trailing byte means the
	// declared uncompressed size was wrong.
	var extra [1]byte
	if m, _ := r.Read(extra[:]); m != 0 {
		return nil, fmt.Errorf("%w: decompressed data exceeds declared size", ErrInvalidFormat)
	}
	return out, nil
}

// Align16 rounds n up to the next multiple of 16, matching the padding AES
// requires for ECB-mode block decryption.
func Align16(n uint64) uint64 {
	return (n + 15) &^ 15
}

// DecryptAES256ECB decrypts data in place using AES-256 in ECB mode (no
// padding). data's length must already be a multiple of 16 (see Align16);
// key must be exactly 32 bytes. ECB decryption always "succeeds"
// mechanically even against the wrong key -- callers validate the result by
// checking the plausibility of the next expected plaintext field and
// should surface ErrBadKey themselves when that check fails.
func DecryptAES256ECB(data, key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("%w: AES-256 key must be 32 bytes", ErrInvalidFormat)
	}
	if len(data)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext not 16-byte aligned", ErrInvalidFormat)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	ecb := newECBDecrypter(block)
	ecb.CryptBlocks(data, data)
	return nil
}

// ecbDecrypter implements cipher.BlockMode for AES-ECB. The standard
// library deliberately omits ECB (it leaks block-level plaintext patterns
// and is unsuitable for general-purpose encryption), so there is no
// upstream package for it; this is the minimal shim every Go project that
// must interoperate with a legacy ECB format ends up writing by hand.
type ecbDecrypter struct {
	block cipher.Block
}

func newECBDecrypter(block cipher.Block) cipher.BlockMode {
	return &ecbDecrypter{block: block}
}

func (x *ecbDecrypter) BlockSize() int { return x.block.BlockSize() }

func (x *ecbDecrypter) CryptBlocks(dst, src []byte) {
	bs := x.block.BlockSize()
	if len(src)%bs != 0 {
		panic("uasset: ECB input not a multiple of the block size")
	}
	if len(dst) < len(src) {
		panic("uasset: ECB output smaller than input")
	}
	for len(src) > 0 {
		x.block.Decrypt(dst, src[:bs])
		src = src[bs:]
		dst = dst[bs:]
	}
}

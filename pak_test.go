package uasset

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func writeFStringUTF8(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, int32(len(s)+1))
	buf.WriteString(s)
	buf.WriteByte(0)
}

func buildPakFooter(version int32) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(pakMagic))
	binary.Write(&buf, binary.LittleEndian, version)
	binary.Write(&buf, binary.LittleEndian, uint64(1000)) // indexOffset
	binary.Write(&buf, binary.LittleEndian, uint64(200))  // indexSize
	buf.Write(make([]byte, 20))                            // hash
	return buf.Bytes()
}

func TestParsePakFooterVersion1(t *testing.T) {
	data := buildPakFooter(pakVersionInitial)
	footer, err := ParsePakFooter(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if footer.Version != pakVersionInitial {
		t.Errorf("got version %d, want %d", footer.Version, pakVersionInitial)
	}
	if footer.IndexOffset != 1000 || footer.IndexSize != 200 {
		t.Errorf("got offset/size %d/%d, want 1000/200", footer.IndexOffset, footer.IndexSize)
	}
}

func TestParsePakFooterRejectsBadMagic(t *testing.T) {
	data := buildPakFooter(pakVersionInitial)
	data[len(data)-44] = 0xFF // corrupt the magic's first byte
	if _, err := ParsePakFooter(data); err == nil {
		t.Fatal("expected an error for corrupted magic")
	}
}

// buildPakIndexEntry encodes one readPakIndexEntry record. When
// methodIndex is 0 the entry carries no block table (matching the
// reader's "methodIndex != 0" gate on reading blocks).
func buildPakIndexEntry(buf *bytes.Buffer, name string, methodIndex int32, blocks []PakBlock) {
	writeFStringUTF8(buf, name)
	binary.Write(buf, binary.LittleEndian, uint64(0))   // offset
	binary.Write(buf, binary.LittleEndian, uint64(100)) // compressedSize
	binary.Write(buf, binary.LittleEndian, uint64(200)) // uncompressedSize
	binary.Write(buf, binary.LittleEndian, methodIndex)
	buf.Write(make([]byte, 20)) // per-entry hash
	if methodIndex != 0 {
		binary.Write(buf, binary.LittleEndian, int32(len(blocks)))
		for _, b := range blocks {
			binary.Write(buf, binary.LittleEndian, b.CompressedOffset)
			binary.Write(buf, binary.LittleEndian, b.CompressedOffset+b.CompressedSize)
		}
	}
	buf.WriteByte(0) // encrypted = false
	binary.Write(buf, binary.LittleEndian, uint32(64000)) // compression block size
}

func TestParsePakIndexDefaultCompressionMethodFallback(t *testing.T) {
	var buf bytes.Buffer
	writeFStringUTF8(&buf, "../../../Game/")
	binary.Write(&buf, binary.LittleEndian, int32(1)) // one entry
	buildPakIndexEntry(&buf, "Content/Hero.uasset", 1, []PakBlock{{CompressedOffset: 0, CompressedSize: 100}})

	mountPoint, entries, err := ParsePakIndex(buf.Bytes(), nil, "pakchunk0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mountPoint != "../../../Game/" {
		t.Errorf("got mount point %q", mountPoint)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.PakCompressionMethod != "Zlib" {
		t.Fatalf("got method %q, want Zlib (default table index 1)", e.PakCompressionMethod)
	}
	if e.ContainerPath != "pakchunk0" {
		t.Errorf("got container path %q", e.ContainerPath)
	}
	if e.LogicalPath != "../../../Game/Content/Hero.uasset" {
		t.Errorf("got logical path %q", e.LogicalPath)
	}
	if len(e.PakBlocks) != 1 || e.PakBlocks[0].CompressedSize != 100 {
		t.Fatalf("got blocks %+v", e.PakBlocks)
	}
}

func TestParsePakIndexUncompressedEntryHasNoMethod(t *testing.T) {
	var buf bytes.Buffer
	writeFStringUTF8(&buf, "/Game/")
	binary.Write(&buf, binary.LittleEndian, int32(1))
	buildPakIndexEntry(&buf, "Plain.uasset", 0, nil)

	_, entries, err := ParsePakIndex(buf.Bytes(), nil, "pakchunk0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[0].PakCompressionMethod != "" {
		t.Fatalf("got method %q, want empty for an uncompressed entry", entries[0].PakCompressionMethod)
	}
}

func TestParsePakIndexHonorsExplicitCompressionMethodTable(t *testing.T) {
	var buf bytes.Buffer
	writeFStringUTF8(&buf, "/Game/")
	binary.Write(&buf, binary.LittleEndian, int32(1))
	buildPakIndexEntry(&buf, "Custom.uasset", 1, []PakBlock{{CompressedOffset: 0, CompressedSize: 50}})

	_, entries, err := ParsePakIndex(buf.Bytes(), []string{"Oodle"}, "pakchunk0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[0].PakCompressionMethod != "Oodle" {
		t.Fatalf("got method %q, want Oodle from the explicit table", entries[0].PakCompressionMethod)
	}
}

package uasset

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// MountedContainer owns a memory-mapped data file for its lifetime and
// serves read-only random-access reads to every BlockProvider/AssetStream
// built over entries inside it. The memory map is immutable once mounted,
// so concurrent readers need no locking -- the same discipline the teacher
// uses for its mapped PE image in file.go.
type MountedContainer struct {
	path string
	f    *os.File
	data mmap.MMap
}

// MountContainer memory-maps the data file at path (a .ucas or .pak file)
// read-only.
func MountContainer(path string) (*MountedContainer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MountedContainer{path: path, f: f, data: data}, nil
}

// Path returns the filesystem path this container was mounted from.
func (c *MountedContainer) Path() string { return c.path }

// Size returns the total mapped length.
func (c *MountedContainer) Size() int64 { return int64(len(c.data)) }

// ReadAt returns a zero-copy view of [offset, offset+size) from the mapped
// data file. The returned slice aliases the mapping and must not be
// retained past Close.
func (c *MountedContainer) ReadAt(offset uint64, size uint64) ([]byte, bool) {
	end := offset + size
	if end < offset || end > uint64(len(c.data)) {
		return nil, false
	}
	return c.data[offset:end], true
}

// Close unmaps the data file and closes the underlying file handle.
func (c *MountedContainer) Close() error {
	if c.data != nil {
		_ = c.data.Unmap()
		c.data = nil
	}
	if c.f != nil {
		return c.f.Close()
	}
	return nil
}

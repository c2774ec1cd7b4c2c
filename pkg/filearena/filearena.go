//go:build unix

package filearena

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FileArena is a growable region backed by a memory-mapped file. The file is sized to
// full capacity and mapped once, growing only moves the high-water mark within the
// mapping, so granted bytes never move.
type FileArena struct {
	file *os.File
	data []byte
	size int64
}

// New sizes the file to capacity and maps it.
func New(file *os.File, capacity int64) (*FileArena, error) {
	if capacity <= 0 {
		return nil, errors.Errorf("invalid capacity: %d", capacity)
	}
	if err := file.Truncate(capacity); err != nil {
		return nil, errors.WithStack(err)
	}
	data, err := unix.Mmap(int(file.Fd()), 0, int(capacity), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileArena{
		file: file,
		data: data,
	}, nil
}

// Extend grows the region by n bytes and returns the previous high-water mark.
func (fa *FileArena) Extend(n int64) (int64, error) {
	if n < 0 {
		return 0, errors.Errorf("invalid extension: %d", n)
	}
	if fa.size+n > int64(len(fa.data)) {
		return 0, errors.Errorf("out of memory: %d bytes requested, %d available", n, int64(len(fa.data))-fa.size)
	}
	old := fa.size
	fa.size += n
	return old, nil
}

// Bytes returns the region granted so far.
func (fa *FileArena) Bytes() []byte {
	return fa.data[:fa.size]
}

// Size returns the number of bytes granted so far.
func (fa *FileArena) Size() int64 {
	return fa.size
}

// Sync flushes the mapping to the file.
func (fa *FileArena) Sync() error {
	return errors.WithStack(unix.Msync(fa.data, unix.MS_SYNC))
}

// Close unmaps the region. The file stays open, closing it is up to the caller.
func (fa *FileArena) Close() error {
	data := fa.data
	fa.data = nil
	fa.size = 0
	if data == nil {
		return nil
	}
	return errors.WithStack(unix.Munmap(data))
}

package memdev

import (
	"github.com/pkg/errors"
)

// MemDev simulates a growable region in memory. The backing buffer is allocated upfront
// at full capacity so already granted bytes never move when the region grows.
type MemDev struct {
	buf  []byte
	size int64
}

// New returns new memdev with the given capacity.
func New(capacity int64) *MemDev {
	return &MemDev{
		buf: make([]byte, capacity),
	}
}

// Extend grows the region by n bytes and returns the previous high-water mark.
func (md *MemDev) Extend(n int64) (int64, error) {
	if n < 0 {
		return 0, errors.Errorf("invalid extension: %d", n)
	}
	if md.size+n > int64(len(md.buf)) {
		return 0, errors.Errorf("out of memory: %d bytes requested, %d available", n, int64(len(md.buf))-md.size)
	}
	old := md.size
	md.size += n
	return old, nil
}

// Bytes returns the region granted so far.
func (md *MemDev) Bytes() []byte {
	return md.buf[:md.size]
}

// Size returns the number of bytes granted so far.
func (md *MemDev) Size() int64 {
	return md.size
}

package heap

import (
	"github.com/pkg/errors"

	"github.com/outofforest/heap/blocks"
	"github.com/outofforest/heap/freelist"
)

// Dev is the interface required from the growable region provider. The region only
// grows, bytes granted once stay valid for the lifetime of the allocator.
type Dev interface {
	// Extend grows the region by n bytes and returns the previous high-water mark,
	// the offset where the new space starts.
	Extend(n int64) (int64, error)
	// Bytes returns the region granted so far.
	Bytes() []byte
	// Size returns the number of bytes granted so far.
	Size() int64
}

// Config tunes the allocator. Both buffers exist to reduce fragmentation and are policy,
// not correctness: AllocBuffer is the minimum heap growth and the threshold below which
// Allocate rounds requests up to the next power of two, ReallocBuffer is the equivalent
// rounding threshold for Reallocate and the minimum size of a free predecessor worth
// growing into.
type Config struct {
	AllocBuffer   int64
	ReallocBuffer int64
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		AllocBuffer:   1 << 12,
		ReallocBuffer: 1 << 8,
	}
}

// directoryReserve is the space reserved for bucket sentinels at the start of the
// region, padded so the first block's payload lands on an aligned address.
const directoryReserve = (freelist.DirectorySize+blocks.HeaderSize+blocks.Alignment-1)&^(blocks.Alignment-1) - blocks.HeaderSize

// maxRequestSize is the largest request whose aligned block size still fits the
// header word.
const maxRequestSize = blocks.MaxBlockSize - blocks.HeaderSize

// Allocator manages a contiguous byte region as allocatable blocks. It is not safe for
// concurrent use.
type Allocator struct {
	dev    Dev
	config Config
	data   []byte
	dir    freelist.Directory
	first  blocks.Address
}

// New returns an allocator running on the dev. It reserves the directory space, zeroes
// the bucket sentinels and primes the region with one initial free block.
func New(dev Dev, config Config) (*Allocator, error) {
	if config.AllocBuffer < blocks.MinBlockSize || config.AllocBuffer%blocks.Alignment != 0 {
		return nil, errors.Errorf("invalid alloc buffer: %d", config.AllocBuffer)
	}
	if config.ReallocBuffer <= 0 {
		return nil, errors.Errorf("invalid realloc buffer: %d", config.ReallocBuffer)
	}

	if _, err := dev.Extend(directoryReserve); err != nil {
		return nil, err
	}

	a := &Allocator{
		dev:    dev,
		config: config,
		data:   dev.Bytes(),
		dir:    freelist.New(0),
		first:  directoryReserve,
	}

	for i := range a.data[:directoryReserve] {
		a.data[i] = 0
	}

	p, err := a.Allocate(config.AllocBuffer)
	if err != nil {
		return nil, err
	}
	a.Free(p)

	return a, nil
}

// Allocate reserves size bytes and returns the address of the payload. A zero size
// returns NullAddress without error.
func (a *Allocator) Allocate(size int64) (blocks.Address, error) {
	if size == 0 {
		return blocks.NullAddress, nil
	}
	if size < 0 {
		return blocks.NullAddress, errors.Errorf("invalid allocation size: %d", size)
	}

	size = roundPow2(size, a.config.AllocBuffer)
	if size > maxRequestSize {
		return blocks.NullAddress, errors.Errorf("allocation size out of range: %d", size)
	}
	blockSize := blocks.AlignBlock(size)

	if blk, ok := a.dir.FindFit(a.data, blockSize); ok {
		a.dir.Remove(a.data, blk)
		a.split(blk, blockSize)
		return blocks.Payload(blk), nil
	}

	growth := int64(blockSize)
	if growth < a.config.AllocBuffer {
		growth = a.config.AllocBuffer
	}
	blk, err := a.extend(growth)
	if err != nil {
		return blocks.NullAddress, err
	}
	blocks.WriteFree(a.data, blk, int32(growth))
	a.split(blk, blockSize)
	return blocks.Payload(blk), nil
}

// Free releases the block owning the payload, merging it with free neighbours. Freeing
// NullAddress is a no-op.
func (a *Allocator) Free(p blocks.Address) {
	if p == blocks.NullAddress {
		return
	}

	blk := blocks.BlockOf(p)
	next := blocks.Next(a.data, blk)
	size := blocks.Size(a.data, blk)

	if prev, ok := a.prevBlock(blk); ok {
		a.dir.Remove(a.data, prev)
		size += blocks.Size(a.data, prev)
		blk = prev
	}
	if a.within(next) && !blocks.IsAllocated(a.data, next) {
		a.dir.Remove(a.data, next)
		size += blocks.Size(a.data, next)
	}

	blocks.WriteFree(a.data, blk, size)
	a.dir.Insert(a.data, blk)
}

// Payload returns the payload bytes of the allocated block.
func (a *Allocator) Payload(p blocks.Address) []byte {
	blk := blocks.BlockOf(p)
	return a.data[p:blocks.Next(a.data, blk)]
}

// split reserves blockSize bytes at the head of the free block, re-emitting the
// remainder as a new free block unless it would be too small to be usable. The block
// must already be detached from its free list.
func (a *Allocator) split(blk blocks.Address, blockSize int32) {
	oldSize := blocks.Size(a.data, blk)
	if blockSize < oldSize-blocks.Alignment {
		blocks.WriteAllocated(a.data, blk, blockSize)
		rest := blocks.Next(a.data, blk)
		blocks.WriteFree(a.data, rest, oldSize-blockSize)
		a.dir.Insert(a.data, rest)
		return
	}
	blocks.WriteAllocated(a.data, blk, oldSize)
}

// prevBlock returns the physically preceding block, only if it can be proven free.
// Allocated blocks carry no footer, so the word before blk may be arbitrary payload
// bytes that merely look like a footer. The candidate is rejected unless its flag reads
// free, the implied header lies within the heap at a plausible distance and alignment,
// header and footer agree, and finally the block is found in its directory bucket.
func (a *Allocator) prevBlock(blk blocks.Address) (blocks.Address, bool) {
	footer := blk - blocks.HeaderSize
	if blocks.IsAllocated(a.data, footer) {
		return 0, false
	}

	size := blocks.Size(a.data, footer)
	hdr := blk - blocks.Address(size)
	if hdr < a.first ||
		hdr > footer-3*blocks.HeaderSize ||
		blocks.Payload(hdr)%blocks.Alignment != 0 ||
		blocks.Size(a.data, hdr) != size ||
		blocks.IsAllocated(a.data, hdr) {
		return 0, false
	}

	if !a.dir.Contains(a.data, hdr) {
		return 0, false
	}
	return hdr, true
}

func (a *Allocator) within(addr blocks.Address) bool {
	return addr < blocks.Address(len(a.data))
}

func (a *Allocator) extend(n int64) (blocks.Address, error) {
	old, err := a.dev.Extend(n)
	if err != nil {
		return 0, err
	}
	a.data = a.dev.Bytes()
	return blocks.Address(old), nil
}

func roundPow2(size, threshold int64) int64 {
	if size >= threshold {
		return size
	}
	p := int64(1)
	for p < size {
		p <<= 1
	}
	return p
}

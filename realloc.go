package heap

import (
	"github.com/pkg/errors"

	"github.com/outofforest/heap/blocks"
)

// Reallocate resizes the allocation owning the payload, preserving its content.
// A null address degrades to Allocate, a zero size degrades to Free and returns
// NullAddress. Growth is attempted in place first: into a free successor, into a free
// predecessor and successor together, into a free predecessor alone, or by extending
// the heap when the block is the last one. Only as a last resort is a fresh block
// allocated and the payload copied. In-place growth keeps the whole combined block,
// slack is retained as headroom for future growth instead of being split off.
func (a *Allocator) Reallocate(p blocks.Address, size int64) (blocks.Address, error) {
	if p == blocks.NullAddress {
		return a.Allocate(size)
	}
	if size == 0 {
		a.Free(p)
		return blocks.NullAddress, nil
	}
	if size < 0 {
		return blocks.NullAddress, errors.Errorf("invalid allocation size: %d", size)
	}

	size = roundPow2(size, a.config.ReallocBuffer)
	if size > maxRequestSize {
		return blocks.NullAddress, errors.Errorf("allocation size out of range: %d", size)
	}

	blk := blocks.BlockOf(p)
	oldSize := blocks.Size(a.data, blk)
	blockSize := blocks.AlignBlock(size)

	if blockSize <= blocks.PayloadSize(a.data, blk) {
		return p, nil
	}

	next := blocks.Next(a.data, blk)
	var nextSize int32
	nextFree := a.within(next) && !blocks.IsAllocated(a.data, next)
	if nextFree {
		nextSize = blocks.Size(a.data, next)
	}
	prev, prevFree := a.prevBlock(blk)
	var prevSize int32
	if prevFree {
		prevSize = blocks.Size(a.data, prev)
	}
	// A predecessor is only worth absorbing if it is larger than the realloc buffer.
	// Eating a small precisely-sized block would refragment the heap immediately.
	prevUsable := prevFree && int64(prevSize) > a.config.ReallocBuffer

	switch {
	case nextFree && oldSize+nextSize >= blockSize:
		a.dir.Remove(a.data, next)
		blocks.WriteAllocated(a.data, blk, oldSize+nextSize)

	case nextFree && prevUsable && prevSize+oldSize+nextSize >= blockSize:
		a.dir.Remove(a.data, prev)
		a.dir.Remove(a.data, next)
		copy(a.data[prev:prev+blocks.Address(oldSize)], a.data[blk:blk+blocks.Address(oldSize)])
		blocks.WriteAllocated(a.data, prev, prevSize+oldSize+nextSize)
		blk = prev

	case prevUsable && prevSize+oldSize >= blockSize:
		a.dir.Remove(a.data, prev)
		copy(a.data[prev:prev+blocks.Address(oldSize)], a.data[blk:blk+blocks.Address(oldSize)])
		blocks.WriteAllocated(a.data, prev, prevSize+oldSize)
		blk = prev

	case !a.within(next):
		// The block ends the heap, extend by the aligned shortfall and grow the header
		// in place. No data moves.
		growth := blocks.AlignBlock(int64(blockSize - oldSize))
		if _, err := a.extend(int64(growth)); err != nil {
			return blocks.NullAddress, err
		}
		blocks.WriteAllocated(a.data, blk, oldSize+growth)

	default:
		np, err := a.Allocate(int64(blockSize))
		if err != nil {
			return blocks.NullAddress, err
		}
		copy(a.Payload(np), a.data[p:p+blocks.Address(oldSize-blocks.HeaderSize)])
		a.Free(p)
		return np, nil
	}

	return blocks.Payload(blk), nil
}

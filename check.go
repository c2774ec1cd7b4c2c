package heap

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/outofforest/heap/blocks"
	"github.com/outofforest/heap/freelist"
)

// Check validates every heap invariant and returns the first violated one as an error.
// It is a diagnostic pass for tests and debugging, never run on the allocation path.
// Once metadata is corrupted there is no recovery, so violations are reported, not fixed.
func (a *Allocator) Check() error {
	if err := a.checkFreeListMarks(); err != nil {
		return err
	}
	if err := a.checkCoalesced(); err != nil {
		return err
	}
	if err := a.checkFreeListMembership(); err != nil {
		return err
	}
	if err := a.checkFooters(); err != nil {
		return err
	}
	if err := a.checkOverlap(); err != nil {
		return err
	}
	return a.checkBounds()
}

// checkFreeListMarks verifies that every block filed in a bucket is marked free.
func (a *Allocator) checkFreeListMarks() error {
	for bucket := 0; bucket < freelist.NumBuckets; bucket++ {
		err := a.dir.Walk(a.data, bucket, func(blk blocks.Address) error {
			if blocks.IsAllocated(a.data, blk) {
				return errors.Errorf("allocated block %d filed in free list bucket %d", blk, bucket)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// checkCoalesced verifies that no two physically adjacent blocks are both free.
func (a *Allocator) checkCoalesced() error {
	prevFree := false
	var prevBlk blocks.Address
	return a.scan(func(blk blocks.Address, size int32, allocated bool) error {
		if prevFree && !allocated {
			return errors.Errorf("adjacent free blocks at %d and %d", prevBlk, blk)
		}
		prevFree = !allocated
		prevBlk = blk
		return nil
	})
}

// checkFreeListMembership verifies that every free block in the heap is reachable from
// the bucket computed from its size.
func (a *Allocator) checkFreeListMembership() error {
	return a.scan(func(blk blocks.Address, size int32, allocated bool) error {
		if !allocated && !a.dir.Contains(a.data, blk) {
			return errors.Errorf("free block %d missing from bucket %d", blk, freelist.BucketFor(size))
		}
		return nil
	})
}

// checkFooters verifies that every free block's footer repeats its header.
func (a *Allocator) checkFooters() error {
	return a.scan(func(blk blocks.Address, size int32, allocated bool) error {
		if allocated {
			return nil
		}
		footer := blk + blocks.Address(size) - blocks.HeaderSize
		if blocks.IsAllocated(a.data, footer) || blocks.Size(a.data, footer) != size {
			return errors.Errorf("free block %d: footer does not match header size %d", blk, size)
		}
		return nil
	})
}

// checkOverlap verifies that no block starts before the minimum footprint of the
// preceding one ends.
func (a *Allocator) checkOverlap() error {
	high := blocks.Address(len(a.data))
	return a.scan(func(blk blocks.Address, size int32, allocated bool) error {
		next := blk + blocks.Address(size)
		if next < high && next < blk+3*blocks.HeaderSize {
			return errors.Errorf("blocks %d and %d overlap", blk, next)
		}
		return nil
	})
}

// checkBounds verifies that traversing all blocks lands exactly on the high-water mark.
func (a *Allocator) checkBounds() error {
	high := blocks.Address(len(a.data))
	blk := a.first
	for blk < high {
		size := blocks.Size(a.data, blk)
		if size <= 0 {
			return errors.Errorf("corrupted block header at %d", blk)
		}
		blk += blocks.Address(size)
	}
	if blk != high {
		return errors.Errorf("heap traversal ended at %d, expected %d", blk, high)
	}
	return nil
}

// scan walks all physical blocks from the first one to the high-water mark.
func (a *Allocator) scan(fn func(blk blocks.Address, size int32, allocated bool) error) error {
	high := blocks.Address(len(a.data))
	for blk := a.first; blk < high; {
		size := blocks.Size(a.data, blk)
		if size <= 0 {
			return errors.Errorf("corrupted block header at %d", blk)
		}
		if err := fn(blk, size, blocks.IsAllocated(a.data, blk)); err != nil {
			return err
		}
		blk += blocks.Address(size)
	}
	return nil
}

// Dump writes a human-readable report of every block and every bucket.
func (a *Allocator) Dump(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "HEAP BLOCKS:"); err != nil {
		return errors.WithStack(err)
	}
	i := 0
	err := a.scan(func(blk blocks.Address, size int32, allocated bool) error {
		i++
		state := "free"
		if allocated {
			state = "allocated"
		}
		_, err := fmt.Fprintf(w, "  #%d [%d] %d bytes (%s)\n", i, blk, size, state)
		return errors.WithStack(err)
	})
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(w, "FREE LISTS:"); err != nil {
		return errors.WithStack(err)
	}
	for bucket := 0; bucket < freelist.NumBuckets; bucket++ {
		sentinel := a.dir.Sentinel(bucket)
		if blocks.IsListEnd(a.data, sentinel) {
			continue
		}
		if _, err := fmt.Fprintf(w, "  bucket %d:\n", bucket); err != nil {
			return errors.WithStack(err)
		}
		err := a.dir.Walk(a.data, bucket, func(blk blocks.Address) error {
			_, err := fmt.Fprintf(w, "    [%d] %d bytes\n", blk, blocks.Size(a.data, blk))
			return errors.WithStack(err)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

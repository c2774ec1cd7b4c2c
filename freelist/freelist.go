package freelist

import (
	"github.com/outofforest/heap/blocks"
)

const (
	// NumBuckets is the number of segregated size-class buckets.
	NumBuckets = 32

	// SentinelSize is the byte footprint of one bucket sentinel. A sentinel stores only
	// the link word to the first block in its list, laid out at the same offset as in a
	// free block so list operations treat it uniformly.
	SentinelSize = 2 * blocks.HeaderSize

	// DirectorySize is the byte footprint of all bucket sentinels.
	DirectorySize = NumBuckets * SentinelSize
)

// BucketFor maps a block size to the index of the bucket it is filed under. Bucket
// ranges widen exponentially starting at 16 bytes, the last bucket collects everything
// larger. Insertion and search must use the same mapping so a block is always found in
// the bucket it was filed under.
func BucketFor(size int32) int {
	order := size >> 4
	bucket := 0
	for order > 1 && bucket < NumBuckets-1 {
		order >>= 1
		bucket++
	}
	return bucket
}

// Directory is the segregated free list directory: 32 bucket sentinels stored
// contiguously in the heap region, each heading a list of free blocks kept in
// ascending size order.
type Directory struct {
	head blocks.Address
}

// New returns a directory with sentinels starting at head.
func New(head blocks.Address) Directory {
	return Directory{head: head}
}

// Sentinel returns the address of the bucket's sentinel.
func (d Directory) Sentinel(bucket int) blocks.Address {
	return d.head + blocks.Address(bucket*SentinelSize)
}

// Insert files the free block into its bucket, before the first entry of equal or
// greater size, keeping the list in ascending order.
func (d Directory) Insert(data []byte, blk blocks.Address) {
	cursor := d.Sentinel(BucketFor(blocks.Size(data, blk)))
	if blocks.IsListEnd(data, cursor) {
		blocks.SetNextFree(data, cursor, blk)
		blocks.SetNextFree(data, blk, blk)
		blocks.SetPrevFree(data, blk, cursor)
		return
	}

	for {
		next := blocks.NextFree(data, cursor)
		if blocks.Size(data, next) >= blocks.Size(data, blk) {
			blocks.SetNextFree(data, blk, next)
			blocks.SetPrevFree(data, next, blk)
			blocks.SetNextFree(data, cursor, blk)
			blocks.SetPrevFree(data, blk, cursor)
			return
		}
		if blocks.IsListEnd(data, next) {
			blocks.SetNextFree(data, next, blk)
			blocks.SetNextFree(data, blk, blk)
			blocks.SetPrevFree(data, blk, next)
			return
		}
		cursor = next
	}
}

// Remove splices the block out of its list using the stored links. If the block is the
// last element, the new tail becomes self-referential.
func (d Directory) Remove(data []byte, blk blocks.Address) {
	prev := blocks.PrevFree(data, blk)
	if blocks.IsListEnd(data, blk) {
		blocks.SetNextFree(data, prev, prev)
		return
	}
	next := blocks.NextFree(data, blk)
	blocks.SetNextFree(data, prev, next)
	blocks.SetPrevFree(data, next, prev)
}

// FindFit returns the smallest free block able to hold size bytes. Buckets are scanned
// starting at the block's own size class, and because every list is sorted ascending
// the first sufficient entry is the best fit.
func (d Directory) FindFit(data []byte, size int32) (blocks.Address, bool) {
	for bucket := BucketFor(size); bucket < NumBuckets; bucket++ {
		sentinel := d.Sentinel(bucket)
		if blocks.IsListEnd(data, sentinel) {
			continue
		}
		for blk := blocks.NextFree(data, sentinel); ; blk = blocks.NextFree(data, blk) {
			if blocks.Size(data, blk) >= size {
				return blk, true
			}
			if blocks.IsListEnd(data, blk) {
				break
			}
		}
	}
	return 0, false
}

// Contains returns true if the block is filed in the bucket matching its header size.
func (d Directory) Contains(data []byte, blk blocks.Address) bool {
	sentinel := d.Sentinel(BucketFor(blocks.Size(data, blk)))
	if blocks.IsListEnd(data, sentinel) {
		return false
	}
	for cursor := blocks.NextFree(data, sentinel); ; cursor = blocks.NextFree(data, cursor) {
		if cursor == blk {
			return true
		}
		if blocks.IsListEnd(data, cursor) {
			return false
		}
	}
}

// Walk calls fn for every block filed in the bucket.
func (d Directory) Walk(data []byte, bucket int, fn func(blk blocks.Address) error) error {
	sentinel := d.Sentinel(bucket)
	if blocks.IsListEnd(data, sentinel) {
		return nil
	}
	for blk := blocks.NextFree(data, sentinel); ; blk = blocks.NextFree(data, blk) {
		if err := fn(blk); err != nil {
			return err
		}
		if blocks.IsListEnd(data, blk) {
			return nil
		}
	}
}

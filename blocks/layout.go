package blocks

import (
	"github.com/outofforest/photon"
)

// Blocks are self-describing. The leading word of every block packs its total size with
// the allocated flag in bit 0 (sizes are multiples of the alignment, so the low bits of
// a true size are always zero). An allocated block is just the header followed by the
// payload. A free block additionally stores two signed byte distances to its free list
// neighbours right after the header, and repeats its size in a footer word at the tail
// so the block is discoverable from the block following it.

func word(data []byte, addr Address) *int32 {
	return photon.NewFromBytes[int32](data[addr:]).V
}

// Size returns the total size of the block, header included.
func Size(data []byte, addr Address) int32 {
	return *word(data, addr) & sizeMask
}

// IsAllocated returns true if the block is marked as allocated.
func IsAllocated(data []byte, addr Address) bool {
	return *word(data, addr)&flagMask == 1
}

// WriteAllocated marks the block as allocated. Only the header is written, allocated
// blocks carry no footer. Size must be aligned and not smaller than MinBlockSize.
func WriteAllocated(data []byte, addr Address, size int32) {
	*word(data, addr) = size | 1
}

// WriteFree marks the block as free, writing the header and the matching footer.
// Size must be aligned and not smaller than MinBlockSize.
func WriteFree(data []byte, addr Address, size int32) {
	*word(data, addr) = size
	*word(data, addr+Address(size)-HeaderSize) = size
}

// Payload returns the payload address of the block.
func Payload(addr Address) Address {
	return addr + HeaderSize
}

// BlockOf returns the block address owning the payload.
func BlockOf(payload Address) Address {
	return payload - HeaderSize
}

// PayloadSize returns the number of payload bytes in the block.
func PayloadSize(data []byte, addr Address) int32 {
	return Size(data, addr) - HeaderSize
}

// Next returns the address of the physically following block.
func Next(data []byte, addr Address) Address {
	return addr + Address(Size(data, addr))
}

// AlignBlock converts a requested payload size into a block size: header overhead is
// added and the result is aligned. Requests smaller than the alignment unit round up
// to the minimum block, so a block always fits the free metadata once released.
// Callers must keep the result within MaxBlockSize, larger sizes do not fit the
// header word.
func AlignBlock(size int64) int32 {
	if size < Alignment {
		return MinBlockSize
	}
	return int32((size + HeaderSize + Alignment - 1) &^ (Alignment - 1))
}

// NextFree returns the address of the following block in the free list.
func NextFree(data []byte, addr Address) Address {
	return addr + Address(*word(data, addr+HeaderSize))
}

// PrevFree returns the address of the preceding block in the free list.
func PrevFree(data []byte, addr Address) Address {
	return addr + Address(*word(data, addr+2*HeaderSize))
}

// SetNextFree links the block to the following one in the free list.
func SetNextFree(data []byte, addr, next Address) {
	*word(data, addr+HeaderSize) = int32(next - addr)
}

// SetPrevFree links the block to the preceding one in the free list.
func SetPrevFree(data []byte, addr, prev Address) {
	*word(data, addr+2*HeaderSize) = int32(prev - addr)
}

// IsListEnd returns true if the block is the last one in its free list. The terminal
// block stores a self-reference (distance 0) rather than a null marker, so a zeroed
// bucket sentinel starts out as an empty list.
func IsListEnd(data []byte, addr Address) bool {
	return *word(data, addr+HeaderSize) == 0
}

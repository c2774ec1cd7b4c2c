package blocks

const (
	// Alignment specifies the alignment requirement of block sizes and payload addresses.
	Alignment = 8

	// HeaderSize is the size of the word packing block size and allocated flag.
	HeaderSize = 4

	// MinBlockSize is the smallest representable block. A free block must fit a header,
	// two link words and a footer in its footprint.
	MinBlockSize = 2 * Alignment

	// MaxBlockSize is the largest block size the header word can encode.
	MaxBlockSize = (1<<31 - 1) &^ (Alignment - 1)

	sizeMask = ^int32(Alignment - 1)
	flagMask = int32(Alignment - 1)
)

// Address is the byte offset of a block within the heap region.
type Address int64

// NullAddress is returned where no block exists. Offset 0 is occupied by the free list
// directory, so it never addresses a real payload.
const NullAddress Address = 0

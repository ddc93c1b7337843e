package metadata

import (
	"encoding/binary"
	"math"

	"github.com/vkngwrapper/mmalloc/memutils"
)

const (
	// WordSize is the size in bytes of a boundary tag and of a free list link
	WordSize = 4
	// DoubleWordSize is the combined size of a block's header and footer
	DoubleWordSize = 8
	// Alignment is the alignment of every block size and every payload offset
	Alignment = 8
	// MinBlockSize is the smallest block that can hold a header, a footer and both free list links
	MinBlockSize = 16
	// DefaultChunkSize is the minimum number of bytes the arena grows by when no free block fits
	DefaultChunkSize = 1 << 8

	// MaxBlockSize is the largest size a boundary tag can encode
	MaxBlockSize uint64 = math.MaxUint32 &^ (Alignment - 1)

	// sentinelBytes covers the alignment padding, the prologue and the epilogue header
	sentinelBytes = 4 * WordSize
)

// Tag is a boundary tag: a block size with the allocated flag packed into its low bit. Block sizes
// are always multiples of Alignment, so the low three bits are never part of the size.
type Tag uint32

const (
	allocatedBit Tag = 0x1
	sizeMask     Tag = ^Tag(Alignment - 1)
)

// Pack builds the boundary tag for a block of the given size
func Pack(size int, allocated bool) Tag {
	tag := Tag(size) & sizeMask
	if allocated {
		tag |= allocatedBit
	}
	return tag
}

func (t Tag) Size() int {
	return int(t & sizeMask)
}

func (t Tag) Allocated() bool {
	return t&allocatedBit != 0
}

// BlockPointer is the arena offset of a block's first payload byte
type BlockPointer uint32

const (
	// NullBlock terminates the free list. Offset 0 is alignment padding, so no block can live there.
	NullBlock BlockPointer = 0
)

// AdjustedBlockSize returns the block size needed to hold a payload of the given size: the payload
// plus header and footer, rounded up to Alignment, and never less than MinBlockSize. It returns
// false if no block could be that large.
func AdjustedBlockSize(payloadSize int) (int, bool) {
	if payloadSize <= DoubleWordSize {
		return MinBlockSize, true
	}

	if uint64(payloadSize) > MaxBlockSize-DoubleWordSize-(Alignment-1) {
		return 0, false
	}

	return memutils.AlignUp(payloadSize+DoubleWordSize, Alignment), true
}

// HeaderOffset returns the offset of the header belonging to the block at bp
func HeaderOffset(bp BlockPointer) int {
	return int(bp) - WordSize
}

// FooterOffset returns the offset of the footer belonging to a block of the given size at bp
func FooterOffset(bp BlockPointer, size int) int {
	return int(bp) + size - DoubleWordSize
}

func (m *ExplicitListMetadata) word(offset int) uint32 {
	return binary.LittleEndian.Uint32(m.mem[offset:])
}

func (m *ExplicitListMetadata) putWord(offset int, value uint32) {
	binary.LittleEndian.PutUint32(m.mem[offset:], value)
}

func (m *ExplicitListMetadata) header(bp BlockPointer) Tag {
	return Tag(m.word(HeaderOffset(bp)))
}

func (m *ExplicitListMetadata) footer(bp BlockPointer) Tag {
	return Tag(m.word(FooterOffset(bp, m.header(bp).Size())))
}

// setTags writes matching header and footer tags. The footer position comes from size, not from
// whatever the header held before.
func (m *ExplicitListMetadata) setTags(bp BlockPointer, size int, allocated bool) {
	tag := uint32(Pack(size, allocated))
	m.putWord(HeaderOffset(bp), tag)
	m.putWord(FooterOffset(bp, size), tag)
}

// nextBlock must not be called on the epilogue
func (m *ExplicitListMetadata) nextBlock(bp BlockPointer) BlockPointer {
	return bp + BlockPointer(m.header(bp).Size())
}

// prevBlock reads the footer just below bp's header. It must not be called on the prologue.
func (m *ExplicitListMetadata) prevBlock(bp BlockPointer) BlockPointer {
	return bp - BlockPointer(m.prevFooter(bp).Size())
}

func (m *ExplicitListMetadata) prevFooter(bp BlockPointer) Tag {
	return Tag(m.word(int(bp) - DoubleWordSize))
}

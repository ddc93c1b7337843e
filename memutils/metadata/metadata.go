package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/mmalloc/memutils"
)

// BlockMetadata manages the blocks laid out in a single growable arena. It decides where
// allocations go and merges freed memory back together, but it never touches payload bytes
// except to thread its own bookkeeping through free blocks.
//
// BlockPointer values handed out by the metadata are arena offsets. They stay valid across
// arena growth, unlike slices of arena memory, which should be re-fetched via Payload after any
// operation that may have called Extend.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. It writes the prologue and epilogue
	// sentinels into a fresh arena and grows it by one chunk.
	Init() error
	// Size retrieves the number of arena bytes currently under management, including sentinels
	Size() int

	// Validate walks every block and every free list node and returns an error wrapping
	// memutils.ErrInvariantViolated at the first inconsistency. It is linear in the number of
	// blocks and should only be used for diagnostics and tests.
	Validate() error
	// AllocationCount returns the number of blocks currently allocated
	AllocationCount() int
	// FreeRegionsCount returns the number of blocks on the free list. Because freed blocks are
	// merged with their free neighbours immediately, no two of these are ever adjacent.
	FreeRegionsCount() int
	// SumFreeSize returns the total size in bytes of all blocks on the free list, tags included
	SumFreeSize() int
	// IsEmpty will return true if no blocks are allocated
	IsEmpty() bool

	// VisitAllRegions will call the provided callback once for each block in address order,
	// allocated or free. Sentinels are not visited. If the callback returns an error, the walk
	// stops and the error is returned.
	VisitAllRegions(handleBlock func(bp BlockPointer, size int, free bool) error) error
	// AddDetailedStatistics sums this arena's block statistics into the provided object
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// AddStatistics sums this arena's block statistics into the provided object
	AddStatistics(stats *memutils.Statistics)
	// BlockJsonData populates a json object with information about this arena
	BlockJsonData(json jwriter.ObjectState)

	// FindFit returns a free block of at least size bytes, or NullBlock if there is none.
	// size must be a value returned by AdjustedBlockSize.
	FindFit(size int) BlockPointer
	// Extend grows the arena by at least size bytes and returns the resulting free block, which
	// may have been merged with a free block that ended the arena before.
	Extend(size int) (BlockPointer, error)
	// Place marks size bytes at the start of the free block bp as allocated, splitting off the
	// remainder as a new free block if it is large enough.
	Place(bp BlockPointer, size int)
	// Release frees the allocated block bp and merges it with any free neighbours
	Release(bp BlockPointer)

	// BlockSize returns the size of the block at bp, tags included
	BlockSize(bp BlockPointer) int
	// Payload returns the usable bytes of the block at bp. The slice aliases arena memory and
	// is invalidated when the arena grows.
	Payload(bp BlockPointer) []byte
}

// BlockMetadataBase holds the configuration shared by BlockMetadata implementations in this package
type BlockMetadataBase struct {
	chunkSize int
	strategy  AllocationStrategy
}

// NewBlockMetadata creates a new BlockMetadataBase. chunkSize is the minimum number of bytes the
// arena grows by; a value below MinBlockSize means DefaultChunkSize.
func NewBlockMetadata(chunkSize int, strategy AllocationStrategy) BlockMetadataBase {
	if chunkSize < MinBlockSize {
		chunkSize = DefaultChunkSize
	}

	return BlockMetadataBase{
		chunkSize: memutils.AlignUp(chunkSize, Alignment),
		strategy:  strategy & AllocationStrategyMask,
	}
}

// ChunkSize returns the minimum number of bytes the arena grows by
func (m *BlockMetadataBase) ChunkSize() int { return m.chunkSize }

// Strategy returns the strategy FindFit uses to choose between adequate free blocks
func (m *BlockMetadataBase) Strategy() AllocationStrategy { return m.strategy }

// BlockJsonData populates a json object with information about this block
func (m *BlockMetadataBase) BlockJsonData(json jwriter.ObjectState, arenaBytes, freeBytes, allocationCount, freeBlockCount int) {
	json.Name("ArenaBytes").Int(arenaBytes)
	json.Name("FreeBytes").Int(freeBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("FreeBlocks").Int(freeBlockCount)
	json.Name("ChunkSize").Int(m.chunkSize)
	json.Name("Strategy").String(m.strategy.String())
}

package metadata

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/mmalloc/memutils"
	"github.com/vkngwrapper/mmalloc/memutils/arena"
)

// ExplicitListMetadata is a BlockMetadata implementation that keeps every block's size and
// allocated flag in boundary tags at both ends of the block, and threads free blocks onto a
// doubly-linked list stored inside their own payloads. Freed blocks go on the head of the list
// and are merged with free neighbours right away, so the list never holds two adjacent blocks.
//
// The arena starts with a word of padding and an allocated prologue block made of only a header
// and a footer, and ends with an allocated epilogue header of size zero. The sentinels mean that
// merging and block walks never have to check for the edges of the arena.
//
// ExplicitListMetadata is not safe for concurrent use.
type ExplicitListMetadata struct {
	BlockMetadataBase

	provider arena.Provider
	mem      []byte

	prologue BlockPointer
	head     BlockPointer

	allocCount      int
	blocksFreeCount int
	blocksFreeSize  int
}

var _ BlockMetadata = &ExplicitListMetadata{}

// NewExplicitListMetadata creates metadata managing the arena behind provider. The provider
// should be empty; Init will write the sentinels at the first offset it hands out.
func NewExplicitListMetadata(provider arena.Provider, chunkSize int, strategy AllocationStrategy) *ExplicitListMetadata {
	return &ExplicitListMetadata{
		BlockMetadataBase: NewBlockMetadata(chunkSize, strategy),
		provider:          provider,
	}
}

func (m *ExplicitListMetadata) Init() error {
	start, err := m.provider.Extend(sentinelBytes)
	if err != nil {
		return errors.WithMessage(err, "failed to reserve the arena sentinels")
	}

	if !memutils.IsAligned(start, Alignment) {
		return errors.Errorf("arena began at offset %d, which is not %d-byte aligned", start, Alignment)
	}

	m.mem = m.provider.Memory()
	m.putWord(start, 0)
	m.putWord(start+WordSize, uint32(Pack(DoubleWordSize, true)))
	m.putWord(start+2*WordSize, uint32(Pack(DoubleWordSize, true)))
	m.putWord(start+3*WordSize, uint32(Pack(0, true)))

	m.prologue = BlockPointer(start + DoubleWordSize)
	m.head = NullBlock
	m.allocCount = 0
	m.blocksFreeCount = 0
	m.blocksFreeSize = 0

	_, err = m.Extend(m.chunkSize)
	return err
}

// Extend grows the arena by size bytes, rounded up to Alignment. The old epilogue becomes the
// header of the new block and a fresh epilogue is written past its end.
func (m *ExplicitListMetadata) Extend(size int) (BlockPointer, error) {
	size = memutils.AlignUp(size, Alignment)
	if uint64(m.provider.High())+uint64(size) > math.MaxUint32 {
		return NullBlock, errors.Wrapf(arena.ErrOutOfMemory, "growing the arena by %d bytes would exceed the addressable range", size)
	}

	start, err := m.provider.Extend(size)
	if err != nil {
		return NullBlock, err
	}

	m.mem = m.provider.Memory()

	bp := BlockPointer(start)
	m.setTags(bp, size, false)
	m.putWord(HeaderOffset(m.nextBlock(bp)), uint32(Pack(0, true)))

	return m.coalesce(bp), nil
}

func (m *ExplicitListMetadata) Release(bp BlockPointer) {
	tag := m.header(bp)
	if !tag.Allocated() {
		panic(errors.Errorf("block at offset %d is already free", bp))
	}

	m.setTags(bp, tag.Size(), false)
	m.allocCount--
	m.coalesce(bp)
}

func (m *ExplicitListMetadata) BlockSize(bp BlockPointer) int {
	return m.header(bp).Size()
}

func (m *ExplicitListMetadata) Payload(bp BlockPointer) []byte {
	end := int(bp) + m.header(bp).Size() - DoubleWordSize
	return m.mem[bp:end:end]
}

// Head returns the first block on the free list, or NullBlock if the list is empty
func (m *ExplicitListMetadata) Head() BlockPointer {
	return m.head
}

// NextFree returns the block after bp on the free list, or NullBlock if bp is the tail.
// bp must be on the free list.
func (m *ExplicitListMetadata) NextFree(bp BlockPointer) BlockPointer {
	return m.nextFree(bp)
}

func (m *ExplicitListMetadata) Size() int {
	return m.provider.High() - m.provider.Low()
}

func (m *ExplicitListMetadata) AllocationCount() int {
	return m.allocCount
}

func (m *ExplicitListMetadata) FreeRegionsCount() int {
	return m.blocksFreeCount
}

func (m *ExplicitListMetadata) SumFreeSize() int {
	return m.blocksFreeSize
}

func (m *ExplicitListMetadata) IsEmpty() bool {
	return m.allocCount == 0
}

func (m *ExplicitListMetadata) VisitAllRegions(handleBlock func(bp BlockPointer, size int, free bool) error) error {
	if m.prologue == NullBlock {
		return nil
	}

	for bp := m.nextBlock(m.prologue); ; bp = m.nextBlock(bp) {
		tag := m.header(bp)
		if tag.Size() == 0 {
			return nil
		}

		err := handleBlock(bp, tag.Size(), !tag.Allocated())
		if err != nil {
			return err
		}
	}
}

func (m *ExplicitListMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.ArenaBytes += m.Size()

	_ = m.VisitAllRegions(func(bp BlockPointer, size int, free bool) error {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

func (m *ExplicitListMetadata) AddStatistics(stats *memutils.Statistics) {
	arenaBytes := m.Size()

	stats.BlockCount += m.allocCount + m.blocksFreeCount
	stats.AllocationCount += m.allocCount
	stats.ArenaBytes += arenaBytes
	if m.prologue != NullBlock {
		stats.AllocationBytes += arenaBytes - sentinelBytes - m.blocksFreeSize
	}
}

func (m *ExplicitListMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.Size(), m.blocksFreeSize, m.allocCount, m.blocksFreeCount)
}

package metadata

import "github.com/pkg/errors"

// FindFit searches the free list for a block of at least size bytes, according to the metadata's
// allocation strategy. It returns NullBlock if no free block is large enough.
func (m *ExplicitListMetadata) FindFit(size int) BlockPointer {
	switch {
	case m.strategy&AllocationStrategyMinTime != 0:
		return m.findFirstFit(size)
	case m.strategy&AllocationStrategyMinMemory != 0:
		return m.findBestFit(size)
	case m.strategy&AllocationStrategyMinOffset != 0:
		return m.findLowestFit(size)
	}

	return m.findFirstFit(size)
}

func (m *ExplicitListMetadata) findFirstFit(size int) BlockPointer {
	for bp := m.head; bp != NullBlock; bp = m.nextFree(bp) {
		if size <= m.header(bp).Size() {
			return bp
		}
	}

	return NullBlock
}

func (m *ExplicitListMetadata) findBestFit(size int) BlockPointer {
	best := NullBlock
	bestSize := 0

	for bp := m.head; bp != NullBlock; bp = m.nextFree(bp) {
		blockSize := m.header(bp).Size()
		if blockSize < size {
			continue
		}

		if blockSize == size {
			return bp
		}

		if best == NullBlock || blockSize < bestSize {
			best = bp
			bestSize = blockSize
		}
	}

	return best
}

func (m *ExplicitListMetadata) findLowestFit(size int) BlockPointer {
	lowest := NullBlock

	for bp := m.head; bp != NullBlock; bp = m.nextFree(bp) {
		if m.header(bp).Size() >= size && (lowest == NullBlock || bp < lowest) {
			lowest = bp
		}
	}

	return lowest
}

// Place allocates size bytes at the start of the free block bp, which must have come from FindFit
// or Extend. If the leftover is big enough to be a block of its own, it stays free and takes bp's
// place in the free list; otherwise the entire block is allocated.
func (m *ExplicitListMetadata) Place(bp BlockPointer, size int) {
	tag := m.header(bp)
	if tag.Allocated() {
		panic(errors.Errorf("block at offset %d is already taken", bp))
	}

	blockSize := tag.Size()
	if blockSize < size {
		panic(errors.Errorf("block at offset %d has size %d, which cannot hold %d bytes", bp, blockSize, size))
	}

	if blockSize-size >= MinBlockSize {
		m.setTags(bp, size, true)

		remainder := m.nextBlock(bp)
		m.replaceFree(bp, remainder)
		m.setTags(remainder, blockSize-size, false)
		m.blocksFreeSize -= size
	} else {
		m.removeFree(bp)
		m.setTags(bp, blockSize, true)
	}

	m.allocCount++
}

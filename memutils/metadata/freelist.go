package metadata

// A free block stores its next link in the first payload word and its prev link in the second.
// These words belong to the caller again as soon as the block is allocated.

func (m *ExplicitListMetadata) nextFree(bp BlockPointer) BlockPointer {
	return BlockPointer(m.word(int(bp)))
}

func (m *ExplicitListMetadata) prevFree(bp BlockPointer) BlockPointer {
	return BlockPointer(m.word(int(bp) + WordSize))
}

func (m *ExplicitListMetadata) setNextFree(bp BlockPointer, next BlockPointer) {
	m.putWord(int(bp), uint32(next))
}

func (m *ExplicitListMetadata) setPrevFree(bp BlockPointer, prev BlockPointer) {
	m.putWord(int(bp)+WordSize, uint32(prev))
}

// relink repairs the list around the gap between prev and next. If replacement is a block, it is
// threaded into the gap; if it is NullBlock, prev and next are joined to each other. A NullBlock prev
// means the gap is at the head of the list and a NullBlock next means it is at the tail.
func (m *ExplicitListMetadata) relink(prev, next, replacement BlockPointer) {
	forward, backward := next, prev
	if replacement != NullBlock {
		m.setPrevFree(replacement, prev)
		m.setNextFree(replacement, next)
		forward, backward = replacement, replacement
	}

	if prev == NullBlock {
		m.head = forward
	} else {
		m.setNextFree(prev, forward)
	}

	if next != NullBlock {
		m.setPrevFree(next, backward)
	}
}

// insertFront pushes a block with up-to-date tags onto the head of the free list
func (m *ExplicitListMetadata) insertFront(bp BlockPointer) {
	if bp == NullBlock {
		panic("cannot insert the null block into the free list")
	}

	m.relink(NullBlock, m.head, bp)
	m.blocksFreeCount++
	m.blocksFreeSize += m.header(bp).Size()
}

// removeFree unlinks a block that is currently on the free list. Its tags must still describe it.
func (m *ExplicitListMetadata) removeFree(bp BlockPointer) {
	if bp == NullBlock {
		panic("cannot remove the null block from the free list")
	}

	m.relink(m.prevFree(bp), m.nextFree(bp), NullBlock)
	m.blocksFreeCount--
	m.blocksFreeSize -= m.header(bp).Size()
}

// replaceFree puts replacement into bp's position in the free list. The caller is responsible for
// the size bookkeeping, since bp and replacement usually share bytes.
func (m *ExplicitListMetadata) replaceFree(bp BlockPointer, replacement BlockPointer) {
	m.relink(m.prevFree(bp), m.nextFree(bp), replacement)
}

package metadata

// coalesce merges a block whose tags already say it is free with any free physical neighbours,
// pushes the result onto the free list, and returns it. The merged block starts at the previous
// neighbour if that neighbour was absorbed.
func (m *ExplicitListMetadata) coalesce(bp BlockPointer) BlockPointer {
	prevAllocated := m.prevFooter(bp).Allocated()
	next := m.nextBlock(bp)
	nextAllocated := m.header(next).Allocated()
	size := m.header(bp).Size()

	switch {
	case prevAllocated && nextAllocated:
		// Nothing to merge

	case prevAllocated && !nextAllocated:
		size += m.header(next).Size()
		m.removeFree(next)
		m.setTags(bp, size, false)

	case !prevAllocated && nextAllocated:
		prev := m.prevBlock(bp)
		size += m.header(prev).Size()
		m.removeFree(prev)
		bp = prev
		m.setTags(bp, size, false)

	default:
		prev := m.prevBlock(bp)
		size += m.header(prev).Size() + m.header(next).Size()
		m.removeFree(prev)
		m.removeFree(next)
		bp = prev
		m.setTags(bp, size, false)
	}

	m.insertFront(bp)
	return bp
}

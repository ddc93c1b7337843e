package metadata

import (
	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/mmalloc/memutils"
)

func (m *ExplicitListMetadata) Validate() error {
	if m.prologue == NullBlock {
		return errors.Wrap(memutils.ErrInvariantViolated, "metadata has not been initialized")
	}

	low, high := m.provider.Low(), m.provider.High()
	if len(m.mem) != high {
		return errors.Wrapf(memutils.ErrInvariantViolated, "memory view covers %d bytes but the arena ends at %d", len(m.mem), high)
	}

	prologueTag := Pack(DoubleWordSize, true)
	if m.header(m.prologue) != prologueTag || m.footer(m.prologue) != prologueTag {
		return errors.Wrapf(memutils.ErrInvariantViolated, "prologue at offset %d has been overwritten", m.prologue)
	}

	freeBlocks := swiss.NewMap[BlockPointer, struct{}](uint32(m.blocksFreeCount + 1))
	allocCount := 0
	freeSize := 0
	prevFree := false

	bp := m.nextBlock(m.prologue)
	for {
		if HeaderOffset(bp) < low || int(bp) > high {
			return errors.Wrapf(memutils.ErrInvariantViolated, "block at offset %d lies outside the arena [%d, %d)", bp, low, high)
		}

		tag := m.header(bp)
		if tag.Size() == 0 {
			break
		}

		if !memutils.IsAligned(int(bp), Alignment) {
			return errors.Wrapf(memutils.ErrInvariantViolated, "block at offset %d is not %d-byte aligned", bp, Alignment)
		}

		if tag.Size() < MinBlockSize {
			return errors.Wrapf(memutils.ErrInvariantViolated, "block at offset %d has size %d, below the minimum of %d", bp, tag.Size(), MinBlockSize)
		}

		if int(bp)+tag.Size() > high {
			return errors.Wrapf(memutils.ErrInvariantViolated, "block at offset %d with size %d runs past the end of the arena at %d", bp, tag.Size(), high)
		}

		if m.footer(bp) != tag {
			return errors.Wrapf(memutils.ErrInvariantViolated, "block at offset %d has header %#x but footer %#x", bp, uint32(tag), uint32(m.footer(bp)))
		}

		if tag.Allocated() {
			allocCount++
			prevFree = false
		} else {
			if prevFree {
				return errors.Wrapf(memutils.ErrInvariantViolated, "free block at offset %d was not merged with the free block before it", bp)
			}

			freeBlocks.Put(bp, struct{}{})
			freeSize += tag.Size()
			prevFree = true
		}

		bp = m.nextBlock(bp)
	}

	if !m.header(bp).Allocated() {
		return errors.Wrapf(memutils.ErrInvariantViolated, "epilogue at offset %d is not marked allocated", bp)
	}

	if int(bp) != high {
		return errors.Wrapf(memutils.ErrInvariantViolated, "epilogue found at offset %d, but the arena ends at %d", bp, high)
	}

	listCount := 0
	prev := NullBlock
	for node := m.head; node != NullBlock; node = m.nextFree(node) {
		if !freeBlocks.Has(node) {
			return errors.Wrapf(memutils.ErrInvariantViolated, "free list visits offset %d, which is not a free block or was already visited", node)
		}
		freeBlocks.Delete(node)

		if m.prevFree(node) != prev {
			return errors.Wrapf(memutils.ErrInvariantViolated, "free block at offset %d has prev link %d, but was reached from %d", node, m.prevFree(node), prev)
		}

		listCount++
		prev = node
	}

	if freeBlocks.Count() > 0 {
		return errors.Wrapf(memutils.ErrInvariantViolated, "%d free blocks are missing from the free list", freeBlocks.Count())
	}

	if listCount != m.blocksFreeCount {
		return errors.Wrapf(memutils.ErrInvariantViolated, "free list holds %d blocks, but %d were counted", listCount, m.blocksFreeCount)
	}

	if freeSize != m.blocksFreeSize {
		return errors.Wrapf(memutils.ErrInvariantViolated, "free blocks total %d bytes, but %d were counted", freeSize, m.blocksFreeSize)
	}

	if allocCount != m.allocCount {
		return errors.Wrapf(memutils.ErrInvariantViolated, "arena holds %d allocated blocks, but %d were counted", allocCount, m.allocCount)
	}

	return nil
}

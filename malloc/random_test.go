package malloc_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/mmalloc/malloc"
	"github.com/vkngwrapper/mmalloc/memutils/metadata"
)

type liveAllocation struct {
	ptr  malloc.Pointer
	size int
	seed byte
}

func requireNoOverlap(t *testing.T, allocator *malloc.Allocator, live []liveAllocation, candidate malloc.Pointer) {
	start := int(candidate)
	end := start + allocator.UsableSize(candidate)

	for _, other := range live {
		otherStart := int(other.ptr)
		otherEnd := otherStart + allocator.UsableSize(other.ptr)
		require.False(t, start < otherEnd && otherStart < end,
			"allocation [%d, %d) overlaps [%d, %d)", start, end, otherStart, otherEnd)
	}
}

func runRandomOperations(t *testing.T, seed int64, strategy metadata.AllocationStrategy) {
	random := rand.New(rand.NewSource(seed))
	allocator := newAllocator(t, malloc.CreateOptions{Strategy: strategy})

	var live []liveAllocation
	for op := 0; op < 3000; op++ {
		roll := random.Intn(10)

		switch {
		case roll < 5 || len(live) == 0:
			size := 1 + random.Intn(600)
			ptr, err := allocator.Allocate(size)
			require.NoError(t, err)
			require.Zero(t, ptr%metadata.Alignment)
			requireNoOverlap(t, allocator, live, ptr)

			alloc := liveAllocation{ptr: ptr, size: size, seed: byte(random.Intn(256))}
			fill(allocator, ptr, size, alloc.seed)
			live = append(live, alloc)

		case roll < 8:
			index := random.Intn(len(live))
			alloc := live[index]
			requireFilled(t, allocator, alloc.ptr, alloc.size, alloc.seed)

			allocator.Free(alloc.ptr)
			live[index] = live[len(live)-1]
			live = live[:len(live)-1]

		default:
			index := random.Intn(len(live))
			alloc := live[index]
			newSize := 1 + random.Intn(900)

			ptr, err := allocator.Reallocate(alloc.ptr, newSize)
			require.NoError(t, err)
			require.Zero(t, ptr%metadata.Alignment)

			others := append(append([]liveAllocation{}, live[:index]...), live[index+1:]...)
			requireNoOverlap(t, allocator, others, ptr)
			requireFilled(t, allocator, ptr, min(alloc.size, newSize), alloc.seed)

			fill(allocator, ptr, newSize, alloc.seed)
			live[index] = liveAllocation{ptr: ptr, size: newSize, seed: alloc.seed}
		}

		if op%50 == 0 {
			require.NoError(t, allocator.Validate())
		}
	}

	require.NoError(t, allocator.Validate())
	for _, alloc := range live {
		requireFilled(t, allocator, alloc.ptr, alloc.size, alloc.seed)
		allocator.Free(alloc.ptr)
	}

	require.NoError(t, allocator.Validate())
	require.NoError(t, allocator.Destroy())
}

func TestRandomOperationsFirstFit(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		runRandomOperations(t, seed, 0)
	}
}

func TestRandomOperationsBestFit(t *testing.T) {
	runRandomOperations(t, 42, metadata.AllocationStrategyMinMemory)
}

func TestRandomOperationsLowestOffset(t *testing.T) {
	runRandomOperations(t, 1337, metadata.AllocationStrategyMinOffset)
}

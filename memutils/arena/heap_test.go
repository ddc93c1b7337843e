package arena_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/mmalloc/memutils/arena"
)

func TestHeapExtend(t *testing.T) {
	heap := arena.NewHeap(64)
	require.Equal(t, 64, heap.MaxSize())
	require.Equal(t, 0, heap.Low())
	require.Equal(t, 0, heap.High())
	require.Len(t, heap.Memory(), 0)

	start, err := heap.Extend(16)
	require.NoError(t, err)
	require.Equal(t, 0, start)
	require.Equal(t, 16, heap.High())

	start, err = heap.Extend(40)
	require.NoError(t, err)
	require.Equal(t, 16, start)
	require.Equal(t, 56, heap.High())

	memory := heap.Memory()
	require.Len(t, memory, 56)
	require.Equal(t, 56, cap(memory))
	for _, b := range memory {
		require.Equal(t, byte(0), b)
	}
}

func TestHeapOutOfMemory(t *testing.T) {
	heap := arena.NewHeap(64)

	_, err := heap.Extend(48)
	require.NoError(t, err)

	_, err = heap.Extend(17)
	require.Error(t, err)
	require.True(t, errors.Is(err, arena.ErrOutOfMemory))
	require.Equal(t, 48, heap.High())

	start, err := heap.Extend(16)
	require.NoError(t, err)
	require.Equal(t, 48, start)
}

func TestHeapNegativeExtend(t *testing.T) {
	heap := arena.NewHeap(64)

	_, err := heap.Extend(-8)
	require.Error(t, err)
	require.False(t, errors.Is(err, arena.ErrOutOfMemory))
}

func TestHeapDefaultSize(t *testing.T) {
	heap := arena.NewHeap(0)
	require.Equal(t, arena.DefaultMaxSize, heap.MaxSize())
}

func TestHeapMemorySurvivesExtend(t *testing.T) {
	heap := arena.NewHeap(128)

	_, err := heap.Extend(32)
	require.NoError(t, err)

	before := heap.Memory()
	before[8] = 0xAB

	_, err = heap.Extend(64)
	require.NoError(t, err)

	after := heap.Memory()
	require.Equal(t, byte(0xAB), after[8])

	after[9] = 0xCD
	require.Equal(t, byte(0xCD), before[9])
}

func TestHeapReset(t *testing.T) {
	heap := arena.NewHeap(64)

	_, err := heap.Extend(32)
	require.NoError(t, err)
	heap.Memory()[4] = 0xFF

	heap.Reset()
	require.Equal(t, 0, heap.High())

	_, err = heap.Extend(32)
	require.NoError(t, err)
	require.Equal(t, byte(0), heap.Memory()[4])
}

package malloc

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/mmalloc/memutils"
	"github.com/vkngwrapper/mmalloc/memutils/arena"
	"github.com/vkngwrapper/mmalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// ErrDestroyed is returned by operations on an Allocator after Destroy has succeeded
var ErrDestroyed = errors.New("the allocator has been destroyed")

// Pointer is the arena offset of an allocation's first usable byte. Offsets stay valid when the
// arena grows, so a Pointer can be held across calls; use Bytes to reach the memory behind it.
type Pointer uint32

// Null is returned for zero-size allocations and failed allocations. It is never a live allocation.
const Null Pointer = 0

// Allocator hands out 8-byte aligned regions of a single growable arena. Each allocation is a
// block bracketed by boundary tags; free blocks are kept on an explicit list and merged with their
// free neighbours as soon as they are released.
//
// Allocator is not safe for concurrent use. Callers sharing one between goroutines must serialize
// every call themselves. Passing Free or Reallocate a Pointer that is not currently allocated
// corrupts the arena; nothing checks for it outside of Validate.
//
// Once Destroy succeeds, Allocate and Reallocate return ErrDestroyed, Free does nothing, and the
// accessors report an empty arena.
type Allocator struct {
	logger    *slog.Logger
	provider  arena.Provider
	metadata  metadata.BlockMetadata
	chunkSize int
}

// Allocate returns a region of at least size bytes. A size of zero returns Null and a nil error
// without touching the arena. If the arena cannot grow enough to hold the region, Null is
// returned along with an error matching arena.ErrOutOfMemory.
func (a *Allocator) Allocate(size int) (Pointer, error) {
	if a.metadata == nil {
		return Null, ErrDestroyed
	}

	if size == 0 {
		return Null, nil
	}

	if size < 0 {
		return Null, errors.Newf("cannot allocate a negative number of bytes (%d)", size)
	}

	blockSize, ok := metadata.AdjustedBlockSize(size)
	if !ok {
		err := errors.Wrapf(arena.ErrOutOfMemory, "an allocation of %d bytes cannot be represented in the arena", size)
		a.logOutOfMemory(size, err)
		return Null, err
	}

	bp := a.metadata.FindFit(blockSize)
	if bp == metadata.NullBlock {
		growBy := max(blockSize, a.chunkSize)

		var err error
		bp, err = a.metadata.Extend(growBy)
		if err != nil {
			err = errors.Wrapf(err, "failed to grow the arena for an allocation of %d bytes", size)
			a.logOutOfMemory(size, err)
			return Null, err
		}

		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "grew arena",
			slog.Int("growBy", growBy),
			slog.Int("arenaBytes", a.metadata.Size()),
		)
	}

	a.metadata.Place(bp, blockSize)
	memutils.DebugValidate(a)

	return Pointer(bp), nil
}

// Free releases an allocation so its memory can be reused. Freeing Null does nothing.
func (a *Allocator) Free(ptr Pointer) {
	if ptr == Null || a.metadata == nil {
		return
	}

	a.metadata.Release(metadata.BlockPointer(ptr))
	memutils.DebugValidate(a)
}

// Reallocate moves an allocation into a region of at least size bytes and frees the old one.
// The new region begins with as many of the old region's bytes as fit.
//
// A Null ptr makes Reallocate equivalent to Allocate. A zero size makes it equivalent to Free,
// and Null is returned. If the new region cannot be allocated, the error is returned and the old
// allocation is left untouched and still live.
func (a *Allocator) Reallocate(ptr Pointer, size int) (Pointer, error) {
	if a.metadata == nil {
		return Null, ErrDestroyed
	}

	if ptr == Null {
		return a.Allocate(size)
	}

	if size == 0 {
		a.Free(ptr)
		return Null, nil
	}

	newPtr, err := a.Allocate(size)
	if err != nil {
		return Null, err
	}

	// Payload slices must be fetched after Allocate, which may have grown the arena
	copy(a.Bytes(newPtr), a.Bytes(ptr))
	a.Free(ptr)

	return newPtr, nil
}

// Bytes returns the usable memory of a live allocation, which may be larger than the size that
// was requested. The slice aliases the arena: it is invalidated by any later Allocate or
// Reallocate call, since those may grow the arena. Bytes returns nil for Null.
func (a *Allocator) Bytes(ptr Pointer) []byte {
	if ptr == Null || a.metadata == nil {
		return nil
	}

	return a.metadata.Payload(metadata.BlockPointer(ptr))
}

// UsableSize returns the number of bytes Bytes would return for ptr
func (a *Allocator) UsableSize(ptr Pointer) int {
	if ptr == Null || a.metadata == nil {
		return 0
	}

	return a.metadata.BlockSize(metadata.BlockPointer(ptr)) - metadata.DoubleWordSize
}

// ArenaSize returns the number of bytes the arena currently spans, sentinels included
func (a *Allocator) ArenaSize() int {
	if a.metadata == nil {
		return 0
	}

	return a.metadata.Size()
}

// Validate walks the entire arena and free list and returns an error matching
// memutils.ErrInvariantViolated if anything is inconsistent. It is far too slow to call
// routinely, but is useful in tests and when tracking down memory corruption.
func (a *Allocator) Validate() error {
	if a.metadata == nil {
		return ErrDestroyed
	}

	return a.metadata.Validate()
}

// Destroy checks that every allocation has been freed and releases the arena if its provider
// implements io.Closer. Each allocation still live is logged as unreleased memory and an error is
// returned without releasing anything.
func (a *Allocator) Destroy() error {
	if a.metadata == nil {
		return ErrDestroyed
	}

	if !a.metadata.IsEmpty() {
		_ = a.metadata.VisitAllRegions(func(bp metadata.BlockPointer, size int, free bool) error {
			if !free {
				a.logUnreleasedMemory(bp, size)
			}
			return nil
		})

		return errors.Newf("%d allocations were not freed before the allocator was destroyed", a.metadata.AllocationCount())
	}

	if closer, ok := a.provider.(io.Closer); ok {
		err := closer.Close()
		if err != nil {
			return errors.Wrap(err, "failed to release the arena")
		}
	}

	a.metadata = nil
	a.provider = nil
	return nil
}

func (a *Allocator) logOutOfMemory(size int, err error) {
	a.logger.LogAttrs(context.Background(), slog.LevelWarn, "allocation failed",
		slog.Int("size", size),
		slog.Int("arenaBytes", a.metadata.Size()),
		slog.Any("error", err),
	)
}

func (a *Allocator) logUnreleasedMemory(bp metadata.BlockPointer, size int) {
	a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.Int("offset", int(bp)),
		slog.Int("size", size),
	)
}

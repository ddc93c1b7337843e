package trace

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/mmalloc/malloc"
	"github.com/vkngwrapper/mmalloc/memutils"
)

// ErrIncorrectResult is the root of all errors caused by the allocator returning memory that
// breaks its contract
var ErrIncorrectResult = errors.New("allocator returned an incorrect result")

// Result summarizes a single replay
type Result struct {
	Name string
	Ops  int
	// PeakPayloadBytes is the largest total of requested bytes live at any point in the trace
	PeakPayloadBytes int
	// ArenaBytes is the size of the arena once every op has run
	ArenaBytes int
	Elapsed    time.Duration
}

// Utilization is the ratio of peak requested bytes to the final arena size
func (r Result) Utilization() float64 {
	if r.ArenaBytes == 0 {
		return 0
	}
	return float64(r.PeakPayloadBytes) / float64(r.ArenaBytes)
}

// maxLiveHint bounds the initial size of the live allocation table, whatever the trace header
// claims. The table grows if more ids are actually used.
const maxLiveHint = 1 << 16

type liveBlock struct {
	ptr  malloc.Pointer
	size int
}

// Replayer runs traces against an allocator. Every region the allocator hands out is checked for
// alignment, for lying inside the arena and for overlapping other live regions. Each region is
// filled with a byte derived from its id, and the fill is checked when the region is reallocated
// or freed.
type Replayer struct {
	allocator *malloc.Allocator
	// ValidateEachOp runs the allocator's consistency checker after every op
	ValidateEachOp bool

	live         *swiss.Map[int, liveBlock]
	payloadBytes int
	peakBytes    int
}

func NewReplayer(allocator *malloc.Allocator) *Replayer {
	return &Replayer{allocator: allocator}
}

// Replay runs every op in trace, then frees whatever the trace left allocated. The elapsed time
// includes the placement and fill checks but not ValidateEachOp or the final cleanup.
func (r *Replayer) Replay(trace *Trace) (Result, error) {
	r.live = swiss.NewMap[int, liveBlock](uint32(min(trace.IDCount, maxLiveHint)))
	r.payloadBytes = 0
	r.peakBytes = 0

	var elapsed time.Duration
	for index, op := range trace.Ops {
		start := time.Now()
		err := r.apply(op)
		elapsed += time.Since(start)
		if err != nil {
			return Result{}, errors.Wrapf(err, "%s: op %d (%s id %d)", trace.Name, index, op.Kind, op.ID)
		}

		if r.ValidateEachOp {
			err = r.allocator.Validate()
			if err != nil {
				return Result{}, errors.Wrapf(err, "%s: op %d (%s id %d)", trace.Name, index, op.Kind, op.ID)
			}
		}
	}

	result := Result{
		Name:             trace.Name,
		Ops:              len(trace.Ops),
		PeakPayloadBytes: r.peakBytes,
		ArenaBytes:       r.allocator.ArenaSize(),
		Elapsed:          elapsed,
	}

	var err error
	r.live.Iter(func(id int, block liveBlock) (stop bool) {
		err = r.checkFill(id, block, block.size)
		if err != nil {
			return true
		}
		r.allocator.Free(block.ptr)
		return false
	})
	if err != nil {
		return Result{}, errors.Wrapf(err, "%s: releasing leftover allocations", trace.Name)
	}

	return result, r.allocator.Validate()
}

func (r *Replayer) apply(op Op) error {
	switch op.Kind {
	case OpAllocate:
		if r.live.Has(op.ID) {
			return errors.Wrap(ErrMalformedTrace, "id is already allocated")
		}

		ptr, err := r.allocator.Allocate(op.Size)
		if err != nil {
			return err
		}

		return r.track(op.ID, liveBlock{ptr: ptr, size: op.Size})

	case OpReallocate:
		old, ok := r.live.Get(op.ID)
		if !ok {
			return errors.Wrap(ErrMalformedTrace, "id is not allocated")
		}

		ptr, err := r.allocator.Reallocate(old.ptr, op.Size)
		if err != nil {
			return err
		}

		r.untrack(op.ID, old)
		block := liveBlock{ptr: ptr, size: op.Size}
		err = r.checkFill(op.ID, block, min(old.size, op.Size))
		if err != nil {
			return err
		}

		return r.track(op.ID, block)

	case OpFree:
		old, ok := r.live.Get(op.ID)
		if !ok {
			return errors.Wrap(ErrMalformedTrace, "id is not allocated")
		}

		err := r.checkFill(op.ID, old, old.size)
		if err != nil {
			return err
		}

		r.untrack(op.ID, old)
		r.allocator.Free(old.ptr)
		return nil
	}

	return errors.Wrapf(ErrMalformedTrace, "unknown op type %q", byte(op.Kind))
}

func fillByte(id int) byte {
	return byte(id*31 + 7)
}

func (r *Replayer) track(id int, block liveBlock) error {
	if block.size > 0 {
		err := r.checkPlacement(block)
		if err != nil {
			return err
		}

		memory := r.allocator.Bytes(block.ptr)[:block.size]
		fill := fillByte(id)
		for i := range memory {
			memory[i] = fill
		}
	}

	r.live.Put(id, block)
	r.payloadBytes += block.size
	r.peakBytes = max(r.peakBytes, r.payloadBytes)
	return nil
}

func (r *Replayer) untrack(id int, block liveBlock) {
	r.live.Delete(id)
	r.payloadBytes -= block.size
}

func (r *Replayer) checkPlacement(block liveBlock) error {
	start := int(block.ptr)
	end := start + block.size

	if !memutils.IsAligned(start, 8) {
		return errors.Wrapf(ErrIncorrectResult, "region at offset %d is not 8-byte aligned", start)
	}

	if block.ptr == malloc.Null || end > r.allocator.ArenaSize() || r.allocator.UsableSize(block.ptr) < block.size {
		return errors.Wrapf(ErrIncorrectResult, "region [%d, %d) does not fit in the arena of %d bytes", start, end, r.allocator.ArenaSize())
	}

	var err error
	r.live.Iter(func(id int, other liveBlock) (stop bool) {
		if other.size == 0 {
			return false
		}

		otherStart := int(other.ptr)
		otherEnd := otherStart + other.size
		if start < otherEnd && otherStart < end {
			err = errors.Wrapf(ErrIncorrectResult, "region [%d, %d) overlaps region [%d, %d) held by id %d", start, end, otherStart, otherEnd, id)
			return true
		}
		return false
	})

	return err
}

func (r *Replayer) checkFill(id int, block liveBlock, length int) error {
	if length == 0 {
		return nil
	}

	fill := fillByte(id)
	memory := r.allocator.Bytes(block.ptr)
	for i := 0; i < length; i++ {
		if memory[i] != fill {
			return errors.Wrapf(ErrIncorrectResult, "byte %d of the region at offset %d was %#x, expected %#x", i, block.ptr, memory[i], fill)
		}
	}

	return nil
}

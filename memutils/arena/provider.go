package arena

import "github.com/cockroachdb/errors"

// DefaultMaxSize is the arena size limit used when a provider is created with a non-positive
// maximum. It is equal to 20Mb.
const DefaultMaxSize int = 20 * (1 << 20)

// ErrOutOfMemory is returned, possibly wrapped, from Provider.Extend when the arena cannot grow
// any further
var ErrOutOfMemory = errors.New("arena: out of memory")

// Provider is the backing store an allocator grows into. The arena it manages is a single contiguous
// range of zero-initialized bytes that only ever grows: each successful Extend appends directly after
// the previous one.
type Provider interface {
	// Extend grows the arena by size bytes and returns the offset of the first new byte. When the
	// arena cannot grow, Extend returns an error for which errors.Is(err, ErrOutOfMemory) is true
	// and leaves the arena unchanged.
	Extend(size int) (int, error)
	// Low returns the offset of the first byte in the arena
	Low() int
	// High returns the offset one past the last byte in the arena
	High() int
	// Memory returns the arena's bytes, indexed by offset, up to High(). The slice aliases the arena
	// itself. Slices returned by earlier calls remain valid after Extend, but do not cover the new bytes.
	Memory() []byte
}

func checkExtension(size, brk, limit int) error {
	if size < 0 {
		return errors.Newf("arena: cannot extend by a negative size %d", size)
	}

	if size > limit-brk {
		return errors.Wrapf(ErrOutOfMemory, "cannot extend arena of %d bytes by %d bytes, limit is %d bytes", brk, size, limit)
	}

	return nil
}

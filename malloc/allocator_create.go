package malloc

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/mmalloc/memutils"
	"github.com/vkngwrapper/mmalloc/memutils/arena"
	"github.com/vkngwrapper/mmalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Provider is the backing store the arena grows into. It must be empty when passed to New. If
	// it is nil, a heap-backed provider reserving arena.DefaultMaxSize bytes is created.
	Provider arena.Provider
	// ChunkSize is the minimum number of bytes the arena grows by when no free block can satisfy
	// an allocation. It is rounded up to a multiple of 8. Values below 16 mean
	// metadata.DefaultChunkSize.
	ChunkSize int
	// Strategy chooses between free blocks when more than one could satisfy an allocation. The
	// zero value searches in free list order and takes the first block that fits.
	Strategy metadata.AllocationStrategy
}

// New creates an Allocator and initializes its arena: the sentinels are written and the arena is
// grown by one chunk. An error is returned if the provider cannot supply that much memory.
//
// logger receives arena growth at Debug, allocation failures at Warn and unreleased memory at
// Error. If it is nil, slog.Default() is used.
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := options.Provider
	if provider == nil {
		provider = arena.NewHeap(arena.DefaultMaxSize)
	}

	blockMetadata := metadata.NewExplicitListMetadata(provider, options.ChunkSize, options.Strategy)
	err := blockMetadata.Init()
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize the arena")
	}

	allocator := &Allocator{
		logger:    logger,
		provider:  provider,
		metadata:  blockMetadata,
		chunkSize: blockMetadata.ChunkSize(),
	}
	memutils.DebugValidate(allocator)

	return allocator, nil
}

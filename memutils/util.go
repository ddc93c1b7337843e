package memutils

import (
	"golang.org/x/exp/constraints"
)

// AlignUp rounds value up to the next multiple of alignment. alignment must be a power of two.
func AlignUp[T constraints.Integer](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to the previous multiple of alignment. alignment must be a power of two.
func AlignDown[T constraints.Integer](value T, alignment T) T {
	return value &^ (alignment - 1)
}

// IsAligned returns true if value is a multiple of alignment. alignment must be a power of two.
func IsAligned[T constraints.Integer](value T, alignment T) bool {
	return value&(alignment-1) == 0
}

package memutils

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method, such as the block metadata and the allocator that
// wraps it. Validate should return an error wrapping ErrInvariantViolated when the
// arena's tags or free list are inconsistent.
type Validatable interface {
	Validate() error
}

package memutils

import "github.com/pkg/errors"

// ErrInvariantViolated is the root of all errors returned from Validate methods in this module. A
// Validate error means the allocator's internal structures have been corrupted, usually by writing
// past the end of an allocation or freeing a pointer that was not live.
var ErrInvariantViolated error = errors.New("allocator invariant violated")

//go:build !debug_mmalloc

package memutils

// DebugValidation is true when the module was built with the debug_mmalloc build tag
const DebugValidation bool = false

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mmalloc build tag is present
func DebugValidate(validatable Validatable) {
}

//go:build !linux && !darwin

package arena

// Mapped falls back to a Heap on platforms without anonymous mappings
type Mapped struct {
	*Heap
}

var _ Provider = &Mapped{}

// NewMapped reserves maxSize bytes. If maxSize is not positive, DefaultMaxSize is used.
func NewMapped(maxSize int) (*Mapped, error) {
	return &Mapped{Heap: NewHeap(maxSize)}, nil
}

func (m *Mapped) Close() error {
	return nil
}

package arena

// Heap is a Provider over a single up-front Go allocation. The whole reservation is made when the
// Heap is created and Extend only moves the break, so payload slices never move.
type Heap struct {
	buf []byte
	brk int
}

var _ Provider = &Heap{}

// NewHeap reserves maxSize bytes. If maxSize is not positive, DefaultMaxSize is used.
func NewHeap(maxSize int) *Heap {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	return &Heap{
		buf: make([]byte, maxSize),
	}
}

func (h *Heap) Extend(size int) (int, error) {
	err := checkExtension(size, h.brk, len(h.buf))
	if err != nil {
		return 0, err
	}

	oldBrk := h.brk
	h.brk += size
	return oldBrk, nil
}

func (h *Heap) Low() int { return 0 }

func (h *Heap) High() int { return h.brk }

// MaxSize returns the size of the reservation
func (h *Heap) MaxSize() int { return len(h.buf) }

func (h *Heap) Memory() []byte {
	return h.buf[:h.brk:h.brk]
}

// Reset empties the arena and zeroes the bytes that had been handed out, so that the reservation
// can be reused by a fresh allocator. Any allocator built over this Heap must be discarded first.
func (h *Heap) Reset() {
	clear(h.buf[:h.brk])
	h.brk = 0
}

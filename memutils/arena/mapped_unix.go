//go:build linux || darwin

package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/mmalloc/memutils"
	"golang.org/x/sys/unix"
)

// Mapped is a Provider over an anonymous memory mapping. The full address range is reserved
// inaccessible when the Mapped is created, and pages are made readable and writable as Extend
// reaches them, so the arena costs no physical memory until it is used.
type Mapped struct {
	reserved  []byte
	brk       int
	committed int
	pageSize  int
}

var _ Provider = &Mapped{}

// NewMapped reserves maxSize bytes of address space, rounded up to the page size. If maxSize is
// not positive, DefaultMaxSize is used. Close must be called to release the mapping.
func NewMapped(maxSize int) (*Mapped, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	pageSize := unix.Getpagesize()
	maxSize = memutils.AlignUp(maxSize, pageSize)

	reserved, err := unix.Mmap(-1, 0, maxSize, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "arena: failed to reserve %d bytes of address space", maxSize)
	}

	return &Mapped{
		reserved: reserved,
		pageSize: pageSize,
	}, nil
}

func (m *Mapped) Extend(size int) (int, error) {
	if m.reserved == nil {
		return 0, errors.New("arena: mapping has been closed")
	}

	err := checkExtension(size, m.brk, len(m.reserved))
	if err != nil {
		return 0, err
	}

	newBrk := m.brk + size
	if newBrk > m.committed {
		commitTo := memutils.AlignUp(newBrk, m.pageSize)
		err = unix.Mprotect(m.reserved[m.committed:commitTo], unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return 0, errors.Mark(errors.Wrapf(err, "arena: failed to commit %d bytes", commitTo-m.committed), ErrOutOfMemory)
		}
		m.committed = commitTo
	}

	oldBrk := m.brk
	m.brk = newBrk
	return oldBrk, nil
}

func (m *Mapped) Low() int { return 0 }

func (m *Mapped) High() int { return m.brk }

// MaxSize returns the size of the reserved address range
func (m *Mapped) MaxSize() int { return len(m.reserved) }

func (m *Mapped) Memory() []byte {
	return m.reserved[:m.brk:m.brk]
}

// Reset empties the arena and zeroes the bytes that had been handed out. Committed pages stay
// committed.
func (m *Mapped) Reset() {
	clear(m.reserved[:m.brk])
	m.brk = 0
}

// Close unmaps the arena. Every slice obtained from Memory becomes invalid.
func (m *Mapped) Close() error {
	if m.reserved == nil {
		return nil
	}

	err := unix.Munmap(m.reserved)
	m.reserved = nil
	m.brk = 0
	m.committed = 0
	return err
}

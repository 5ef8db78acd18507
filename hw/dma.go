package hw

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/clktmr/de/debug"
)

// Region is a contiguous piece of memory that is visible to the display
// engine. Buf is the host view, Phys the address the device uses to read it.
// Both refer to the same bytes, the offset of a byte in Buf equals its offset
// from Phys.
type Region struct {
	Buf  []byte
	Phys uint64
}

// Coherent allocates device visible memory which doesn't need cache
// maintenance before the device reads it.
type Coherent interface {
	AllocCoherent(size int) (*Region, error)
	FreeCoherent(r *Region)
}

var ErrNoMemory = errors.New("hw: out of device memory")

// RegionAlign is the alignment of every region returned by HostMemory.
const RegionAlign = 64

// MakeAligned returns a byte slice of length size whose start is aligned to
// align. The slice's capacity equals its length, so append will always copy.
func MakeAligned(size int, align uintptr) []byte {
	buf := make([]byte, size+int(align))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	shift := (align - addr%align) % align
	end := shift + uintptr(size)
	return buf[shift:end:end]
}

// Words reinterprets p as a slice of 32 bit words. The start of p must be 4
// byte aligned.
func Words(p []byte) []uint32 {
	if len(p) < 4 {
		return nil
	}
	ptr := unsafe.Pointer(unsafe.SliceData(p))
	debug.Assert(IsAligned(uintptr(ptr), 4), "hw: unaligned words")
	return unsafe.Slice((*uint32)(ptr), len(p)>>2)
}

// HostMemory implements Coherent with ordinary Go memory and synthetic
// physical addresses. The simulated device resolves these addresses with
// Bytes. There is no upper limit except the one set with NewHostMemory.
//
// HostMemory is safe for concurrent use.
type HostMemory struct {
	mtx     sync.Mutex
	next    uint64
	end     uint64
	regions []*Region
}

// NewHostMemory returns an allocator that hands out physical addresses in
// [base, base+size).
func NewHostMemory(base uint64, size uint64) *HostMemory {
	return &HostMemory{next: base, end: base + size}
}

func (m *HostMemory) AllocCoherent(size int) (*Region, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	span := AlignUp(uint64(size), 4096)
	if m.next+span > m.end {
		return nil, fmt.Errorf("%w: %d bytes requested", ErrNoMemory, size)
	}

	r := &Region{Buf: MakeAligned(size, RegionAlign), Phys: m.next}
	m.next += span
	m.regions = append(m.regions, r)
	return r, nil
}

func (m *HostMemory) FreeCoherent(r *Region) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for i, v := range m.regions {
		if v == r {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return
		}
	}
}

// Bytes returns the host view of n bytes at physical address phys.
func (m *HostMemory) Bytes(phys uint64, n int) ([]byte, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for _, r := range m.regions {
		if phys >= r.Phys && phys+uint64(n) <= r.Phys+uint64(len(r.Buf)) {
			off := phys - r.Phys
			return r.Buf[off : off+uint64(n)], nil
		}
	}
	return nil, fmt.Errorf("hw: no memory at %#x+%d", phys, n)
}

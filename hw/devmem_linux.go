//go:build linux

package hw

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem is a Window mapped from /dev/mem. It's used for the real engine
// register space.
type DevMem struct {
	buf   []byte
	words []uint32
}

// MapDevMem maps size bytes of physical memory at phys, which must be page
// aligned.
func MapDevMem(phys uint64, size int) (*DevMem, error) {
	if !IsAligned(phys, uint64(os.Getpagesize())) {
		return nil, fmt.Errorf("devmem: %#x is not page aligned", phys)
	}

	fd, err := unix.Open("/dev/mem", unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("devmem: %w", err)
	}
	defer unix.Close(fd)

	size = AlignUp(size, os.Getpagesize())
	buf, err := unix.Mmap(fd, int64(phys), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("devmem: mmap %#x: %w", phys, err)
	}

	return &DevMem{
		buf:   buf,
		words: unsafe.Slice((*uint32)(unsafe.Pointer(unsafe.SliceData(buf))), len(buf)>>2),
	}, nil
}

func (m *DevMem) Size() uint32 { return uint32(len(m.buf)) }

func (m *DevMem) Load32(off uint32) uint32 {
	return atomic.LoadUint32(&m.words[off>>2])
}

func (m *DevMem) Store32(off uint32, v uint32) {
	atomic.StoreUint32(&m.words[off>>2], v)
}

func (m *DevMem) Close() error {
	m.words = nil
	return unix.Munmap(m.buf)
}

package rcq

import (
	"fmt"

	"github.com/clktmr/de/debug"
	"github.com/clktmr/de/hw"
)

// Arena carves allocations out of a single device visible region. It never
// grows; an allocation that doesn't fit fails without side effects. Freeing
// single allocations is a no-op, the whole region is returned by Release.
//
// Arena is not safe for concurrent use. All allocations are done from bring-up
// code, which is serialized by the engine.
type Arena struct {
	mem    hw.Coherent
	region *hw.Region

	cursor   uint64 // physical address of the next free byte
	used     int
	capacity int
}

func NewArena(mem hw.Coherent, capacity int) (*Arena, error) {
	region, err := mem.AllocCoherent(capacity)
	if err != nil {
		return nil, fmt.Errorf("rcq: arena: %w", err)
	}
	return &Arena{
		mem:      mem,
		region:   region,
		cursor:   region.Phys,
		capacity: capacity,
	}, nil
}

// Alloc returns size bytes, rounded up to align which is at least Alignment.
// The host and device addresses of the returned chunk only differ by the
// arena's base offset.
func (a *Arena) Alloc(size, align int) (Chunk, error) {
	align = max(align, Alignment)
	off := hw.AlignUp(a.used, align)
	size = hw.AlignUp(size, align)
	if size < 0 || off+size > a.capacity {
		return Chunk{}, fmt.Errorf("%w: %d of %d bytes used, %d requested",
			ErrOutOfSpace, a.used, a.capacity, size)
	}

	c := Chunk{
		Buf:  a.region.Buf[off : off+size : off+size],
		Phys: a.region.Phys + uint64(off),
	}
	a.cursor = c.Phys + uint64(size)
	a.used = off + size
	return c, nil
}

func (a *Arena) Free(c Chunk) {}

func (a *Arena) Used() int     { return a.used }
func (a *Arena) Capacity() int { return a.capacity }

// Release returns the whole region. The arena must not be used afterwards.
func (a *Arena) Release() {
	if a.region == nil {
		return
	}
	base := a.cursor - uint64(a.used)
	debug.Assert(base == a.region.Phys, "rcq: arena cursor corrupted")
	a.mem.FreeCoherent(a.region)
	a.region = nil
	a.cursor, a.used = 0, 0
}

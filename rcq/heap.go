package rcq

import (
	"sync/atomic"

	"github.com/clktmr/de/hw"
)

// Heap allocates every chunk separately from ordinary memory. The chunks
// aren't visible to the device, so it's only usable with update strategies
// where the CPU writes the registers.
type Heap struct {
	allocated atomic.Int64
}

func (h *Heap) Alloc(size, align int) (Chunk, error) {
	buf := hw.MakeAligned(size, uintptr(max(align, 4)))
	h.allocated.Add(int64(size))
	return Chunk{Buf: buf}, nil
}

func (h *Heap) Free(c Chunk) {
	h.allocated.Add(-int64(len(c.Buf)))
}

// Allocated returns the number of bytes currently allocated.
func (h *Heap) Allocated() int64 { return h.allocated.Load() }

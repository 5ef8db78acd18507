// Package rcq implements the register configuration queue of the display
// engine.
//
// Every hardware unit keeps a shadow copy of its registers in one or more
// register blocks. Once per output the blocks of all attached units are
// collected into a table of descriptors, which the engine walks during
// vertical blanking to copy all dirty blocks into its registers at once.
package rcq

import (
	"errors"

	"github.com/clktmr/de/hw"
)

// Alignment of every allocation in the arena.
const Alignment = 32

// DefaultArenaSize is the capacity of the arena used for all register blocks
// and descriptor tables of one engine.
const DefaultArenaSize = 256000

var ErrOutOfSpace = errors.New("rcq: arena out of space")

// Chunk is a piece of memory handed out by an Allocator. Phys is zero if the
// memory isn't visible to the device.
type Chunk struct {
	Buf  []byte
	Phys uint64
}

// Allocator provides memory for register blocks and descriptor tables. All
// allocations happen at bring-up and live until the output is torn down.
type Allocator interface {
	Alloc(size, align int) (Chunk, error)
	Free(c Chunk)
}

// NewAllocator returns an Arena on a freshly allocated coherent region if
// batched is set, and a Heap otherwise.
func NewAllocator(mem hw.Coherent, batched bool) (Allocator, error) {
	if !batched {
		return &Heap{}, nil
	}
	return NewArena(mem, DefaultArenaSize)
}

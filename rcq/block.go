package rcq

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"

	"github.com/clktmr/de/debug"
	"github.com/clktmr/de/hw"
)

// Block is a contiguous span of shadow registers owned by one hardware unit.
// The unit writes the shadow and marks the block dirty, the engine copies it
// to Reg on the next commit.
//
// The dirty flag is mirrored into the descriptor the block is bound to. Only
// Build and Rebind change the binding.
type Block struct {
	Shadow []byte // host writable copy of the registers
	Phys   uint64 // device address of Shadow, zero if not device visible
	Reg    uint64 // device address of the registers

	dirty atomic.Bool
	gen   atomic.Uint64 // incremented by every MarkDirty
	slot  atomic.Pointer[binding]
}

type binding struct {
	table *Table
	index int
}

// NewBlock allocates the shadow for size bytes of registers at reg. Register
// blocks are always a multiple of 4 bytes long.
func NewBlock(alloc Allocator, reg uint64, size int) (*Block, error) {
	debug.Assert(hw.IsAligned(reg, 4), "rcq: unaligned register block")
	c, err := alloc.Alloc(hw.AlignUp(size, 4), Alignment)
	if err != nil {
		return nil, err
	}
	return &Block{Shadow: c.Buf[:hw.AlignUp(size, 4)], Phys: c.Phys, Reg: reg}, nil
}

// Len returns the length of the block in bytes.
func (b *Block) Len() int { return len(b.Shadow) }

func (b *Block) Dirty() bool { return b.dirty.Load() }

// MarkDirty marks the block and its descriptor dirty.
func (b *Block) MarkDirty() {
	b.gen.Add(1)
	b.mark()
}

func (b *Block) mark() {
	b.dirty.Store(true)
	if s := b.slot.Load(); s != nil {
		s.table.setDirty(s.index, true)
	}
}

// settle clears the dirty flags unless the block was marked again after gen
// was read. The flags are cleared before the generation is checked, a
// concurrent MarkDirty either sees the cleared flags or is detected.
func (b *Block) settle(gen uint64) {
	b.ClearDirty()
	if b.gen.Load() != gen {
		b.mark()
	}
}

// ClearDirty clears the dirty flag of the block and its descriptor.
func (b *Block) ClearDirty() {
	b.dirty.Store(false)
	if s := b.slot.Load(); s != nil {
		s.table.setDirty(s.index, false)
	}
}

// Slot returns the table and index of the descriptor the block is bound to.
func (b *Block) Slot() (t *Table, index int, ok bool) {
	s := b.slot.Load()
	if s == nil {
		return nil, 0, false
	}
	return s.table, s.index, true
}

func (b *Block) bind(t *Table, index int) {
	b.slot.Store(&binding{t, index})
}

func (b *Block) unbind(t *Table) {
	if s := b.slot.Load(); s != nil && s.table == t {
		b.slot.CompareAndSwap(s, nil)
	}
}

// Load32 returns the shadow register at byte offset off.
func (b *Block) Load32(off int) uint32 {
	return binary.LittleEndian.Uint32(b.Shadow[off:])
}

// Store32 writes the shadow register at byte offset off and marks the block
// dirty if the value changed. Reports whether it changed.
func (b *Block) Store32(off int, v uint32) bool {
	if b.Load32(off) == v {
		return false
	}
	binary.LittleEndian.PutUint32(b.Shadow[off:], v)
	b.MarkDirty()
	return true
}

// Write copies p to byte offset off of the shadow and marks the block dirty if
// the content changed. Reports whether it changed.
func (b *Block) Write(off int, p []byte) bool {
	debug.Assert(off+len(p) <= len(b.Shadow), "rcq: write beyond block")
	dst := b.Shadow[off : off+len(p)]
	if bytes.Equal(dst, p) {
		return false
	}
	copy(dst, p)
	b.MarkDirty()
	return true
}

package rcq

import (
	"fmt"
	"sync/atomic"

	"github.com/clktmr/de/debug"
	"github.com/clktmr/de/hw"
	"github.com/sigurn/crc8"
)

// Hardware requirement for the number of descriptors in a table.
const descriptorCountAlign = 2

// Table is the descriptor queue of one output together with the register
// blocks it was built from. The descriptor array is owned by the table, the
// blocks are only referenced.
type Table struct {
	Phys   uint64   // device address of the first descriptor
	Blocks []*Block // in the order they were passed to Build

	Count   int // number of blocks
	Aligned int // number of descriptors, Count rounded up

	chunk Chunk
	desc  []uint32
	base  uint64
}

// Build collects the blocks of all lists into a new table and writes one
// descriptor per block. base is the device address of the engine registers,
// descriptors store register offsets relative to it. Every block not yet bound
// to another table is bound to its descriptor, so marking it dirty also marks
// the descriptor.
func Build(base uint64, alloc Allocator, lists ...[]*Block) (*Table, error) {
	count := 0
	for _, l := range lists {
		count += len(l)
	}

	t := &Table{
		Blocks:  make([]*Block, 0, count),
		Count:   count,
		Aligned: hw.RoundUp(count, descriptorCountAlign),
		base:    base,
	}
	for _, l := range lists {
		t.Blocks = append(t.Blocks, l...)
	}
	if debug.Enabled {
		seen := make(map[uint64]bool, count)
		for _, b := range t.Blocks {
			debug.Assertf(!seen[b.Reg], "rcq: duplicate register block at %#x", b.Reg)
			seen[b.Reg] = true
		}
	}

	var err error
	t.chunk, err = alloc.Alloc(t.Aligned*DescriptorSize, Alignment)
	if err != nil {
		return nil, fmt.Errorf("rcq: descriptor table: %w", err)
	}
	t.Phys = t.chunk.Phys
	t.desc = hw.Words(t.chunk.Buf[:t.Aligned*DescriptorSize])

	for i, b := range t.Blocks {
		debug.Assert(b.Reg >= base, "rcq: register block below engine base")
		debug.Assertf(b.Len() <= int(ctrlLenMask), "rcq: register block of %d bytes too long", b.Len())

		w := t.desc[i*descWords : (i+1)*descWords]
		low, high := SplitAddr(b.Phys)
		atomic.StoreUint32(&w[wordLow], low)
		atomic.StoreUint32(&w[wordHigh], high)
		atomic.StoreUint32(&w[wordOffset], uint32(b.Reg-base))
		atomic.StoreUint32(&w[wordCtrl], uint32(b.Len())&ctrlLenMask)

		// Shared blocks stay with the table they serve until rebound.
		if _, _, ok := b.Slot(); ok {
			continue
		}
		b.bind(t, i)
		if b.Dirty() {
			t.setDirty(i, true)
		}
	}
	for i := t.Count; i < t.Aligned; i++ {
		atomic.StoreUint32(&t.desc[i*descWords+wordCtrl], 0) // padding is never dirty
	}

	return t, nil
}

// Len returns the number of descriptors including padding.
func (t *Table) Len() int { return t.Aligned }

// Descriptor returns descriptor i as currently seen by the hardware.
func (t *Table) Descriptor(i int) Descriptor {
	var w [descWords]uint32
	for j := range w {
		w[j] = atomic.LoadUint32(&t.desc[i*descWords+j])
	}
	return decodeDescriptor(w[:])
}

func (t *Table) setDirty(i int, dirty bool) {
	ctrl := &t.desc[i*descWords+wordCtrl]
	if dirty {
		atomic.OrUint32(ctrl, ctrlDirty)
	} else {
		atomic.AndUint32(ctrl, ^ctrlDirty)
	}
}

// Find returns the index of the first descriptor targeting register offset
// off, or -1.
func (t *Table) Find(off uint32) int {
	for i := range t.Count {
		if atomic.LoadUint32(&t.desc[i*descWords+wordOffset]) == off {
			return i
		}
	}
	return -1
}

// Bound reports whether b is currently bound to a descriptor of t.
func (t *Table) Bound(b *Block) bool {
	bt, _, ok := b.Slot()
	return ok && bt == t
}

// DirtyBlocks returns the blocks bound to t which are marked dirty, in table
// order.
func (t *Table) DirtyBlocks() []*Block {
	var dirty []*Block
	for _, b := range t.Blocks {
		if b.Dirty() && t.Bound(b) {
			dirty = append(dirty, b)
		}
	}
	return dirty
}

// Snapshot is the set of dirty blocks of a table at the time a commit was
// requested.
type Snapshot struct {
	blocks []*Block
	gens   []uint64
}

// Snapshot records the dirty blocks bound to t together with their
// generation.
func (t *Table) Snapshot() Snapshot {
	var s Snapshot
	for _, b := range t.Blocks {
		gen := b.gen.Load()
		if b.Dirty() && t.Bound(b) {
			s.blocks = append(s.blocks, b)
			s.gens = append(s.gens, gen)
		}
	}
	return s
}

// Blocks returns the blocks of the snapshot in table order.
func (s Snapshot) Blocks() []*Block { return s.blocks }

func (s Snapshot) Len() int { return len(s.blocks) }

// Settle clears the dirty flags of the blocks in s once their content reached
// the hardware. Blocks marked again since the snapshot stay dirty.
func (s Snapshot) Settle() {
	for i, b := range s.blocks {
		b.settle(s.gens[i])
	}
}

// Dirty returns the number of dirty blocks bound to t.
func (t *Table) Dirty() (n int) {
	for _, b := range t.Blocks {
		if b.Dirty() && t.Bound(b) {
			n++
		}
	}
	return n
}

// ClearDirty clears all descriptors of t and the dirty flag of every block
// bound to t. Blocks bound to another table keep their flag for that table's
// next commit.
func (t *Table) ClearDirty() {
	for i, b := range t.Blocks {
		if t.Bound(b) {
			b.dirty.Store(false)
		}
		t.setDirty(i, false)
	}
}

// Bytes returns the descriptor array as read by the hardware.
func (t *Table) Bytes() []byte {
	return t.chunk.Buf[:t.Aligned*DescriptorSize]
}

var checksumTable = crc8.MakeTable(crc8.CRC8)

// Checksum returns a CRC-8 of the descriptor array. Dirty flags are masked,
// so the checksum only changes if the layout changes.
func (t *Table) Checksum() uint8 {
	var buf [DescriptorSize]byte
	crc := crc8.Init(checksumTable)
	for i := range t.Aligned {
		d := t.Descriptor(i)
		putDescriptor(buf[:], d.LowAddr, d.HighAddr, d.Len, d.RegOffset)
		crc = crc8.Update(crc, buf[:], checksumTable)
	}
	return crc8.Complete(crc, checksumTable)
}

func putDescriptor(p []byte, words ...uint32) {
	for i, w := range words {
		p[i*4], p[i*4+1], p[i*4+2], p[i*4+3] = byte(w), byte(w>>8), byte(w>>16), byte(w>>24)
	}
}

// Release unbinds all blocks and frees the descriptor array.
func (t *Table) Release(alloc Allocator) {
	for _, b := range t.Blocks {
		b.unbind(t)
	}
	alloc.Free(t.chunk)
	t.desc = nil
	t.chunk = Chunk{}
}

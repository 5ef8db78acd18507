package rcq

import (
	"errors"
	"fmt"
)

var ErrNoSlot = errors.New("rcq: no matching descriptor")

// Rebind moves the bindings of blocks to a contiguous run of descriptors in
// t. The run starts at the descriptor targeting the first block's registers.
// Used for units like write-back which can be attached to any output: their
// dirty marks must land in the table of the output they currently serve.
//
// Blocks which are dirty at the time of the call mark their new descriptor
// dirty and leave their previous descriptor clean.
func Rebind(blocks []*Block, t *Table) error {
	if len(blocks) == 0 {
		return nil
	}

	off := uint32(blocks[0].Reg - t.base)
	start := t.Find(off)
	if start < 0 {
		return fmt.Errorf("%w: register offset %#x", ErrNoSlot, off)
	}
	if start+len(blocks) > t.Count {
		return fmt.Errorf("%w: %d blocks at %d exceed table of %d",
			ErrNoSlot, len(blocks), start, t.Count)
	}
	for i, b := range blocks {
		if t.Descriptor(start+i).RegOffset != uint32(b.Reg-t.base) {
			return fmt.Errorf("%w: register offset %#x at %d",
				ErrNoSlot, uint32(b.Reg-t.base), start+i)
		}
	}

	for i, b := range blocks {
		if s := b.slot.Load(); s != nil && s.table != t {
			s.table.setDirty(s.index, false)
		}
		b.bind(t, start+i)
		if b.Dirty() {
			t.setDirty(start+i, true)
		}
	}
	return nil
}

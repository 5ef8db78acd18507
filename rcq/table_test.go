package rcq_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/clktmr/de/rcq"
)

const engineBase = 0x0100_0000

func makeBlocks(t *testing.T, alloc rcq.Allocator, regs ...uint64) []*rcq.Block {
	blocks := make([]*rcq.Block, len(regs))
	for i, reg := range regs {
		b, err := rcq.NewBlock(alloc, reg, 0x20)
		if err != nil {
			t.Fatal(err)
		}
		blocks[i] = b
	}
	return blocks
}

func TestBuild(t *testing.T) {
	tests := map[string][][]uint64{
		"empty":  {},
		"single": {{engineBase + 0x1000}},
		"even":   {{engineBase + 0x1000, engineBase + 0x1100}},
		"odd":    {{engineBase + 0x1000}, {engineBase + 0x2000, engineBase + 0x2040}},
		"many": {
			{engineBase + 0x1000, engineBase + 0x1100, engineBase + 0x1200},
			{},
			{engineBase + 0x8000},
			{engineBase + 0xa000, engineBase + 0xa020},
		},
	}
	for name, regs := range tests {
		t.Run(name, func(t *testing.T) {
			a, _ := newArena(t, rcq.DefaultArenaSize)
			var lists [][]*rcq.Block
			count := 0
			for _, r := range regs {
				lists = append(lists, makeBlocks(t, a, r...))
				count += len(r)
			}
			for _, b := range lists[min(1, len(lists)):] {
				if len(b) > 0 {
					b[0].MarkDirty()
				}
			}

			tbl, err := rcq.Build(engineBase, a, lists...)
			if err != nil {
				t.Fatal(err)
			}
			if tbl.Count != count {
				t.Fatalf("expected %d blocks, got %d", count, tbl.Count)
			}
			if tbl.Len()%2 != 0 {
				t.Fatalf("descriptor count %d not aligned", tbl.Len())
			}
			if count%2 == 1 && tbl.Descriptor(tbl.Len()-1).Dirty {
				t.Fatal("padding descriptor is dirty")
			}
			if len(tbl.Bytes()) != tbl.Len()*rcq.DescriptorSize {
				t.Fatalf("unexpected table size %d", len(tbl.Bytes()))
			}

			i := 0
			for _, l := range lists {
				for _, b := range l {
					if tbl.Blocks[i] != b {
						t.Fatalf("block order not preserved at %d", i)
					}
					d := tbl.Descriptor(i)
					if d.RegOffset != uint32(b.Reg-engineBase) {
						t.Fatalf("expected offset %#x, got %#x", b.Reg-engineBase, d.RegOffset)
					}
					if d.Addr() != b.Phys {
						t.Fatalf("expected address %#x, got %#x", b.Phys, d.Addr())
					}
					if int(d.Len) != b.Len() {
						t.Fatalf("expected length %d, got %d", b.Len(), d.Len)
					}
					if d.Dirty != b.Dirty() {
						t.Fatalf("dirty mismatch at %d", i)
					}
					if bt, idx, ok := b.Slot(); !ok || bt != tbl || idx != i {
						t.Fatalf("block %d not bound to its descriptor", i)
					}
					i++
				}
			}
		})
	}
}

func TestBuildOutOfSpace(t *testing.T) {
	a, _ := newArena(t, 64)
	blocks := makeBlocks(t, a, engineBase, engineBase+0x20)
	_, err := rcq.Build(engineBase, a, blocks)
	if !errors.Is(err, rcq.ErrOutOfSpace) {
		t.Fatalf("expected %v, got %v", rcq.ErrOutOfSpace, err)
	}
}

func TestSplitAddr(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	addrs := []uint64{0, 1, 0xffff_ffff, 0x1_0000_0000, ^uint64(0)}
	for range 1000 {
		addrs = append(addrs, rng.Uint64())
	}
	for _, a := range addrs {
		low, high := rcq.SplitAddr(a)
		d := rcq.Descriptor{LowAddr: low, HighAddr: high}
		if d.Addr() != a {
			t.Fatalf("expected %#x, got %#x", a, d.Addr())
		}
	}
}

func TestMarkDirty(t *testing.T) {
	a, _ := newArena(t, rcq.DefaultArenaSize)
	blocks := makeBlocks(t, a, engineBase, engineBase+0x40, engineBase+0x80)
	tbl, err := rcq.Build(engineBase, a, blocks)
	if err != nil {
		t.Fatal(err)
	}

	if blocks[1].Store32(4, 0) {
		t.Fatal("storing the current value must not dirty the block")
	}
	if !blocks[1].Store32(4, 0xdead) {
		t.Fatal("store didn't report change")
	}
	if !blocks[1].Dirty() || !tbl.Descriptor(1).Dirty {
		t.Fatal("block and descriptor should be dirty")
	}
	if tbl.Descriptor(0).Dirty || tbl.Descriptor(2).Dirty {
		t.Fatal("unrelated descriptors dirty")
	}
	if got := blocks[1].Load32(4); got != 0xdead {
		t.Fatalf("expected %#x, got %#x", 0xdead, got)
	}
	if d := tbl.DirtyBlocks(); len(d) != 1 || d[0] != blocks[1] {
		t.Fatalf("unexpected dirty blocks %v", d)
	}

	tbl.ClearDirty()
	if blocks[1].Dirty() || tbl.Descriptor(1).Dirty || tbl.Dirty() != 0 {
		t.Fatal("dirty flags not cleared")
	}
	if blocks[2].Write(0, []byte{0, 0, 0, 0}) {
		t.Fatal("writing identical bytes must not dirty the block")
	}
}

func TestSnapshotSettle(t *testing.T) {
	a, _ := newArena(t, rcq.DefaultArenaSize)
	blocks := makeBlocks(t, a, engineBase, engineBase+0x40, engineBase+0x80)
	tbl, err := rcq.Build(engineBase, a, blocks)
	if err != nil {
		t.Fatal(err)
	}
	blocks[0].Store32(0, 1)
	blocks[1].Store32(0, 1)

	snap := tbl.Snapshot()
	if snap.Len() != 2 {
		t.Fatalf("expected 2 blocks in snapshot, got %d", snap.Len())
	}

	// Changes made while the hardware works on the snapshot.
	blocks[1].Store32(0, 2)
	blocks[2].Store32(0, 1)

	snap.Settle()
	if blocks[0].Dirty() || tbl.Descriptor(0).Dirty {
		t.Fatal("committed block still dirty")
	}
	for i := 1; i < 3; i++ {
		if !blocks[i].Dirty() || !tbl.Descriptor(i).Dirty {
			t.Fatalf("block %d changed after the snapshot lost its dirty flag", i)
		}
	}
	if tbl.Dirty() != 2 {
		t.Fatalf("expected 2 dirty blocks, got %d", tbl.Dirty())
	}

	tbl.Snapshot().Settle()
	if tbl.Dirty() != 0 {
		t.Fatalf("expected no dirty blocks, got %d", tbl.Dirty())
	}
}

func TestChecksum(t *testing.T) {
	a, _ := newArena(t, rcq.DefaultArenaSize)
	blocks := makeBlocks(t, a, engineBase, engineBase+0x40)
	tbl, err := rcq.Build(engineBase, a, blocks)
	if err != nil {
		t.Fatal(err)
	}
	sum := tbl.Checksum()
	blocks[0].MarkDirty()
	if tbl.Checksum() != sum {
		t.Fatal("checksum depends on dirty flags")
	}
}

func TestRelease(t *testing.T) {
	var h rcq.Heap
	blocks := makeBlocks(t, &h, engineBase)
	tbl, err := rcq.Build(engineBase, &h, blocks)
	if err != nil {
		t.Fatal(err)
	}
	tbl.Release(&h)
	if _, _, ok := blocks[0].Slot(); ok {
		t.Fatal("block still bound after release")
	}
	blocks[0].MarkDirty() // must not touch the released table
	if !blocks[0].Dirty() {
		t.Fatal("block not dirty")
	}
}

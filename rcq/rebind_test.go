package rcq_test

import (
	"errors"
	"testing"

	"github.com/clktmr/de/rcq"
)

func TestRebind(t *testing.T) {
	a, _ := newArena(t, rcq.DefaultArenaSize)
	wb := makeBlocks(t, a, engineBase+0x10000, engineBase+0x10020, engineBase+0x10040)

	outA, err := rcq.Build(engineBase, a, makeBlocks(t, a, engineBase+0x1000), wb)
	if err != nil {
		t.Fatal(err)
	}
	outB, err := rcq.Build(engineBase, a, makeBlocks(t, a, engineBase+0x2000, engineBase+0x2100), wb)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		name       string
		bound, not *rcq.Table
		start      int
	}{
		{"A", outA, outB, 1},
		{"B", outB, outA, 2},
		{"A again", outA, outB, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			outA.ClearDirty()
			outB.ClearDirty()

			if err := rcq.Rebind(wb, tc.bound); err != nil {
				t.Fatal(err)
			}
			for i, b := range wb {
				b.MarkDirty()
				if !tc.bound.Descriptor(tc.start + i).Dirty {
					t.Fatalf("block %d not dirty in bound table", i)
				}
				if tbl, idx, _ := b.Slot(); tbl != tc.bound || idx != tc.start+i {
					t.Fatalf("block %d bound to %v:%d", i, tbl, idx)
				}
			}
			for i := range tc.not.Len() {
				if tc.not.Descriptor(i).Dirty {
					t.Fatalf("descriptor %d of other table dirty", i)
				}
			}
		})
	}
}

func TestRebindNoSlot(t *testing.T) {
	a, _ := newArena(t, rcq.DefaultArenaSize)
	wb := makeBlocks(t, a, engineBase+0x10000, engineBase+0x10020)
	other := makeBlocks(t, a, engineBase+0x1000)

	tbl, err := rcq.Build(engineBase, a, other)
	if err != nil {
		t.Fatal(err)
	}
	err = rcq.Rebind(wb, tbl)
	if !errors.Is(err, rcq.ErrNoSlot) {
		t.Fatalf("expected %v, got %v", rcq.ErrNoSlot, err)
	}
	if _, _, ok := wb[0].Slot(); ok {
		t.Fatal("failed rebind changed binding")
	}

	// Only the first block matches.
	partial, err := rcq.Build(engineBase, a, wb[:1], other)
	if err != nil {
		t.Fatal(err)
	}
	if err := rcq.Rebind(wb, partial); !errors.Is(err, rcq.ErrNoSlot) {
		t.Fatalf("expected %v, got %v", rcq.ErrNoSlot, err)
	}
	if tbl, _, _ := wb[1].Slot(); tbl == partial {
		t.Fatal("failed rebind changed binding")
	}
}

func TestRebindCarriesDirty(t *testing.T) {
	a, _ := newArena(t, rcq.DefaultArenaSize)
	wb := makeBlocks(t, a, engineBase+0x10000)
	outA, err := rcq.Build(engineBase, a, wb)
	if err != nil {
		t.Fatal(err)
	}
	outB, err := rcq.Build(engineBase, a, wb)
	if err != nil {
		t.Fatal(err)
	}

	if err := rcq.Rebind(wb, outA); err != nil {
		t.Fatal(err)
	}
	wb[0].MarkDirty()
	if err := rcq.Rebind(wb, outB); err != nil {
		t.Fatal(err)
	}
	if !outB.Descriptor(0).Dirty {
		t.Fatal("pending dirty flag lost on rebind")
	}
	if outA.Descriptor(0).Dirty {
		t.Fatal("previous table still carries the dirty flag")
	}
	if outB.Dirty() != 1 || outA.Dirty() != 0 {
		t.Fatalf("unexpected dirty counts A %d, B %d", outA.Dirty(), outB.Dirty())
	}
}

func TestBuildSharedBlocks(t *testing.T) {
	a, _ := newArena(t, rcq.DefaultArenaSize)
	wb := makeBlocks(t, a, engineBase+0x10000)
	outA, err := rcq.Build(engineBase, a, wb)
	if err != nil {
		t.Fatal(err)
	}
	wb[0].MarkDirty()

	outB, err := rcq.Build(engineBase, a, makeBlocks(t, a, engineBase+0x1000), wb)
	if err != nil {
		t.Fatal(err)
	}
	if tbl, _, _ := wb[0].Slot(); tbl != outA {
		t.Fatal("building a table took over a bound block")
	}
	if outB.Descriptor(1).Dirty {
		t.Fatal("pending change of another table copied into the new table")
	}
	if !outA.Descriptor(0).Dirty {
		t.Fatal("dirty flag lost in the owning table")
	}

	outA.Release(a)
	outC, err := rcq.Build(engineBase, a, wb)
	if err != nil {
		t.Fatal(err)
	}
	if tbl, _, _ := wb[0].Slot(); tbl != outC || !outC.Descriptor(0).Dirty {
		t.Fatal("released block not bound to the new table")
	}
}

package hw_test

import (
	"bytes"
	"testing"

	"github.com/clktmr/de/hw"
)

func TestReadWriteIO(t *testing.T) {
	testdata := []byte("Hello everybody, I'm Bonzo!")
	initBytes := make([]byte, 64)
	for i := range initBytes {
		initBytes[i] = byte(i+0x30) % 64
	}

	for busAlign := 0; busAlign < 7; busAlign += 1 {
		for sliceLen := 0; sliceLen < len(testdata); sliceLen += 1 {
			w := hw.NewMem(64)
			hw.WriteIO(w, 0, initBytes)

			tx := testdata[:sliceLen]
			hw.WriteIO(w, uint32(busAlign), tx)

			rx := make([]byte, sliceLen)
			hw.ReadIO(w, uint32(busAlign), rx)
			if !bytes.Equal(tx, rx) {
				t.Logf("tx %q", string(tx))
				t.Logf("rx %q", string(rx))
				t.Fatal("mismatch at ", busAlign, sliceLen)
			}

			all := make([]byte, 64)
			hw.ReadIO(w, 0, all)
			if !bytes.Equal(all[:busAlign], initBytes[:busAlign]) {
				t.Fatal("modified preceding data", busAlign, sliceLen)
			}
			end := busAlign + sliceLen
			if !bytes.Equal(all[end:], initBytes[end:]) {
				t.Fatal("modified succeeding data", busAlign, sliceLen)
			}
		}
	}
}

func TestWriteIOByteOrder(t *testing.T) {
	w := hw.NewMem(8)
	hw.WriteIO(w, 0, []byte{0x78, 0x56, 0x34, 0x12, 0xef, 0xbe})
	if got := w.Load32(0); got != 0x1234_5678 {
		t.Fatalf("expected %#x, got %#x", 0x1234_5678, got)
	}
	if got := w.Load32(4); got != 0xbeef {
		t.Fatalf("expected %#x, got %#x", 0xbeef, got)
	}
	if w.Stores() != 2 {
		t.Fatalf("expected 2 stores, got %d", w.Stores())
	}
}

func TestRegBits(t *testing.T) {
	w := hw.NewMem(16)
	r := hw.Reg(w, 8)
	r.Store(0x10)
	r.SetBits(0x3)
	r.ClearBits(0x10)
	if got := r.Load(); got != 0x3 {
		t.Fatalf("expected %#x, got %#x", 0x3, got)
	}
	if r.LoadBits(0x2) != 0x2 {
		t.Fatal("bit 1 should be set")
	}
}

func TestOnStore(t *testing.T) {
	w := hw.NewMem(16)
	var seen []uint32
	w.OnStore(4, func(v uint32) { seen = append(seen, v) })

	w.Store32(4, 1)
	w.Store32(0, 2)
	w.Poke(4, 3)
	w.Store32(4, 4)
	w.OnStore(4, nil)
	w.Store32(4, 5)

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 4 {
		t.Fatalf("unexpected hook calls %v", seen)
	}
	if w.Stores() != 4 {
		t.Fatalf("expected 4 stores, got %d", w.Stores())
	}
}

func TestAlign(t *testing.T) {
	tests := map[string]struct {
		v, align, up uint64
	}{
		"zero":    {0, 32, 0},
		"aligned": {64, 32, 64},
		"one":     {1, 32, 32},
		"odd":     {33, 2, 34},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := hw.AlignUp(tc.v, tc.align); got != tc.up {
				t.Fatalf("expected %d, got %d", tc.up, got)
			}
			if !hw.IsAligned(tc.up, tc.align) {
				t.Fatal("result not aligned")
			}
		})
	}
	if got := hw.RoundUp(7, 3); got != 9 {
		t.Fatalf("expected 9, got %d", got)
	}
}

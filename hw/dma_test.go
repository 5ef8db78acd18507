package hw_test

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/clktmr/de/hw"
)

func TestMakeAligned(t *testing.T) {
	for _, align := range []uintptr{4, 32, 64, 256} {
		buf := hw.MakeAligned(100, align)
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
		if addr%align != 0 {
			t.Fatalf("%#x not aligned to %d", addr, align)
		}
		if len(buf) != 100 || cap(buf) != 100 {
			t.Fatalf("unexpected len %d cap %d", len(buf), cap(buf))
		}
	}
}

func TestHostMemory(t *testing.T) {
	m := hw.NewHostMemory(0x4000_0000, 0x2000)

	a, err := m.AllocCoherent(100)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.AllocCoherent(4096)
	if err != nil {
		t.Fatal(err)
	}
	if a.Phys != 0x4000_0000 || b.Phys != 0x4000_1000 {
		t.Fatalf("unexpected addresses %#x %#x", a.Phys, b.Phys)
	}
	if _, err := m.AllocCoherent(1); !errors.Is(err, hw.ErrNoMemory) {
		t.Fatalf("expected %v, got %v", hw.ErrNoMemory, err)
	}

	b.Buf[10] = 0xaa
	p, err := m.Bytes(b.Phys+10, 1)
	if err != nil {
		t.Fatal(err)
	}
	if p[0] != 0xaa {
		t.Fatal("host view doesn't alias region")
	}

	m.FreeCoherent(b)
	if _, err := m.Bytes(b.Phys, 1); err == nil {
		t.Fatal("freed region still resolvable")
	}
}

func TestWords(t *testing.T) {
	buf := hw.MakeAligned(16, 4)
	w := hw.Words(buf)
	if len(w) != 4 {
		t.Fatalf("expected 4 words, got %d", len(w))
	}
	w[1] = 0xffff_ffff
	if buf[4] != 0xff || buf[8] != 0 {
		t.Fatal("words don't alias bytes")
	}
}

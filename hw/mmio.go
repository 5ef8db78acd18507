package hw

import "github.com/clktmr/de/debug"

// Window is a memory mapped register space. Offsets are relative to the start
// of the window and must be 4 byte aligned, since all registers are accessed
// with 32 bit granularity.
type Window interface {
	Load32(off uint32) uint32
	Store32(off uint32, v uint32)
	Size() uint32
}

// U32 is a single 32 bit register inside a Window.
type U32 struct {
	w   Window
	off uint32
}

// Reg returns the register at offset off in w.
func Reg(w Window, off uint32) U32 {
	debug.Assert(IsAligned(off, 4), "hw: unaligned register")
	debug.Assert(off+4 <= w.Size(), "hw: register outside window")
	return U32{w, off}
}

func (r U32) Load() uint32   { return r.w.Load32(r.off) }
func (r U32) Store(v uint32) { r.w.Store32(r.off, v) }
func (r U32) Offset() uint32 { return r.off }

func (r U32) LoadBits(mask uint32) uint32 { return r.Load() & mask }

// SetBits and ClearBits do a read-modify-write and are not atomic with respect
// to the hardware.
func (r U32) SetBits(mask uint32)   { r.Store(r.Load() | mask) }
func (r U32) ClearBits(mask uint32) { r.Store(r.Load() &^ mask) }

// WriteIO copies p to offset off of w using 32 bit stores in little endian
// byte order. Words which are only partially covered by p are read before
// writing. This might lead to unexpected behaviour of write-only registers.
func WriteIO(w Window, off uint32, p []byte) {
	debug.Assert(off+uint32(len(p)) <= w.Size(), "hw: write outside window")
	for len(p) > 0 {
		word, shift := off&^0x3, off&0x3
		n := min(4-int(shift), len(p))

		data, mask := uint32(0), uint32(0)
		for i := range n {
			s := (shift + uint32(i)) << 3
			data |= uint32(p[i]) << s
			mask |= 0xff << s
		}
		if mask != 0xffff_ffff { // read data before writing
			data |= w.Load32(word) &^ mask
		}
		w.Store32(word, data)

		p = p[n:]
		off += uint32(n)
	}
}

// ReadIO copies from offset off of w to p using 32 bit loads.
func ReadIO(w Window, off uint32, p []byte) {
	debug.Assert(off+uint32(len(p)) <= w.Size(), "hw: read outside window")
	for len(p) > 0 {
		word, shift := off&^0x3, off&0x3
		n := min(4-int(shift), len(p))

		data := w.Load32(word)
		for i := range n {
			p[i] = byte(data >> ((shift + uint32(i)) << 3))
		}

		p = p[n:]
		off += uint32(n)
	}
}
